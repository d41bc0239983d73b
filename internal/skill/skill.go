package skill

import (
	"time"

	"tradeagent/internal/store"
)

// ============================================================
// Контракт технического навыка (этапа пайплайна)
// ============================================================
//
// Каждый этап торгового пайплайна (анализ, стратегия, риск,
// исполнение) реализует интерфейс Skill и исполняется только
// через Runner, который добавляет валидацию входа, перехват
// ошибок/паник и ретроспективный контроль таймаута.

// Status - состояние навыка / результата исполнения
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusTimeout  Status = "timeout"
	StatusDisabled Status = "disabled"
)

// Input - входные данные навыка, ключи проверяются по RequiredInputs
type Input map[string]interface{}

// Result - результат одного исполнения навыка.
// Создаётся на каждый вызов и после возврата не изменяется.
type Result struct {
	SkillName     string                 `json:"skill_name"`
	Status        Status                 `json:"status"`
	Output        interface{}            `json:"output,omitempty"`
	Error         string                 `json:"error,omitempty"`
	ExecutionTime time.Duration          `json:"execution_time"`
	Confidence    float64                `json:"confidence"` // 0-1
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// IsSuccess возвращает true только для успешного результата
func (r *Result) IsSuccess() bool {
	return r != nil && r.Status == StatusSuccess
}

// Succeed создаёт успешный результат с типизированным выходом
func Succeed(skillName string, output interface{}, confidence float64) *Result {
	return &Result{
		SkillName:  skillName,
		Status:     StatusSuccess,
		Output:     output,
		Confidence: confidence,
		Timestamp:  time.Now(),
	}
}

// Fail создаёт результат с ошибкой
func Fail(skillName, errText string) *Result {
	return &Result{
		SkillName: skillName,
		Status:    StatusFailed,
		Error:     errText,
		Timestamp: time.Now(),
	}
}

// Skill - единый контракт этапа пайплайна.
//
// Execute получает глубокий снимок контекста и проверенный вход.
// Возврат ошибки или паника внутри Execute не пересекают границу
// Runner: обёртка преобразует их в Result со статусом failed.
// Токен отмены в Execute не передаётся: таймаут фиксируется
// ретроспективно, синхронный вызов никогда не прерывается.
type Skill interface {
	Name() string
	RequiredInputs() []string
	OutputSchema() map[string]string
	Execute(snapshot store.Context, input Input) (*Result, error)
}
