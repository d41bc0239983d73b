package skill

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradeagent/internal/store"
)

// ============================================================
// Runner - исполнительная обёртка навыка
// ============================================================

// Значения по умолчанию для исполнения навыка
const (
	DefaultTimeout  = 5 * time.Second
	DefaultPriority = 5
)

// RunnerConfig - параметры исполнения навыка
type RunnerConfig struct {
	Timeout  time.Duration
	Priority int
	Disabled bool
}

// Statistics - накопленные счётчики исполнения навыка
type Statistics struct {
	Name              string  `json:"name"`
	Enabled           bool    `json:"enabled"`
	Status            Status  `json:"status"`
	Priority          int     `json:"priority"`
	ExecutionCount    int64   `json:"execution_count"`
	SuccessCount      int64   `json:"success_count"`
	FailureCount      int64   `json:"failure_count"`
	SuccessRate       float64 `json:"success_rate"` // проценты 0-100
	LastExecutionTime float64 `json:"last_execution_time"` // секунды
}

// Runner исполняет навык с валидацией входа, перехватом паник
// и ретроспективной проверкой таймаута. Сам навык обёртку не видит.
type Runner struct {
	skill Skill
	log   *zap.Logger

	mu             sync.Mutex
	timeout        time.Duration
	priority       int
	enabled        bool
	status         Status
	executionCount int64
	successCount   int64
	failureCount   int64
	lastResult     *Result
}

// NewRunner создаёт обёртку с параметрами исполнения
func NewRunner(s Skill, cfg RunnerConfig, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Priority <= 0 {
		cfg.Priority = DefaultPriority
	}
	return &Runner{
		skill:    s,
		log:      log.With(zap.String("skill", s.Name())),
		timeout:  cfg.Timeout,
		priority: cfg.Priority,
		enabled:  !cfg.Disabled,
		status:   StatusIdle,
	}
}

// Name возвращает имя обёрнутого навыка
func (r *Runner) Name() string {
	return r.skill.Name()
}

// Priority возвращает приоритет навыка в пайплайне
func (r *Runner) Priority() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.priority
}

// Enabled сообщает, допущен ли навык к исполнению
func (r *Runner) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Enable допускает навык к исполнению
func (r *Runner) Enable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = true
}

// Disable выводит навык из исполнения. Текущий синхронный вызов
// не прерывается, запрет действует со следующего цикла.
func (r *Runner) Disable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = false
	r.status = StatusDisabled
}

// RunWithTimeout исполняет навык по полному протоколу:
//  1. выключенный навык возвращает результат disabled без вызова Execute;
//  2. отсутствие обязательных входов - результат failed без вызова Execute;
//  3. ошибка или паника внутри Execute - результат failed;
//  4. превышение таймаута фиксируется ретроспективно: завершившийся
//     результат заменяется результатом timeout, его выход отбрасывается.
//
// Счётчик исполнений растёт только после успешной валидации входа.
func (r *Runner) RunWithTimeout(snapshot store.Context, input Input) *Result {
	name := r.skill.Name()

	r.mu.Lock()
	if !r.enabled {
		r.mu.Unlock()
		return &Result{
			SkillName: name,
			Status:    StatusDisabled,
			Error:     "skill is disabled",
			Timestamp: time.Now(),
		}
	}

	// Отказ валидации не считается исполнением: счётчики не растут
	if missing := r.missingInputs(input); len(missing) > 0 {
		r.mu.Unlock()
		r.log.Warn("Skill input validation failed", zap.Strings("missing", missing))
		return Fail(name, fmt.Sprintf("missing required inputs: %s", strings.Join(missing, ", ")))
	}

	r.executionCount++
	r.status = StatusRunning
	timeout := r.timeout
	r.mu.Unlock()

	start := time.Now()
	res, err := r.safeExecute(snapshot, input)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		r.log.Error("Skill execution failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		res = Fail(name, err.Error())
	case res == nil:
		res = Fail(name, "skill returned no result")
	case elapsed > timeout:
		// Результат уже получен, но контракт времени нарушен:
		// выход отбрасывается, исполнение классифицируется как timeout
		r.log.Warn("Skill exceeded timeout",
			zap.Duration("elapsed", elapsed),
			zap.Duration("timeout", timeout))
		res = &Result{
			SkillName: name,
			Status:    StatusTimeout,
			Error: fmt.Sprintf("execution took %.2fs, exceeding timeout of %.2fs",
				elapsed.Seconds(), timeout.Seconds()),
			Timestamp: time.Now(),
		}
	}

	res.SkillName = name
	res.ExecutionTime = elapsed
	r.finish(res)
	return res
}

// safeExecute изолирует панику навыка, превращая её в ошибку
func (r *Runner) safeExecute(snapshot store.Context, input Input) (res *Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = fmt.Errorf("skill panicked: %v", rec)
		}
	}()
	return r.skill.Execute(snapshot, input)
}

func (r *Runner) missingInputs(input Input) []string {
	var missing []string
	for _, key := range r.skill.RequiredInputs() {
		if _, ok := input[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// finish обновляет счётчики успеха/неудачи и последний результат
func (r *Runner) finish(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch res.Status {
	case StatusSuccess:
		r.successCount++
	case StatusFailed, StatusTimeout:
		r.failureCount++
	}

	r.lastResult = res
	if r.enabled {
		r.status = res.Status
	}
}

// LastResult возвращает результат последнего исполнения (может быть nil)
func (r *Runner) LastResult() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastResult
}

// Statistics возвращает снимок счётчиков исполнения
func (r *Runner) Statistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Statistics{
		Name:           r.skill.Name(),
		Enabled:        r.enabled,
		Status:         r.status,
		Priority:       r.priority,
		ExecutionCount: r.executionCount,
		SuccessCount:   r.successCount,
		FailureCount:   r.failureCount,
	}
	if r.executionCount > 0 {
		stats.SuccessRate = float64(r.successCount) / float64(r.executionCount) * 100
	}
	if r.lastResult != nil {
		stats.LastExecutionTime = r.lastResult.ExecutionTime.Seconds()
	}
	return stats
}
