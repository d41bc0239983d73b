package skill

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ============================================================
// Circuit breaker - защита пайплайна от деградировавших навыков
// ============================================================

// Значения по умолчанию для circuit breaker
const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 300 * time.Second
)

// BreakerState - состояние записи circuit breaker
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerInfo - снимок записи breaker для наблюдаемости
type BreakerInfo struct {
	State           BreakerState `json:"state"`
	FailureCount    int          `json:"failure_count"`
	LastFailureTime time.Time    `json:"last_failure_time,omitempty"`
}

type breakerEntry struct {
	state           BreakerState
	failureCount    int
	lastFailureTime time.Time
}

// Breaker ведёт независимую запись на каждое имя навыка.
// Записи создаются лениво при первом обращении и уже не удаляются.
//
// Жизненный цикл: closed -> (threshold неудач подряд) -> open ->
// (истёк resetTimeout) -> half_open -> success -> closed /
// failure -> open. Счётчик неудач при переходе в half_open не
// сбрасывается, поэтому одной неудачи в half_open достаточно
// для повторного открытия.
type Breaker struct {
	failureThreshold int
	resetTimeout     time.Duration
	log              *zap.Logger

	mu      sync.Mutex
	entries map[string]*breakerEntry
	now     func() time.Time
}

// NewBreaker создаёт breaker с заданными порогами.
// Нулевые значения заменяются значениями по умолчанию.
func NewBreaker(failureThreshold int, resetTimeout time.Duration, log *zap.Logger) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		log:              log,
		entries:          make(map[string]*breakerEntry),
		now:              time.Now,
	}
}

func (b *Breaker) entryLocked(name string) *breakerEntry {
	e, ok := b.entries[name]
	if !ok {
		e = &breakerEntry{state: BreakerClosed}
		b.entries[name] = e
	}
	return e
}

// Check сообщает, допущено ли исполнение навыка.
// Открытая запись пропускает ровно один пробный вызов после
// истечения resetTimeout, переводя запись в half_open.
func (b *Breaker) Check(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entryLocked(name)
	if e.state != BreakerOpen {
		return true
	}

	if !e.lastFailureTime.IsZero() && b.now().Sub(e.lastFailureTime) >= b.resetTimeout {
		e.state = BreakerHalfOpen
		b.log.Info("Circuit breaker half-open, allowing probe",
			zap.String("skill", name))
		return true
	}
	return false
}

// RecordSuccess сбрасывает счётчик неудач и закрывает запись
// из состояния half_open
func (b *Breaker) RecordSuccess(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entryLocked(name)
	if e.state == BreakerHalfOpen {
		e.state = BreakerClosed
		b.log.Info("Circuit breaker closed after successful probe",
			zap.String("skill", name))
	}
	e.failureCount = 0
}

// RecordFailure увеличивает счётчик неудач и открывает запись
// по достижении порога
func (b *Breaker) RecordFailure(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entryLocked(name)
	e.failureCount++
	e.lastFailureTime = b.now()

	if e.failureCount >= b.failureThreshold && e.state != BreakerOpen {
		e.state = BreakerOpen
		b.log.Warn("Circuit breaker opened",
			zap.String("skill", name),
			zap.Int("failure_count", e.failureCount))
	}
}

// State возвращает состояние записи (closed для неизвестного имени)
func (b *Breaker) State(name string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.entries[name]; ok {
		return e.state
	}
	return BreakerClosed
}

// States возвращает снимок всех записей breaker
func (b *Breaker) States() map[string]BreakerInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]BreakerInfo, len(b.entries))
	for name, e := range b.entries {
		out[name] = BreakerInfo{
			State:           e.state,
			FailureCount:    e.failureCount,
			LastFailureTime: e.lastFailureTime,
		}
	}
	return out
}
