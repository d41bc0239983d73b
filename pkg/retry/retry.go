package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config - параметры повторов при размещении ордеров
//
// Задержка растёт экспоненциально:
// delay = min(InitialDelay * Multiplier^attempt + jitter, MaxDelay)
//
// Jitter размазывает повторы во времени, чтобы отклонённые
// ордера не долбили биржу синхронными волнами.
type Config struct {
	// MaxRetries - общее число попыток, включая первую.
	// 0 или меньше = без ограничения.
	MaxRetries int

	// InitialDelay - задержка перед вторым размещением
	InitialDelay time.Duration

	// MaxDelay - потолок задержки между попытками
	MaxDelay time.Duration

	// Multiplier - во сколько раз растёт задержка после каждой попытки
	Multiplier float64

	// JitterFactor - доля случайного разброса задержки (0.0 - 1.0)
	JitterFactor float64

	// RetryIf решает, стоит ли повторять после данной ошибки.
	// nil = повторяются все ошибки.
	RetryIf func(error) bool

	// OnRetry вызывается перед очередным повтором, удобно для логов
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig - повторы для обычных входов в позицию
//
// 4 попытки с задержками 100ms, 200ms, 400ms
func DefaultConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// AggressiveConfig - повторы для закрытия позиций
//
// Незакрытая позиция опаснее лишнего запроса, поэтому попыток
// больше и первая задержка короче: 6 попыток от 50ms.
func AggressiveConfig() Config {
	return Config{
		MaxRetries:   6,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// validate заполняет нулевые поля значениями по умолчанию
func (c *Config) validate() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

// backoff возвращает задержку после попытки attempt (с нуля)
func (c *Config) backoff(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.JitterFactor > 0 {
		delay += delay * c.JitterFactor * (rand.Float64()*2 - 1)
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Do выполняет операцию с повторами по конфигурации.
// Возвращает nil при первом успехе, иначе последнюю ошибку.
func Do(ctx context.Context, operation func() error, cfg Config) error {
	_, err := DoWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, cfg)
	return err
}

// DoWithResult выполняет операцию, возвращающую значение, с повторами:
//
//	order, err := retry.DoWithResult(ctx, func() (*exchange.Order, error) {
//	    return ex.PlaceOrder(symbol, side, size, reduceOnly)
//	}, retry.DefaultConfig())
//
// Отмена контекста прекращает повторы; если хотя бы одна попытка
// уже была, возвращается её ошибка, а не ctx.Err().
func DoWithResult[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	cfg.validate()

	var lastErr error
	var zero T

	for attempt := 0; cfg.MaxRetries <= 0 || attempt < cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, ctx.Err()
		default:
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, err
		}

		// После последней попытки не ждём
		if cfg.MaxRetries > 0 && attempt >= cfg.MaxRetries-1 {
			break
		}

		delay := cfg.backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// ============================================================
// Классификация ошибок
// ============================================================

// RetryableError - ошибка, которая сама знает, стоит ли её повторять
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable решает, имеет ли смысл повторить операцию.
//
// Ошибки биржи реализуют Retryable() или Temporary(), их ответ
// окончательный. Неклассифицированные ошибки повторяются.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}

	type temporary interface {
		Temporary() bool
	}
	var temp temporary
	if errors.As(err, &temp) {
		return temp.Temporary()
	}

	return true
}

// RetryIfNotContext пропускает повторы для отменённого контекста
func RetryIfNotContext(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// ============================================================
// Обёртки для явной классификации
// ============================================================

// PermanentError помечает ошибку как неповторяемую
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func (e *PermanentError) Retryable() bool {
	return false
}

// Permanent оборачивает ошибку, повтор после которой бессмыслен,
// например отказ по недостаточному балансу
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TemporaryError помечает ошибку как повторяемую
type TemporaryError struct {
	Err error
}

func (e *TemporaryError) Error() string {
	return e.Err.Error()
}

func (e *TemporaryError) Unwrap() error {
	return e.Err
}

func (e *TemporaryError) Retryable() bool {
	return true
}

func (e *TemporaryError) Temporary() bool {
	return true
}

// Temporary оборачивает преходящую ошибку, например сетевой сбой
func Temporary(err error) error {
	if err == nil {
		return nil
	}
	return &TemporaryError{Err: err}
}
