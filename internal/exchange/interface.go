package exchange

import (
	"time"

	"tradeagent/internal/models"
)

// ============================================================
// Контракт биржевого адаптера
// ============================================================
//
// Адаптер полностью синхронный: этап исполнения работает под
// ретроспективным таймаутом и не получает токен отмены, поэтому
// каждый метод обязан вернуть управление сам. Сетевые таймауты -
// забота конкретной реализации.

// Exchange - унифицированный доступ к фьючерсной бирже
type Exchange interface {
	// Name возвращает имя биржи
	Name() string

	// FetchTicker возвращает текущие цены по символу
	FetchTicker(symbol string) (*Ticker, error)

	// FetchPosition возвращает открытую позицию по символу.
	// Отсутствие позиции - (nil, nil), не ошибка.
	FetchPosition(symbol string) (*models.PositionInfo, error)

	// FetchBalance возвращает свободный и полный баланс аккаунта в USDT
	FetchBalance() (free, total float64, err error)

	// PlaceOrder размещает рыночный ордер.
	// reduceOnly ограничивает ордер сокращением текущей позиции.
	PlaceOrder(symbol, side string, size float64, reduceOnly bool) (*Order, error)

	// SetLeverage выставляет плечо для символа
	SetLeverage(symbol string, leverage int) error

	// Close освобождает соединения адаптера
	Close() error
}

// Ticker - текущие цены по символу
type Ticker struct {
	Symbol    string    `json:"symbol"`
	BidPrice  float64   `json:"bid_price"`
	AskPrice  float64   `json:"ask_price"`
	LastPrice float64   `json:"last_price"`
	Timestamp time.Time `json:"timestamp"`
}

// Order - результат размещения ордера
type Order struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"` // buy/sell
	Quantity     float64   `json:"quantity"`
	FilledQty    float64   `json:"filled_qty"`
	AvgFillPrice float64   `json:"avg_fill_price"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Стороны ордера
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Статусы ордера
const (
	OrderStatusFilled    = "filled"
	OrderStatusPartial   = "partial"
	OrderStatusRejected  = "rejected"
	OrderStatusCancelled = "cancelled"
)

// Error - ошибка биржевого адаптера
type Error struct {
	Exchange  string
	Code      string
	Message   string
	Retryable bool
	Original  error
}

func (e *Error) Error() string {
	return e.Exchange + ": " + e.Message
}

// Unwrap отдаёт исходную ошибку для errors.Is/errors.As
func (e *Error) Unwrap() error {
	return e.Original
}

// Temporary сообщает retry-обвязке, имеет ли смысл повтор
func (e *Error) Temporary() bool {
	return e.Retryable
}

// OrderSide переводит действие решения в сторону ордера
func OrderSide(action string) string {
	if action == models.ActionSell {
		return SideSell
	}
	return SideBuy
}

// ClosingSide возвращает сторону ордера, закрывающего позицию
func ClosingSide(positionSide string) string {
	if positionSide == models.SideLong {
		return SideSell
	}
	return SideBuy
}
