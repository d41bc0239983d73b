package exchange

import (
	"fmt"
	"sync"
	"time"

	"tradeagent/internal/models"
	"tradeagent/pkg/utils"
)

// ============================================================
// Бумажная биржа для тестового режима
// ============================================================

// PaperExchange исполняет ордера в памяти по заданной цене.
// Используется в тестовом режиме агента и в тестах исполнителя.
type PaperExchange struct {
	mu       sync.Mutex
	name     string
	balance  float64
	price    map[string]float64
	slippage float64 // доля цены, применяется к рыночным ордерам
	leverage map[string]int
	position map[string]*models.PositionInfo
	orders   []Order
	nextID   int

	// FailNextOrder заставляет следующий PlaceOrder вернуть ошибку
	FailNextOrder bool
}

// NewPaperExchange создаёт бумажную биржу с начальным балансом
func NewPaperExchange(balance, slippage float64) *PaperExchange {
	return &PaperExchange{
		name:     "paper",
		balance:  balance,
		slippage: slippage,
		price:    make(map[string]float64),
		leverage: make(map[string]int),
		position: make(map[string]*models.PositionInfo),
	}
}

// Name возвращает имя биржи
func (p *PaperExchange) Name() string {
	return p.name
}

// SetPrice задаёт текущую цену символа
func (p *PaperExchange) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price[symbol] = price
}

// FetchTicker возвращает цены вокруг заданной последней цены
func (p *PaperExchange) FetchTicker(symbol string) (*Ticker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	last, ok := p.price[symbol]
	if !ok {
		return nil, &Error{Exchange: p.name, Code: "no_price", Message: fmt.Sprintf("no price for %s", symbol)}
	}
	spread := last * 0.0001
	return &Ticker{
		Symbol:    symbol,
		BidPrice:  last - spread,
		AskPrice:  last + spread,
		LastPrice: last,
		Timestamp: time.Now(),
	}, nil
}

// FetchPosition возвращает копию открытой позиции или (nil, nil)
func (p *PaperExchange) FetchPosition(symbol string) (*models.PositionInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.position[symbol]
	if !ok || pos.Size <= 0 {
		return nil, nil
	}
	cp := *pos
	if last, ok := p.price[symbol]; ok {
		cp.UnrealizedPnl = utils.CalculatePNL(cp.Side, cp.EntryPrice, last, cp.Size)
	}
	return &cp, nil
}

// FetchBalance возвращает свободный и полный баланс
func (p *PaperExchange) FetchBalance() (float64, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	locked := 0.0
	for symbol, pos := range p.position {
		if last, ok := p.price[symbol]; ok && pos.Size > 0 {
			lev := pos.Leverage
			if lev <= 0 {
				lev = 1
			}
			locked += pos.Size * last / float64(lev)
		}
	}
	return p.balance - locked, p.balance, nil
}

// PlaceOrder мгновенно исполняет рыночный ордер по текущей цене
// со сдвигом на slippage
func (p *PaperExchange) PlaceOrder(symbol, side string, size float64, reduceOnly bool) (*Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailNextOrder {
		p.FailNextOrder = false
		return nil, &Error{Exchange: p.name, Code: "rejected", Message: "order rejected", Retryable: true}
	}
	if size <= 0 {
		return nil, &Error{Exchange: p.name, Code: "bad_size", Message: "order size must be positive"}
	}
	last, ok := p.price[symbol]
	if !ok {
		return nil, &Error{Exchange: p.name, Code: "no_price", Message: fmt.Sprintf("no price for %s", symbol)}
	}

	fill := last * (1 + p.slippage)
	if side == SideSell {
		fill = last * (1 - p.slippage)
	}

	p.applyFill(symbol, side, size, fill, reduceOnly)

	p.nextID++
	order := Order{
		ID:           fmt.Sprintf("paper-%d", p.nextID),
		Symbol:       symbol,
		Side:         side,
		Quantity:     size,
		FilledQty:    size,
		AvgFillPrice: fill,
		Status:       OrderStatusFilled,
		CreatedAt:    time.Now(),
	}
	p.orders = append(p.orders, order)
	return &order, nil
}

func (p *PaperExchange) applyFill(symbol, side string, size, fill float64, reduceOnly bool) {
	pos := p.position[symbol]

	if reduceOnly {
		if pos == nil || pos.Size <= 0 {
			return
		}
		closed := utils.Min(size, pos.Size)
		p.balance += utils.CalculatePNL(pos.Side, pos.EntryPrice, fill, closed)
		pos.Size -= closed
		if pos.Size <= 0 {
			delete(p.position, symbol)
		}
		return
	}

	posSide := models.SideLong
	if side == SideSell {
		posSide = models.SideShort
	}

	if pos == nil || pos.Size <= 0 {
		p.position[symbol] = &models.PositionInfo{
			Symbol:     symbol,
			Side:       posSide,
			Size:       size,
			EntryPrice: fill,
			Leverage:   p.leverage[symbol],
			OpenedAt:   time.Now(),
		}
		return
	}

	if pos.Side == posSide {
		// Усреднение входа при доборе
		total := pos.Size + size
		pos.EntryPrice = (pos.EntryPrice*pos.Size + fill*size) / total
		pos.Size = total
		return
	}

	// Встречный ордер сначала сокращает позицию
	closed := utils.Min(size, pos.Size)
	p.balance += utils.CalculatePNL(pos.Side, pos.EntryPrice, fill, closed)
	pos.Size -= closed
	remainder := size - closed
	if pos.Size <= 0 {
		delete(p.position, symbol)
	}
	if remainder > 0 {
		p.position[symbol] = &models.PositionInfo{
			Symbol:     symbol,
			Side:       posSide,
			Size:       remainder,
			EntryPrice: fill,
			Leverage:   p.leverage[symbol],
			OpenedAt:   time.Now(),
		}
	}
}

// SetLeverage запоминает плечо для символа
func (p *PaperExchange) SetLeverage(symbol string, leverage int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if leverage < 1 {
		return &Error{Exchange: p.name, Code: "bad_leverage", Message: "leverage must be >= 1"}
	}
	p.leverage[symbol] = leverage
	if pos, ok := p.position[symbol]; ok {
		pos.Leverage = leverage
	}
	return nil
}

// Orders возвращает копию журнала исполненных ордеров
func (p *PaperExchange) Orders() []Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Order(nil), p.orders...)
}

// Close ничего не освобождает: биржа живёт в памяти
func (p *PaperExchange) Close() error {
	return nil
}
