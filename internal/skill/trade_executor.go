package skill

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradeagent/internal/exchange"
	"tradeagent/internal/models"
	"tradeagent/internal/store"
	"tradeagent/pkg/ratelimit"
	"tradeagent/pkg/retry"
	"tradeagent/pkg/utils"
)

// ============================================================
// Этап 4: исполнение сделок
// ============================================================

// Имя навыка исполнения
const TradeExecutorName = "trade_executor"

// Параметры исполнения
const (
	twapSizeThreshold = 0.1  // размер, выше которого ордер режется на части
	twapSliceSize     = 0.05 // целевой размер одной части
	twapMaxSplits     = 5
	twapMinSplits     = 2

	fillSuccessRatio = 0.95
	maxReportHistory = 100
)

// ExecutorConfig - параметры исполнителя
type ExecutorConfig struct {
	Symbol       string
	TwapInterval time.Duration // пауза между частями TWAP
	OrderRate    float64       // лимит ордеров в секунду
}

// TradeExecutor доводит торговое решение до биржи: закрывает
// встречные позиции, выставляет плечо, размещает рыночный ордер
// целиком или по TWAP и собирает отчёт об исполнении.
type TradeExecutor struct {
	cfg      ExecutorConfig
	exchange exchange.Exchange
	limiter  *ratelimit.RateLimiter
	log      *zap.Logger

	mu      sync.Mutex
	history []models.ExecutionReport
}

// NewTradeExecutor создаёт навык исполнения
func NewTradeExecutor(cfg ExecutorConfig, ex exchange.Exchange, log *zap.Logger) *TradeExecutor {
	if cfg.TwapInterval <= 0 {
		cfg.TwapInterval = 2 * time.Second
	}
	if cfg.OrderRate <= 0 {
		cfg.OrderRate = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TradeExecutor{
		cfg:      cfg,
		exchange: ex,
		limiter:  ratelimit.NewRateLimiter(cfg.OrderRate, cfg.OrderRate*2),
		log:      log,
	}
}

func (t *TradeExecutor) Name() string {
	return TradeExecutorName
}

func (t *TradeExecutor) RequiredInputs() []string {
	return []string{"trading_decision"}
}

func (t *TradeExecutor) OutputSchema() map[string]string {
	return map[string]string{
		"execution_status": "string",
		"filled_size":      "float",
		"avg_price":        "float",
		"slippage":         "float",
	}
}

// Execute доводит решение до биржи и возвращает отчёт
func (t *TradeExecutor) Execute(snapshot store.Context, input Input) (*Result, error) {
	decision, err := tradingDecisionInput(input)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	switch decision.Action {
	case models.ActionHold:
		report := t.record(models.ExecutionReport{
			Status:    models.ExecutionSuccess,
			Message:   "hold decision, no orders placed",
			Timestamp: time.Now(),
		})
		return Succeed(TradeExecutorName, report, 1.0), nil

	case models.ActionClose:
		return t.executeClose(decision, start)

	case models.ActionBuy, models.ActionSell:
		return t.executeEntry(decision, start)

	default:
		return nil, fmt.Errorf("unknown decision action %q", decision.Action)
	}
}

func tradingDecisionInput(input Input) (models.TradingDecision, error) {
	switch v := input["trading_decision"].(type) {
	case models.TradingDecision:
		return v, nil
	case *models.TradingDecision:
		if v == nil {
			return models.TradingDecision{}, fmt.Errorf("trading_decision is nil")
		}
		return *v, nil
	default:
		return models.TradingDecision{}, fmt.Errorf("trading_decision has unexpected type %T", input["trading_decision"])
	}
}

// executeClose закрывает открытую позицию reduce-only ордером
func (t *TradeExecutor) executeClose(decision models.TradingDecision, start time.Time) (*Result, error) {
	position, err := t.exchange.FetchPosition(t.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch position: %w", err)
	}
	if !position.IsOpen() {
		report := t.record(models.ExecutionReport{
			Status:        models.ExecutionSuccess,
			Message:       "close requested with no open position",
			ExecutionTime: time.Since(start).Seconds(),
			Timestamp:     time.Now(),
		})
		return Succeed(TradeExecutorName, report, 1.0), nil
	}

	order, err := t.placeWithRetry(
		exchange.ClosingSide(position.Side), position.Size, true, retry.AggressiveConfig())
	if err != nil {
		return nil, fmt.Errorf("close position: %w", err)
	}

	report := t.record(models.ExecutionReport{
		Status:        models.ExecutionSuccess,
		FilledSize:    order.FilledQty,
		AvgPrice:      order.AvgFillPrice,
		OrderIDs:      []string{order.ID},
		Message:       "position closed",
		ExecutionTime: time.Since(start).Seconds(),
		Timestamp:     time.Now(),
	})

	t.log.Info("Position closed",
		zap.String("symbol", t.cfg.Symbol),
		zap.Float64("size", order.FilledQty),
		zap.Float64("price", order.AvgFillPrice))

	return Succeed(TradeExecutorName, report, 0.9), nil
}

// executeEntry открывает или разворачивает позицию
func (t *TradeExecutor) executeEntry(decision models.TradingDecision, start time.Time) (*Result, error) {
	if decision.Size <= 0 {
		return Fail(TradeExecutorName, fmt.Sprintf("invalid order size %v", decision.Size)), nil
	}

	position, err := t.exchange.FetchPosition(t.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch position: %w", err)
	}

	wantSide := models.SideLong
	if decision.Action == models.ActionSell {
		wantSide = models.SideShort
	}

	var orderIDs []string

	// Встречная позиция закрывается отдельным ордером до входа
	if position.IsOpen() && position.Side != wantSide {
		closeOrder, err := t.placeWithRetry(
			exchange.ClosingSide(position.Side), position.Size, true, retry.AggressiveConfig())
		if err != nil {
			return nil, fmt.Errorf("close opposite position: %w", err)
		}
		orderIDs = append(orderIDs, closeOrder.ID)
	}

	if decision.Leverage > 0 {
		if err := t.exchange.SetLeverage(t.cfg.Symbol, decision.Leverage); err != nil {
			t.log.Warn("Failed to set leverage",
				zap.Int("leverage", decision.Leverage), zap.Error(err))
		}
	}

	expected := 0.0
	if ticker, err := t.exchange.FetchTicker(t.cfg.Symbol); err == nil {
		expected = ticker.LastPrice
	}

	side := exchange.OrderSide(decision.Action)
	filled, avgPrice, ids := t.placeSized(side, decision.Size)
	orderIDs = append(orderIDs, ids...)

	slippage := 0.0
	if expected > 0 && avgPrice > 0 {
		slippage = utils.CalculateSlippage(expected, avgPrice)
	}

	report := models.ExecutionReport{
		FilledSize:    filled,
		AvgPrice:      avgPrice,
		Slippage:      slippage,
		OrderIDs:      orderIDs,
		ExecutionTime: time.Since(start).Seconds(),
		Timestamp:     time.Now(),
	}

	confidence := 0.9
	switch {
	case filled <= 0:
		report.Status = models.ExecutionFailed
		report.Message = "no fills"
		t.record(report)
		return Fail(TradeExecutorName, "order placement produced no fills"), nil
	case filled >= decision.Size*fillSuccessRatio:
		report.Status = models.ExecutionSuccess
		report.Message = "order filled"
	default:
		report.Status = models.ExecutionPartial
		report.Message = fmt.Sprintf("partial fill %.4f of %.4f", filled, decision.Size)
		confidence = 0.7
	}
	t.record(report)

	t.log.Info("Entry executed",
		zap.String("side", side),
		zap.Float64("filled", filled),
		zap.Float64("avg_price", avgPrice),
		zap.Float64("slippage", slippage))

	return Succeed(TradeExecutorName, report, confidence), nil
}

// placeSized размещает ордер целиком или частями по TWAP.
// Неудача отдельной части не прерывает исполнение остальных.
func (t *TradeExecutor) placeSized(side string, size float64) (filled, avgPrice float64, orderIDs []string) {
	if size <= twapSizeThreshold {
		order, err := t.placeWithRetry(side, size, false, retry.DefaultConfig())
		if err != nil {
			t.log.Error("Order failed", zap.Error(err))
			return 0, 0, nil
		}
		return order.FilledQty, order.AvgFillPrice, []string{order.ID}
	}

	splits := int(size / twapSliceSize)
	if splits > twapMaxSplits {
		splits = twapMaxSplits
	}
	if splits < twapMinSplits {
		splits = twapMinSplits
	}

	slices := utils.SplitVolume(size, splits, 0.0001)
	notional := 0.0

	for i, slice := range slices {
		if i > 0 {
			time.Sleep(t.cfg.TwapInterval)
		}

		order, err := t.placeWithRetry(side, slice, false, retry.DefaultConfig())
		if err != nil {
			t.log.Warn("TWAP slice failed",
				zap.Int("slice", i+1),
				zap.Int("of", len(slices)),
				zap.Error(err))
			continue
		}

		filled += order.FilledQty
		notional += order.FilledQty * order.AvgFillPrice
		orderIDs = append(orderIDs, order.ID)
	}

	if filled > 0 {
		avgPrice = notional / filled
	}
	return filled, avgPrice, orderIDs
}

// placeWithRetry размещает ордер под rate limiter с повторами.
// Контекст фоновый: исполнение не прерывается извне, повторы
// ограничены конфигурацией retry.
func (t *TradeExecutor) placeWithRetry(side string, size float64, reduceOnly bool, cfg retry.Config) (*exchange.Order, error) {
	ctx := context.Background()
	cfg.RetryIf = retry.IsRetryable

	return retry.DoWithResult(ctx, func() (*exchange.Order, error) {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return t.exchange.PlaceOrder(t.cfg.Symbol, side, size, reduceOnly)
	}, cfg)
}

// record добавляет отчёт в историю исполнения с вытеснением старейших
func (t *TradeExecutor) record(report models.ExecutionReport) models.ExecutionReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.history = append(t.history, report)
	if len(t.history) > maxReportHistory {
		overflow := len(t.history) - maxReportHistory
		t.history = append([]models.ExecutionReport(nil), t.history[overflow:]...)
	}
	return report
}

// History возвращает копию истории исполнения
func (t *TradeExecutor) History() []models.ExecutionReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.ExecutionReport(nil), t.history...)
}
