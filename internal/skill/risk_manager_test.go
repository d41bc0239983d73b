package skill

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"tradeagent/internal/exchange"
	"tradeagent/internal/models"
	"tradeagent/internal/risk"
	"tradeagent/internal/store"
)

func newTestRiskManager(ex exchange.Exchange) *RiskManager {
	engine := risk.NewEngine(risk.DefaultConfig(), zap.NewNop())
	return NewRiskManager(RiskManagerConfig{Symbol: "BTCUSDT"}, engine, ex, zap.NewNop())
}

func riskInput(signal models.StrategySignal, analysis models.MarketAnalysis) Input {
	return Input{
		"strategy_signal": signal,
		"market_analysis": analysis,
	}
}

// stubExchange отдаёт заранее заданные позицию и цену, позволяя
// управлять возрастом позиции и профилем рынка
type stubExchange struct {
	position *models.PositionInfo
	price    float64
}

func (s *stubExchange) Name() string { return "stub" }

func (s *stubExchange) FetchTicker(symbol string) (*exchange.Ticker, error) {
	return &exchange.Ticker{Symbol: symbol, LastPrice: s.price, Timestamp: time.Now()}, nil
}

func (s *stubExchange) FetchPosition(symbol string) (*models.PositionInfo, error) {
	return s.position, nil
}

func (s *stubExchange) FetchBalance() (float64, float64, error) { return 10000, 10000, nil }

func (s *stubExchange) PlaceOrder(symbol, side string, size float64, reduceOnly bool) (*exchange.Order, error) {
	return nil, nil
}

func (s *stubExchange) SetLeverage(symbol string, leverage int) error { return nil }
func (s *stubExchange) Close() error                                  { return nil }

func TestRiskManagerProducesDecision(t *testing.T) {
	paper := exchange.NewPaperExchange(10000, 0)
	paper.SetPrice("BTCUSDT", 50000)
	r := newTestRiskManager(paper)

	snapshot := store.Context{
		PerformanceMetrics: models.PerformanceMetrics{WinRate: 0.5},
	}
	analysis := models.MarketAnalysis{
		Volatility:    0.01,
		VolumeProfile: models.VolumeNormal,
		CurrentPrice:  50000,
	}
	signal := models.StrategySignal{
		Action:     models.ActionBuy,
		Size:       0.05,
		Confidence: 0.8,
		Reasoning:  "uptrend entry",
		ExitConditions: models.ExitConditions{
			StopLossPct:   0.02,
			TakeProfitPct: 0.04,
		},
	}

	res, err := r.Execute(snapshot, riskInput(signal, analysis))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsSuccess() {
		t.Fatalf("status = %s, want success", res.Status)
	}

	decision, ok := res.Output.(*models.TradingDecision)
	if !ok {
		t.Fatalf("output type %T, want *models.TradingDecision", res.Output)
	}
	if decision.Action != models.ActionBuy {
		t.Errorf("action = %s, want %s", decision.Action, models.ActionBuy)
	}
	if decision.Size <= 0 {
		t.Errorf("size = %v, want > 0", decision.Size)
	}
	if decision.Leverage < 1 || decision.Leverage > 10 {
		t.Errorf("leverage = %d, want within [1, 10]", decision.Leverage)
	}
	if res.Metadata["risk_score"] != decision.RiskScore {
		t.Error("risk_score metadata not propagated")
	}
}

func TestRiskManagerRequiresBothInputs(t *testing.T) {
	paper := exchange.NewPaperExchange(10000, 0)
	r := newTestRiskManager(paper)
	runner := NewRunner(r, RunnerConfig{Timeout: time.Second}, zap.NewNop())

	// Сигнал без оценки рынка не проходит валидацию входа
	res := runner.RunWithTimeout(store.Context{}, Input{
		"strategy_signal": models.StrategySignal{Action: models.ActionHold},
	})

	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want %s", res.Status, StatusFailed)
	}
	if !strings.Contains(res.Error, "market_analysis") {
		t.Errorf("error %q does not name the missing input", res.Error)
	}
}

func TestRiskManagerBlackSwanClosesOpenPosition(t *testing.T) {
	paper := exchange.NewPaperExchange(10000, 0)
	paper.SetPrice("BTCUSDT", 50000)
	if _, err := paper.PlaceOrder("BTCUSDT", exchange.SideBuy, 0.2, false); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	r := newTestRiskManager(paper)

	analysis := models.MarketAnalysis{
		PriceChangePct: -0.15,
		CurrentPrice:   42500,
	}

	res, err := r.Execute(store.Context{}, riskInput(models.StrategySignal{Action: models.ActionBuy, Size: 0.1}, analysis))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	decision := res.Output.(*models.TradingDecision)
	if decision.Action != models.ActionClose {
		t.Errorf("action = %s, want %s", decision.Action, models.ActionClose)
	}
	if decision.Size != 0.2 {
		t.Errorf("size = %v, want full position 0.2", decision.Size)
	}
}

func TestRiskManagerExchangeErrorPropagates(t *testing.T) {
	// Биржа без цены по символу: FetchTicker вернёт ошибку,
	// оценка падает из-за отсутствия цены
	paper := exchange.NewPaperExchange(10000, 0)
	r := newTestRiskManager(paper)

	// И в оценке рынка цены нет
	if _, err := r.Execute(store.Context{}, riskInput(models.StrategySignal{Action: models.ActionBuy, Size: 0.1}, models.MarketAnalysis{})); err == nil {
		t.Fatal("expected error with no usable price")
	}
}

func TestRiskManagerRejectsWrongInputType(t *testing.T) {
	paper := exchange.NewPaperExchange(10000, 0)
	r := newTestRiskManager(paper)

	input := Input{"strategy_signal": 42, "market_analysis": models.MarketAnalysis{}}
	if _, err := r.Execute(store.Context{}, input); err == nil {
		t.Fatal("expected type error")
	}
}

// ============================================================
// Защитная орбита
// ============================================================

func TestRiskManagerMaintainsOrbitForOpenPosition(t *testing.T) {
	ex := &stubExchange{
		position: &models.PositionInfo{
			Symbol:     "BTCUSDT",
			Side:       models.SideLong,
			Size:       0.1,
			EntryPrice: 50000,
			OpenedAt:   time.Now().Add(-time.Minute),
		},
		price: 50300, // прибыль 0.6%, агрессивный уровень
	}
	r := newTestRiskManager(ex)

	var rebuilds int
	r.SetOrbitNotifier(func(prev, next risk.OrbitState) {
		rebuilds++
		if next.Level != risk.OrbitAggressive {
			t.Errorf("rebuilt to level %s, want %s", next.Level, risk.OrbitAggressive)
		}
	})

	analysis := models.MarketAnalysis{
		CurrentPrice:  50300,
		ATR:           200,
		MarketRegime:  models.RegimeTrending,
		VolumeProfile: models.VolumeNormal,
		Volatility:    0.01,
	}

	res, err := r.Execute(store.Context{}, riskInput(models.StrategySignal{Action: models.ActionHold}, analysis))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	state, ok := res.Metadata["protection_orbit"].(risk.OrbitState)
	if !ok {
		t.Fatalf("protection_orbit metadata missing: %v", res.Metadata)
	}
	if state.Level != risk.OrbitAggressive {
		t.Errorf("orbit level = %s, want %s", state.Level, risk.OrbitAggressive)
	}
	// Перестроение defensive -> aggressive сдвигает границы
	// больше чем на 0.1 ATR и порождает уведомление
	if rebuilds != 1 {
		t.Errorf("rebuild notifications = %d, want 1", rebuilds)
	}

	tp, ok := res.Metadata["dynamic_take_profit"].(float64)
	if !ok || tp <= 50300 {
		t.Errorf("dynamic take profit = %v, want above current price", res.Metadata["dynamic_take_profit"])
	}
}

func TestRiskManagerOrbitBreachClosesPosition(t *testing.T) {
	ex := &stubExchange{
		position: &models.PositionInfo{
			Symbol:     "BTCUSDT",
			Side:       models.SideLong,
			Size:       0.1,
			EntryPrice: 50000,
			OpenedAt:   time.Now().Add(-time.Minute),
		},
		// Убыточная позиция в обороне: нижняя орбита
		// 50000 - 200*1.8 = 49640, цена ниже
		price: 49500,
	}
	r := newTestRiskManager(ex)

	analysis := models.MarketAnalysis{
		CurrentPrice:  49500,
		ATR:           200,
		VolumeProfile: models.VolumeNormal,
		Volatility:    0.01,
	}

	res, err := r.Execute(store.Context{}, riskInput(models.StrategySignal{Action: models.ActionHold}, analysis))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	decision := res.Output.(*models.TradingDecision)
	if decision.Action != models.ActionClose {
		t.Fatalf("action = %s, want %s on orbit breach", decision.Action, models.ActionClose)
	}
	if decision.Size != 0.1 {
		t.Errorf("close size = %v, want full position 0.1", decision.Size)
	}
	if !strings.Contains(decision.Reason, "orbit") {
		t.Errorf("reason %q does not mention the orbit", decision.Reason)
	}
}

func TestRiskManagerDropsOrbitWhenFlat(t *testing.T) {
	ex := &stubExchange{
		position: &models.PositionInfo{
			Symbol:     "BTCUSDT",
			Side:       models.SideLong,
			Size:       0.1,
			EntryPrice: 50000,
			OpenedAt:   time.Now(),
		},
		price: 50000,
	}
	r := newTestRiskManager(ex)

	analysis := models.MarketAnalysis{
		CurrentPrice:  50000,
		ATR:           200,
		VolumeProfile: models.VolumeNormal,
		Volatility:    0.01,
	}
	hold := models.StrategySignal{Action: models.ActionHold}

	if _, err := r.Execute(store.Context{}, riskInput(hold, analysis)); err != nil {
		t.Fatalf("Execute with position: %v", err)
	}

	// Позиция закрыта: орбита сбрасывается и не попадает в метаданные
	ex.position = nil
	res, err := r.Execute(store.Context{}, riskInput(hold, analysis))
	if err != nil {
		t.Fatalf("Execute flat: %v", err)
	}
	if _, ok := res.Metadata["protection_orbit"]; ok {
		t.Error("orbit metadata present with no open position")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.orbit != nil {
		t.Error("orbit not dropped after position closed")
	}
}
