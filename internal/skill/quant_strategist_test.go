package skill

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"tradeagent/internal/models"
	"tradeagent/internal/store"
)

func strategistInput(a models.MarketAnalysis) Input {
	return Input{"market_analysis": a}
}

func newTestStrategist() *QuantStrategist {
	return NewQuantStrategist(StrategistConfig{Symbol: "BTCUSDT", ContractSize: 0.1}, zap.NewNop())
}

func TestStrategistEmergencyExitOnDegradedMarket(t *testing.T) {
	s := newTestStrategist()

	snapshot := store.Context{
		PositionInfo: &models.PositionInfo{Symbol: "BTCUSDT", Side: models.SideLong, Size: 0.3},
	}
	a := models.MarketAnalysis{
		AnomalyFlags: []string{"high volatility", "volume spike", "overbought"},
		Confidence:   0.4,
	}

	res, err := s.Execute(snapshot, strategistInput(a))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	signal := res.Output.(models.StrategySignal)
	if signal.Action != models.ActionClose {
		t.Fatalf("action = %s, want %s", signal.Action, models.ActionClose)
	}
	if signal.Size != 0.3 {
		t.Errorf("size = %v, want full position 0.3", signal.Size)
	}
	if signal.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", signal.Confidence)
	}
	if signal.StrategyName != "emergency_exit" {
		t.Errorf("strategy = %q, want emergency_exit", signal.StrategyName)
	}
}

func TestStrategistDegradedMarketWithoutPositionDoesNotExit(t *testing.T) {
	s := newTestStrategist()

	a := models.MarketAnalysis{
		AnomalyFlags: []string{"high volatility", "volume spike", "overbought"},
		Confidence:   0.4,
	}

	res, err := s.Execute(store.Context{}, strategistInput(a))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	signal := res.Output.(models.StrategySignal)
	if signal.Action == models.ActionClose {
		t.Error("emergency exit fired without an open position")
	}
}

func TestStrategistLowConfidenceHolds(t *testing.T) {
	s := newTestStrategist()

	a := models.MarketAnalysis{
		TrendStrength:  3,
		TrendDirection: models.TrendUp,
		Confidence:     0.4,
		AnomalyFlags:   []string{"volume drought"},
		MarketRegime:   models.RegimeRanging,
	}

	res, err := s.Execute(store.Context{}, strategistInput(a))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsSuccess() {
		t.Fatalf("status = %s, want success: hold is a valid outcome", res.Status)
	}

	signal := res.Output.(models.StrategySignal)
	if signal.Action != models.ActionHold {
		t.Errorf("action = %s, want %s", signal.Action, models.ActionHold)
	}
	if signal.Size != 0 {
		t.Errorf("size = %v, want 0", signal.Size)
	}
	if !strings.Contains(signal.Reasoning, "confidence") {
		t.Errorf("reasoning %q does not mention confidence", signal.Reasoning)
	}
}

func TestStrategistDirectionalSignalOnStrongTrend(t *testing.T) {
	s := newTestStrategist()

	a := models.MarketAnalysis{
		TrendStrength:  9,
		TrendDirection: models.TrendUp,
		Confidence:     0.8,
		MarketRegime:   models.RegimeTrending,
		CurrentPrice:   50000,
		RSI:            65,
	}

	res, err := s.Execute(store.Context{}, strategistInput(a))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	signal := res.Output.(models.StrategySignal)
	if signal.Action != models.ActionBuy {
		t.Fatalf("action = %s, want %s", signal.Action, models.ActionBuy)
	}
	if signal.Size <= 0 {
		t.Errorf("size = %v, want > 0", signal.Size)
	}
	if signal.EntryConditions.Price != 50000 {
		t.Errorf("entry price = %v, want 50000", signal.EntryConditions.Price)
	}
	if signal.ExitConditions.StopLossPct != 0.02 || signal.ExitConditions.TakeProfitPct != 0.04 {
		t.Errorf("exit conditions = %+v, want 0.02/0.04", signal.ExitConditions)
	}
	if !signal.ExitConditions.TrailingStop {
		t.Error("trailing stop not set")
	}
}

func TestStrategistSellOnDowntrend(t *testing.T) {
	s := newTestStrategist()

	a := models.MarketAnalysis{
		TrendStrength:  9,
		TrendDirection: models.TrendDown,
		Confidence:     0.8,
		MarketRegime:   models.RegimeTrending,
		CurrentPrice:   50000,
	}

	res, err := s.Execute(store.Context{}, strategistInput(a))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	signal := res.Output.(models.StrategySignal)
	if signal.Action != models.ActionSell {
		t.Errorf("action = %s, want %s", signal.Action, models.ActionSell)
	}
}

func TestStrategistVolatileMarketWithAnomaliesHolds(t *testing.T) {
	s := newTestStrategist()

	a := models.MarketAnalysis{
		TrendStrength:  9,
		TrendDirection: models.TrendUp,
		Confidence:     0.9,
		MarketRegime:   models.RegimeVolatile,
		AnomalyFlags:   []string{"high volatility"},
	}

	res, err := s.Execute(store.Context{}, strategistInput(a))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	signal := res.Output.(models.StrategySignal)
	if signal.Action != models.ActionHold {
		t.Errorf("action = %s, want %s on volatile market with anomalies", signal.Action, models.ActionHold)
	}
}

func TestStrategistSizeScalesWithRegime(t *testing.T) {
	s := newTestStrategist()

	trending := s.positionSize(models.MarketAnalysis{MarketRegime: models.RegimeTrending}, 0.8)
	volatile := s.positionSize(models.MarketAnalysis{MarketRegime: models.RegimeVolatile}, 0.8)
	ranging := s.positionSize(models.MarketAnalysis{MarketRegime: models.RegimeRanging}, 0.8)

	if trending <= ranging || ranging <= volatile {
		t.Errorf("size ordering broken: trending %v, ranging %v, volatile %v",
			trending, ranging, volatile)
	}
}

func TestStrategistConfidenceBlending(t *testing.T) {
	s := newTestStrategist()

	// base 0.5+0.2 (trend 9), среднее с 0.9 -> 0.8, -0.1 аномалия, +0.1 trending
	a := models.MarketAnalysis{
		TrendStrength: 9,
		Confidence:    0.9,
		AnomalyFlags:  []string{"volume spike"},
		MarketRegime:  models.RegimeTrending,
	}

	got := s.signalConfidence(a)
	if diff := got - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %v, want 0.8", got)
	}
}
