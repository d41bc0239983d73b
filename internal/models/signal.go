package models

import "time"

// Торговые действия, проходящие через пайплайн
const (
	ActionBuy   = "BUY"
	ActionSell  = "SELL"
	ActionHold  = "HOLD"
	ActionClose = "CLOSE"
)

// EntryConditions - рыночные условия на момент генерации сигнала
type EntryConditions struct {
	Price         float64 `json:"price"`
	RSI           float64 `json:"rsi"`
	TrendStrength float64 `json:"trend_strength"`
}

// ExitConditions - параметры выхода, заложенные стратегией.
// Риск-менеджер использует StopLossPct для расчёта размера позиции.
type ExitConditions struct {
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	TrailingStop  bool    `json:"trailing_stop"`
}

// StrategySignal - выход этапа стратегии, вход риск-менеджера
type StrategySignal struct {
	Action          string          `json:"action"`
	Size            float64         `json:"size"`
	Confidence      float64         `json:"confidence"`
	StrategyName    string          `json:"strategy_name"`
	Reasoning       string          `json:"reasoning"`
	EntryConditions EntryConditions `json:"entry_conditions"`
	ExitConditions  ExitConditions  `json:"exit_conditions"`
	Timestamp       time.Time       `json:"timestamp"`
}

// IsDirectional возвращает true для сигналов открытия позиции
func (s *StrategySignal) IsDirectional() bool {
	return s.Action == ActionBuy || s.Action == ActionSell
}
