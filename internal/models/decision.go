package models

// TradingDecision - риск-скорректированное решение, итог торгового цикла.
// Производится риск-менеджером, потребляется исполнителем.
type TradingDecision struct {
	Action     string  `json:"action"`
	Size       float64 `json:"size"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Leverage   int     `json:"leverage"`
	Confidence float64 `json:"confidence"`
	RiskScore  float64 `json:"risk_score"` // 0-1, выше = рискованнее
	Reason     string  `json:"reason,omitempty"`

	// Детали риск-корректировок (исходный размер, флаги black swan и т.п.)
	Adjustments map[string]interface{} `json:"adjustments,omitempty"`
}

// HoldDecision создаёт консервативное решение HOLD с указанием причины
func HoldDecision(reason string) *TradingDecision {
	return &TradingDecision{
		Action:   ActionHold,
		Leverage: 1,
		Reason:   reason,
	}
}

// RequiresExecution возвращает true, если решение должно дойти
// до этапа исполнения (HOLD исполнения не требует)
func (d *TradingDecision) RequiresExecution() bool {
	switch d.Action {
	case ActionBuy, ActionSell, ActionClose:
		return true
	default:
		return false
	}
}
