package models

import "time"

// Стороны позиции
const (
	SideLong  = "long"
	SideShort = "short"
)

// PositionInfo - открытая позиция на бирже
type PositionInfo struct {
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"` // long/short
	Size          float64   `json:"size"`
	EntryPrice    float64   `json:"entry_price"`
	UnrealizedPnl float64   `json:"unrealized_pnl"`
	Leverage      int       `json:"leverage"`
	OpenedAt      time.Time `json:"opened_at"`
}

// IsOpen возвращает true для реально открытой позиции.
// Безопасен для nil-получателя: отсутствие позиции = flat.
func (p *PositionInfo) IsOpen() bool {
	return p != nil && p.Size > 0
}

// PerformanceMetrics - агрегированные показатели торговли,
// используются риск-менеджером (win rate, просадка, дневной PnL)
type PerformanceMetrics struct {
	WinRate          float64          `json:"win_rate"`     // 0-1
	MaxDrawdown      float64          `json:"max_drawdown"` // в долях
	DailyPnl         float64          `json:"daily_pnl"`    // в долях от баланса
	TotalTrades      int              `json:"total_trades"`
	LastExecution    *ExecutionReport `json:"last_execution,omitempty"`
	LastCycleSeconds float64          `json:"last_cycle_seconds"`
}
