package models

import "time"

// Статусы исполнения
const (
	ExecutionSuccess = "success"
	ExecutionPartial = "partial"
	ExecutionFailed  = "failed"
)

// ExecutionReport - выход этапа исполнения
type ExecutionReport struct {
	Status        string    `json:"execution_status"`
	FilledSize    float64   `json:"filled_size"`
	AvgPrice      float64   `json:"avg_price"`
	Slippage      float64   `json:"slippage"`       // в долях от ожидаемой цены
	ExecutionTime float64   `json:"execution_time"` // секунды
	OrderIDs      []string  `json:"order_ids"`
	Message       string    `json:"message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
