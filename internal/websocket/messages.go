package websocket

import (
	"time"

	"tradeagent/internal/bus"
	"tradeagent/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeEvent - событие шины пайплайна (анализ, сигнал,
	// оценка риска, исполнение, ошибка)
	MessageTypeEvent MessageType = "event"

	// MessageTypeDecision - итоговое решение торгового цикла
	MessageTypeDecision MessageType = "decision"

	// MessageTypeStatus - периодический снимок состояния агента
	MessageTypeStatus MessageType = "status"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventMessage - событие шины, ретранслированное клиентам
type EventMessage struct {
	BaseMessage
	EventType string                 `json:"event_type"`
	Source    string                 `json:"source"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// DecisionMessage - итоговое решение цикла
type DecisionMessage struct {
	BaseMessage
	Symbol   string                  `json:"symbol"`
	Decision *models.TradingDecision `json:"decision"`
}

// StatusMessage - снимок состояния агента для панели мониторинга
type StatusMessage struct {
	BaseMessage
	Data interface{} `json:"data"`
}

// ============ Фабричные функции для создания сообщений ============

// NewEventMessage оборачивает сообщение шины для отправки клиентам
func NewEventMessage(msg bus.Message) *EventMessage {
	return &EventMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeEvent,
			Timestamp: msg.Timestamp,
		},
		EventType: string(msg.Type),
		Source:    msg.Source,
		Payload:   msg.Payload,
	}
}

// NewDecisionMessage создает сообщение с итоговым решением цикла
func NewDecisionMessage(symbol string, decision *models.TradingDecision) *DecisionMessage {
	return &DecisionMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeDecision,
			Timestamp: time.Now(),
		},
		Symbol:   symbol,
		Decision: decision,
	}
}

// NewStatusMessage создает сообщение со снимком состояния агента
func NewStatusMessage(status interface{}) *StatusMessage {
	return &StatusMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeStatus,
			Timestamp: time.Now(),
		},
		Data: status,
	}
}
