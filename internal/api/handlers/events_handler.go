package handlers

import (
	"net/http"
	"strconv"

	"tradeagent/internal/bus"
)

// Лимиты выборки истории событий
const (
	defaultEventCount = 50
	maxEventCount     = 1000
)

// EventStream - источник истории событий пайплайна
type EventStream interface {
	Recent(count int, msgType bus.MessageType) []bus.Message
}

// EventsHandler отвечает за доступ к истории событий шины
//
// Функции:
// - Последние события с фильтром по типу (GET /api/v1/events)
type EventsHandler struct {
	events EventStream
}

// NewEventsHandler создает новый EventsHandler
func NewEventsHandler(events EventStream) *EventsHandler {
	return &EventsHandler{events: events}
}

// eventsResponse - ответ с историей событий
type eventsResponse struct {
	Total  int           `json:"total"`
	Events []bus.Message `json:"events"`
}

// GetEvents возвращает последние события шины.
// Query параметры: count (по умолчанию 50, максимум 1000),
// type (фильтр по типу события).
// GET /api/v1/events?count=100&type=strategy_signal
func (h *EventsHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	count := defaultEventCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = parsed
	}
	if count > maxEventCount {
		count = maxEventCount
	}

	msgType := bus.MessageType(r.URL.Query().Get("type"))
	events := h.events.Recent(count, msgType)

	respondJSON(w, http.StatusOK, eventsResponse{
		Total:  len(events),
		Events: events,
	})
}
