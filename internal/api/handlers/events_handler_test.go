package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"tradeagent/internal/bus"
)

// ============ EventsHandler Tests ============

func newEventBusWithHistory(count int) *bus.Bus {
	eventBus := bus.New(zap.NewNop())
	for i := 0; i < count; i++ {
		msgType := bus.TypeStrategySignal
		if i%2 == 0 {
			msgType = bus.TypeMarketAnalysis
		}
		eventBus.Publish(bus.NewMessage(msgType, "test", map[string]interface{}{
			"seq": fmt.Sprintf("%d", i),
		}))
	}
	return eventBus
}

func TestEventsHandler_GetEvents(t *testing.T) {
	t.Run("returns recent events with default count", func(t *testing.T) {
		handler := NewEventsHandler(newEventBusWithHistory(10))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
		w := httptest.NewRecorder()

		handler.GetEvents(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response eventsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 10 {
			t.Errorf("total = %d, want 10", response.Total)
		}
	})

	t.Run("respects count parameter", func(t *testing.T) {
		handler := NewEventsHandler(newEventBusWithHistory(10))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/events?count=3", nil)
		w := httptest.NewRecorder()

		handler.GetEvents(w, req)

		var response eventsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 3 {
			t.Errorf("total = %d, want 3", response.Total)
		}
		// Последние события: seq 7, 8, 9
		if response.Events[0].Payload["seq"] != "7" {
			t.Errorf("first event seq = %v, want 7", response.Events[0].Payload["seq"])
		}
	})

	t.Run("filters by type", func(t *testing.T) {
		handler := NewEventsHandler(newEventBusWithHistory(10))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/events?type=market_analysis", nil)
		w := httptest.NewRecorder()

		handler.GetEvents(w, req)

		var response eventsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 5 {
			t.Errorf("total = %d, want 5", response.Total)
		}
		for _, event := range response.Events {
			if event.Type != bus.TypeMarketAnalysis {
				t.Errorf("unexpected event type %q", event.Type)
			}
		}
	})

	t.Run("rejects invalid count", func(t *testing.T) {
		handler := NewEventsHandler(newEventBusWithHistory(1))

		for _, raw := range []string{"abc", "-5", "0"} {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/events?count="+raw, nil)
			w := httptest.NewRecorder()

			handler.GetEvents(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("count=%q: expected status %d, got %d", raw, http.StatusBadRequest, w.Code)
			}
		}
	})
}
