package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"tradeagent/internal/coordinator"
	"tradeagent/internal/skill"
)

// ============ AgentHandler Tests ============

func TestAgentHandler_GetStatus(t *testing.T) {
	mockSvc := newMockAgent()
	mockSvc.addRunner("market_analyst", 5)
	handler := NewAgentHandler(mockSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()

	handler.GetStatus(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var status coordinator.Status
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !status.Running {
		t.Error("expected running agent")
	}
	if status.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q, want BTCUSDT", status.Symbol)
	}
	if len(status.Skills) != 1 {
		t.Errorf("skills = %d, want 1", len(status.Skills))
	}
}

func TestAgentHandler_GetSkills(t *testing.T) {
	t.Run("orders skills by priority descending", func(t *testing.T) {
		mockSvc := newMockAgent()
		mockSvc.addRunner("market_analyst", 5)
		mockSvc.addRunner("risk_manager", 9)
		mockSvc.addRunner("quant_strategist", 7)
		handler := NewAgentHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/skills", nil)
		w := httptest.NewRecorder()

		handler.GetSkills(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response skillsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response.Total != 3 {
			t.Fatalf("total = %d, want 3", response.Total)
		}
		want := []string{"risk_manager", "quant_strategist", "market_analyst"}
		for i, name := range want {
			if response.Skills[i].Name != name {
				t.Errorf("skills[%d] = %q, want %q", i, response.Skills[i].Name, name)
			}
		}
	})

	t.Run("returns empty list without skills", func(t *testing.T) {
		handler := NewAgentHandler(newMockAgent())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/skills", nil)
		w := httptest.NewRecorder()

		handler.GetSkills(w, req)

		var response skillsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 0 {
			t.Errorf("total = %d, want 0", response.Total)
		}
	})
}

func TestAgentHandler_DisableSkill(t *testing.T) {
	t.Run("disables registered skill", func(t *testing.T) {
		mockSvc := newMockAgent()
		runner := mockSvc.addRunner("trade_executor", 8)
		handler := NewAgentHandler(mockSvc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/skills/trade_executor/disable", nil)
		req = mux.SetURLVars(req, map[string]string{"name": "trade_executor"})
		w := httptest.NewRecorder()

		handler.DisableSkill(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if runner.Enabled() {
			t.Error("runner still enabled after disable")
		}
	})

	t.Run("returns 404 for unknown skill", func(t *testing.T) {
		handler := NewAgentHandler(newMockAgent())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/skills/unknown/disable", nil)
		req = mux.SetURLVars(req, map[string]string{"name": "unknown"})
		w := httptest.NewRecorder()

		handler.DisableSkill(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})
}

func TestAgentHandler_EnableSkill(t *testing.T) {
	mockSvc := newMockAgent()
	runner := mockSvc.addRunner("trade_executor", 8)
	runner.Disable()
	handler := NewAgentHandler(mockSvc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/skills/trade_executor/enable", nil)
	req = mux.SetURLVars(req, map[string]string{"name": "trade_executor"})
	w := httptest.NewRecorder()

	handler.EnableSkill(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if !runner.Enabled() {
		t.Error("runner still disabled after enable")
	}

	var response SuccessResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Message != "skill enabled" {
		t.Errorf("message = %q", response.Message)
	}
}

func TestAgentHandler_GetBreaker(t *testing.T) {
	mockSvc := newMockAgent()
	mockSvc.status.Breaker = map[string]skill.BreakerInfo{
		"quant_strategist": {State: skill.BreakerOpen, FailureCount: 5},
	}
	handler := NewAgentHandler(mockSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/breaker", nil)
	w := httptest.NewRecorder()

	handler.GetBreaker(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response map[string]skill.BreakerInfo
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["quant_strategist"].State != skill.BreakerOpen {
		t.Errorf("breaker state = %+v", response["quant_strategist"])
	}
}
