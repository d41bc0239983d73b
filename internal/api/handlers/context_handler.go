package handlers

import (
	"net/http"
	"strconv"
	"time"

	"tradeagent/internal/repository"
	"tradeagent/internal/store"
	"tradeagent/pkg/utils"
)

// Окно агрегации сводки решений по умолчанию, часов
const (
	defaultSummaryHours = 24
	maxSummaryHours     = 24 * 30
)

// ContextStore - доступ к документу контекста пайплайна
type ContextStore interface {
	Get() store.Context
	Reset()
}

// DecisionLog - доступ к журналу решений циклов
type DecisionLog interface {
	ListRecent(symbol string, limit int) ([]*repository.DecisionRecord, error)
	CountByAction(symbol string, since time.Time) (map[string]int, error)
}

// ContextHandler отвечает за доступ к контексту и журналу решений
//
// Функции:
// - Снимок документа контекста (GET /api/v1/context)
// - Сброс контекста к значениям по умолчанию (POST /api/v1/context/reset)
// - Последние решения циклов (GET /api/v1/decisions)
// - Сводка решений по действиям (GET /api/v1/decisions/summary)
type ContextHandler struct {
	store     ContextStore
	decisions DecisionLog
	symbol    string
}

// NewContextHandler создает новый ContextHandler.
// decisions может быть nil, если БД выключена: журнальные endpoints
// будут отвечать 503.
func NewContextHandler(contextStore ContextStore, decisions DecisionLog, symbol string) *ContextHandler {
	return &ContextHandler{
		store:     contextStore,
		decisions: decisions,
		symbol:    symbol,
	}
}

// GetContext возвращает глубокий снимок документа контекста
// GET /api/v1/context
func (h *ContextHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Get())
}

// ResetContext сбрасывает контекст к значениям по умолчанию
// POST /api/v1/context/reset
func (h *ContextHandler) ResetContext(w http.ResponseWriter, r *http.Request) {
	h.store.Reset()
	respondJSON(w, http.StatusOK, SuccessResponse{
		Message: "context reset",
		Data:    h.store.Get(),
	})
}

// decisionsResponse - ответ с записями журнала решений
type decisionsResponse struct {
	Total     int                          `json:"total"`
	Decisions []*repository.DecisionRecord `json:"decisions"`
}

// GetDecisions возвращает последние решения циклов.
// Query параметры: limit (по умолчанию 50), symbol.
// GET /api/v1/decisions?limit=20
func (h *ContextHandler) GetDecisions(w http.ResponseWriter, r *http.Request) {
	if h.decisions == nil {
		respondError(w, http.StatusServiceUnavailable, "decision log is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = h.symbol
	}

	records, err := h.decisions.ListRecent(symbol, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, decisionsResponse{
		Total:     len(records),
		Decisions: records,
	})
}

// decisionSummaryResponse - сводка решений за окно агрегации
type decisionSummaryResponse struct {
	Symbol string         `json:"symbol"`
	Since  time.Time      `json:"since"`
	Counts map[string]int `json:"counts"`
}

// GetDecisionSummary возвращает количество решений по действиям
// за окно агрегации. Query параметр hours задает окно, по
// умолчанию последние сутки.
// GET /api/v1/decisions/summary?hours=48
func (h *ContextHandler) GetDecisionSummary(w http.ResponseWriter, r *http.Request) {
	if h.decisions == nil {
		respondError(w, http.StatusServiceUnavailable, "decision log is disabled")
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = h.symbol
	}

	hours := defaultSummaryHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxSummaryHours {
			respondError(w, http.StatusBadRequest, "hours must be between 1 and 720")
			return
		}
		hours = parsed
	}

	since := utils.LastNHours(hours).Start
	counts, err := h.decisions.CountByAction(symbol, since)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, decisionSummaryResponse{
		Symbol: symbol,
		Since:  since,
		Counts: counts,
	})
}
