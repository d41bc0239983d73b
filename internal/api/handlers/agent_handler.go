package handlers

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"tradeagent/internal/coordinator"
	"tradeagent/internal/skill"
)

// Agent - управляющая поверхность координатора пайплайна
type Agent interface {
	Status() coordinator.Status
	Runner(name string) (*skill.Runner, bool)
}

// AgentHandler отвечает за наблюдение и управление пайплайном
//
// Функции:
// - Снимок состояния агента (GET /api/v1/status)
// - Счетчики навыков (GET /api/v1/skills)
// - Включение и выключение навыков (POST /api/v1/skills/{name}/enable|disable)
// - Состояния circuit breaker (GET /api/v1/breaker)
type AgentHandler struct {
	agent Agent
}

// NewAgentHandler создает новый AgentHandler
func NewAgentHandler(agent Agent) *AgentHandler {
	return &AgentHandler{agent: agent}
}

// GetStatus возвращает снимок состояния координатора
// GET /api/v1/status
func (h *AgentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.agent.Status())
}

// skillsResponse - ответ со счетчиками навыков
type skillsResponse struct {
	Total  int                `json:"total"`
	Skills []skill.Statistics `json:"skills"`
}

// GetSkills возвращает счетчики всех навыков, упорядоченные по приоритету
// GET /api/v1/skills
func (h *AgentHandler) GetSkills(w http.ResponseWriter, r *http.Request) {
	stats := h.agent.Status().Skills

	skills := make([]skill.Statistics, 0, len(stats))
	for _, s := range stats {
		skills = append(skills, s)
	}
	sort.Slice(skills, func(i, j int) bool {
		if skills[i].Priority != skills[j].Priority {
			return skills[i].Priority > skills[j].Priority
		}
		return skills[i].Name < skills[j].Name
	})

	respondJSON(w, http.StatusOK, skillsResponse{
		Total:  len(skills),
		Skills: skills,
	})
}

// EnableSkill допускает навык к исполнению
// POST /api/v1/skills/{name}/enable
func (h *AgentHandler) EnableSkill(w http.ResponseWriter, r *http.Request) {
	runner, ok := h.agent.Runner(mux.Vars(r)["name"])
	if !ok {
		respondError(w, http.StatusNotFound, "skill not found")
		return
	}

	runner.Enable()
	respondJSON(w, http.StatusOK, SuccessResponse{
		Message: "skill enabled",
		Data:    runner.Statistics(),
	})
}

// DisableSkill выводит навык из исполнения со следующего цикла
// POST /api/v1/skills/{name}/disable
func (h *AgentHandler) DisableSkill(w http.ResponseWriter, r *http.Request) {
	runner, ok := h.agent.Runner(mux.Vars(r)["name"])
	if !ok {
		respondError(w, http.StatusNotFound, "skill not found")
		return
	}

	runner.Disable()
	respondJSON(w, http.StatusOK, SuccessResponse{
		Message: "skill disabled",
		Data:    runner.Statistics(),
	})
}

// GetBreaker возвращает состояния circuit breaker по навыкам
// GET /api/v1/breaker
func (h *AgentHandler) GetBreaker(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.agent.Status().Breaker)
}
