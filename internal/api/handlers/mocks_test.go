package handlers

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"tradeagent/internal/coordinator"
	"tradeagent/internal/models"
	"tradeagent/internal/repository"
	"tradeagent/internal/skill"
	"tradeagent/internal/store"
)

// ErrMockDatabase - ошибка, возвращаемая моками по запросу
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock Agent ============

type mockAgent struct {
	status  coordinator.Status
	runners map[string]*skill.Runner
}

func newMockAgent() *mockAgent {
	return &mockAgent{
		status: coordinator.Status{
			Running: true,
			Symbol:  "BTCUSDT",
			Skills:  map[string]skill.Statistics{},
		},
		runners: map[string]*skill.Runner{},
	}
}

func (m *mockAgent) Status() coordinator.Status {
	status := m.status
	status.Skills = map[string]skill.Statistics{}
	for name, r := range m.runners {
		status.Skills[name] = r.Statistics()
	}
	return status
}

func (m *mockAgent) Runner(name string) (*skill.Runner, bool) {
	r, ok := m.runners[name]
	return r, ok
}

// addRunner регистрирует навык-заглушку под указанным именем
func (m *mockAgent) addRunner(name string, priority int) *skill.Runner {
	r := skill.NewRunner(&noopSkill{name: name}, skill.RunnerConfig{
		Timeout:  time.Second,
		Priority: priority,
	}, zap.NewNop())
	m.runners[name] = r
	return r
}

// noopSkill - навык, который всегда успешен
type noopSkill struct {
	name string
}

func (s *noopSkill) Name() string                    { return s.name }
func (s *noopSkill) RequiredInputs() []string        { return nil }
func (s *noopSkill) OutputSchema() map[string]string { return nil }

func (s *noopSkill) Execute(snapshot store.Context, input skill.Input) (*skill.Result, error) {
	return skill.Succeed(s.name, nil, 1.0), nil
}

// ============ Mock DecisionLog ============

type mockDecisionLog struct {
	records []*repository.DecisionRecord
	counts  map[string]int
	err     error

	lastSymbol string
	lastLimit  int
}

func (m *mockDecisionLog) ListRecent(symbol string, limit int) ([]*repository.DecisionRecord, error) {
	m.lastSymbol = symbol
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

func (m *mockDecisionLog) CountByAction(symbol string, since time.Time) (map[string]int, error) {
	m.lastSymbol = symbol
	if m.err != nil {
		return nil, m.err
	}
	return m.counts, nil
}

// decisionRecord создает запись журнала для тестов
func decisionRecord(id int64, action string) *repository.DecisionRecord {
	return &repository.DecisionRecord{
		ID:        id,
		Symbol:    "BTCUSDT",
		Decision:  models.TradingDecision{Action: action},
		CreatedAt: time.Now(),
	}
}
