package skill

import (
	"errors"
	"time"

	"tradeagent/internal/store"
)

// mockSkill - управляемый навык для тестов Runner
type mockSkill struct {
	name           string
	requiredInputs []string

	executeCalls int
	result       *Result
	err          error
	panicValue   interface{}
	delay        time.Duration
}

func (m *mockSkill) Name() string {
	return m.name
}

func (m *mockSkill) RequiredInputs() []string {
	return m.requiredInputs
}

func (m *mockSkill) OutputSchema() map[string]string {
	return map[string]string{"value": "string"}
}

func (m *mockSkill) Execute(snapshot store.Context, input Input) (*Result, error) {
	m.executeCalls++
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.panicValue != nil {
		panic(m.panicValue)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return Succeed(m.name, map[string]string{"value": "ok"}, 0.9), nil
}

var errMockExecution = errors.New("downstream provider unavailable")
