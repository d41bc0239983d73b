package coordinator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradeagent/internal/skill"
)

func TestFileMetricsSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics", "skill_metrics.json")

	sink, err := NewFileMetricsSink(path)
	if err != nil {
		t.Fatalf("NewFileMetricsSink: %v", err)
	}

	report := PerformanceReport{
		Skills: map[string]skill.Statistics{
			skill.MarketAnalystName: {Name: skill.MarketAnalystName, ExecutionCount: 3, SuccessCount: 2},
		},
		Coordinator: CoordinatorMetrics{CycleCount: 3, LastAction: "HOLD"},
		LastUpdate:  time.Now(),
	}
	if err := sink.SaveMetrics(report); err != nil {
		t.Fatalf("SaveMetrics: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metrics file: %v", err)
	}

	var loaded PerformanceReport
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal metrics file: %v", err)
	}
	if loaded.Coordinator.CycleCount != 3 {
		t.Errorf("cycle count = %d, want 3", loaded.Coordinator.CycleCount)
	}
	if loaded.Skills[skill.MarketAnalystName].ExecutionCount != 3 {
		t.Errorf("analyst executions = %d, want 3",
			loaded.Skills[skill.MarketAnalystName].ExecutionCount)
	}
}

func TestFileMetricsSinkOverwritesPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skill_metrics.json")

	sink, err := NewFileMetricsSink(path)
	if err != nil {
		t.Fatalf("NewFileMetricsSink: %v", err)
	}

	for cycle := int64(1); cycle <= 2; cycle++ {
		report := PerformanceReport{Coordinator: CoordinatorMetrics{CycleCount: cycle}}
		if err := sink.SaveMetrics(report); err != nil {
			t.Fatalf("SaveMetrics #%d: %v", cycle, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metrics file: %v", err)
	}
	var loaded PerformanceReport
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal metrics file: %v", err)
	}
	if loaded.Coordinator.CycleCount != 2 {
		t.Errorf("cycle count = %d, want the latest snapshot 2", loaded.Coordinator.CycleCount)
	}
}
