package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Agent.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q, want BTCUSDT", cfg.Agent.Symbol)
	}
	if cfg.Agent.CycleInterval != 300*time.Second {
		t.Errorf("cycle interval = %v, want 300s", cfg.Agent.CycleInterval)
	}
	if cfg.Agent.SkillTimeout != 5*time.Second {
		t.Errorf("skill timeout = %v, want 5s", cfg.Agent.SkillTimeout)
	}
	if !cfg.Breaker.Enabled || cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.ResetTimeout != 300*time.Second {
		t.Errorf("breaker defaults = %+v", cfg.Breaker)
	}
	if cfg.Skills.AnalystPriority != 5 || cfg.Skills.StrategistPriority != 7 ||
		cfg.Skills.RiskPriority != 9 || cfg.Skills.ExecutorPriority != 8 {
		t.Errorf("priority defaults = %+v", cfg.Skills)
	}
	if !cfg.Agent.FallbackToLegacy {
		t.Error("fallback to legacy disabled by default")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TRADE_SYMBOL", "ETHUSDT")
	t.Setenv("CYCLE_INTERVAL", "1m")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "3")
	t.Setenv("MAX_POSITION_FRACTION", "0.2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Agent.Symbol != "ETHUSDT" {
		t.Errorf("symbol = %q, want ETHUSDT", cfg.Agent.Symbol)
	}
	if cfg.Agent.CycleInterval != time.Minute {
		t.Errorf("cycle interval = %v, want 1m", cfg.Agent.CycleInterval)
	}
	if cfg.Breaker.FailureThreshold != 3 {
		t.Errorf("threshold = %d, want 3", cfg.Breaker.FailureThreshold)
	}
	if cfg.Risk.MaxPositionFraction != 0.2 {
		t.Errorf("max fraction = %v, want 0.2", cfg.Risk.MaxPositionFraction)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("MAX_POSITION_FRACTION", "1.5")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for MAX_POSITION_FRACTION > 1")
	}
}
