package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового пайплайна
// ============================================================

// ============ Метрики циклов ============

// CyclesTotal - количество торговых циклов по результату
var CyclesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradeagent",
		Subsystem: "pipeline",
		Name:      "cycles_total",
		Help:      "Total number of trading cycles by outcome",
	},
	[]string{"outcome"}, // completed, aborted, panic
)

// CycleDuration - длительность полного цикла
var CycleDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "tradeagent",
		Subsystem: "pipeline",
		Name:      "cycle_duration_seconds",
		Help:      "Full trading cycle duration in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	},
)

// ============ Метрики этапов ============

// SkillExecutions - исполнения навыков по статусам
var SkillExecutions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradeagent",
		Subsystem: "pipeline",
		Name:      "skill_executions_total",
		Help:      "Skill executions by skill name and result status",
	},
	[]string{"skill", "status"}, // success, failed, timeout, disabled
)

// SkillDuration - длительность исполнения навыка
var SkillDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "tradeagent",
		Subsystem: "pipeline",
		Name:      "skill_duration_seconds",
		Help:      "Skill execution duration in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	},
	[]string{"skill"},
)

// BreakerBlocked - отказы в исполнении из-за открытого breaker
var BreakerBlocked = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradeagent",
		Subsystem: "pipeline",
		Name:      "breaker_blocked_total",
		Help:      "Executions blocked by an open circuit breaker",
	},
	[]string{"skill"},
)

// BreakerState - состояние breaker по навыку (0=closed, 1=half_open, 2=open)
var BreakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "tradeagent",
		Subsystem: "pipeline",
		Name:      "breaker_state",
		Help:      "Circuit breaker state per skill (0=closed, 1=half_open, 2=open)",
	},
	[]string{"skill"},
)

// ============ Метрики решений ============

// DecisionsTotal - итоговые решения по действию
var DecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradeagent",
		Subsystem: "trading",
		Name:      "decisions_total",
		Help:      "Final trading decisions by action",
	},
	[]string{"action"}, // BUY, SELL, HOLD, CLOSE
)

// RiskScore - риск-скор последнего решения
var RiskScore = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradeagent",
		Subsystem: "trading",
		Name:      "risk_score",
		Help:      "Risk score of the latest decision",
	},
)

// ExecutionSlippage - проскальзывание исполнения
var ExecutionSlippage = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "tradeagent",
		Subsystem: "trading",
		Name:      "execution_slippage",
		Help:      "Slippage of executed orders as a fraction of expected price",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.05},
	},
)

// ============ Вспомогательные функции ============

// recordSkillResult записывает исход исполнения навыка
func recordSkillResult(skill, status string, durationSeconds float64) {
	SkillExecutions.WithLabelValues(skill, status).Inc()
	SkillDuration.WithLabelValues(skill).Observe(durationSeconds)
}

// recordBreakerState обновляет gauge состояния breaker
func recordBreakerState(skill, state string) {
	value := 0.0
	switch state {
	case "half_open":
		value = 1
	case "open":
		value = 2
	}
	BreakerState.WithLabelValues(skill).Set(value)
}

// recordDecision записывает итоговое решение цикла
func recordDecision(action string, riskScore float64) {
	DecisionsTotal.WithLabelValues(action).Inc()
	RiskScore.Set(riskScore)
}
