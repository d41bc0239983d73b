package skill

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"tradeagent/internal/models"
	"tradeagent/internal/store"
	"tradeagent/pkg/utils"
)

// ============================================================
// Этап 2: генерация стратегии
// ============================================================

// Имя навыка генерации стратегии
const QuantStrategistName = "quant_strategist"

// Пороги принятия стратегических решений
const (
	signalConfidenceFloor = 0.5
	exitAnomalyCount      = 3
	trendEntryStrength    = 6.0
)

// StrategistConfig - параметры генерации сигналов
type StrategistConfig struct {
	Symbol       string
	ContractSize float64 // базовый размер позиции до множителей
}

// QuantStrategist превращает оценку рынка в торговый сигнал.
// Сначала проверяются условия выхода из открытой позиции, затем
// уверенность сигнала; только достаточно уверенный сигнал получает
// направление и размер.
type QuantStrategist struct {
	cfg StrategistConfig
	log *zap.Logger
}

// NewQuantStrategist создаёт навык генерации стратегии
func NewQuantStrategist(cfg StrategistConfig, log *zap.Logger) *QuantStrategist {
	if cfg.ContractSize <= 0 {
		cfg.ContractSize = 0.1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &QuantStrategist{cfg: cfg, log: log}
}

func (s *QuantStrategist) Name() string {
	return QuantStrategistName
}

func (s *QuantStrategist) RequiredInputs() []string {
	return []string{"market_analysis"}
}

func (s *QuantStrategist) OutputSchema() map[string]string {
	return map[string]string{
		"action":     "string",
		"size":       "float",
		"confidence": "float",
	}
}

// Execute строит торговый сигнал по оценке рынка
func (s *QuantStrategist) Execute(snapshot store.Context, input Input) (*Result, error) {
	a, err := marketAnalysisInput(input)
	if err != nil {
		return nil, err
	}

	// Деградировавший рынок с открытой позицией: выходим не раздумывая
	if len(a.AnomalyFlags) >= exitAnomalyCount && snapshot.PositionInfo.IsOpen() {
		signal := models.StrategySignal{
			Action:       models.ActionClose,
			Size:         snapshot.PositionInfo.Size,
			Confidence:   0.8,
			StrategyName: "emergency_exit",
			Reasoning:    fmt.Sprintf("market degraded: %d anomalies with open position", len(a.AnomalyFlags)),
			Timestamp:    time.Now(),
		}
		return Succeed(QuantStrategistName, signal, signal.Confidence), nil
	}

	confidence := s.signalConfidence(a)
	if confidence < signalConfidenceFloor {
		return Succeed(QuantStrategistName, s.holdSignal(
			fmt.Sprintf("signal confidence %.2f below floor", confidence)), signalConfidenceFloor), nil
	}

	action := s.direction(a)
	if action == models.ActionHold {
		return Succeed(QuantStrategistName, s.holdSignal("no directional edge"), confidence), nil
	}

	signal := models.StrategySignal{
		Action:       action,
		Size:         utils.RoundSize(s.positionSize(a, confidence), 4),
		Confidence:   confidence,
		StrategyName: "trend_following",
		Reasoning: fmt.Sprintf("%s trend, strength %.1f, regime %s",
			a.TrendDirection, a.TrendStrength, a.MarketRegime),
		EntryConditions: models.EntryConditions{
			Price:         a.CurrentPrice,
			RSI:           a.RSI,
			TrendStrength: a.TrendStrength,
		},
		ExitConditions: models.ExitConditions{
			StopLossPct:   0.02,
			TakeProfitPct: 0.04,
			TrailingStop:  true,
		},
		Timestamp: time.Now(),
	}

	s.log.Info("Strategy signal generated",
		zap.String("action", signal.Action),
		zap.Float64("size", signal.Size),
		zap.Float64("confidence", signal.Confidence))

	return Succeed(QuantStrategistName, signal, confidence), nil
}

func marketAnalysisInput(input Input) (models.MarketAnalysis, error) {
	switch v := input["market_analysis"].(type) {
	case models.MarketAnalysis:
		return v, nil
	case *models.MarketAnalysis:
		if v == nil {
			return models.MarketAnalysis{}, fmt.Errorf("market_analysis is nil")
		}
		return *v, nil
	default:
		return models.MarketAnalysis{}, fmt.Errorf("market_analysis has unexpected type %T", input["market_analysis"])
	}
}

func (s *QuantStrategist) holdSignal(reason string) models.StrategySignal {
	return models.StrategySignal{
		Action:       models.ActionHold,
		Size:         0,
		Confidence:   signalConfidenceFloor,
		StrategyName: "trend_following",
		Reasoning:    reason,
		Timestamp:    time.Now(),
	}
}

// signalConfidence объединяет собственную оценку тренда с
// уверенностью анализа и штрафует за аномалии
func (s *QuantStrategist) signalConfidence(a models.MarketAnalysis) float64 {
	base := 0.5
	switch {
	case a.TrendStrength > 8:
		base += 0.2
	case a.TrendStrength > 6:
		base += 0.1
	}

	confidence := (base + a.Confidence) / 2
	confidence -= 0.1 * float64(len(a.AnomalyFlags))

	if a.MarketRegime == models.RegimeTrending {
		confidence += 0.1
	}

	return utils.Clamp(confidence, 0, 1)
}

// direction выбирает направление входа. Волатильный рынок с
// аномалиями не торгуется.
func (s *QuantStrategist) direction(a models.MarketAnalysis) string {
	if a.MarketRegime == models.RegimeVolatile && len(a.AnomalyFlags) > 0 {
		return models.ActionHold
	}
	if a.TrendStrength <= trendEntryStrength {
		return models.ActionHold
	}

	switch a.TrendDirection {
	case models.TrendUp:
		return models.ActionBuy
	case models.TrendDown:
		return models.ActionSell
	default:
		return models.ActionHold
	}
}

// positionSize масштабирует базовый размер уверенностью и режимом
func (s *QuantStrategist) positionSize(a models.MarketAnalysis, confidence float64) float64 {
	size := s.cfg.ContractSize * confidence

	switch a.MarketRegime {
	case models.RegimeVolatile:
		size *= 0.7
	case models.RegimeTrending:
		size *= 1.2
	}

	return size
}
