package skill

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"tradeagent/internal/analysis"
	"tradeagent/internal/models"
	"tradeagent/internal/store"
	"tradeagent/pkg/utils"
)

// ============================================================
// Этап 1: анализ рынка
// ============================================================

// Имя навыка анализа рынка
const MarketAnalystName = "market_analyst"

// Пороги детектора аномалий
const (
	anomalyPriceChange   = 0.05
	anomalyHighVol       = 0.03
	anomalyLowVol        = 0.001
	anomalyVolumeSpike   = 3.0
	anomalyVolumeDrought = 0.3
	anomalyOverboughtRSI = 80.0
	anomalyOversoldRSI   = 20.0
)

// MarketAnalyst превращает сырые рыночные данные в оценку рынка:
// аномалии, режим, профиль объёма и уверенность анализа.
// Трендовую часть оценки поставляет внешний провайдер аналитики.
type MarketAnalyst struct {
	provider analysis.Provider
	log      *zap.Logger
}

// NewMarketAnalyst создаёт навык анализа рынка
func NewMarketAnalyst(provider analysis.Provider, log *zap.Logger) *MarketAnalyst {
	if provider == nil {
		provider = analysis.NewHeuristicProvider()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MarketAnalyst{provider: provider, log: log}
}

func (a *MarketAnalyst) Name() string {
	return MarketAnalystName
}

func (a *MarketAnalyst) RequiredInputs() []string {
	return []string{"market_data"}
}

func (a *MarketAnalyst) OutputSchema() map[string]string {
	return map[string]string{
		"trend_strength": "float",
		"market_regime":  "string",
		"anomaly_flags":  "[]string",
		"confidence":     "float",
	}
}

// Execute строит оценку рынка из сырых данных
func (a *MarketAnalyst) Execute(snapshot store.Context, input Input) (*Result, error) {
	data, err := marketDataInput(input)
	if err != nil {
		return nil, err
	}

	report, err := a.provider.Analyze(data)
	if err != nil {
		return nil, fmt.Errorf("analysis provider: %w", err)
	}

	anomalies := a.detectAnomalies(data)
	result := models.MarketAnalysis{
		TrendStrength:  report.TrendStrength,
		TrendDirection: report.TrendDirection,
		Volatility:     data.Volatility,
		SentimentScore: report.SentimentScore,
		AnomalyFlags:   anomalies,
		MarketRegime:   report.MarketRegime,
		VolumeProfile:  volumeProfile(data.VolumeRatio),
		CurrentPrice:   data.LastPrice,
		PriceChangePct: data.PriceChangePct,
		RSI:            data.RSI,
		ATR:            data.ATR,
		Timestamp:      time.Now(),
	}
	result.Confidence = a.confidence(result)

	if len(anomalies) > 0 {
		a.log.Warn("Market anomalies detected",
			zap.String("symbol", data.Symbol),
			zap.Strings("anomalies", anomalies))
	}

	return Succeed(MarketAnalystName, result, result.Confidence), nil
}

func marketDataInput(input Input) (models.MarketData, error) {
	switch v := input["market_data"].(type) {
	case models.MarketData:
		return v, nil
	case *models.MarketData:
		if v == nil {
			return models.MarketData{}, fmt.Errorf("market_data is nil")
		}
		return *v, nil
	default:
		return models.MarketData{}, fmt.Errorf("market_data has unexpected type %T", input["market_data"])
	}
}

// detectAnomalies помечает подозрительные рыночные условия
func (a *MarketAnalyst) detectAnomalies(data models.MarketData) []string {
	var flags []string

	if utils.Abs(data.PriceChangePct) > anomalyPriceChange {
		flags = append(flags, fmt.Sprintf("significant price move %.1f%%", data.PriceChangePct*100))
	}

	if data.Volatility > anomalyHighVol {
		flags = append(flags, "high volatility")
	} else if data.Volatility > 0 && data.Volatility < anomalyLowVol {
		flags = append(flags, "abnormally low volatility")
	}

	if data.VolumeRatio > anomalyVolumeSpike {
		flags = append(flags, "volume spike")
	} else if data.VolumeRatio > 0 && data.VolumeRatio < anomalyVolumeDrought {
		flags = append(flags, "volume drought")
	}

	if data.RSI > anomalyOverboughtRSI {
		flags = append(flags, "overbought")
	} else if data.RSI > 0 && data.RSI < anomalyOversoldRSI {
		flags = append(flags, "oversold")
	}

	// Заметное движение цены на тонком объёме: рынок может не принять размер
	if utils.Abs(data.PriceChangePct) > 0.02 && volumeProfile(data.VolumeRatio) == models.VolumeLow {
		flags = append(flags, "liquidity drain")
	}

	return flags
}

func volumeProfile(ratio float64) string {
	switch {
	case ratio > 0 && ratio < 0.5:
		return models.VolumeLow
	case ratio > 2:
		return models.VolumeHigh
	default:
		return models.VolumeNormal
	}
}

// confidence оценивает достоверность анализа: аномалии снижают,
// выраженный тренд и сентимент повышают
func (a *MarketAnalyst) confidence(result models.MarketAnalysis) float64 {
	confidence := 0.7

	confidence -= 0.1 * float64(len(result.AnomalyFlags))

	switch {
	case result.TrendStrength > 7:
		confidence += 0.15
	case result.TrendStrength > 5:
		confidence += 0.1
	}

	if utils.Abs(result.SentimentScore) > 0.1 {
		confidence += 0.05
	}

	return utils.Clamp(confidence, 0, 1)
}
