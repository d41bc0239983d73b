package analysis

import (
	"tradeagent/internal/models"
)

// ============================================================
// Внешний поставщик рыночной аналитики
// ============================================================

// Report - оценка рынка от внешнего поставщика аналитики
type Report struct {
	TrendStrength  float64 `json:"trend_strength"` // 0-10
	TrendDirection string  `json:"trend_direction"`
	SentimentScore float64 `json:"sentiment_score"` // -1..1
	MarketRegime   string  `json:"market_regime"`
}

// Provider - контракт поставщика аналитики. Этап анализа рынка
// дополняет сырые рыночные данные отчётом поставщика.
type Provider interface {
	Analyze(data models.MarketData) (Report, error)
}

// HeuristicProvider - встроенный поставщик без внешних зависимостей.
// Оценивает тренд по изменению цены и RSI, режим по волатильности.
type HeuristicProvider struct{}

// NewHeuristicProvider создаёт встроенного поставщика
func NewHeuristicProvider() *HeuristicProvider {
	return &HeuristicProvider{}
}

// Analyze строит отчёт по сырым рыночным данным
func (p *HeuristicProvider) Analyze(data models.MarketData) (Report, error) {
	report := Report{
		TrendDirection: models.TrendSideways,
		MarketRegime:   models.RegimeRanging,
	}

	change := data.PriceChangePct
	absChange := change
	if absChange < 0 {
		absChange = -absChange
	}

	// Сила тренда: масштабируем дневное изменение цены в шкалу 0-10,
	// RSI у краёв диапазона усиливает оценку
	report.TrendStrength = absChange * 100
	if data.RSI > 70 || (data.RSI > 0 && data.RSI < 30) {
		report.TrendStrength += 2
	}
	if report.TrendStrength > 10 {
		report.TrendStrength = 10
	}

	switch {
	case change > 0.005:
		report.TrendDirection = models.TrendUp
	case change < -0.005:
		report.TrendDirection = models.TrendDown
	}

	switch {
	case data.Volatility > 0.03:
		report.MarketRegime = models.RegimeVolatile
	case report.TrendStrength > 6:
		report.MarketRegime = models.RegimeTrending
	}

	// Сентимент: нормализованное отклонение RSI от середины,
	// подкреплённое направлением изменения цены
	if data.RSI > 0 {
		report.SentimentScore = (data.RSI - 50) / 50
	}
	if change > 0.02 {
		report.SentimentScore += 0.1
	} else if change < -0.02 {
		report.SentimentScore -= 0.1
	}
	if report.SentimentScore > 1 {
		report.SentimentScore = 1
	}
	if report.SentimentScore < -1 {
		report.SentimentScore = -1
	}

	return report, nil
}
