package models

import "time"

// ============================================================
// Рыночные данные и результат анализа рынка
// ============================================================

// Режимы рынка, которые определяет этап анализа
const (
	RegimeTrending = "trending"
	RegimeRanging  = "ranging"
	RegimeVolatile = "volatile"
)

// Направления тренда
const (
	TrendUp       = "up"
	TrendDown     = "down"
	TrendSideways = "sideways"
)

// Профили объёма торгов
const (
	VolumeLow    = "low"
	VolumeNormal = "normal"
	VolumeHigh   = "high"
)

// MarketData - сырые рыночные данные, вход одного торгового цикла.
// Источник (биржа, агрегатор) находится за пределами ядра: координатор
// получает готовую структуру от внешнего цикла планирования.
type MarketData struct {
	Symbol         string    `json:"symbol"`
	LastPrice      float64   `json:"last_price"`
	PriceChangePct float64   `json:"price_change_pct"` // изменение цены в процентах за период
	Volume         float64   `json:"volume"`
	VolumeRatio    float64   `json:"volume_ratio"` // отношение к среднему объёму
	Volatility     float64   `json:"volatility"`   // ATR в долях от цены
	ATR            float64   `json:"atr"`
	RSI            float64   `json:"rsi"`
	Timestamp      time.Time `json:"timestamp"`
}

// MarketAnalysis - выход этапа анализа рынка, вход этапа стратегии
type MarketAnalysis struct {
	TrendStrength  float64   `json:"trend_strength"`  // 0-10
	TrendDirection string    `json:"trend_direction"` // up/down/sideways
	Volatility     float64   `json:"volatility"`
	SentimentScore float64   `json:"sentiment_score"` // -1..1
	AnomalyFlags   []string  `json:"anomaly_flags"`
	MarketRegime   string    `json:"market_regime"`
	VolumeProfile  string    `json:"volume_profile"`
	Confidence     float64   `json:"confidence"` // 0-1
	CurrentPrice   float64   `json:"current_price"`
	PriceChangePct float64   `json:"price_change_pct"`
	RSI            float64   `json:"rsi"`
	ATR            float64   `json:"atr"`
	Timestamp      time.Time `json:"timestamp"`
}
