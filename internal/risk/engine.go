package risk

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tradeagent/internal/models"
	"tradeagent/pkg/utils"
)

// ============================================================
// Адаптивный риск-движок
// ============================================================
//
// Чистая оценка: входной сигнал стратегии превращается в
// риск-скорректированное торговое решение. Порядок проверок
// фиксирован: чёрный лебедь -> просадка -> размер/плечо -> итоговый
// риск-скор. Движок не обращается к бирже и не меняет контекст.

// Пороги оценки рынка и сайзинга
const (
	blackSwanPriceChange = 0.10
	blackSwanAnomalies   = 3
	blackSwanVolatility  = 0.05

	maxDrawdownLimit = 0.03
	dailyLossLimit   = -0.05

	defaultStopLossPct   = 0.02
	defaultTakeProfitPct = 0.04

	baseLeverage = 6
	minLeverage  = 1
	maxLeverage  = 10

	riskScoreHoldThreshold = 0.8
)

// Config - параметры риск-движка
type Config struct {
	MinPositionSize     float64 // нижняя граница размера позиции
	MaxPositionFraction float64 // доля баланса на позицию по цене
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		MinPositionSize:     0.001,
		MaxPositionFraction: 0.1,
	}
}

// Input - всё, что нужно движку для оценки одного сигнала
type Input struct {
	Signal       models.StrategySignal
	Analysis     models.MarketAnalysis
	Position     *models.PositionInfo
	Performance  models.PerformanceMetrics
	FreeBalance  float64
	TotalBalance float64
	CurrentPrice float64
}

// Engine - адаптивный риск-движок
type Engine struct {
	cfg Config
	log *zap.Logger
}

// NewEngine создаёт движок с заданной конфигурацией
func NewEngine(cfg Config, log *zap.Logger) *Engine {
	if cfg.MinPositionSize <= 0 {
		cfg.MinPositionSize = DefaultConfig().MinPositionSize
	}
	if cfg.MaxPositionFraction <= 0 {
		cfg.MaxPositionFraction = DefaultConfig().MaxPositionFraction
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cfg: cfg, log: log}
}

// Assess превращает сигнал стратегии в риск-скорректированное решение
func (e *Engine) Assess(in Input) *models.TradingDecision {
	// 1. Чёрный лебедь перекрывает любой сигнал
	if reason, hit := e.detectBlackSwan(in.Analysis); hit {
		if in.Position.IsOpen() {
			return &models.TradingDecision{
				Action:     models.ActionClose,
				Size:       in.Position.Size,
				Leverage:   minLeverage,
				Confidence: 0.9,
				RiskScore:  1.0,
				Reason:     fmt.Sprintf("black swan protection: %s", reason),
			}
		}
		d := models.HoldDecision(fmt.Sprintf("black swan protection: %s", reason))
		d.RiskScore = 1.0
		d.Confidence = 0.9
		return d
	}

	switch in.Signal.Action {
	case models.ActionHold:
		return models.HoldDecision(in.Signal.Reasoning)
	case models.ActionClose:
		return e.assessClose(in)
	}

	// 2. Лимиты просадки блокируют только открытие новых позиций
	if in.Performance.MaxDrawdown > maxDrawdownLimit || in.Performance.DailyPnl < dailyLossLimit {
		d := models.HoldDecision(fmt.Sprintf(
			"drawdown limits reached: max_drawdown=%.4f, daily_pnl=%.4f",
			in.Performance.MaxDrawdown, in.Performance.DailyPnl))
		d.RiskScore = 0.8
		d.Confidence = 0.8
		return d
	}

	liquidityRisk := e.liquidityRisk(in.Analysis)
	adjustments := map[string]interface{}{}

	size := e.positionSize(in, liquidityRisk, adjustments)
	leverage := e.leverage(in.Analysis, liquidityRisk)

	stopLossPct := in.Signal.ExitConditions.StopLossPct
	if stopLossPct <= 0 {
		stopLossPct = defaultStopLossPct
	}
	takeProfitPct := in.Signal.ExitConditions.TakeProfitPct
	if takeProfitPct <= 0 {
		takeProfitPct = defaultTakeProfitPct
	}

	score := e.riskScore(in, liquidityRisk, size, stopLossPct)

	// 3. Непомерный совокупный риск превращает сигнал в HOLD
	if score > riskScoreHoldThreshold {
		d := models.HoldDecision(fmt.Sprintf("aggregate risk score %.2f exceeds limit", score))
		d.RiskScore = score
		d.Confidence = 0.8
		return d
	}

	entry := in.CurrentPrice
	var stopLoss, takeProfit float64
	if in.Signal.Action == models.ActionBuy {
		stopLoss = entry * (1 - stopLossPct)
		takeProfit = entry * (1 + takeProfitPct)
	} else {
		stopLoss = entry * (1 + stopLossPct)
		takeProfit = entry * (1 - takeProfitPct)
	}

	return &models.TradingDecision{
		Action:      in.Signal.Action,
		Size:        size,
		StopLoss:    utils.RoundSize(stopLoss, 4),
		TakeProfit:  utils.RoundSize(takeProfit, 4),
		Leverage:    leverage,
		Confidence:  1 - score,
		RiskScore:   score,
		Reason:      in.Signal.Reasoning,
		Adjustments: adjustments,
	}
}

func (e *Engine) assessClose(in Input) *models.TradingDecision {
	if !in.Position.IsOpen() {
		return models.HoldDecision("close requested with no open position")
	}
	return &models.TradingDecision{
		Action:     models.ActionClose,
		Size:       in.Position.Size,
		Leverage:   minLeverage,
		Confidence: in.Signal.Confidence,
		RiskScore:  e.liquidityRisk(in.Analysis),
		Reason:     in.Signal.Reasoning,
	}
}

// detectBlackSwan проверяет экстремальные рыночные условия
func (e *Engine) detectBlackSwan(a models.MarketAnalysis) (string, bool) {
	if utils.Abs(a.PriceChangePct) > blackSwanPriceChange {
		return fmt.Sprintf("extreme price move %.1f%%", a.PriceChangePct*100), true
	}
	if len(a.AnomalyFlags) >= blackSwanAnomalies {
		return fmt.Sprintf("multiple anomalies: %s", strings.Join(a.AnomalyFlags, "; ")), true
	}
	if a.Volatility > blackSwanVolatility {
		return fmt.Sprintf("extreme volatility %.4f", a.Volatility), true
	}
	if a.VolumeProfile == models.VolumeLow && a.Volatility > 0.03 {
		return "volatility spike on thin volume", true
	}
	return "", false
}

// liquidityRisk оценивает риск ликвидности в диапазоне 0.2-0.9
func (e *Engine) liquidityRisk(a models.MarketAnalysis) float64 {
	for _, flag := range a.AnomalyFlags {
		if strings.Contains(flag, "liquidity") {
			return 0.9
		}
	}

	lowVolume := a.VolumeProfile == models.VolumeLow
	switch {
	case lowVolume && a.Volatility > 0.02:
		return 0.8
	case lowVolume || a.Volatility > 0.03:
		return 0.5
	default:
		return 0.2
	}
}

// positionSize вычисляет размер позиции от риска на сделку,
// урезая его множителями ликвидности и волатильности
func (e *Engine) positionSize(in Input, liquidityRisk float64, adjustments map[string]interface{}) float64 {
	// Адаптивный риск на сделку по доле выигрышей
	adaptiveRisk := 0.01
	switch {
	case in.Performance.WinRate >= 0.6:
		adaptiveRisk = 0.05
	case in.Performance.WinRate >= 0.4:
		adaptiveRisk = 0.03
	}
	adjustments["adaptive_risk"] = adaptiveRisk

	stopLossPct := in.Signal.ExitConditions.StopLossPct
	if stopLossPct <= 0 {
		stopLossPct = defaultStopLossPct
	}

	entry := in.CurrentPrice
	stopDistance := entry * stopLossPct
	riskBased := in.TotalBalance * adaptiveRisk / stopDistance

	switch {
	case liquidityRisk > 0.7:
		riskBased *= 0.5
		adjustments["liquidity_multiplier"] = 0.5
	case liquidityRisk > 0.5:
		riskBased *= 0.7
		adjustments["liquidity_multiplier"] = 0.7
	}

	switch {
	case in.Analysis.Volatility > 0.03:
		riskBased *= 0.7
		adjustments["volatility_multiplier"] = 0.7
	case in.Analysis.Volatility > 0.02:
		riskBased *= 0.85
		adjustments["volatility_multiplier"] = 0.85
	}

	size := utils.Min(in.Signal.Size, riskBased)
	maxSize := in.TotalBalance / entry * e.cfg.MaxPositionFraction
	size = utils.Clamp(size, e.cfg.MinPositionSize, maxSize)

	return utils.RoundSize(size, 4)
}

// leverage понижает базовое плечо по волатильности и ликвидности
func (e *Engine) leverage(a models.MarketAnalysis, liquidityRisk float64) int {
	lev := baseLeverage

	switch {
	case a.Volatility > 0.03:
		lev -= 2
	case a.Volatility > 0.02:
		lev -= 1
	}

	switch {
	case liquidityRisk > 0.7:
		lev -= 2
	case liquidityRisk > 0.5:
		lev -= 1
	}

	if lev < minLeverage {
		lev = minLeverage
	}
	if lev > maxLeverage {
		lev = maxLeverage
	}
	return lev
}

// riskScore агрегирует факторы риска в оценку 0-1
func (e *Engine) riskScore(in Input, liquidityRisk, size, stopLossPct float64) float64 {
	score := 0.0

	// Волатильность даёт минимум 0.1 даже на спокойном рынке
	switch {
	case in.Analysis.Volatility > 0.03:
		score += 0.3
	case in.Analysis.Volatility > 0.02:
		score += 0.2
	default:
		score += 0.1
	}

	score += liquidityRisk * 0.3

	anomalyPenalty := float64(len(in.Analysis.AnomalyFlags)) * 0.05
	score += utils.Min(anomalyPenalty, 0.2)

	// Концентрация: доля баланса, занимаемая позицией по цене входа
	if in.TotalBalance > 0 && in.CurrentPrice > 0 {
		fraction := size * in.CurrentPrice / in.TotalBalance
		switch {
		case fraction > 0.1:
			score += 0.1
		case fraction > 0.05:
			score += 0.05
		}
	}

	switch {
	case stopLossPct < 0.01:
		score += 0.1
	case stopLossPct > 0.05:
		score += 0.05
	}

	return utils.Min(score, 1.0)
}
