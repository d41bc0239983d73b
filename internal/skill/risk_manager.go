package skill

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradeagent/internal/exchange"
	"tradeagent/internal/models"
	"tradeagent/internal/risk"
	"tradeagent/internal/store"
)

// ============================================================
// Этап 3: управление рисками
// ============================================================

// Имя навыка управления рисками
const RiskManagerName = "risk_manager"

// RiskManagerConfig - параметры навыка
type RiskManagerConfig struct {
	Symbol string
}

// RiskManager прогоняет сигнал стратегии через адаптивный риск-движок
// и ведёт защитную орбиту открытой позиции. Балансы, позиция и текущая
// цена берутся с биржи; оценка рынка приходит входом этапа, показатели
// торговли из снимка контекста.
type RiskManager struct {
	cfg      RiskManagerConfig
	engine   *risk.Engine
	exchange exchange.Exchange
	log      *zap.Logger

	mu            sync.Mutex
	orbit         *risk.Orbit
	orbitSide     string
	orbitEntry    float64
	onOrbitChange func(prev, next risk.OrbitState)
}

// NewRiskManager создаёт навык управления рисками
func NewRiskManager(cfg RiskManagerConfig, engine *risk.Engine, ex exchange.Exchange, log *zap.Logger) *RiskManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &RiskManager{cfg: cfg, engine: engine, exchange: ex, log: log}
}

// SetOrbitNotifier регистрирует обработчик перестроения защитной
// орбиты. Вызывается при смене уровня или заметном сдвиге границ.
func (r *RiskManager) SetOrbitNotifier(fn func(prev, next risk.OrbitState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onOrbitChange = fn
}

func (r *RiskManager) Name() string {
	return RiskManagerName
}

func (r *RiskManager) RequiredInputs() []string {
	return []string{"strategy_signal", "market_analysis"}
}

func (r *RiskManager) OutputSchema() map[string]string {
	return map[string]string{
		"action":     "string",
		"size":       "float",
		"risk_score": "float",
		"leverage":   "int",
	}
}

// Execute превращает сигнал стратегии в риск-скорректированное решение
func (r *RiskManager) Execute(snapshot store.Context, input Input) (*Result, error) {
	signal, err := strategySignalInput(input)
	if err != nil {
		return nil, err
	}
	analysis, err := marketAnalysisInput(input)
	if err != nil {
		return nil, err
	}

	free, total, err := r.exchange.FetchBalance()
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}

	position, err := r.exchange.FetchPosition(r.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch position: %w", err)
	}

	price := analysis.CurrentPrice
	if ticker, err := r.exchange.FetchTicker(r.cfg.Symbol); err == nil {
		price = ticker.LastPrice
	} else {
		r.log.Warn("Ticker unavailable, using analyzed price",
			zap.Float64("price", price), zap.Error(err))
	}
	if price <= 0 {
		return nil, fmt.Errorf("no usable price for %s", r.cfg.Symbol)
	}

	decision := r.engine.Assess(risk.Input{
		Signal:       signal,
		Analysis:     analysis,
		Position:     position,
		Performance:  snapshot.PerformanceMetrics,
		FreeBalance:  free,
		TotalBalance: total,
		CurrentPrice: price,
	})

	orbitState, dynamicTP, breach := r.updateOrbit(position, price, analysis)

	// Пробой орбиты закрывает позицию, если движок сам не потребовал
	// действия на бирже
	if breach != "" && decision.Action == models.ActionHold && position.IsOpen() {
		decision = &models.TradingDecision{
			Action:     models.ActionClose,
			Size:       position.Size,
			Leverage:   1,
			Confidence: 0.8,
			RiskScore:  decision.RiskScore,
			Reason:     fmt.Sprintf("protection orbit breached: %s", breach),
		}
	}

	r.log.Info("Risk assessment complete",
		zap.String("action", decision.Action),
		zap.Float64("size", decision.Size),
		zap.Float64("risk_score", decision.RiskScore),
		zap.Int("leverage", decision.Leverage))

	res := Succeed(RiskManagerName, decision, decision.Confidence)
	res.Metadata = map[string]interface{}{
		"risk_score":    decision.RiskScore,
		"position_size": decision.Size,
	}
	if orbitState != nil {
		res.Metadata["protection_orbit"] = *orbitState
		res.Metadata["dynamic_take_profit"] = dynamicTP
	}
	return res, nil
}

// updateOrbit ведёт защитную орбиту открытой позиции. Возвращает
// положение орбиты, динамический тейк-профит и вид пробоя (пустая
// строка = цена внутри орбиты). Без позиции орбита сбрасывается.
func (r *RiskManager) updateOrbit(position *models.PositionInfo, price float64, analysis models.MarketAnalysis) (*risk.OrbitState, float64, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !position.IsOpen() {
		r.orbit = nil
		return nil, 0, ""
	}

	atr := analysis.ATR
	if atr <= 0 {
		atr = position.EntryPrice * 0.01
	}

	if r.orbit == nil || r.orbitSide != position.Side || r.orbitEntry != position.EntryPrice {
		r.orbit = risk.NewOrbit(position.Side, position.EntryPrice, atr, r.log)
		r.orbitSide = position.Side
		r.orbitEntry = position.EntryPrice
	}
	r.orbit.OnChange(r.onOrbitChange)

	var elapsed time.Duration
	if !position.OpenedAt.IsZero() {
		elapsed = time.Since(position.OpenedAt)
	}

	profitPct := (price - position.EntryPrice) / position.EntryPrice
	if position.Side == models.SideShort {
		profitPct = -profitPct
	}

	state := r.orbit.Update(elapsed, profitPct)
	breach := r.orbit.Breach(price)
	dynamicTP := risk.DynamicTakeProfit(position.Side, position.EntryPrice, price, atr, profitPct, analysis.MarketRegime)

	return &state, dynamicTP, breach
}

func strategySignalInput(input Input) (models.StrategySignal, error) {
	switch v := input["strategy_signal"].(type) {
	case models.StrategySignal:
		return v, nil
	case *models.StrategySignal:
		if v == nil {
			return models.StrategySignal{}, fmt.Errorf("strategy_signal is nil")
		}
		return *v, nil
	default:
		return models.StrategySignal{}, fmt.Errorf("strategy_signal has unexpected type %T", input["strategy_signal"])
	}
}
