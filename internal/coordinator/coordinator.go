package coordinator

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradeagent/internal/bus"
	"tradeagent/internal/exchange"
	"tradeagent/internal/models"
	"tradeagent/internal/skill"
	"tradeagent/internal/store"
)

// ============================================================
// Координатор торгового пайплайна
// ============================================================
//
// Один торговый цикл - строго последовательная цепочка этапов:
// анализ рынка -> генерация стратегии -> оценка риска -> исполнение.
// Каждый этап проходит через circuit breaker и исполняется на
// глубоком снимке контекста. Отказ раннего этапа деградирует цикл
// до HOLD, паника любого этапа роняет только цикл, не процесс.

// Config - параметры координатора
type Config struct {
	Symbol           string
	CycleInterval    time.Duration
	FallbackToLegacy bool // при отказе анализа вернуть HOLD резервной стратегии
	BreakerEnabled   bool
}

// DataSource - источник сырых рыночных данных для цикла
type DataSource interface {
	Fetch(symbol string) (models.MarketData, error)
}

// DecisionJournal - постоянный журнал итоговых решений цикла
type DecisionJournal interface {
	Insert(symbol string, decision *models.TradingDecision, execution *models.ExecutionReport) (int64, error)
}

// MetricsSink - приёмник снимка показателей навыков и координатора,
// перезаписываемого после каждого цикла
type MetricsSink interface {
	SaveMetrics(document interface{}) error
}

// PerformanceReport - снимок показателей для MetricsSink
type PerformanceReport struct {
	Skills      map[string]skill.Statistics `json:"skills"`
	Coordinator CoordinatorMetrics          `json:"coordinator"`
	LastUpdate  time.Time                   `json:"last_update"`
}

// CoordinatorMetrics - агрегаты координатора в снимке показателей
type CoordinatorMetrics struct {
	CycleCount    int64     `json:"cycle_count"`
	LastCycleTime time.Time `json:"last_cycle_time"`
	LastAction    string    `json:"last_action"`
	LastRiskScore float64   `json:"last_risk_score"`
	CycleSeconds  float64   `json:"cycle_seconds"`
}

// Status - наблюдаемое состояние координатора
type Status struct {
	Running        bool                         `json:"running"`
	Symbol         string                       `json:"symbol"`
	CycleCount     int64                        `json:"cycle_count"`
	LastCycleTime  time.Time                    `json:"last_cycle_time"`
	ContextVersion int64                        `json:"context_version"`
	Skills         map[string]skill.Statistics  `json:"skills"`
	Breaker        map[string]skill.BreakerInfo `json:"breaker,omitempty"`
}

// Coordinator управляет последовательным исполнением этапов пайплайна
type Coordinator struct {
	cfg     Config
	store   *store.Store
	bus     *bus.Bus
	breaker *skill.Breaker
	source  DataSource
	journal DecisionJournal
	metrics MetricsSink
	log     *zap.Logger

	mu            sync.Mutex
	runners       map[string]*skill.Runner
	order         []string
	running       bool
	cycleCount    int64
	lastCycleTime time.Time
}

// New создаёт координатор. breaker может быть nil, тогда этапы
// исполняются без защиты.
func New(cfg Config, st *store.Store, eventBus *bus.Bus, breaker *skill.Breaker, source DataSource, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		cfg:     cfg,
		store:   st,
		bus:     eventBus,
		breaker: breaker,
		source:  source,
		log:     log,
		runners: make(map[string]*skill.Runner),
	}
}

// SetJournal подключает постоянный журнал решений. nil отключает
// журналирование.
func (c *Coordinator) SetJournal(j DecisionJournal) {
	c.journal = j
}

// SetMetricsSink подключает приёмник снимков показателей
func (c *Coordinator) SetMetricsSink(s MetricsSink) {
	c.metrics = s
}

// Register добавляет навык в пайплайн. Порядок регистрации
// фиксирует порядок отчётности, порядок исполнения задан циклом.
func (c *Coordinator) Register(r *skill.Runner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runners[r.Name()] = r
	c.order = append(c.order, r.Name())
}

// Runner возвращает зарегистрированный навык по имени
func (c *Coordinator) Runner(name string) (*skill.Runner, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.runners[name]
	return r, ok
}

// RunCycle исполняет один торговый цикл. Возвращает итоговое
// решение или nil, если цикл прерван до его выработки.
func (c *Coordinator) RunCycle(data models.MarketData) (decision *models.TradingDecision) {
	start := time.Now()

	// Цикл засчитывается при входе: прерванные и упавшие тоже
	c.mu.Lock()
	c.cycleCount++
	c.lastCycleTime = start
	c.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("Trading cycle panicked", zap.Any("panic", rec))
			CyclesTotal.WithLabelValues("panic").Inc()
			decision = nil
		}
	}()

	// Этап 1: анализ рынка
	analysis, ok := c.runAnalysis(data)
	if !ok {
		if c.cfg.FallbackToLegacy {
			// Резервная стратегия: HOLD, поздние этапы не исполняются
			decision = c.fallbackToLegacy()
			c.finishCycle(decision, nil, start)
			return decision
		}
		CyclesTotal.WithLabelValues("aborted").Inc()
		return nil
	}
	c.store.SetMarketState(analysis)

	// Этап 2: генерация стратегии
	signal, ok := c.runStrategy(analysis)
	if !ok {
		decision = models.HoldDecision("strategy generation failed")
		c.finishCycle(decision, nil, start)
		return decision
	}
	c.store.AppendStrategySignal(signal)

	// Этап 3: оценка риска
	decision, ok = c.runRisk(signal, analysis)
	if !ok {
		decision = models.HoldDecision("risk management failed")
		c.finishCycle(decision, nil, start)
		return decision
	}
	c.store.UpdateRiskParameters(map[string]float64{
		"risk_score":    decision.RiskScore,
		"position_size": decision.Size,
	})

	// Этап 4: исполнение, только для действий требующих биржи
	var report *models.ExecutionReport
	if decision.RequiresExecution() {
		report = c.runExecution(decision, start)
	}

	c.finishCycle(decision, report, start)
	return decision
}

func (c *Coordinator) runAnalysis(data models.MarketData) (models.MarketAnalysis, bool) {
	res := c.executeStage(skill.MarketAnalystName, skill.Input{"market_data": data})
	if res.IsSuccess() {
		if analysis, ok := res.Output.(models.MarketAnalysis); ok {
			return analysis, true
		}
		c.log.Error("Market analysis produced unexpected output type")
	}
	return models.MarketAnalysis{}, false
}

// fallbackToLegacy возвращает решение резервной стратегии вместо
// всего пайплайна. Резервная логика упрощена до безопасного HOLD.
func (c *Coordinator) fallbackToLegacy() *models.TradingDecision {
	c.log.Warn("Market analysis failed, falling back to legacy strategy")
	return models.HoldDecision("market analysis failed, legacy fallback engaged")
}

func (c *Coordinator) runStrategy(analysis models.MarketAnalysis) (models.StrategySignal, bool) {
	res := c.executeStage(skill.QuantStrategistName, skill.Input{"market_analysis": analysis})
	if !res.IsSuccess() {
		return models.StrategySignal{}, false
	}
	signal, ok := res.Output.(models.StrategySignal)
	if !ok {
		c.log.Error("Strategy stage produced unexpected output type")
		return models.StrategySignal{}, false
	}
	return signal, true
}

func (c *Coordinator) runRisk(signal models.StrategySignal, analysis models.MarketAnalysis) (*models.TradingDecision, bool) {
	res := c.executeStage(skill.RiskManagerName, skill.Input{
		"strategy_signal": signal,
		"market_analysis": analysis,
	})
	if !res.IsSuccess() {
		return nil, false
	}
	decision, ok := res.Output.(*models.TradingDecision)
	if !ok || decision == nil {
		c.log.Error("Risk stage produced unexpected output type")
		return nil, false
	}
	return decision, true
}

func (c *Coordinator) runExecution(decision *models.TradingDecision, cycleStart time.Time) *models.ExecutionReport {
	res := c.executeStage(skill.TradeExecutorName, skill.Input{"trading_decision": *decision})
	if !res.IsSuccess() {
		c.log.Warn("Execution stage did not succeed",
			zap.String("status", string(res.Status)),
			zap.String("error", res.Error))
		return nil
	}

	report, ok := res.Output.(models.ExecutionReport)
	if !ok {
		c.log.Error("Execution stage produced unexpected output type")
		return nil
	}

	ExecutionSlippage.Observe(report.Slippage)
	c.store.UpdatePerformanceMetrics(func(m *models.PerformanceMetrics) {
		m.LastExecution = &report
		m.LastCycleSeconds = time.Since(cycleStart).Seconds()
	})

	c.bus.Publish(bus.NewMessage(bus.TypeExecutionResult, skill.TradeExecutorName, map[string]interface{}{
		"status":      string(report.Status),
		"filled_size": report.FilledSize,
		"avg_price":   report.AvgPrice,
		"slippage":    report.Slippage,
	}))
	return &report
}

// executeStage исполняет один этап через circuit breaker.
// Незарегистрированный или заблокированный навык возвращает
// непустой результат со статусом failed, не трогая счётчики навыка.
func (c *Coordinator) executeStage(name string, input skill.Input) *skill.Result {
	c.mu.Lock()
	runner, ok := c.runners[name]
	c.mu.Unlock()
	if !ok {
		c.log.Warn("Skill not registered", zap.String("skill", name))
		return skill.Fail(name, "skill not registered")
	}

	if c.breaker != nil && !c.breaker.Check(name) {
		c.log.Warn("Skill blocked by circuit breaker", zap.String("skill", name))
		BreakerBlocked.WithLabelValues(name).Inc()
		recordBreakerState(name, string(c.breaker.State(name)))
		return skill.Fail(name, "blocked by circuit breaker")
	}

	snapshot := c.store.Get()
	res := runner.RunWithTimeout(snapshot, input)
	recordSkillResult(name, string(res.Status), res.ExecutionTime.Seconds())

	switch res.Status {
	case skill.StatusSuccess:
		if c.breaker != nil {
			c.breaker.RecordSuccess(name)
		}
		c.bus.Publish(bus.NewMessage(stageEventType(name), name, map[string]interface{}{
			"result":     res.Output,
			"confidence": res.Confidence,
		}))

	case skill.StatusFailed, skill.StatusTimeout:
		if c.breaker != nil {
			c.breaker.RecordFailure(name)
		}
		c.bus.Publish(bus.NewMessage(bus.TypeError, name, map[string]interface{}{
			"error":  res.Error,
			"status": string(res.Status),
		}))

	case skill.StatusDisabled:
		// Выключенный навык не считается неисправным
		c.log.Debug("Skill disabled, stage skipped", zap.String("skill", name))
	}

	if c.breaker != nil {
		recordBreakerState(name, string(c.breaker.State(name)))
	}
	return res
}

// stageEventType сопоставляет навыку тип его успешного события
func stageEventType(name string) bus.MessageType {
	switch name {
	case skill.MarketAnalystName:
		return bus.TypeMarketAnalysis
	case skill.QuantStrategistName:
		return bus.TypeStrategySignal
	case skill.RiskManagerName:
		return bus.TypeRiskAssessment
	case skill.TradeExecutorName:
		return bus.TypeTradeExecution
	default:
		return bus.TypeEvent
	}
}

func (c *Coordinator) finishCycle(decision *models.TradingDecision, report *models.ExecutionReport, start time.Time) {
	elapsed := time.Since(start)

	CyclesTotal.WithLabelValues("completed").Inc()
	CycleDuration.Observe(elapsed.Seconds())
	recordDecision(decision.Action, decision.RiskScore)

	if c.journal != nil {
		if _, err := c.journal.Insert(c.cfg.Symbol, decision, report); err != nil {
			c.log.Error("Failed to journal decision", zap.Error(err))
		}
	}
	c.saveMetrics(decision, elapsed)

	c.log.Info("Trading cycle complete",
		zap.String("action", decision.Action),
		zap.Float64("size", decision.Size),
		zap.Float64("risk_score", decision.RiskScore),
		zap.Duration("elapsed", elapsed))
}

// saveMetrics перезаписывает снимок показателей навыков и координатора
func (c *Coordinator) saveMetrics(decision *models.TradingDecision, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}

	c.mu.Lock()
	report := PerformanceReport{
		Skills: make(map[string]skill.Statistics, len(c.runners)),
		Coordinator: CoordinatorMetrics{
			CycleCount:    c.cycleCount,
			LastCycleTime: c.lastCycleTime,
			LastAction:    decision.Action,
			LastRiskScore: decision.RiskScore,
			CycleSeconds:  elapsed.Seconds(),
		},
		LastUpdate: time.Now(),
	}
	runners := make([]*skill.Runner, 0, len(c.runners))
	for _, name := range c.order {
		runners = append(runners, c.runners[name])
	}
	c.mu.Unlock()

	for _, r := range runners {
		report.Skills[r.Name()] = r.Statistics()
	}

	if err := c.metrics.SaveMetrics(report); err != nil {
		c.log.Error("Failed to save performance metrics", zap.Error(err))
	}
}

// Run крутит торговые циклы до отмены контекста. Первый цикл
// запускается сразу, далее по интервалу.
func (c *Coordinator) Run(ctx context.Context) {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	ticker := time.NewTicker(c.cfg.CycleInterval)
	defer ticker.Stop()

	c.cycle()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("Coordinator stopped")
			return
		case <-ticker.C:
			c.cycle()
		}
	}
}

func (c *Coordinator) cycle() {
	data, err := c.source.Fetch(c.cfg.Symbol)
	if err != nil {
		c.log.Error("Failed to fetch market data", zap.Error(err))
		CyclesTotal.WithLabelValues("aborted").Inc()
		return
	}
	c.RunCycle(data)
}

// Status возвращает снимок состояния координатора и навыков
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	status := Status{
		Running:       c.running,
		Symbol:        c.cfg.Symbol,
		CycleCount:    c.cycleCount,
		LastCycleTime: c.lastCycleTime,
		Skills:        make(map[string]skill.Statistics, len(c.runners)),
	}
	runners := make([]*skill.Runner, 0, len(c.runners))
	for _, name := range c.order {
		runners = append(runners, c.runners[name])
	}
	c.mu.Unlock()

	for _, r := range runners {
		status.Skills[r.Name()] = r.Statistics()
	}
	status.ContextVersion = c.store.Version()
	if c.breaker != nil {
		status.Breaker = c.breaker.States()
	}
	return status
}

// SkillStatistics возвращает счётчики всех навыков
func (c *Coordinator) SkillStatistics() map[string]skill.Statistics {
	return c.Status().Skills
}

// ============================================================
// Источник данных поверх биржевого адаптера
// ============================================================

// ExchangeDataSource строит рыночные данные из тикера биржи.
// История цен ведётся внутри для оценки изменения и волатильности.
type ExchangeDataSource struct {
	exchange exchange.Exchange

	mu     sync.Mutex
	prices []float64
}

// Глубина ценовой истории источника
const dataSourceWindow = 48

// NewExchangeDataSource создаёт источник поверх адаптера
func NewExchangeDataSource(ex exchange.Exchange) *ExchangeDataSource {
	return &ExchangeDataSource{exchange: ex}
}

// Fetch возвращает рыночные данные по последнему тикеру
func (s *ExchangeDataSource) Fetch(symbol string) (models.MarketData, error) {
	ticker, err := s.exchange.FetchTicker(symbol)
	if err != nil {
		return models.MarketData{}, err
	}

	s.mu.Lock()
	s.prices = append(s.prices, ticker.LastPrice)
	if len(s.prices) > dataSourceWindow {
		s.prices = append([]float64(nil), s.prices[len(s.prices)-dataSourceWindow:]...)
	}
	history := append([]float64(nil), s.prices...)
	s.mu.Unlock()

	data := models.MarketData{
		Symbol:    symbol,
		LastPrice: ticker.LastPrice,
		Timestamp: ticker.Timestamp,
	}

	if len(history) > 1 {
		first := history[0]
		if first > 0 {
			data.PriceChangePct = (ticker.LastPrice - first) / first
		}
		data.Volatility = relativeStdDev(history)
		data.ATR = averageAbsMove(history)
	}
	return data, nil
}

// relativeStdDev - стандартное отклонение доходностей между точками
func relativeStdDev(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] > 0 {
			returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
		}
	}
	if len(returns) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance)
}

func averageAbsMove(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(len(prices)-1)
}
