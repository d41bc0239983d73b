package store

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"tradeagent/internal/models"
)

// ============================================================
// Контекст-хранилище: версионируемое общее состояние пайплайна
// ============================================================
//
// Один экземпляр на процесс. Каждый этап получает глубокий снимок
// через Get и меняет состояние только через мутаторы. Каждый мутатор
// ставит отметку времени, увеличивает версию и синхронно сохраняет
// документ через Persister, не отпуская блокировку. Медленная запись
// задерживает все операции с контекстом - это осознанная цена
// консистентности документа на диске/в БД.

// Лимит истории стратегических сигналов: старейшие вытесняются первыми
const maxStrategySignals = 100

// Context - общее состояние, разделяемое всеми этапами пайплайна
type Context struct {
	MarketState        models.MarketAnalysis     `json:"market_state"`
	StrategySignals    []models.StrategySignal   `json:"strategy_signals"`
	RiskParameters     map[string]float64        `json:"risk_parameters"`
	PositionInfo       *models.PositionInfo      `json:"position_info,omitempty"`
	PerformanceMetrics models.PerformanceMetrics `json:"performance_metrics"`
	LastUpdate         time.Time                 `json:"last_update"`
	Version            int64                     `json:"version"`
}

// Persister - контракт долговременного хранения документа контекста.
// Save вызывается под блокировкой хранилища и обязан отработать
// синхронно, не удерживая ссылку на документ после возврата.
// Load возвращает (nil, nil), если сохранённого документа ещё нет.
type Persister interface {
	Save(ctx *Context) error
	Load() (*Context, error)
}

// Store - потокобезопасное хранилище контекста
type Store struct {
	mu        sync.Mutex
	context   Context
	persister Persister
	log       *zap.Logger
}

// New создаёт хранилище, загружая сохранённый документ поверх
// значений по умолчанию. Ошибки загрузки логируются и не фатальны.
func New(persister Persister, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		context:   defaultContext(),
		persister: persister,
		log:       log,
	}
	s.load()
	return s
}

func defaultContext() Context {
	return Context{
		StrategySignals: []models.StrategySignal{},
		RiskParameters:  map[string]float64{},
		Version:         1,
	}
}

// load подмешивает сохранённый документ к значениям по умолчанию
func (s *Store) load() {
	if s.persister == nil {
		return
	}

	loaded, err := s.persister.Load()
	if err != nil {
		s.log.Warn("Failed to load persisted context, starting from defaults",
			zap.Error(err))
		return
	}
	if loaded == nil {
		return
	}

	merged := *loaded
	if merged.StrategySignals == nil {
		merged.StrategySignals = []models.StrategySignal{}
	}
	if merged.RiskParameters == nil {
		merged.RiskParameters = map[string]float64{}
	}
	if merged.Version == 0 {
		merged.Version = 1
	}

	s.context = merged
	s.log.Info("Context loaded",
		zap.Int64("version", merged.Version),
		zap.Int("signals", len(merged.StrategySignals)))
}

// Get возвращает глубокий снимок контекста. Изменения снимка
// не затрагивают хранилище.
func (s *Store) Get() Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Context {
	cp := s.context

	cp.StrategySignals = append([]models.StrategySignal(nil), s.context.StrategySignals...)

	cp.RiskParameters = make(map[string]float64, len(s.context.RiskParameters))
	for k, v := range s.context.RiskParameters {
		cp.RiskParameters[k] = v
	}

	cp.MarketState.AnomalyFlags = append([]string(nil), s.context.MarketState.AnomalyFlags...)

	if s.context.PositionInfo != nil {
		pos := *s.context.PositionInfo
		cp.PositionInfo = &pos
	}

	if s.context.PerformanceMetrics.LastExecution != nil {
		exec := *s.context.PerformanceMetrics.LastExecution
		exec.OrderIDs = append([]string(nil), exec.OrderIDs...)
		cp.PerformanceMetrics.LastExecution = &exec
	}

	return cp
}

// commitLocked ставит отметку времени, увеличивает версию
// и синхронно сохраняет документ. Вызывается под блокировкой.
// Ошибка сохранения логируется и проглатывается: мутация в памяти
// уже применена и остаётся в силе.
func (s *Store) commitLocked() {
	s.context.LastUpdate = time.Now()
	s.context.Version++

	if s.persister == nil {
		return
	}
	if err := s.persister.Save(&s.context); err != nil {
		s.log.Error("Failed to persist context",
			zap.Int64("version", s.context.Version),
			zap.Error(err))
	}
}

// Update применяет произвольную мутацию под блокировкой
func (s *Store) Update(fn func(*Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.context)
	s.commitLocked()
}

// SetMarketState заменяет состояние рынка результатом анализа
func (s *Store) SetMarketState(analysis models.MarketAnalysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context.MarketState = analysis
	s.commitLocked()
}

// AppendStrategySignal добавляет сигнал в историю.
// История ограничена maxStrategySignals, старейшие вытесняются.
func (s *Store) AppendStrategySignal(signal models.StrategySignal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.context.StrategySignals = append(s.context.StrategySignals, signal)
	if len(s.context.StrategySignals) > maxStrategySignals {
		overflow := len(s.context.StrategySignals) - maxStrategySignals
		s.context.StrategySignals = append(
			[]models.StrategySignal(nil),
			s.context.StrategySignals[overflow:]...,
		)
	}

	s.commitLocked()
}

// UpdateRiskParameters подмешивает переданные параметры к текущим
func (s *Store) UpdateRiskParameters(params map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range params {
		s.context.RiskParameters[k] = v
	}
	s.commitLocked()
}

// SetPositionInfo заменяет информацию о позиции (nil = flat)
func (s *Store) SetPositionInfo(position *models.PositionInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context.PositionInfo = position
	s.commitLocked()
}

// UpdatePerformanceMetrics применяет мутацию к показателям торговли
func (s *Store) UpdatePerformanceMetrics(fn func(*models.PerformanceMetrics)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.context.PerformanceMetrics)
	s.commitLocked()
}

// Reset возвращает контекст к значениям по умолчанию
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = defaultContext()
	s.commitLocked()
}

// RecentSignals возвращает count последних сигналов (новейшие в конце)
func (s *Store) RecentSignals(count int) []models.StrategySignal {
	s.mu.Lock()
	defer s.mu.Unlock()

	signals := s.context.StrategySignals
	if count <= 0 || count > len(signals) {
		count = len(signals)
	}
	return append([]models.StrategySignal(nil), signals[len(signals)-count:]...)
}

// Version возвращает текущую версию контекста
func (s *Store) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context.Version
}
