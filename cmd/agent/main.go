package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tradeagent/internal/api"
	"tradeagent/internal/bus"
	"tradeagent/internal/config"
	"tradeagent/internal/coordinator"
	"tradeagent/internal/exchange"
	"tradeagent/internal/repository"
	"tradeagent/internal/risk"
	"tradeagent/internal/skill"
	"tradeagent/internal/store"
	"tradeagent/internal/websocket"
	"tradeagent/pkg/crypto"
	"tradeagent/pkg/utils"

	_ "github.com/lib/pq"
)

// Журнал решений чистится от записей старше этого срока
const decisionRetentionDays = 30

// Период обновления цены на бумажной бирже
const paperFeedInterval = 5 * time.Second

func main() {
	hashKey := flag.String("hash-key", "", "print bcrypt hash for an API key and exit")
	flag.Parse()

	// Утилита для операторов: сгенерировать API_KEY_HASH без агента
	if *hashKey != "" {
		hash, err := crypto.HashKey(*hashKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer logger.Sync()
	log := logger.Logger

	log.Info("Starting trade agent",
		utils.Symbol(cfg.Agent.Symbol),
		utils.String("exchange", cfg.Exchange.Name),
		utils.Bool("executor_disabled", cfg.Skills.ExecutorDisabled))

	// Персистентность контекста: БД, файл или только память
	var persister store.Persister
	var decisionRepo *repository.DecisionRepository
	var metricsSink coordinator.MetricsSink

	if cfg.Database.Enabled {
		db, err := initDatabase(cfg)
		if err != nil {
			log.Fatal("Failed to connect to database", utils.Err(err))
		}
		defer db.Close()

		if err := repository.EnsureSchema(db); err != nil {
			log.Fatal("Failed to create schema", utils.Err(err))
		}
		log.Info("Connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))

		persister = repository.NewContextRepository(db)
		decisionRepo = repository.NewDecisionRepository(db)
		metricsSink = repository.NewMetricsRepository(db)
	} else if cfg.Agent.ContextFile != "" {
		filePersister, err := store.NewFilePersister(cfg.Agent.ContextFile)
		if err != nil {
			log.Fatal("Failed to open context file", utils.Err(err))
		}
		persister = filePersister
	}

	// Снимок показателей без БД пишется в файл рядом с контекстом
	if metricsSink == nil && cfg.Agent.MetricsFile != "" {
		fileSink, err := coordinator.NewFileMetricsSink(cfg.Agent.MetricsFile)
		if err != nil {
			log.Fatal("Failed to open metrics file", utils.Err(err))
		}
		metricsSink = fileSink
	}

	contextStore := store.New(persister, log)
	eventBus := bus.New(log)

	var breaker *skill.Breaker
	if cfg.Breaker.Enabled {
		breaker = skill.NewBreaker(cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeout, log)
	}

	ex, err := exchange.NewExchange(cfg.Exchange.Name, exchange.Settings{
		PaperBalance:  cfg.Exchange.PaperBalance,
		PaperSlippage: cfg.Exchange.PaperSlippage,
	})
	if err != nil {
		log.Fatal("Failed to create exchange adapter", utils.Err(err))
	}
	defer ex.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Бумажной бирже нужен собственный источник цен
	if paper, ok := ex.(*exchange.PaperExchange); ok {
		paper.SetPrice(cfg.Agent.Symbol, cfg.Exchange.PaperPrice)
		go runPaperFeed(runCtx, paper, cfg.Agent.Symbol, cfg.Exchange.PaperPrice)
	}

	coord := buildPipeline(cfg, contextStore, eventBus, breaker, ex, log)
	if decisionRepo != nil {
		coord.SetJournal(decisionRepo)
	}
	if metricsSink != nil {
		coord.SetMetricsSink(metricsSink)
	}

	eventBus.StartDrain(runCtx)

	hub := websocket.NewHub(log)
	go hub.Run()
	hub.AttachBus(eventBus)

	if decisionRepo != nil {
		go runRetentionSweep(runCtx, decisionRepo, log)
	}

	deps := &api.Dependencies{
		Agent:      coord,
		Store:      contextStore,
		Events:     eventBus,
		Hub:        hub,
		Symbol:     cfg.Agent.Symbol,
		APIKeyHash: cfg.Security.APIKeyHash,
		Logger:     log,
	}
	if decisionRepo != nil {
		deps.Decisions = decisionRepo
	}
	router := api.SetupRoutes(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", utils.Err(err))
		}
	}()

	go coord.Run(runCtx)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down agent")
	cancel()
	hub.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", utils.Err(err))
	}

	log.Info("Agent exited")
}

// buildPipeline собирает четыре этапа торгового цикла в координатор
func buildPipeline(cfg *config.Config, contextStore *store.Store, eventBus *bus.Bus,
	breaker *skill.Breaker, ex exchange.Exchange, log *zap.Logger) *coordinator.Coordinator {

	coord := coordinator.New(coordinator.Config{
		Symbol:           cfg.Agent.Symbol,
		CycleInterval:    cfg.Agent.CycleInterval,
		FallbackToLegacy: cfg.Agent.FallbackToLegacy,
		BreakerEnabled:   cfg.Breaker.Enabled,
	}, contextStore, eventBus, breaker, coordinator.NewExchangeDataSource(ex), log)

	analyst := skill.NewMarketAnalyst(nil, log)
	strategist := skill.NewQuantStrategist(skill.StrategistConfig{
		Symbol:       cfg.Agent.Symbol,
		ContractSize: cfg.Risk.ContractSize,
	}, log)
	engine := risk.NewEngine(risk.Config{
		MinPositionSize:     cfg.Risk.MinPositionSize,
		MaxPositionFraction: cfg.Risk.MaxPositionFraction,
	}, log)
	riskManager := skill.NewRiskManager(skill.RiskManagerConfig{
		Symbol: cfg.Agent.Symbol,
	}, engine, ex, log)
	riskManager.SetOrbitNotifier(func(prev, next risk.OrbitState) {
		eventBus.Publish(bus.NewMessage(bus.TypeEvent, skill.RiskManagerName, map[string]interface{}{
			"event":      "protection_orbit_updated",
			"from_level": string(prev.Level),
			"to_level":   string(next.Level),
			"upper":      next.Upper,
			"lower":      next.Lower,
		}))
	})
	executor := skill.NewTradeExecutor(skill.ExecutorConfig{
		Symbol:       cfg.Agent.Symbol,
		TwapInterval: cfg.Risk.TwapInterval,
		OrderRate:    cfg.Risk.OrderRate,
	}, ex, log)

	coord.Register(skill.NewRunner(analyst, skill.RunnerConfig{
		Timeout:  cfg.Agent.SkillTimeout,
		Priority: cfg.Skills.AnalystPriority,
	}, log))
	coord.Register(skill.NewRunner(strategist, skill.RunnerConfig{
		Timeout:  cfg.Agent.SkillTimeout,
		Priority: cfg.Skills.StrategistPriority,
	}, log))
	coord.Register(skill.NewRunner(riskManager, skill.RunnerConfig{
		Timeout:  cfg.Agent.SkillTimeout,
		Priority: cfg.Skills.RiskPriority,
	}, log))
	coord.Register(skill.NewRunner(executor, skill.RunnerConfig{
		Timeout:  cfg.Agent.SkillTimeout,
		Priority: cfg.Skills.ExecutorPriority,
		Disabled: cfg.Skills.ExecutorDisabled,
	}, log))

	return coord
}

// runPaperFeed крутит случайное блуждание цены вокруг стартового
// значения, чтобы циклам было что анализировать в тестовом режиме
func runPaperFeed(ctx context.Context, paper *exchange.PaperExchange, symbol string, price float64) {
	ticker := time.NewTicker(paperFeedInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Шаг до 0.2% в обе стороны
			price *= 1 + (rand.Float64()-0.5)*0.004
			paper.SetPrice(symbol, price)
		}
	}
}

// runRetentionSweep раз в сутки удаляет старые записи журнала решений
func runRetentionSweep(ctx context.Context, decisions *repository.DecisionRepository, log *zap.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := utils.DayStartFrom(time.Now().AddDate(0, 0, -decisionRetentionDays))
			deleted, err := decisions.DeleteOlderThan(cutoff)
			if err != nil {
				log.Error("Failed to prune decision journal", utils.Err(err))
				continue
			}
			if deleted > 0 {
				log.Info("Pruned decision journal",
					utils.Int64("deleted", deleted),
					utils.String("cutoff", cutoff.Format(time.RFC3339)))
			}
		}
	}
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
