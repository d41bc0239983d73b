package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию агента
type Config struct {
	Agent    AgentConfig
	Skills   SkillsConfig
	Breaker  BreakerConfig
	Risk     RiskConfig
	Exchange ExchangeConfig
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// AgentConfig - параметры торгового цикла
type AgentConfig struct {
	Symbol           string
	CycleInterval    time.Duration // пауза между торговыми циклами
	SkillTimeout     time.Duration // ретроспективный таймаут этапа
	FallbackToLegacy bool          // при отказе анализа вернуть HOLD резервной стратегии
	ContextFile      string        // путь файлового персистера (пусто = БД/память)
	MetricsFile      string        // путь снимка показателей при работе без БД
}

// SkillsConfig - приоритеты и флаги этапов пайплайна
type SkillsConfig struct {
	AnalystPriority    int
	StrategistPriority int
	RiskPriority       int
	ExecutorPriority   int
	ExecutorDisabled   bool // тестовый режим: решения не доходят до биржи
}

// BreakerConfig - параметры circuit breaker
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	ResetTimeout     time.Duration
}

// RiskConfig - параметры риск-движка и исполнения
type RiskConfig struct {
	MinPositionSize     float64
	MaxPositionFraction float64
	ContractSize        float64       // базовый размер сигнала стратегии
	TwapInterval        time.Duration // пауза между частями TWAP
	OrderRate           float64       // лимит ордеров в секунду
}

// ExchangeConfig - подключение к бирже
type ExchangeConfig struct {
	Name          string  // paper или имя реальной биржи
	PaperBalance  float64 // стартовый баланс бумажной биржи
	PaperSlippage float64
	PaperPrice    float64 // начальная цена символа на бумажной бирже
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - доступ к управляющему API
type SecurityConfig struct {
	APIKeyHash string // bcrypt-хеш ключа управления; пусто = API без аутентификации
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Agent: AgentConfig{
			Symbol:           getEnv("TRADE_SYMBOL", "BTCUSDT"),
			CycleInterval:    getEnvAsDuration("CYCLE_INTERVAL", 300*time.Second),
			SkillTimeout:     getEnvAsDuration("SKILL_TIMEOUT", 5*time.Second),
			FallbackToLegacy: getEnvAsBool("FALLBACK_TO_LEGACY", true),
			ContextFile:      getEnv("CONTEXT_FILE", "data/context.json"),
			MetricsFile:      getEnv("METRICS_FILE", "data/skill_metrics.json"),
		},
		Skills: SkillsConfig{
			AnalystPriority:    getEnvAsInt("ANALYST_PRIORITY", 5),
			StrategistPriority: getEnvAsInt("STRATEGIST_PRIORITY", 7),
			RiskPriority:       getEnvAsInt("RISK_PRIORITY", 9),
			ExecutorPriority:   getEnvAsInt("EXECUTOR_PRIORITY", 8),
			ExecutorDisabled:   getEnvAsBool("EXECUTOR_DISABLED", false),
		},
		Breaker: BreakerConfig{
			Enabled:          getEnvAsBool("BREAKER_ENABLED", true),
			FailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
			ResetTimeout:     getEnvAsDuration("BREAKER_RESET_TIMEOUT", 300*time.Second),
		},
		Risk: RiskConfig{
			MinPositionSize:     getEnvAsFloat("MIN_POSITION_SIZE", 0.001),
			MaxPositionFraction: getEnvAsFloat("MAX_POSITION_FRACTION", 0.1),
			ContractSize:        getEnvAsFloat("CONTRACT_SIZE", 0.1),
			TwapInterval:        getEnvAsDuration("TWAP_INTERVAL", 2*time.Second),
			OrderRate:           getEnvAsFloat("ORDER_RATE", 5),
		},
		Exchange: ExchangeConfig{
			Name:          getEnv("EXCHANGE", "paper"),
			PaperBalance:  getEnvAsFloat("PAPER_BALANCE", 10000),
			PaperSlippage: getEnvAsFloat("PAPER_SLIPPAGE", 0.0005),
			PaperPrice:    getEnvAsFloat("PAPER_PRICE", 50000),
		},
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "tradeagent"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			APIKeyHash: getEnv("API_KEY_HASH", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate проверяет диапазоны параметров
func (c *Config) validate() error {
	if c.Agent.Symbol == "" {
		return fmt.Errorf("TRADE_SYMBOL cannot be empty")
	}

	if c.Agent.CycleInterval <= 0 {
		return fmt.Errorf("CYCLE_INTERVAL must be positive, got %v", c.Agent.CycleInterval)
	}

	if c.Agent.SkillTimeout <= 0 {
		return fmt.Errorf("SKILL_TIMEOUT must be positive, got %v", c.Agent.SkillTimeout)
	}

	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1, got %d", c.Breaker.FailureThreshold)
	}

	if c.Breaker.ResetTimeout <= 0 {
		return fmt.Errorf("BREAKER_RESET_TIMEOUT must be positive, got %v", c.Breaker.ResetTimeout)
	}

	if c.Risk.MinPositionSize <= 0 {
		return fmt.Errorf("MIN_POSITION_SIZE must be positive, got %v", c.Risk.MinPositionSize)
	}

	if c.Risk.MaxPositionFraction <= 0 || c.Risk.MaxPositionFraction > 1 {
		return fmt.Errorf("MAX_POSITION_FRACTION must be within (0, 1], got %v", c.Risk.MaxPositionFraction)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Enabled && (c.Database.Port < 1 || c.Database.Port > 65535) {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
