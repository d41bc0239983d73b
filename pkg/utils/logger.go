package utils

import (
	"math"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - структурированное логирование на базе zap
//
// Назначение:
// Единая точка инициализации логгера для всех компонентов агента.
// Поддерживает JSON и текстовый формат, запись в файл, глобальный
// логгер для кода без внедрённых зависимостей.

// LogConfig - конфигурация логгера
type LogConfig struct {
	// Уровень: debug, info, warn, error, fatal
	Level string

	// Формат: json или text
	Format string

	// Путь к файлу логов (пусто = stderr)
	Output string

	// Development включает режим разработки zap
	Development bool
}

// Logger - обёртка над zap с доменными помощниками
type Logger struct {
	Logger *zap.Logger
	sugar  *zap.SugaredLogger
}

// parseLevel преобразует строковый уровень в zapcore.Level.
// Неизвестные значения дают InfoLevel.
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger создаёт новый логгер по конфигурации.
// Никогда не возвращает nil: при ошибке открытия файла
// происходит fallback на stderr.
func InitLogger(config LogConfig) *Logger {
	level := parseLevel(config.Level)

	var encoderConfig zapcore.EncoderConfig
	if config.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(config.Format) {
	case "text", "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var sink zapcore.WriteSyncer = zapcore.AddSync(os.Stderr)
	if config.Output != "" {
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			sink = zapcore.AddSync(file)
		}
		// При ошибке остаёмся на stderr
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{}
	if config.Development {
		opts = append(opts, zap.Development(), zap.AddCaller())
	}

	zl := zap.New(core, opts...)
	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// ============================================================
// Глобальный логгер
// ============================================================

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// InitGlobalLogger инициализирует глобальный логгер
func InitGlobalLogger(config LogConfig) *Logger {
	logger := InitLogger(config)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный логгер
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger возвращает глобальный логгер,
// создавая логгер по умолчанию при первом обращении
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{Level: "info", Format: "json"})
	}
	return globalLogger
}

// L - короткий алиас для GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// ============================================================
// Методы Logger
// ============================================================

// Debug логирует сообщение уровня debug
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.Logger.Debug(msg, fields...)
}

// Info логирует сообщение уровня info
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.Logger.Info(msg, fields...)
}

// Warn логирует сообщение уровня warn
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.Logger.Warn(msg, fields...)
}

// Error логирует сообщение уровня error
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.Logger.Error(msg, fields...)
}

// Fatal логирует сообщение и завершает процесс
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.Logger.Fatal(msg, fields...)
}

// Sync сбрасывает буферизованные записи
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

// Sugar возвращает sugared-логгер
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// With возвращает новый логгер с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// WithComponent возвращает логгер с полем component
func (l *Logger) WithComponent(component string) *Logger {
	return l.With(zap.String("component", component))
}

// WithSkill возвращает логгер с полем skill
func (l *Logger) WithSkill(skill string) *Logger {
	return l.With(zap.String("skill", skill))
}

// WithSymbol возвращает логгер с полем symbol
func (l *Logger) WithSymbol(symbol string) *Logger {
	return l.With(zap.String("symbol", symbol))
}

// WithCycle возвращает логгер с номером торгового цикла
func (l *Logger) WithCycle(cycle int64) *Logger {
	return l.With(zap.Int64("cycle", cycle))
}

// ============================================================
// Глобальные функции логирования
// ============================================================

// Debug логирует через глобальный логгер
func Debug(msg string, fields ...zap.Field) {
	GetGlobalLogger().Logger.Debug(msg, fields...)
}

// Info логирует через глобальный логгер
func Info(msg string, fields ...zap.Field) {
	GetGlobalLogger().Logger.Info(msg, fields...)
}

// Warn логирует через глобальный логгер
func Warn(msg string, fields ...zap.Field) {
	GetGlobalLogger().Logger.Warn(msg, fields...)
}

// Error логирует через глобальный логгер
func Error(msg string, fields ...zap.Field) {
	GetGlobalLogger().Logger.Error(msg, fields...)
}

// Debugf логирует форматированное сообщение уровня debug
func Debugf(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Debugf(template, args...)
}

// Infof логирует форматированное сообщение уровня info
func Infof(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Infof(template, args...)
}

// Warnf логирует форматированное сообщение уровня warn
func Warnf(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Warnf(template, args...)
}

// Errorf логирует форматированное сообщение уровня error
func Errorf(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Errorf(template, args...)
}

// ============================================================
// Конструкторы доменных полей
// ============================================================

// Skill - поле с именем технического навыка (этапа пайплайна)
func Skill(name string) zap.Field {
	return zap.String("skill", name)
}

// Symbol - поле с торговым символом
func Symbol(symbol string) zap.Field {
	return zap.String("symbol", symbol)
}

// Action - поле с торговым действием (BUY/SELL/HOLD/CLOSE)
func Action(action string) zap.Field {
	return zap.String("action", action)
}

// Price - поле с ценой
func Price(price float64) zap.Field {
	return zap.Float64("price", price)
}

// Size - поле с размером позиции
func Size(size float64) zap.Field {
	return zap.Float64("size", size)
}

// PNL - поле с прибылью/убытком
func PNL(pnl float64) zap.Field {
	return zap.Float64("pnl", pnl)
}

// Side - поле со стороной позиции (long/short)
func Side(side string) zap.Field {
	return zap.String("side", side)
}

// State - поле с состоянием (breaker, orbit level и т.д.)
func State(state string) zap.Field {
	return zap.String("state", state)
}

// RiskScore - поле с риск-оценкой
func RiskScore(score float64) zap.Field {
	return zap.Float64("risk_score", score)
}

// Latency - поле с латентностью в миллисекундах
func Latency(ms float64) zap.Field {
	return zap.Float64("latency_ms", ms)
}

// Cycle - поле с номером торгового цикла
func Cycle(n int64) zap.Field {
	return zap.Int64("cycle", n)
}

// OrderID - поле с идентификатором ордера
func OrderID(id string) zap.Field {
	return zap.String("order_id", id)
}

// RequestID - поле с идентификатором HTTP-запроса
func RequestID(id string) zap.Field {
	return zap.String("request_id", id)
}

// Component - поле с именем компонента
func Component(name string) zap.Field {
	return zap.String("component", name)
}

// ============================================================
// Переэкспорт стандартных конструкторов zap
// ============================================================

// String - строковое поле
func String(key, value string) zap.Field {
	return zap.String(key, value)
}

// Int - целочисленное поле
func Int(key string, value int) zap.Field {
	return zap.Int(key, value)
}

// Int64 - поле int64
func Int64(key string, value int64) zap.Field {
	return zap.Int64(key, value)
}

// Float64 - поле float64
func Float64(key string, value float64) zap.Field {
	return zap.Float64(key, value)
}

// Bool - булево поле
func Bool(key string, value bool) zap.Field {
	return zap.Bool(key, value)
}

// Err - поле с ошибкой
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Any - поле произвольного типа
func Any(key string, value interface{}) zap.Field {
	return zap.Any(key, value)
}

// fieldsToInterface преобразует zap-поля в плоский список
// ключ-значение для передачи в sugared-логгер
func fieldsToInterface(fields []zap.Field) []interface{} {
	result := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		result = append(result, f.Key)
		switch f.Type {
		case zapcore.StringType:
			result = append(result, f.String)
		case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type:
			result = append(result, f.Integer)
		case zapcore.Float64Type:
			result = append(result, math.Float64frombits(uint64(f.Integer)))
		case zapcore.BoolType:
			result = append(result, f.Integer == 1)
		default:
			result = append(result, f.Interface)
		}
	}
	return result
}
