package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tradeagent/internal/api/handlers"
	"tradeagent/internal/api/middleware"
	"tradeagent/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Agent     handlers.Agent
	Store     handlers.ContextStore
	Events    handlers.EventStream
	Decisions handlers.DecisionLog
	Hub       *websocket.Hub
	Symbol    string

	// bcrypt-хеш ключа управления; пусто = API без аутентификации
	APIKeyHash string

	Logger *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты агента
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── GET  /status             - снимок состояния координатора
//	├── GET  /skills             - счетчики навыков
//	├── POST /skills/{name}/enable  - допустить навык к исполнению
//	├── POST /skills/{name}/disable - вывести навык из исполнения
//	├── GET  /breaker            - состояния circuit breaker
//	├── GET  /events             - история событий шины
//	├── GET  /context            - документ контекста
//	├── POST /context/reset      - сброс контекста
//	├── GET  /decisions          - журнал решений циклов
//	└── GET  /decisions/summary  - сводка решений за сутки
//
// /ws/stream - WebSocket поток событий пайплайна
// /metrics   - Prometheus метрики
// /health    - health check
//
// Middleware: Recovery и Logging для всех маршрутов, CORS для всех,
// APIAuth только для /api/v1.
func SetupRoutes(deps *Dependencies) *mux.Router {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := mux.NewRouter()

	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS)

	// API v1 routes, защищенные паролем управления
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.APIAuth(deps.APIKeyHash, log))

	if deps.Agent != nil {
		agentHandler := handlers.NewAgentHandler(deps.Agent)
		api.HandleFunc("/status", agentHandler.GetStatus).Methods("GET")
		api.HandleFunc("/skills", agentHandler.GetSkills).Methods("GET")
		api.HandleFunc("/skills/{name}/enable", agentHandler.EnableSkill).Methods("POST")
		api.HandleFunc("/skills/{name}/disable", agentHandler.DisableSkill).Methods("POST")
		api.HandleFunc("/breaker", agentHandler.GetBreaker).Methods("GET")
	}

	if deps.Events != nil {
		eventsHandler := handlers.NewEventsHandler(deps.Events)
		api.HandleFunc("/events", eventsHandler.GetEvents).Methods("GET")
	}

	if deps.Store != nil {
		contextHandler := handlers.NewContextHandler(deps.Store, deps.Decisions, deps.Symbol)
		api.HandleFunc("/context", contextHandler.GetContext).Methods("GET")
		api.HandleFunc("/context/reset", contextHandler.ResetContext).Methods("POST")
		api.HandleFunc("/decisions", contextHandler.GetDecisions).Methods("GET")
		api.HandleFunc("/decisions/summary", contextHandler.GetDecisionSummary).Methods("GET")
	}

	// WebSocket поток событий
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
