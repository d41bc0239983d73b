package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"tradeagent/internal/bus"
)

// Сериализация горячего пути broadcast идет через jsoniter
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Пул буферов сериализации: Broadcast вызывается на каждое событие
// пайплайна, без пула аллокации растут линейно с частотой циклов
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Типы событий шины, ретранслируемые клиентам
var forwardedTypes = []bus.MessageType{
	bus.TypeMarketAnalysis,
	bus.TypeStrategySignal,
	bus.TypeRiskAssessment,
	bus.TypeTradeExecution,
	bus.TypeExecutionResult,
	bus.TypeError,
	bus.TypeWarning,
}

// Hub управляет всеми активными WebSocket соединениями.
//
// Центральный менеджер broadcast сообщений: события шины пайплайна
// и снимки состояния агента доставляются всем подключенным клиентам
// без необходимости polling.
//
// Использование:
//  1. Создать hub: hub := NewHub(log)
//  2. Запустить в горутине: go hub.Run()
//  3. Подписать на шину: subs := hub.AttachBus(eventBus)
//  4. Отправлять сообщения: hub.Broadcast(message)
type Hub struct {
	log *zap.Logger

	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация и отмена регистрации клиентов
	register   chan *Client
	unregister chan *Client

	// Сигнал остановки главного цикла
	stop chan struct{}

	// Сообщения, отброшенные из-за переполнения broadcast канала
	dropped atomic.Int64

	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:        log,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

// Run запускает главный цикл Hub.
// Должен запускаться в отдельной горутине: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("WebSocket client connected", zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("WebSocket client disconnected", zap.Int("total", total))

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// deliver отправляет сообщение всем клиентам. Список копируется под
// коротким RLock, отправка идет без блокировки, медленные клиенты
// отключаются.
func (h *Hub) deliver(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	if len(toRemove) > 0 {
		h.mu.Lock()
		for _, client := range toRemove {
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		}
		total := len(h.clients)
		h.mu.Unlock()
		h.log.Warn("Removed slow WebSocket clients",
			zap.Int("removed", len(toRemove)),
			zap.Int("total", total))
	}
}

// closeAllClients закрывает каналы всех клиентов при остановке
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// Stop останавливает главный цикл Hub
func (h *Hub) Stop() {
	close(h.stop)
}

// Broadcast сериализует сообщение и отправляет всем клиентам.
// Не блокирует вызывающего: при переполнении канала сообщение
// отбрасывается.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.log.Error("Failed to marshal broadcast message", zap.Error(err))
		jsonBufferPool.Put(buf)
		return
	}

	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.BroadcastRaw(msgCopy)
}

// BroadcastRaw отправляет уже сериализованные данные всем клиентам
func (h *Hub) BroadcastRaw(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
	}
}

// AttachBus подписывает hub на события шины пайплайна.
// Возвращенные подписки снимаются через bus.Unsubscribe при остановке.
func (h *Hub) AttachBus(b *bus.Bus) []*bus.Subscription {
	subs := make([]*bus.Subscription, 0, len(forwardedTypes))
	for _, msgType := range forwardedTypes {
		subs = append(subs, b.Subscribe(msgType, func(msg bus.Message) {
			h.Broadcast(NewEventMessage(msg))
		}))
	}
	return subs
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает число отброшенных broadcast сообщений
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
