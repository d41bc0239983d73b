package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ============================================================
// Шина событий пайплайна
// ============================================================
//
// Publish доставляет сообщение подписчикам синхронно, в порядке
// подписки, в горутине публикующего, и дополнительно ставит его в
// ограниченную асинхронную очередь с вытеснением старейшего при
// переполнении. Очередь разбирается фоновой горутиной StartDrain.

// MessageType - тип сообщения шины
type MessageType string

const (
	TypeMarketData      MessageType = "market_data"
	TypeMarketAnalysis  MessageType = "market_analysis"
	TypeStrategySignal  MessageType = "strategy_signal"
	TypeRiskAssessment  MessageType = "risk_assessment"
	TypeTradeExecution  MessageType = "trade_execution"
	TypeExecutionResult MessageType = "execution_result"
	TypeError           MessageType = "error"
	TypeWarning         MessageType = "warning"
	TypeEvent           MessageType = "event"
)

// Лимиты истории и асинхронной очереди
const (
	maxHistory   = 1000
	maxQueueSize = 1000
)

// Message - сообщение шины событий
type Message struct {
	Type      MessageType            `json:"type"`
	Source    string                 `json:"source"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewMessage создаёт сообщение с текущей отметкой времени
func NewMessage(msgType MessageType, source string, payload map[string]interface{}) Message {
	return Message{
		Type:      msgType,
		Source:    source,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Handler - обработчик сообщений подписчика
type Handler func(msg Message)

// Subscription - идентифицируемая подписка, используется для отписки
type Subscription struct {
	id      uint64
	msgType MessageType
	handler Handler
}

// Bus - шина событий с историей и асинхронной очередью
type Bus struct {
	log *zap.Logger

	mu          sync.Mutex
	subscribers map[MessageType][]*Subscription
	history     []Message
	nextSubID   uint64

	queue   chan Message
	dropped atomic.Int64
}

// New создаёт шину событий
func New(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		log:         log,
		subscribers: make(map[MessageType][]*Subscription),
		history:     make([]Message, 0, 64),
		queue:       make(chan Message, maxQueueSize),
	}
}

// Subscribe регистрирует обработчик на тип сообщения.
// Возвращённая подписка нужна для Unsubscribe.
func (b *Bus) Subscribe(msgType MessageType, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	sub := &Subscription{
		id:      b.nextSubID,
		msgType: msgType,
		handler: handler,
	}
	b.subscribers[msgType] = append(b.subscribers[msgType], sub)
	return sub
}

// Unsubscribe снимает подписку. Повторный вызов безопасен.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.msgType]
	for i, s := range subs {
		if s.id == sub.id {
			b.subscribers[sub.msgType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish записывает сообщение в историю, синхронно доставляет его
// подписчикам в порядке подписки и ставит копию в асинхронную очередь.
// Паника обработчика изолируется: остальные подписчики сообщение
// получат.
func (b *Bus) Publish(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.Lock()
	b.history = append(b.history, msg)
	if len(b.history) > maxHistory {
		overflow := len(b.history) - maxHistory
		b.history = append([]Message(nil), b.history[overflow:]...)
	}
	subs := append([]*Subscription(nil), b.subscribers[msg.Type]...)
	b.mu.Unlock()

	for _, sub := range subs {
		b.deliver(sub, msg)
	}

	b.enqueue(msg)
}

func (b *Bus) deliver(sub *Subscription, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.Error("Subscriber panicked",
				zap.String("type", string(msg.Type)),
				zap.Any("panic", rec))
		}
	}()
	sub.handler(msg)
}

// enqueue ставит сообщение в очередь без блокировки публикующего.
// При переполнении очереди вытесняется старейшее сообщение.
func (b *Bus) enqueue(msg Message) {
	for {
		select {
		case b.queue <- msg:
			return
		default:
		}

		select {
		case <-b.queue:
			b.dropped.Add(1)
			b.log.Warn("Async queue full, dropping oldest message",
				zap.String("type", string(msg.Type)))
		default:
		}
	}
}

// StartDrain запускает фоновую горутину, разбирающую асинхронную
// очередь до отмены контекста. Подписчики сообщение уже получили
// при публикации, разбор только освобождает очередь: это место для
// фоновой обработки, которой не должен ждать публикующий.
func (b *Bus) StartDrain(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.queue:
			}
		}
	}()
}

// Recent возвращает count последних сообщений, опционально
// отфильтрованных по типу. count <= 0 возвращает всю историю.
func (b *Bus) Recent(count int, msgType MessageType) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	source := b.history
	if msgType != "" {
		source = make([]Message, 0, len(b.history))
		for _, msg := range b.history {
			if msg.Type == msgType {
				source = append(source, msg)
			}
		}
	}

	if count <= 0 || count > len(source) {
		count = len(source)
	}
	return append([]Message(nil), source[len(source)-count:]...)
}

// HistorySize возвращает текущий размер истории
func (b *Bus) HistorySize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.history)
}

// Dropped возвращает число вытесненных из очереди сообщений
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// QueueLen возвращает текущую глубину асинхронной очереди
func (b *Bus) QueueLen() int {
	return len(b.queue)
}
