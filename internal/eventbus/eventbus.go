package eventbus

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBusClosed возвращается при публикации в закрытую шину
var ErrBusClosed = errors.New("event bus closed")

// dropBelow - события ниже этого приоритета отбрасываются при полном буфере.
// Отказы активации (приоритет 1) теряются первыми, телепортации ждут места.
const dropBelow = 5

// Envelope - конверт события портальной сети.
// CorrelationID совпадает с идентификатором активации из Outcome.
type Envelope struct {
	ID            string
	Timestamp     time.Time // UTC
	Source        string
	EventType     string // PortalTeleported, PortalExhausted, PortalMemberPruned, PortalRejected
	Version       int
	CorrelationID string
	Priority      int    // 0..9
	Payload       []byte // JSON одной из структур events.go
}

// Filter отбирает события по типу и источнику; пустой список пропускает всё
type Filter struct {
	Types   []string
	Sources []string
}

func (f Filter) match(ev *Envelope) bool {
	return (len(f.Types) == 0 || slices.Contains(f.Types, ev.EventType)) &&
		(len(f.Sources) == 0 || slices.Contains(f.Sources, ev.Source))
}

// Subscription отменяет подписку
type Subscription interface {
	Unsubscribe()
}

// Handler обрабатывает событие
type Handler func(ctx context.Context, ev *Envelope)

// Stats - счётчики шины для /metrics и /api/v1/status
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus публикует события активаций. Реализации: в памяти и NATS JetStream.
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

// memoryBus - шина внутри процесса для сервера без NATS и для тестов
type memoryBus struct {
	closeMu sync.RWMutex // держится на время отправки в buffer
	closed  bool
	buffer  chan *Envelope

	mu          sync.RWMutex
	subscribers map[int]subscriber
	nextID      int

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64
}

type subscriber struct {
	filter  Filter
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewMemoryBus создаёт шину в памяти с буфером на capacity событий
func NewMemoryBus(capacity int) EventBus {
	mb := newMemoryBus(capacity)
	go mb.dispatchLoop()
	return mb
}

func newMemoryBus(capacity int) *memoryBus {
	return &memoryBus{
		subscribers: make(map[int]subscriber),
		buffer:      make(chan *Envelope, capacity),
	}
}

func (mb *memoryBus) Publish(ctx context.Context, ev *Envelope) error {
	mb.closeMu.RLock()
	defer mb.closeMu.RUnlock()
	if mb.closed {
		return ErrBusClosed
	}

	select {
	case mb.buffer <- ev:
		mb.published.Add(1)
		return nil
	default:
	}

	if ev.Priority < dropBelow {
		mb.dropped.Add(1)
		return nil
	}
	select {
	case mb.buffer <- ev:
		mb.published.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (mb *memoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	cctx, cancel := context.WithCancel(ctx)

	mb.mu.Lock()
	defer mb.mu.Unlock()
	id := mb.nextID
	mb.nextID++
	mb.subscribers[id] = subscriber{filter: f, handler: h, ctx: cctx, cancel: cancel}
	return &memSub{bus: mb, id: id}, nil
}

// Close перестаёт принимать события; уже принятые доставляются
func (mb *memoryBus) Close() error {
	mb.closeMu.Lock()
	defer mb.closeMu.Unlock()
	if !mb.closed {
		mb.closed = true
		close(mb.buffer)
	}
	return nil
}

func (mb *memoryBus) Metrics() Stats {
	return Stats{
		Published: mb.published.Load(),
		Consumed:  mb.consumed.Load(),
		Dropped:   mb.dropped.Load(),
		InFlight:  len(mb.buffer),
	}
}

func (mb *memoryBus) snapshot() []subscriber {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	subs := make([]subscriber, 0, len(mb.subscribers))
	for _, sub := range mb.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

// dispatchLoop раздаёт события подписчикам, каждому в своей горутине:
// медленный webhook не задерживает остальных.
func (mb *memoryBus) dispatchLoop() {
	for ev := range mb.buffer {
		for _, sub := range mb.snapshot() {
			if sub.filter.match(ev) {
				go mb.deliver(sub, ev)
			}
		}
	}
}

func (mb *memoryBus) deliver(sub subscriber, ev *Envelope) {
	if sub.ctx.Err() != nil {
		return
	}
	sub.handler(sub.ctx, ev)
	mb.consumed.Add(1)
}

type memSub struct {
	bus *memoryBus
	id  int
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		sub.cancel()
		delete(s.bus.subscribers, s.id)
	}
}
