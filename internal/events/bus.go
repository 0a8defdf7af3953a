package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/leefowlercu/asset-snapshot/internal/metrics"
)

// Bus carries export and import progress between components.
type Bus interface {
	// Publish delivers event to every matching subscriber without blocking.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers handler for one event type.
	Subscribe(eventType EventType, handler EventHandler) (unsubscribe func())

	// SubscribeAll registers handler for every event type.
	SubscribeAll(handler EventHandler) (unsubscribe func())

	Close() error
}

type subscriber struct {
	id      uint64
	filter  EventType
	handler EventHandler
	queue   chan Event
	once    sync.Once
	wg      sync.WaitGroup
}

func (s *subscriber) matches(t EventType) bool {
	return s.filter == "" || s.filter == t
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.queue) })
}

// EventBus is the in-process Bus. Each subscriber has its own buffered queue
// drained by one goroutine, so a slow handler only delays itself. Events that
// do not fit in a full queue are dropped and counted.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	nextID      atomic.Uint64
	closed      atomic.Bool
	logger      *slog.Logger
	bufferSize  int
}

// BusOption configures the event bus.
type BusOption func(*EventBus)

// WithBufferSize sets the per-subscriber queue length.
func WithBufferSize(size int) BusOption {
	return func(b *EventBus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithLogger sets the logger for the event bus.
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *EventBus) {
		b.logger = logger
	}
}

// NewBus creates an event bus.
func NewBus(opts ...BusOption) *EventBus {
	b := &EventBus{
		subscribers: make(map[uint64]*subscriber),
		bufferSize:  100,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish implements Bus.
func (b *EventBus) Publish(ctx context.Context, event Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidatePayload(event); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subscribers {
		if !s.matches(event.Type) {
			continue
		}
		select {
		case s.queue <- event:
		default:
			b.logger.Warn("event subscriber queue full; dropping event",
				"event_type", event.Type,
				"subscriber_id", s.id)
			metrics.RecordEventDropped(string(event.Type))
		}
	}
	return nil
}

// Subscribe implements Bus.
func (b *EventBus) Subscribe(eventType EventType, handler EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll implements Bus.
func (b *EventBus) SubscribeAll(handler EventHandler) func() {
	return b.add("", handler)
}

func (b *EventBus) add(filter EventType, handler EventHandler) func() {
	if b.closed.Load() {
		return func() {}
	}

	s := &subscriber{
		id:      b.nextID.Add(1),
		filter:  filter,
		handler: handler,
		queue:   make(chan Event, b.bufferSize),
	}

	b.mu.Lock()
	b.subscribers[s.id] = s
	b.mu.Unlock()

	s.wg.Add(1)
	go b.run(s)

	return func() { b.remove(s.id) }
}

func (b *EventBus) run(s *subscriber) {
	defer s.wg.Done()
	for event := range s.queue {
		b.deliver(s, event)
	}
}

func (b *EventBus) deliver(s *subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"subscriber_id", s.id,
				"event_type", event.Type,
				"panic", r)
		}
	}()
	s.handler(event)
}

func (b *EventBus) remove(id uint64) {
	b.mu.Lock()
	s, ok := b.subscribers[id]
	delete(b.subscribers, id)
	b.mu.Unlock()

	if ok {
		s.stop()
	}
}

// Close stops accepting events and waits until every queued event has been
// handled.
func (b *EventBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.subscribers = make(map[uint64]*subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	for _, s := range subs {
		s.wg.Wait()
	}
	return nil
}

// Stats returns current bus statistics.
func (b *EventBus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BusStats{
		SubscriberCount: len(b.subscribers),
		IsClosed:        b.closed.Load(),
	}
}

// BusStats contains event bus statistics.
type BusStats struct {
	SubscriberCount int
	IsClosed        bool
}
