// Package messaging implements event bus functionality for Qiaomu.
// It provides both in-memory and Redis-based event buses for event-driven architecture.
package messaging

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// subscription is a registered handler with identity, so it can be removed.
type subscription struct {
	id      uint64
	once    bool
	handler shared.EventHandler
}

// InMemoryEventBus is a simple in-memory implementation of shared.EventBus.
// Suitable for single-instance deployments and testing.
//
// Delivery is synchronous by default: navigation interceptors and ledger
// listeners rely on running before the publisher continues. Handlers may
// subscribe or unsubscribe during delivery; the in-flight delivery set is
// snapshotted before any handler runs and is never mutated by them.
type InMemoryEventBus struct {
	mu          sync.Mutex
	nextID      uint64
	handlers    map[shared.EventType][]*subscription
	allHandlers []*subscription
	asyncMode   bool
	workerPool  chan struct{}
	logger      *logger.Logger
	metrics     *EventBusMetrics
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// InMemoryEventBusConfig tunes an InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode delivers events on a bounded worker pool instead of
	// the publisher's goroutine.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent async deliveries.
	WorkerPoolSize int

	Logger *logger.Logger

	// EnableMetrics turns on the per-type counters behind Metrics().
	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig returns synchronous delivery with
// metrics enabled.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      false,
		WorkerPoolSize: 10,
		EnableMetrics:  true,
	}
}

// NewInMemoryEventBus builds a bus from cfg, filling zero values.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	bus := &InMemoryEventBus{
		handlers:    make(map[shared.EventType][]*subscription),
		allHandlers: make([]*subscription, 0),
		asyncMode:   config.AsyncMode,
		workerPool:  make(chan struct{}, config.WorkerPoolSize),
		logger:      config.Logger,
		closeCh:     make(chan struct{}),
	}

	if config.EnableMetrics {
		bus.metrics = NewEventBusMetrics()
	}

	return bus
}

// Subscribe registers a handler for a specific event type and returns
// a function that removes it.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) (func(), error) {
	return b.subscribe(eventType, handler, false)
}

// SubscribeOnce registers a handler that is removed before its first delivery.
func (b *InMemoryEventBus) SubscribeOnce(eventType shared.EventType, handler shared.EventHandler) error {
	_, err := b.subscribe(eventType, handler, true)
	return err
}

func (b *InMemoryEventBus) subscribe(eventType shared.EventType, handler shared.EventHandler, once bool) (func(), error) {
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrEventBusClosed
	}

	b.nextID++
	sub := &subscription{id: b.nextID, once: once, handler: handler}
	b.handlers[eventType] = append(b.handlers[eventType], sub)
	b.logger.Debug("subscribed handler", logger.String("event_type", string(eventType)), logger.Bool("once", once))

	id := sub.id
	return func() { b.unsubscribe(eventType, id) }, nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) (func(), error) {
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrEventBusClosed
	}

	b.nextID++
	sub := &subscription{id: b.nextID, handler: handler}
	b.allHandlers = append(b.allHandlers, sub)
	b.logger.Debug("subscribed global handler")

	id := sub.id
	return func() { b.unsubscribeAll(id) }, nil
}

func (b *InMemoryEventBus) unsubscribe(eventType shared.EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, sub := range subs {
		if sub.id == id {
			b.handlers[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[eventType]) == 0 {
		delete(b.handlers, eventType)
	}
}

func (b *InMemoryEventBus) unsubscribeAll(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.allHandlers {
		if sub.id == id {
			b.allHandlers = append(b.allHandlers[:i], b.allHandlers[i+1:]...)
			return
		}
	}
}

// Clear removes every handler for the given event types. With no arguments
// it removes all handlers, including global ones.
func (b *InMemoryEventBus) Clear(eventTypes ...shared.EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(eventTypes) == 0 {
		b.handlers = make(map[shared.EventType][]*subscription)
		b.allHandlers = b.allHandlers[:0]
		return
	}
	for _, et := range eventTypes {
		delete(b.handlers, et)
	}
}

// ListenerCount returns the number of handlers registered for an event type.
// Global handlers are not counted.
func (b *InMemoryEventBus) ListenerCount(eventType shared.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[eventType])
}

// EventNames returns the event types that currently have handlers.
func (b *InMemoryEventBus) EventNames() []shared.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]shared.EventType, 0, len(b.handlers))
	for et := range b.handlers {
		names = append(names, et)
	}
	return names
}

// Publish sends an event to all subscribed handlers.
//
// Handler errors and panics are isolated: they are logged and never stop
// delivery to later handlers, and Publish itself does not fail because of them.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrEventBusClosed
	}

	// Snapshot the delivery set; once-handlers are removed before delivery
	// so a re-published event inside a handler cannot fire them twice.
	subs := b.handlers[event.EventType()]
	snapshot := make([]*subscription, 0, len(subs)+len(b.allHandlers))
	remaining := subs[:0:0]
	for _, sub := range subs {
		snapshot = append(snapshot, sub)
		if !sub.once {
			remaining = append(remaining, sub)
		}
	}
	if len(remaining) == 0 {
		delete(b.handlers, event.EventType())
	} else {
		b.handlers[event.EventType()] = remaining
	}
	snapshot = append(snapshot, b.allHandlers...)
	b.mu.Unlock()

	if len(snapshot) == 0 {
		b.logger.Debug("no handlers for event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	if b.metrics != nil {
		b.metrics.RecordPublish(event.EventType())
	}

	if b.asyncMode {
		for _, sub := range snapshot {
			b.executeAsync(event, sub.handler)
		}
	} else {
		for _, sub := range snapshot {
			if err := b.executeSync(event, sub.handler); err != nil {
				b.logger.Error("handler error",
					logger.String("event_type", string(event.EventType())),
					logger.Err(err),
				)
			}
		}
	}

	return nil
}

// executeAsync runs a handler on the worker pool. A bus that closes
// while the delivery waits for a slot drops it.
func (b *InMemoryEventBus) executeAsync(event shared.Event, handler shared.EventHandler) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		select {
		case b.workerPool <- struct{}{}:
			defer func() { <-b.workerPool }()
		case <-b.closeCh:
			return
		}

		if err := b.executeSync(event, handler); err != nil {
			b.logger.Error("async handler error",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}()
}

// executeSync runs a handler inline, converting panics into errors.
func (b *InMemoryEventBus) executeSync(event shared.Event, handler shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	start := time.Now()
	err = handler(event)

	if b.metrics != nil {
		b.metrics.RecordHandlerExecution(event.EventType(), time.Since(start), err == nil)
	}
	return err
}

// Close rejects further publishes and waits for in-flight async
// deliveries to drain.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("event bus closed")
	return nil
}

// Metrics returns the bus's counters, nil when metrics are disabled.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics counts publishes and handler runs per event type.
type EventBusMetrics struct {
	mu sync.RWMutex

	published map[shared.EventType]int64

	execs     int64
	successes int64
	failures  int64
	elapsed   time.Duration

	startedAt time.Time
}

// NewEventBusMetrics creates an empty collector.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{
		published: make(map[shared.EventType]int64),
		startedAt: time.Now(),
	}
}

// RecordPublish counts one published event.
func (m *EventBusMetrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[eventType]++
}

// RecordHandlerExecution counts one handler run.
func (m *EventBusMetrics) RecordHandlerExecution(eventType shared.EventType, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs++
	m.elapsed += duration
	if success {
		m.successes++
	} else {
		m.failures++
	}
}

// Snapshot returns a point-in-time view of the counters.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var published int64
	for _, n := range m.published {
		published += n
	}

	avg := time.Duration(0)
	rate := 1.0
	if m.execs > 0 {
		avg = m.elapsed / time.Duration(m.execs)
		rate = float64(m.successes) / float64(m.execs)
	}

	return EventBusMetricsSnapshot{
		TotalPublished:         published,
		TotalHandlerExecs:      m.execs,
		HandlerSuccessRate:     rate,
		AverageHandlerDuration: avg,
		LastReset:              m.startedAt,
	}
}

// EventBusMetricsSnapshot is an immutable counter snapshot.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64
	TotalHandlerExecs      int64
	HandlerSuccessRate     float64
	AverageHandlerDuration time.Duration
	LastReset              time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")
)
