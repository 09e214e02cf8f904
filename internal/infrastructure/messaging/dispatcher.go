package messaging

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher sits between the event bus and the application's event
// handlers. Unlike a raw bus subscription it gives each handler a
// name, a timeout, bounded retries with backoff, and a dead letter
// queue for events no retry could save. Handlers marked async run in
// parallel; Dispatch still waits for all of them before returning so
// callers observe a settled world.
type Dispatcher struct {
	bus    shared.EventBus
	logger *logger.Logger

	mu     sync.RWMutex
	routes map[shared.EventType][]HandlerRegistration
	chain  []Middleware
	stop   func()

	retry RetryConfig
	dlq   *DeadLetterQueue
	slots chan struct{}
	stats *DispatcherMetrics

	ctx    context.Context
	cancel context.CancelFunc
}

// HandlerRegistration names a handler and sets its execution policy.
type HandlerRegistration struct {
	Name       string
	Handler    shared.EventHandler
	Async      bool
	MaxRetries int
	Timeout    time.Duration
}

// RetryConfig bounds handler retries.
type RetryConfig struct {
	// MaxRetries is how many times a failed handler is re-run.
	MaxRetries int

	// InitialBackoff is the wait before the first re-run; each further
	// wait multiplies by BackoffMultiplier up to MaxBackoff.
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the retry policy used when a builder
// does not override it.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// DispatcherConfig assembles a Dispatcher.
type DispatcherConfig struct {
	EventBus              shared.EventBus
	WorkerPoolSize        int
	RetryConfig           RetryConfig
	EnableDeadLetterQueue bool
	DeadLetterQueueSize   int
	Logger                *logger.Logger
}

// DefaultDispatcherConfig returns a config with the DLQ enabled.
func DefaultDispatcherConfig(bus shared.EventBus) DispatcherConfig {
	return DispatcherConfig{
		EventBus:              bus,
		WorkerPoolSize:        10,
		RetryConfig:           DefaultRetryConfig(),
		EnableDeadLetterQueue: true,
		DeadLetterQueueSize:   1000,
	}
}

// NewDispatcher builds a Dispatcher from cfg.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		bus:    cfg.EventBus,
		logger: cfg.Logger,
		routes: make(map[shared.EventType][]HandlerRegistration),
		retry:  cfg.RetryConfig,
		slots:  make(chan struct{}, cfg.WorkerPoolSize),
		stats:  NewDispatcherMetrics(),
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.EnableDeadLetterQueue {
		d.dlq = NewDeadLetterQueue(cfg.DeadLetterQueueSize)
	}
	return d
}

// ──────────────────────────────────────────────────────────────────────────────
// Registration
// ──────────────────────────────────────────────────────────────────────────────

// RegisterHandler adds a handler for eventType. Zero-valued policy
// fields fall back to the dispatcher's retry config and a 30s timeout.
func (d *Dispatcher) RegisterHandler(eventType shared.EventType, reg HandlerRegistration) error {
	if reg.Handler == nil {
		return errors.New("handler cannot be nil")
	}
	if reg.Name == "" {
		reg.Name = fmt.Sprintf("handler-%d", time.Now().UnixNano())
	}
	if reg.MaxRetries <= 0 {
		reg.MaxRetries = d.retry.MaxRetries
	}
	if reg.Timeout <= 0 {
		reg.Timeout = 30 * time.Second
	}

	d.mu.Lock()
	d.routes[eventType] = append(d.routes[eventType], reg)
	d.mu.Unlock()

	d.logger.Debug("registered handler",
		logger.String("event_type", string(eventType)),
		logger.String("handler_name", reg.Name),
		logger.Bool("async", reg.Async),
	)
	return nil
}

// Register adds an async handler with default policy.
func (d *Dispatcher) Register(eventType shared.EventType, name string, handler shared.EventHandler) error {
	return d.RegisterHandler(eventType, HandlerRegistration{Name: name, Handler: handler, Async: true})
}

// RegisterSync adds a handler whose error surfaces from Dispatch.
func (d *Dispatcher) RegisterSync(eventType shared.EventType, name string, handler shared.EventHandler) error {
	return d.RegisterHandler(eventType, HandlerRegistration{Name: name, Handler: handler})
}

// ──────────────────────────────────────────────────────────────────────────────
// Middleware
// ──────────────────────────────────────────────────────────────────────────────

// Middleware wraps handler execution. The chain is applied per
// attempt, so a retried handler passes through it again.
type Middleware func(shared.EventHandler) shared.EventHandler

// Use appends middleware to the chain.
func (d *Dispatcher) Use(mw Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chain = append(d.chain, mw)
}

// RecoveryMiddleware converts handler panics into errors so one bad
// handler cannot take the dispatcher down.
func RecoveryMiddleware(log *logger.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("handler panic recovered",
						logger.String("event_type", string(event.EventType())),
						logger.Any("panic", r),
						logger.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs each handler run with its duration.
func LoggingMiddleware(log *logger.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			elapsed := time.Since(start)

			if err != nil {
				log.Error("handler failed",
					logger.String("event_type", string(event.EventType())),
					logger.String("aggregate_id", event.AggregateID()),
					logger.Duration("duration", elapsed),
					logger.Err(err),
				)
				return err
			}
			log.Debug("handler completed",
				logger.String("event_type", string(event.EventType())),
				logger.String("aggregate_id", event.AggregateID()),
				logger.Duration("duration", elapsed),
			)
			return nil
		}
	}
}

// MetricsMiddleware feeds per-attempt outcomes into metrics.
func MetricsMiddleware(metrics *DispatcherMetrics) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			metrics.RecordExecution(event.EventType(), time.Since(start), err == nil)
			return err
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Dispatching
// ──────────────────────────────────────────────────────────────────────────────

// Start routes every event published on the bus through Dispatch.
func (d *Dispatcher) Start() error {
	unsubscribe, err := d.bus.SubscribeAll(func(event shared.Event) error {
		return d.dispatch(event)
	})
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.stop = unsubscribe
	d.mu.Unlock()
	return nil
}

// Dispatch routes one event to its registered handlers and waits for
// all of them, async included. The returned error aggregates sync
// handler failures; async failures go to the DLQ only.
func (d *Dispatcher) Dispatch(event shared.Event) error {
	return d.dispatch(event)
}

func (d *Dispatcher) dispatch(event shared.Event) error {
	d.mu.RLock()
	regs := d.routes[event.EventType()]
	chain := d.chain
	d.mu.RUnlock()

	if len(regs) == 0 {
		return nil
	}
	d.stats.RecordDispatch(event.EventType())

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var syncErrs []error

	for _, reg := range regs {
		if reg.Async {
			wg.Add(1)
			go func(r HandlerRegistration) {
				defer wg.Done()
				_ = d.run(event, r, chain)
			}(reg)
			continue
		}
		if err := d.run(event, reg, chain); err != nil {
			errMu.Lock()
			syncErrs = append(syncErrs, err)
			errMu.Unlock()
		}
	}
	wg.Wait()

	if len(syncErrs) > 0 {
		return fmt.Errorf("sync handler errors: %v", syncErrs)
	}
	return nil
}

// run executes one handler under the middleware chain, retrying per
// its policy. Exhausted handlers land in the DLQ.
func (d *Dispatcher) run(event shared.Event, reg HandlerRegistration, chain []Middleware) error {
	select {
	case d.slots <- struct{}{}:
		defer func() { <-d.slots }()
	case <-d.ctx.Done():
		return d.ctx.Err()
	}

	handler := reg.Handler
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}

	var lastErr error
	wait := d.retry.InitialBackoff
	for attempt := 0; attempt <= reg.MaxRetries; attempt++ {
		if attempt > 0 {
			d.logger.Debug("retrying handler",
				logger.String("handler", reg.Name),
				logger.Int("attempt", attempt),
				logger.Duration("backoff", wait),
			)
			select {
			case <-d.ctx.Done():
				return d.ctx.Err()
			case <-time.After(wait):
			}
			wait = time.Duration(float64(wait) * d.retry.BackoffMultiplier)
			if wait > d.retry.MaxBackoff {
				wait = d.retry.MaxBackoff
			}
		}

		err := d.attempt(handler, event, reg.Timeout)
		if err == nil {
			if attempt > 0 {
				d.stats.RecordRetrySuccess(event.EventType())
			}
			return nil
		}
		lastErr = err
		d.logger.Warn("handler attempt failed",
			logger.String("handler", reg.Name),
			logger.Int("attempt", attempt),
			logger.Err(err),
		)
	}

	if d.dlq != nil {
		d.dlq.Add(DeadLetterEntry{
			Event:       event,
			HandlerName: reg.Name,
			Error:       lastErr,
			Attempts:    reg.MaxRetries + 1,
			FailedAt:    time.Now(),
		})
	}
	d.stats.RecordFailure(event.EventType())
	return fmt.Errorf("handler %s failed after %d retries: %w", reg.Name, reg.MaxRetries+1, lastErr)
}

func (d *Dispatcher) attempt(handler shared.EventHandler, event shared.Event, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- handler(event) }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("handler timeout after %v", timeout)
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
}

// Stop detaches from the bus and cancels in-flight work.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
	d.mu.Unlock()

	d.cancel()
	d.logger.Info("dispatcher stopped")
	return nil
}

// Metrics returns the dispatcher's metrics collector.
func (d *Dispatcher) Metrics() *DispatcherMetrics { return d.stats }

// DeadLetterQueue returns the DLQ, or nil when disabled.
func (d *Dispatcher) DeadLetterQueue() *DeadLetterQueue { return d.dlq }

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry records one handler that gave up on one event.
type DeadLetterEntry struct {
	Event       shared.Event
	HandlerName string
	Error       error
	Attempts    int
	FailedAt    time.Time
}

// DeadLetterQueue is a bounded FIFO of failed deliveries. When full,
// the oldest entry is dropped to make room.
type DeadLetterQueue struct {
	mu      sync.RWMutex
	entries []DeadLetterEntry
	cap     int
}

// NewDeadLetterQueue creates a queue holding at most maxSize entries.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &DeadLetterQueue{cap: maxSize}
}

// Add appends an entry, evicting the oldest when at capacity.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) >= q.cap {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of the queue, oldest first.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]DeadLetterEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Size returns the number of queued entries.
func (q *DeadLetterQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// Clear drops every entry.
func (q *DeadLetterQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}

// Pop removes and returns the oldest entry.
func (q *DeadLetterQueue) Pop() (DeadLetterEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return DeadLetterEntry{}, false
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return head, true
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// DispatcherMetrics accumulates dispatch and execution counters.
type DispatcherMetrics struct {
	mu sync.RWMutex

	dispatched map[shared.EventType]int64
	executions int64
	successes  int64
	failures   int64
	retries    int64

	elapsed   time.Duration
	startedAt time.Time
}

// NewDispatcherMetrics creates an empty collector.
func NewDispatcherMetrics() *DispatcherMetrics {
	return &DispatcherMetrics{
		dispatched: make(map[shared.EventType]int64),
		startedAt:  time.Now(),
	}
}

// RecordDispatch counts one dispatched event.
func (m *DispatcherMetrics) RecordDispatch(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatched[eventType]++
}

// RecordExecution counts one handler attempt.
func (m *DispatcherMetrics) RecordExecution(eventType shared.EventType, elapsed time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions++
	m.elapsed += elapsed
	if success {
		m.successes++
	} else {
		m.failures++
	}
}

// RecordRetrySuccess counts a handler recovered by retrying.
func (m *DispatcherMetrics) RecordRetrySuccess(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

// RecordFailure counts a handler that exhausted its retries.
func (m *DispatcherMetrics) RecordFailure(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

// Snapshot returns a point-in-time view of the counters.
func (m *DispatcherMetrics) Snapshot() DispatcherMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var totalDispatched int64
	for _, n := range m.dispatched {
		totalDispatched += n
	}

	avg := time.Duration(0)
	rate := 1.0
	if m.executions > 0 {
		avg = m.elapsed / time.Duration(m.executions)
		rate = float64(m.successes) / float64(m.executions)
	}

	return DispatcherMetricsSnapshot{
		TotalDispatched: totalDispatched,
		TotalExecutions: m.executions,
		TotalFailures:   m.failures,
		TotalRetries:    m.retries,
		SuccessRate:     rate,
		AverageDuration: avg,
		LastReset:       m.startedAt,
	}
}

// DispatcherMetricsSnapshot is an immutable counter snapshot.
type DispatcherMetricsSnapshot struct {
	TotalDispatched int64
	TotalExecutions int64
	TotalFailures   int64
	TotalRetries    int64
	SuccessRate     float64
	AverageDuration time.Duration
	LastReset       time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// DispatcherBuilder assembles a Dispatcher fluently.
type DispatcherBuilder struct {
	cfg DispatcherConfig
}

// NewDispatcherBuilder starts from DefaultDispatcherConfig.
func NewDispatcherBuilder(bus shared.EventBus) *DispatcherBuilder {
	return &DispatcherBuilder{cfg: DefaultDispatcherConfig(bus)}
}

func (b *DispatcherBuilder) WithWorkerPoolSize(size int) *DispatcherBuilder {
	b.cfg.WorkerPoolSize = size
	return b
}

func (b *DispatcherBuilder) WithRetryConfig(cfg RetryConfig) *DispatcherBuilder {
	b.cfg.RetryConfig = cfg
	return b
}

func (b *DispatcherBuilder) WithDeadLetterQueue(size int) *DispatcherBuilder {
	b.cfg.EnableDeadLetterQueue = true
	b.cfg.DeadLetterQueueSize = size
	return b
}

func (b *DispatcherBuilder) WithLogger(log *logger.Logger) *DispatcherBuilder {
	b.cfg.Logger = log
	return b
}

// Build creates the dispatcher.
func (b *DispatcherBuilder) Build() *Dispatcher {
	return NewDispatcher(b.cfg)
}
