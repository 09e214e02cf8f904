package handlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/domain/word"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECKING
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker aggregates named probes into a single service status.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
	AddCheck(name string, check HealthCheckFunc)
	RemoveCheck(name string)
}

// HealthCheckFunc probes one backend. A nil return means healthy.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the aggregated result of every registered probe.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Healthy     bool      `json:"healthy"`
	Message     string    `json:"message,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	LastChecked time.Time `json:"last_checked,omitempty"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Composite checker
// ──────────────────────────────────────────────────────────────────────────────

// CompositeHealthChecker runs its probes in parallel, each under its
// own timeout so a stalled backend cannot block the whole report.
type CompositeHealthChecker struct {
	mu      sync.RWMutex
	probes  map[string]HealthCheckFunc
	started time.Time
	version string
	timeout time.Duration
}

// NewCompositeHealthChecker creates a checker reporting the given
// version string. Probes default to a 5 second timeout.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		probes:  make(map[string]HealthCheckFunc),
		started: time.Now(),
		version: version,
		timeout: 5 * time.Second,
	}
}

// SetTimeout changes the per-probe timeout.
func (c *CompositeHealthChecker) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// AddCheck registers a probe under name, replacing any prior one.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = check
}

// RemoveCheck drops the probe registered under name.
func (c *CompositeHealthChecker) RemoveCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.probes, name)
}

// Check runs every probe and aggregates the results.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	probes := make(map[string]HealthCheckFunc, len(c.probes))
	for name, probe := range c.probes {
		probes[name] = probe
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult),
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}

	if len(probes) == 0 {
		status.Message = "No health checks registered"
		return status
	}

	var wg sync.WaitGroup
	var resMu sync.Mutex

	for name, probe := range probes {
		wg.Add(1)
		go func(name string, probe HealthCheckFunc) {
			defer wg.Done()
			result := c.runProbe(ctx, probe)
			resMu.Lock()
			status.Checks[name] = result
			resMu.Unlock()
		}(name, probe)
	}
	wg.Wait()

	var failed []string
	for name, result := range status.Checks {
		if !result.Healthy {
			status.Healthy = false
			status.Ready = false
			failed = append(failed, name)
		}
	}

	if status.Healthy {
		status.Message = "All checks passed"
	} else {
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}
	return status
}

func (c *CompositeHealthChecker) runProbe(ctx context.Context, probe HealthCheckFunc) CheckResult {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := probe(probeCtx)

	result := CheckResult{
		Healthy:     err == nil,
		Message:     "OK",
		Duration:    time.Since(start).Round(time.Millisecond).String(),
		LastChecked: time.Now().UTC(),
	}
	if err != nil {
		result.Message = err.Error()
	}
	return result
}

// ──────────────────────────────────────────────────────────────────────────────
// Built-in probes
// ──────────────────────────────────────────────────────────────────────────────

// NewStorageCheck probes the key-value store with a read. The key may
// legitimately not exist; only transport or backend failures count.
func NewStorageCheck(store storage.KeyValueStore) HealthCheckFunc {
	return func(ctx context.Context) error {
		_, err := store.Get(ctx, storage.KeyUser)
		if err != nil && !shared.IsNotFound(err) {
			return err
		}
		return nil
	}
}

// NewCatalogCheck fails when the word catalog holds no entries.
func NewCatalogCheck(catalog *word.Catalog) HealthCheckFunc {
	return func(ctx context.Context) error {
		if catalog.Len() == 0 {
			return shared.NewDomainError("word", "HealthCheck", shared.ErrEmptyValue, "word catalog is empty")
		}
		return nil
	}
}

// Pinger matches database pools and cache clients that expose a Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck wraps any Ping-able backend as a probe.
func NewPingCheck(p Pinger) HealthCheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Noop checker
// ──────────────────────────────────────────────────────────────────────────────

// NoopHealthChecker reports healthy unconditionally. Useful in tests
// and in deployments without backend probes.
type NoopHealthChecker struct {
	started time.Time
}

func NewNoopHealthChecker() *NoopHealthChecker {
	return &NoopHealthChecker{started: time.Now()}
}

func (n *NoopHealthChecker) Check(ctx context.Context) HealthStatus {
	return HealthStatus{
		Healthy:   true,
		Ready:     true,
		Message:   "OK",
		Uptime:    time.Since(n.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
}

func (n *NoopHealthChecker) AddCheck(name string, check HealthCheckFunc) {}
func (n *NoopHealthChecker) RemoveCheck(name string)                     {}
