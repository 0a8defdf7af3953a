package metrics

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// MetricsProvider refreshes gauges owned by a component. An error marks the
// component unhealthy in component_status.
type MetricsProvider interface {
	CollectMetrics(ctx context.Context) error
}

// Collector polls registered providers on an interval.
type Collector struct {
	mu        sync.Mutex
	providers map[string]MetricsProvider
	interval  time.Duration
	version   string
	clock     clock.Clock
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithCollectorClock replaces the wall clock, for tests.
func WithCollectorClock(clk clock.Clock) CollectorOption {
	return func(c *Collector) {
		c.clock = clk
	}
}

// WithCollectorLogger sets the logger for provider failures.
func WithCollectorLogger(logger *slog.Logger) CollectorOption {
	return func(c *Collector) {
		c.logger = logger
	}
}

// NewCollector creates a collector that polls every interval. A
// non-positive interval falls back to 15 seconds.
func NewCollector(interval time.Duration, version string, opts ...CollectorOption) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	c := &Collector{
		providers: make(map[string]MetricsProvider),
		interval:  interval,
		version:   version,
		clock:     clock.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds or replaces the provider reported as name.
func (c *Collector) Register(name string, provider MetricsProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = provider
}

// Unregister removes a provider and its status series.
func (c *Collector) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.providers, name)
	ComponentStatus.DeleteLabelValues(name)
}

// Start publishes process info, collects once and then polls until Stop or
// ctx is done. Starting a running collector is a no-op.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	ServerStartTime.Set(float64(c.clock.Now().Unix()))
	ServerInfo.WithLabelValues(c.version, runtime.Version()).Set(1)

	c.collect(runCtx)

	ticker := c.clock.Ticker(c.interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		c.run(runCtx, ticker)
	}()

	return nil
}

// Stop ends polling and waits for an in-progress round, bounded by ctx.
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the polling loop is active.
func (c *Collector) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done != nil
}

func (c *Collector) run(ctx context.Context, ticker *clock.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

// collect polls every provider once in name order. Each provider gets at
// most one interval to answer.
func (c *Collector) collect(ctx context.Context) {
	c.mu.Lock()
	names := make([]string, 0, len(c.providers))
	providers := make(map[string]MetricsProvider, len(c.providers))
	for name, p := range c.providers {
		names = append(names, name)
		providers[name] = p
	}
	c.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		roundCtx, cancel := context.WithTimeout(ctx, c.interval)
		err := providers[name].CollectMetrics(roundCtx)
		cancel()

		if err != nil {
			c.logger.Debug("metrics provider failed", "component", name, "error", err)
			ComponentStatus.WithLabelValues(name).Set(0)
			continue
		}
		ComponentStatus.WithLabelValues(name).Set(1)
	}
}
