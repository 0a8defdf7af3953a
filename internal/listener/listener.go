// Package listener runs the long-lived import process: the HTTP listener,
// the inbox watcher and periodic metrics collection, under one PID file.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leefowlercu/asset-snapshot/internal/events"
	"github.com/leefowlercu/asset-snapshot/internal/imports"
	"github.com/leefowlercu/asset-snapshot/internal/server"
)

// Component names reported to the health manager.
const (
	ComponentServer  = "listener"
	ComponentWatcher = "inbox_watcher"
	ComponentMetrics = "metrics"
)

// HTTPServer is the import endpoint.
type HTTPServer interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Watcher imports archives dropped into the inbox.
type Watcher interface {
	Start(ctx context.Context) error
	Stop() error
	Errors() <-chan error
}

// Collector refreshes gauges on an interval.
type Collector interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ReloadFunc is invoked after the configuration was reloaded.
type ReloadFunc func(changed []string) error

// Config holds listener process settings.
type Config struct {
	ShutdownTimeout time.Duration
	PIDFile         string
}

// Listener owns the lifecycle of the import process. It is safe for
// concurrent use.
type Listener struct {
	cfg       Config
	server    HTTPServer
	health    *server.HealthManager
	pidFile   *server.PIDFile
	watcher   Watcher
	collector Collector
	bus       events.Bus
	logger    *slog.Logger

	mu        sync.RWMutex
	state     State
	callbacks []ReloadFunc
	unsubs    []func()
}

// Option configures a Listener.
type Option func(*Listener)

// WithWatcher enables the inbox watcher.
func WithWatcher(w Watcher) Option {
	return func(l *Listener) {
		l.watcher = w
	}
}

// WithCollector enables periodic metrics collection.
func WithCollector(c Collector) Option {
	return func(l *Listener) {
		l.collector = c
	}
}

// WithBus subscribes the listener to import and config events.
func WithBus(b events.Bus) Option {
	return func(l *Listener) {
		l.bus = b
	}
}

// WithLogger sets the listener logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) {
		l.logger = logger
	}
}

// New creates a Listener around srv.
func New(cfg Config, srv HTTPServer, health *server.HealthManager, opts ...Option) *Listener {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	l := &Listener{
		cfg:     cfg,
		server:  srv,
		health:  health,
		pidFile: server.NewPIDFile(cfg.PIDFile),
		logger:  slog.Default(),
		state:   StateStopped,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the current lifecycle state.
func (l *Listener) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Listener) setState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != s {
		l.logger.Debug("listener state changed", "from", l.state, "to", s)
	}
	l.state = s
}

// OnConfigReload registers fn to run after every successful config reload.
func (l *Listener) OnConfigReload(fn ReloadFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, fn)
}

// TriggerConfigReload runs every reload callback. All callbacks run even
// when some fail.
func (l *Listener) TriggerConfigReload(changed []string) error {
	l.mu.RLock()
	callbacks := make([]ReloadFunc, len(l.callbacks))
	copy(callbacks, l.callbacks)
	l.mu.RUnlock()

	var errs []error
	for i, fn := range callbacks {
		if err := fn(changed); err != nil {
			l.logger.Error("config reload callback failed", "callback_index", i, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d reload callbacks failed; %w", len(errs), len(callbacks), errors.Join(errs...))
	}
	return nil
}

// Run claims the PID file, starts every component and blocks until ctx is
// cancelled or the HTTP server fails. Components are stopped in reverse
// start order before Run returns.
func (l *Listener) Run(ctx context.Context) error {
	l.setState(StateStarting)

	if err := l.pidFile.Claim(); err != nil {
		l.setState(StateStopped)
		return fmt.Errorf("failed to claim PID file; %w", err)
	}
	defer func() { _ = l.pidFile.Remove() }()

	l.subscribe()

	if l.collector != nil {
		if err := l.collector.Start(ctx); err != nil {
			l.health.Report(ComponentMetrics, err)
		} else {
			l.health.Report(ComponentMetrics, nil)
		}
	}

	watcherDone := make(chan struct{})
	if l.watcher != nil {
		if err := l.watcher.Start(ctx); err != nil {
			l.logger.Error("inbox watcher failed to start", "error", err)
			l.health.Report(ComponentWatcher, err)
		} else {
			l.health.Report(ComponentWatcher, nil)
			go l.watchErrors(watcherDone)
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- l.server.Start(ctx)
	}()
	l.health.Report(ComponentServer, nil)

	l.refreshState()
	l.logger.Info("listener started", "state", l.State(), "pid_file", l.pidFile.Path())

	var runErr error
	select {
	case <-ctx.Done():
		l.logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			l.logger.Error("http server error", "error", err)
			l.health.Report(ComponentServer, err)
			runErr = err
		}
	}

	close(watcherDone)
	l.stop()
	return runErr
}

// refreshState moves between running and degraded from component health.
func (l *Listener) refreshState() {
	status := l.health.Status()

	l.mu.Lock()
	defer l.mu.Unlock()

	target := StateRunning
	if status.Status != "healthy" {
		target = StateDegraded
	}
	if l.state != target && l.state.CanTransitionTo(target) {
		l.state = target
	}
}

func (l *Listener) watchErrors(done <-chan struct{}) {
	errs := l.watcher.Errors()
	for {
		select {
		case <-done:
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			l.logger.Error("inbox watcher error", "error", err)
			l.health.Report(ComponentWatcher, err)
			l.refreshState()
		}
	}
}

func (l *Listener) subscribe() {
	if l.bus == nil {
		return
	}

	onImport := func(e events.Event) {
		payload, ok := e.Payload.(*events.ImportEvent)
		if !ok || payload.Source != imports.SourceInbox {
			return
		}
		l.health.RecordImport(server.LastImport{
			Mode:       payload.Mode,
			Imported:   payload.Imported,
			Skipped:    payload.Skipped,
			Error:      payload.Error,
			FinishedAt: e.Timestamp,
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.unsubs = append(l.unsubs,
		l.bus.Subscribe(events.ImportCompleted, onImport),
		l.bus.Subscribe(events.ImportFailed, onImport),
		l.bus.Subscribe(events.ConfigReloaded, func(e events.Event) {
			payload, ok := e.Payload.(*events.ConfigEvent)
			if !ok {
				return
			}
			_ = l.TriggerConfigReload(payload.ChangedSections)
		}),
	)
}

func (l *Listener) stop() {
	l.setState(StateStopping)
	l.logger.Info("stopping listener")

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.ShutdownTimeout)
	defer cancel()

	if err := l.server.Shutdown(ctx); err != nil {
		l.logger.Error("failed to shutdown http server", "error", err)
	}
	if l.watcher != nil {
		if err := l.watcher.Stop(); err != nil {
			l.logger.Error("failed to stop inbox watcher", "error", err)
		}
	}
	if l.collector != nil {
		_ = l.collector.Stop(ctx)
	}

	l.mu.Lock()
	unsubs := l.unsubs
	l.unsubs = nil
	l.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}

	l.setState(StateStopped)
	l.logger.Info("listener stopped")
}
