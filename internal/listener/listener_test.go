package listener

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/leefowlercu/asset-snapshot/internal/events"
	"github.com/leefowlercu/asset-snapshot/internal/imports"
	"github.com/leefowlercu/asset-snapshot/internal/server"
)

// recorder collects component lifecycle calls in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeServer struct {
	rec      *recorder
	startErr error
	stopped  chan struct{}
	once     sync.Once
}

func newFakeServer(rec *recorder) *fakeServer {
	return &fakeServer{rec: rec, stopped: make(chan struct{})}
}

func (s *fakeServer) Start(ctx context.Context) error {
	s.rec.add("server.start")
	if s.startErr != nil {
		return s.startErr
	}
	<-s.stopped
	return nil
}

func (s *fakeServer) Shutdown(ctx context.Context) error {
	s.rec.add("server.shutdown")
	s.once.Do(func() { close(s.stopped) })
	return nil
}

type fakeWatcher struct {
	rec      *recorder
	startErr error
	errs     chan error
}

func (w *fakeWatcher) Start(ctx context.Context) error {
	w.rec.add("watcher.start")
	return w.startErr
}

func (w *fakeWatcher) Stop() error {
	w.rec.add("watcher.stop")
	return nil
}

func (w *fakeWatcher) Errors() <-chan error {
	return w.errs
}

type fakeCollector struct{ rec *recorder }

func (c *fakeCollector) Start(ctx context.Context) error {
	c.rec.add("collector.start")
	return nil
}

func (c *fakeCollector) Stop(ctx context.Context) error {
	c.rec.add("collector.stop")
	return nil
}

func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func runInBackground(l *Listener, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return done
}

func TestState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateStarting, StateRunning, true},
		{StateStarting, StateDegraded, true},
		{StateStarting, StateStopping, false},
		{StateRunning, StateDegraded, true},
		{StateRunning, StateStopped, false},
		{StateDegraded, StateRunning, true},
		{StateStopping, StateStopped, true},
		{StateStopping, StateRunning, false},
		{StateStopped, StateStarting, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	if !StateStopped.IsTerminal() || StateRunning.IsTerminal() {
		t.Error("only stopped should be terminal")
	}
}

func TestListener_RunLifecycle(t *testing.T) {
	rec := &recorder{}
	pidPath := filepath.Join(t.TempDir(), "listener.pid")
	health := server.NewHealthManager(nil)

	l := New(Config{PIDFile: pidPath, ShutdownTimeout: time.Second}, newFakeServer(rec), health,
		WithWatcher(&fakeWatcher{rec: rec, errs: make(chan error)}),
		WithCollector(&fakeCollector{rec: rec}))

	ctx, cancel := context.WithCancel(context.Background())
	done := runInBackground(l, ctx)

	waitUntil(t, func() bool { return l.State() == StateRunning }, "listener never reached running")

	data, err := os.ReadFile(pidPath)
	if err != nil {
		t.Fatalf("PID file not written: %v", err)
	}
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Errorf("PID file = %q, want %d", data, os.Getpid())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if l.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", l.State())
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("PID file should be removed on exit")
	}

	var calls []string
	for _, c := range rec.list() {
		if c != "server.start" {
			calls = append(calls, c)
		}
	}
	tail := calls[len(calls)-3:]
	want := []string{"server.shutdown", "watcher.stop", "collector.stop"}
	for i := range want {
		if tail[i] != want[i] {
			t.Errorf("shutdown order = %v, want %v", tail, want)
			break
		}
	}
	if calls[0] != "collector.start" || calls[1] != "watcher.start" {
		t.Errorf("start order = %v", calls)
	}
}

func TestListener_PIDFileHeld(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "listener.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		t.Fatal(err)
	}

	l := New(Config{PIDFile: pidPath}, newFakeServer(&recorder{}), server.NewHealthManager(nil))
	err := l.Run(context.Background())
	if !errors.Is(err, server.ErrAlreadyRunning) {
		t.Fatalf("Run() error = %v, want ErrAlreadyRunning", err)
	}
	if l.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", l.State())
	}
}

func TestListener_WatcherFailureDegrades(t *testing.T) {
	rec := &recorder{}
	health := server.NewHealthManager(nil)
	l := New(Config{PIDFile: filepath.Join(t.TempDir(), "l.pid")}, newFakeServer(rec), health,
		WithWatcher(&fakeWatcher{rec: rec, startErr: errors.New("watch limit reached"), errs: make(chan error)}))

	ctx, cancel := context.WithCancel(context.Background())
	done := runInBackground(l, ctx)
	defer func() { cancel(); <-done }()

	waitUntil(t, func() bool { return l.State() == StateDegraded }, "listener should be degraded")

	status := health.Status()
	if status.Components[ComponentWatcher].Healthy {
		t.Error("watcher should be reported unhealthy")
	}
	if !status.Components[ComponentServer].Healthy {
		t.Error("server should still be healthy")
	}
}

func TestListener_WatcherRuntimeError(t *testing.T) {
	rec := &recorder{}
	errs := make(chan error, 1)
	health := server.NewHealthManager(nil)
	l := New(Config{PIDFile: filepath.Join(t.TempDir(), "l.pid")}, newFakeServer(rec), health,
		WithWatcher(&fakeWatcher{rec: rec, errs: errs}))

	ctx, cancel := context.WithCancel(context.Background())
	done := runInBackground(l, ctx)
	defer func() { cancel(); <-done }()

	waitUntil(t, func() bool { return l.State() == StateRunning }, "listener never reached running")
	errs <- errors.New("inotify queue overflow")
	waitUntil(t, func() bool { return l.State() == StateDegraded }, "watcher error should degrade listener")

	if got := health.Status().Components[ComponentWatcher].Error; got != "inotify queue overflow" {
		t.Errorf("watcher error = %q", got)
	}
}

func TestListener_ServerErrorStopsRun(t *testing.T) {
	rec := &recorder{}
	srv := newFakeServer(rec)
	srv.startErr = errors.New("address already in use")

	l := New(Config{PIDFile: filepath.Join(t.TempDir(), "l.pid")}, srv, server.NewHealthManager(nil))
	err := l.Run(context.Background())
	if err == nil || err.Error() != "address already in use" {
		t.Errorf("Run() error = %v", err)
	}
	if l.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", l.State())
	}
}

func TestListener_TracksInboxImports(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	health := server.NewHealthManager(nil)
	l := New(Config{PIDFile: filepath.Join(t.TempDir(), "l.pid")}, newFakeServer(&recorder{}), health, WithBus(bus))

	ctx, cancel := context.WithCancel(context.Background())
	done := runInBackground(l, ctx)
	defer func() { cancel(); <-done }()
	waitUntil(t, func() bool { return l.State() == StateRunning }, "listener never reached running")

	// Downloads are recorded by the HTTP handler itself.
	_ = bus.Publish(ctx, events.NewImportCompleted(imports.SourceDownload, "/s/7.zip", "override", 9, 0))
	_ = bus.Publish(ctx, events.NewImportCompleted(imports.SourceInbox, "/inbox/a.zip", "skip", 2, 1))

	waitUntil(t, func() bool { return health.Status().LastImport != nil }, "inbox import not recorded")
	last := health.Status().LastImport
	if last.Imported != 2 || last.Skipped != 1 || last.Mode != "skip" {
		t.Errorf("LastImport = %+v", last)
	}
}

func TestListener_ConfigReloadCallbacks(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	l := New(Config{PIDFile: filepath.Join(t.TempDir(), "l.pid")}, newFakeServer(&recorder{}), server.NewHealthManager(nil), WithBus(bus))

	got := make(chan []string, 1)
	l.OnConfigReload(func(changed []string) error {
		got <- changed
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := runInBackground(l, ctx)
	defer func() { cancel(); <-done }()
	waitUntil(t, func() bool { return l.State() == StateRunning }, "listener never reached running")

	_ = bus.Publish(ctx, events.NewConfigReloaded([]string{"log_level"}, true))

	select {
	case changed := <-got:
		if len(changed) != 1 || changed[0] != "log_level" {
			t.Errorf("changed = %v", changed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reload callback not invoked")
	}
}

func TestListener_TriggerConfigReloadRunsAll(t *testing.T) {
	l := New(Config{}, newFakeServer(&recorder{}), server.NewHealthManager(nil))

	calls := 0
	l.OnConfigReload(func([]string) error { calls++; return errors.New("first") })
	l.OnConfigReload(func([]string) error { calls++; return nil })
	l.OnConfigReload(func([]string) error { calls++; return errors.New("third") })

	err := l.TriggerConfigReload(nil)
	if err == nil {
		t.Fatal("TriggerConfigReload() should report failures")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}
