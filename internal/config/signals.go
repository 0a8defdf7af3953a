package config

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalOption configures the signal handler.
type SignalOption func(*signalHandler)

// WithRotateHook runs fn when SIGUSR1 arrives. Used to reopen the log file
// after external log rotation.
func WithRotateHook(fn func() error) SignalOption {
	return func(h *signalHandler) {
		h.rotate = fn
	}
}

type signalHandler struct {
	signals chan os.Signal
	stop    chan struct{}
	done    chan struct{}
	rotate  func() error
}

var (
	// reloadMu prevents concurrent reload attempts
	reloadMu sync.Mutex

	// signalMu protects active
	signalMu sync.Mutex
	active   *signalHandler
)

// SetupSignalHandler starts a goroutine that reloads config on SIGHUP and
// runs the rotate hook on SIGUSR1. A SIGHUP that arrives during a reload is
// dropped. Calling it again replaces the previous handler.
func SetupSignalHandler(opts ...SignalOption) {
	StopSignalHandler()

	h := &signalHandler{
		signals: make(chan os.Signal, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	sigs := []os.Signal{syscall.SIGHUP}
	if h.rotate != nil {
		sigs = append(sigs, syscall.SIGUSR1)
	}
	signal.Notify(h.signals, sigs...)

	signalMu.Lock()
	active = h
	signalMu.Unlock()

	go h.run()
}

func (h *signalHandler) run() {
	defer close(h.done)
	for {
		select {
		case sig := <-h.signals:
			h.handle(sig)
		case <-h.stop:
			signal.Stop(h.signals)
			return
		}
	}
}

func (h *signalHandler) handle(sig os.Signal) {
	switch sig {
	case syscall.SIGHUP:
		if !reloadMu.TryLock() {
			slog.Debug("SIGHUP received during reload; ignoring")
			return
		}
		defer reloadMu.Unlock()

		slog.Info("received SIGHUP; reloading config")
		_ = Reload() // logged and published by Reload
	case syscall.SIGUSR1:
		slog.Info("received SIGUSR1; rotating log file")
		if err := h.rotate(); err != nil {
			slog.Error("log rotation failed", "error", err)
		}
	}
}

// StopSignalHandler stops the signal handler goroutine and waits for it to exit.
func StopSignalHandler() {
	signalMu.Lock()
	h := active
	active = nil
	signalMu.Unlock()

	if h == nil {
		return
	}
	close(h.stop)
	<-h.done
}
