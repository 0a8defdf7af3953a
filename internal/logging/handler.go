package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// SwappableHandler forwards records to a handler that can be replaced at
// runtime. Children derived through WithAttrs or WithGroup share the same
// swap point, so loggers created before Upgrade still reach the log file.
type SwappableHandler struct {
	root *swapPoint
	// derive replays WithAttrs/WithGroup calls on top of the root handler.
	derive []func(slog.Handler) slog.Handler
}

type swapPoint struct {
	handler atomic.Pointer[slog.Handler]
}

// NewSwappableHandler creates a handler with an initial handler.
func NewSwappableHandler(initial slog.Handler) *SwappableHandler {
	sp := &swapPoint{}
	sp.handler.Store(&initial)
	return &SwappableHandler{root: sp}
}

// Swap atomically replaces the underlying handler for this handler and every
// child derived from it.
func (sh *SwappableHandler) Swap(newHandler slog.Handler) {
	sh.root.handler.Store(&newHandler)
}

func (sh *SwappableHandler) current() slog.Handler {
	h := *sh.root.handler.Load()
	for _, fn := range sh.derive {
		h = fn(h)
	}
	return h
}

// Enabled reports whether the handler handles records at the given level.
func (sh *SwappableHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return sh.current().Enabled(ctx, level)
}

// Handle handles the Record.
func (sh *SwappableHandler) Handle(ctx context.Context, r slog.Record) error {
	return sh.current().Handle(ctx, r)
}

// WithAttrs returns a child handler that adds attrs to every record.
func (sh *SwappableHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return sh.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

// WithGroup returns a child handler that nests attributes under name.
func (sh *SwappableHandler) WithGroup(name string) slog.Handler {
	return sh.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (sh *SwappableHandler) with(fn func(slog.Handler) slog.Handler) *SwappableHandler {
	derive := make([]func(slog.Handler) slog.Handler, len(sh.derive), len(sh.derive)+1)
	copy(derive, sh.derive)
	return &SwappableHandler{root: sh.root, derive: append(derive, fn)}
}
