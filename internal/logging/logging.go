// Package logging owns the process logger: text on stderr from startup, then
// a fan-out to stderr and a rotating JSON file once configuration is known.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the JSON log file.
const (
	DefaultMaxSizeMB  = 20
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 28
)

// Manager handles logger lifecycle including bootstrap-to-full mode transitions.
// Components should obtain a logger via Logger() and use it for all logging.
type Manager struct {
	handler *SwappableHandler
	logger  *slog.Logger
	level   *slog.LevelVar
	stderr  io.Writer

	maxSizeMB  int
	maxBackups int
	maxAgeDays int

	mu   sync.Mutex
	file *lumberjack.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStderr replaces the console writer. Used by tests.
func WithStderr(w io.Writer) ManagerOption {
	return func(m *Manager) {
		m.stderr = w
	}
}

// WithRotation sets log file rotation limits. Zero keeps the default.
func WithRotation(maxSizeMB, maxBackups, maxAgeDays int) ManagerOption {
	return func(m *Manager) {
		if maxSizeMB > 0 {
			m.maxSizeMB = maxSizeMB
		}
		if maxBackups > 0 {
			m.maxBackups = maxBackups
		}
		if maxAgeDays > 0 {
			m.maxAgeDays = maxAgeDays
		}
	}
}

// NewManager creates a logging manager in bootstrap mode.
// Bootstrap mode writes only to stderr using text format.
// Call Upgrade() after config is available to enable file logging.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		level:      new(slog.LevelVar),
		stderr:     os.Stderr,
		maxSizeMB:  DefaultMaxSizeMB,
		maxBackups: DefaultMaxBackups,
		maxAgeDays: DefaultMaxAgeDays,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.level.Set(DefaultLevel)

	bootstrap := slog.NewTextHandler(m.stderr, &slog.HandlerOptions{Level: m.level})
	m.handler = NewSwappableHandler(bootstrap)
	m.logger = slog.New(m.handler)
	return m
}

// Logger returns the current logger instance.
// The returned logger is stable across Upgrade calls.
func (m *Manager) Logger() *slog.Logger {
	return m.logger
}

// Component returns a logger tagged with the component name.
func (m *Manager) Component(name string) *slog.Logger {
	return m.logger.With("component", name)
}

// Upgrade transitions from bootstrap mode (stderr-only) to full mode
// (stderr text + rotating JSON file). Call after config is initialized.
func (m *Manager) Upgrade(logFilePath string, level slog.Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Dir(logFilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %q; %w", dir, err)
	}

	// lumberjack opens lazily; probe now so a bad path fails the upgrade.
	probe, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %q; %w", logFilePath, err)
	}
	_ = probe.Close()

	if m.file != nil {
		_ = m.file.Close()
	}
	m.file = &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    m.maxSizeMB,
		MaxBackups: m.maxBackups,
		MaxAge:     m.maxAgeDays,
		Compress:   true,
	}

	m.level.Set(level)
	opts := &slog.HandlerOptions{Level: m.level}

	m.handler.Swap(slogmulti.Fanout(
		slog.NewTextHandler(m.stderr, opts),
		slog.NewJSONHandler(m.file, opts),
	))

	return nil
}

// Rotate closes the current log file and starts a new one.
func (m *Manager) Rotate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file == nil {
		return nil
	}
	return m.file.Rotate()
}

// SetLevel changes the log level at runtime.
func (m *Manager) SetLevel(level slog.Level) {
	m.level.Set(level)
}

// Level returns the current log level.
func (m *Manager) Level() slog.Level {
	return m.level.Level()
}

// Close cleanly shuts down the logger, closing any open file handles.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file != nil {
		err := m.file.Close()
		m.file = nil
		m.handler.Swap(slog.NewTextHandler(m.stderr, &slog.HandlerOptions{Level: m.level}))
		return err
	}
	return nil
}
