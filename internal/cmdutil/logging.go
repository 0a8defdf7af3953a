package cmdutil

import (
	"fmt"
	"log/slog"

	"github.com/leefowlercu/asset-snapshot/internal/config"
	"github.com/leefowlercu/asset-snapshot/internal/logging"
)

var logManager *logging.Manager

// SetLogManager registers the process log manager for long-running commands
// that adjust logging on config reload.
func SetLogManager(m *logging.Manager) {
	logManager = m
}

// Logger returns the process logger, or slog.Default before SetLogManager.
func Logger() *slog.Logger {
	if logManager == nil {
		return slog.Default()
	}
	return logManager.Logger()
}

// ApplyLogConfig re-reads log_file and log_level and applies them to the
// registered log manager.
func ApplyLogConfig() error {
	if logManager == nil {
		return nil
	}

	levelStr := config.GetString("log_level")
	level, ok := logging.ParseLevel(levelStr)
	if !ok {
		return fmt.Errorf("invalid log level %q", levelStr)
	}
	if err := logManager.Upgrade(config.GetPath("log_file"), level); err != nil {
		return fmt.Errorf("failed to apply log settings; %w", err)
	}
	return nil
}

// RotateLog starts a new log file.
func RotateLog() error {
	if logManager == nil {
		return nil
	}
	return logManager.Rotate()
}
