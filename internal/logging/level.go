package logging

import (
	"log/slog"
	"strings"
)

// DefaultLevel applies when log_level is unset or unrecognized.
const DefaultLevel = slog.LevelInfo

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// LevelNames lists the canonical log_level values.
var LevelNames = []string{"debug", "info", "warn", "error"}

// ParseLevel maps a configured log_level to a slog level, ignoring case and
// surrounding space. Unknown names yield (DefaultLevel, false).
func ParseLevel(s string) (slog.Level, bool) {
	if level, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return level, true
	}
	return DefaultLevel, false
}
