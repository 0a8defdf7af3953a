package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leefowlercu/asset-snapshot/internal/archive"
	"github.com/leefowlercu/asset-snapshot/internal/logging"
)

// ValidationError represents a config validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation failures.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("config validation failed:\n")
	for _, err := range e {
		b.WriteString("  - ")
		b.WriteString(err.Error())
		b.WriteString("\n")
	}
	return b.String()
}

// Validate checks the configuration for errors.
// Returns ValidationErrors if validation fails.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	notEmpty := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			add(field, "must not be empty")
		}
	}
	port := func(field string, value int) {
		if value < 1 || value > 65535 {
			add(field, "must be between 1 and 65535, got %d", value)
		}
	}
	atLeast := func(field string, value, min int) {
		if value < min {
			add(field, "must be at least %d, got %d", min, value)
		}
	}

	if cfg.LogLevel != "" {
		if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
			add("log_level", "must be one of: %s; got %q", strings.Join(logging.LevelNames, ", "), cfg.LogLevel)
		}
	}

	notEmpty("project.dir", cfg.Project.Dir)
	if ns := cfg.Project.Namespace; !strings.HasPrefix(ns, "/") || !strings.HasSuffix(ns, "/") || len(ns) < 3 {
		add("project.namespace", "must look like /Name/, got %q", ns)
	}
	if strings.ContainsAny(cfg.Project.VendorNamespace, `/\`) {
		add("project.vendor_namespace", "must be a single folder name, got %q", cfg.Project.VendorNamespace)
	}

	notEmpty("export.root", cfg.Export.Root)
	notEmpty("export.staging_dir", cfg.Export.StagingDir)
	notEmpty("export.ledger_file", cfg.Export.LedgerFile)

	port("server.import_listen_port", cfg.Server.ImportListenPort)
	notEmpty("server.import_listen_bind", cfg.Server.ImportListenBind)
	atLeast("server.notify_rate", cfg.Server.NotifyRate, 1)
	atLeast("server.request_timeout", cfg.Server.RequestTimeout, 1)
	atLeast("server.upload_timeout", cfg.Server.UploadTimeout, 1)
	atLeast("server.download_timeout", cfg.Server.DownloadTimeout, 1)
	atLeast("server.shutdown_timeout", cfg.Server.ShutdownTimeout, 1)
	notEmpty("server.pid_file", cfg.Server.PIDFile)

	notEmpty("import.inbox_dir", cfg.Import.InboxDir)
	atLeast("import.debounce_ms", cfg.Import.DebounceMS, 0)
	if _, err := archive.ParseMode(cfg.Import.Mode); err != nil {
		add("import.mode", "must be override or skip, got %q", cfg.Import.Mode)
	}

	atLeast("metrics.collection_interval", cfg.Metrics.CollectionInterval, 1)

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve ValidationError
	var ves ValidationErrors
	return errors.As(err, &ve) || errors.As(err, &ves)
}
