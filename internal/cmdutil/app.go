// Package cmdutil holds the wiring shared by snapshot commands: resolved
// project paths, the ledger, the catalog client, and terminal styling.
package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/leefowlercu/asset-snapshot/internal/archive"
	"github.com/leefowlercu/asset-snapshot/internal/config"
	"github.com/leefowlercu/asset-snapshot/internal/events"
	"github.com/leefowlercu/asset-snapshot/internal/export"
	"github.com/leefowlercu/asset-snapshot/internal/imports"
	"github.com/leefowlercu/asset-snapshot/internal/preview"
	"github.com/leefowlercu/asset-snapshot/internal/registry"
	"github.com/leefowlercu/asset-snapshot/internal/storage"
	"github.com/leefowlercu/asset-snapshot/internal/syncclient"
	"github.com/leefowlercu/asset-snapshot/internal/version"
)

// Paths are the configured project locations, made absolute.
type Paths struct {
	ProjectDir   string
	ContentDir   string
	RegistryFile string
	PreviewsDir  string
	ExportRoot   string
	StagingDir   string
	InboxDir     string
	LedgerFile   string
	PIDFile      string
}

// ResolvePaths resolves every configured path in cfg.
func ResolvePaths(cfg *config.Config) (Paths, error) {
	projectDir, err := ResolvePath("", cfg.Project.Dir)
	if err != nil {
		return Paths{}, fmt.Errorf("failed to resolve project dir; %w", err)
	}

	var p Paths
	p.ProjectDir = projectDir
	for _, item := range []struct {
		dst  *string
		path string
	}{
		{&p.ContentDir, cfg.Project.ResolvedContentDir()},
		{&p.RegistryFile, cfg.Project.ResolvedRegistryFile()},
		{&p.PreviewsDir, cfg.Project.PreviewsDir},
		{&p.ExportRoot, cfg.Export.Root},
		{&p.StagingDir, cfg.Export.StagingDir},
		{&p.InboxDir, cfg.Import.InboxDir},
		{&p.LedgerFile, cfg.Export.LedgerFile},
		{&p.PIDFile, cfg.Server.PIDFile},
	} {
		resolved, err := ResolvePath(projectDir, item.path)
		if err != nil {
			return Paths{}, fmt.Errorf("failed to resolve %s; %w", item.path, err)
		}
		*item.dst = resolved
	}
	return p, nil
}

// App bundles the components one command invocation needs. Build it with
// Open and release it with Close.
type App struct {
	Config *config.Config
	Paths  Paths
	Logger *slog.Logger
	Bus    *events.EventBus
	Ledger *storage.Storage
	Sync   *syncclient.Client

	registry *registry.Registry
}

// Open loads the typed config, resolves paths and opens the ledger.
func Open(ctx context.Context, logger *slog.Logger) (*App, error) {
	cfg, err := config.Get()
	if err != nil {
		return nil, err
	}
	paths, err := ResolvePaths(cfg)
	if err != nil {
		return nil, err
	}

	ledger, err := storage.Open(ctx, paths.LedgerFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger; %w", err)
	}

	return &App{
		Config: cfg,
		Paths:  paths,
		Logger: logger,
		Bus:    events.NewBus(events.WithLogger(logger)),
		Ledger: ledger,
		Sync:   NewSyncClient(cfg, logger),
	}, nil
}

// NewSyncClient builds a catalog client from the server section of cfg.
func NewSyncClient(cfg *config.Config, logger *slog.Logger) *syncclient.Client {
	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return syncclient.New(
		syncclient.WithLogger(logger.With("component", "sync")),
		syncclient.WithUserAgent(version.Get().UserAgent()),
		syncclient.WithNotifyRate(cfg.Server.NotifyRate),
		syncclient.WithTimeouts(syncclient.Timeouts{
			Default:  seconds(cfg.Server.RequestTimeout),
			Upload:   seconds(cfg.Server.UploadTimeout),
			Download: seconds(cfg.Server.DownloadTimeout),
		}),
	)
}

// Registry loads the asset registry on first use.
func (a *App) Registry() (*registry.Registry, error) {
	if a.registry != nil {
		return a.registry, nil
	}
	reg, err := registry.Load(a.Paths.RegistryFile, registry.WithLogger(a.Logger.With("component", "registry")))
	if err != nil {
		return nil, fmt.Errorf("failed to load asset registry; %w", err)
	}
	a.registry = reg
	return reg, nil
}

// Exporter builds an exporter over the project registry.
func (a *App) Exporter() (*export.Exporter, error) {
	reg, err := a.Registry()
	if err != nil {
		return nil, err
	}

	logger := a.Logger.With("component", "export")
	renderer := preview.NewDirectory(a.Paths.PreviewsDir,
		preview.WithNamespace(a.Config.Project.Namespace),
		preview.WithLogger(logger))

	return export.New(export.Config{
		ProjectDir:      a.Paths.ProjectDir,
		ContentDir:      a.Paths.ContentDir,
		ExportRoot:      a.Paths.ExportRoot,
		Namespace:       a.Config.Project.Namespace,
		VendorNamespace: a.Config.Project.VendorNamespace,
		BaseURL:         a.Config.Server.BaseURL,
	}, reg,
		export.WithRemote(a.Sync),
		export.WithRenderer(renderer),
		export.WithLedger(a.Ledger),
		export.WithBus(a.Bus),
		export.WithLogger(logger),
	), nil
}

// Importer builds an importer that rescans the registry after extraction.
// A missing registry disables the rescan rather than failing the import.
func (a *App) Importer() *imports.Importer {
	logger := a.Logger.With("component", "imports")
	opts := []imports.Option{
		imports.WithDownloader(a.Sync),
		imports.WithLedger(a.Ledger),
		imports.WithBus(a.Bus),
		imports.WithLogger(logger),
	}

	reg, err := a.Registry()
	switch {
	case err == nil:
		opts = append(opts, imports.WithRescanner(reg))
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("asset registry not found; imported files will not be rescanned", "path", a.Paths.RegistryFile)
	default:
		logger.Warn("asset registry unavailable; imported files will not be rescanned", "error", err)
	}

	return imports.New(imports.Config{
		ContentDir: a.Paths.ContentDir,
		StagingDir: a.Paths.StagingDir,
		BaseURL:    a.Config.Server.BaseURL,
	}, opts...)
}

// ImportMode parses mode, falling back to the configured import mode when
// mode is empty.
func (a *App) ImportMode(mode string) (archive.Mode, error) {
	if mode == "" {
		mode = a.Config.Import.Mode
	}
	return archive.ParseMode(mode)
}

// Close releases the bus and the ledger.
func (a *App) Close() error {
	var errs []error
	if a.Bus != nil {
		errs = append(errs, a.Bus.Close())
	}
	if a.Ledger != nil {
		errs = append(errs, a.Ledger.Close())
	}
	return errors.Join(errs...)
}
