// Package serve provides the serve command, which runs the import listener
// in the foreground, and its status and stop subcommands.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"github.com/leefowlercu/asset-snapshot/cmd/serve/subcommands"
	"github.com/leefowlercu/asset-snapshot/internal/cmdutil"
	"github.com/leefowlercu/asset-snapshot/internal/config"
	"github.com/leefowlercu/asset-snapshot/internal/imports"
	"github.com/leefowlercu/asset-snapshot/internal/listener"
	"github.com/leefowlercu/asset-snapshot/internal/metrics"
	"github.com/leefowlercu/asset-snapshot/internal/server"
	"github.com/leefowlercu/asset-snapshot/internal/version"
)

var (
	serveNoWatch bool
	servePort    int
	serveBind    string
)

// ServeCmd runs the import listener in the foreground.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the import listener in the foreground",
	Long: "Run the import listener in the foreground.\n\n" +
		"Serves POST /import, which downloads a snapshot from the catalog and " +
		"imports it, together with /healthz, /readyz, /imports and /metrics. " +
		"Archives dropped into the inbox directory are imported without " +
		"overwriting existing files. SIGHUP reloads the configuration and " +
		"SIGUSR1 starts a new log file.",
	Example: `  # Start the listener
  snapshot serve

  # Listen on all interfaces without the inbox watcher
  snapshot serve --bind 0.0.0.0 --no-watch

  # Check on a running listener
  snapshot serve status`,
	PreRunE: validateServe,
	RunE:    runServe,
}

func init() {
	ServeCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Disable the inbox watcher")
	ServeCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides server.import_listen_port)")
	ServeCmd.Flags().StringVar(&serveBind, "bind", "", "Listen address (overrides server.import_listen_bind)")

	ServeCmd.AddCommand(subcommands.StatusCmd)
	ServeCmd.AddCommand(subcommands.StopCmd)
}

func validateServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("port") && (servePort < 1 || servePort > 65535) {
		return fmt.Errorf("port must be between 1 and 65535; got %d", servePort)
	}

	// All errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := cmdutil.Logger()

	app, err := cmdutil.Open(ctx, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	cfg := app.Config
	if servePort != 0 {
		cfg.Server.ImportListenPort = servePort
	}
	if serveBind != "" {
		cfg.Server.ImportListenBind = serveBind
	}

	config.SetEventBus(app.Bus)
	defer config.SetEventBus(nil)
	config.SetupSignalHandler(config.WithRotateHook(cmdutil.RotateLog))
	defer config.StopSignalHandler()

	importer := app.Importer()
	health := server.NewHealthManager(clock.New())

	srv := server.NewServer(health, server.Config{
		Port:          cfg.Server.ImportListenPort,
		Bind:          cfg.Server.ImportListenBind,
		ImportTimeout: time.Duration(cfg.Server.DownloadTimeout)*time.Second + time.Minute,
	}, importer, logger.With("component", "server"))
	srv.SetMetricsHandler(metrics.Handler())
	srv.SetHistory(app.Ledger)

	collector := metrics.NewCollector(time.Duration(cfg.Metrics.CollectionInterval)*time.Second, version.Get().Version,
		metrics.WithCollectorLogger(logger.With("component", "metrics")))
	collector.Register("ledger", app.Ledger)

	opts := []listener.Option{
		listener.WithCollector(collector),
		listener.WithBus(app.Bus),
		listener.WithLogger(logger.With("component", "listener")),
	}

	if !serveNoWatch {
		mode, err := app.ImportMode(cfg.Import.Mode)
		if err != nil {
			return err
		}
		watcher, err := imports.NewWatcher(app.Paths.InboxDir, importer,
			imports.WithDebounceWindow(time.Duration(cfg.Import.DebounceMS)*time.Millisecond),
			imports.WithImportMode(mode),
			imports.WithWatcherLogger(logger.With("component", "inbox")))
		if err != nil {
			return fmt.Errorf("failed to create inbox watcher; %w", err)
		}
		collector.Register("inbox", watcher)
		opts = append(opts, listener.WithWatcher(watcher))
	}

	l := listener.New(listener.Config{
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
		PIDFile:         app.Paths.PIDFile,
	}, srv, health, opts...)

	l.OnConfigReload(func(changed []string) error {
		if slices.Contains(changed, "log_level") || slices.Contains(changed, "log_file") {
			return cmdutil.ApplyLogConfig()
		}
		return nil
	})

	logger.Info("starting import listener",
		"bind", cfg.Server.ImportListenBind,
		"port", cfg.Server.ImportListenPort,
		"inbox", app.Paths.InboxDir,
		"watch", !serveNoWatch,
		"pid_file", app.Paths.PIDFile)

	if err := l.Run(ctx); err != nil {
		return fmt.Errorf("listener error; %w", err)
	}
	return nil
}
