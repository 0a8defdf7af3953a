package watch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leefowlercu/asset-snapshot/internal/cmdutil"
	"github.com/leefowlercu/asset-snapshot/internal/imports"
)

var (
	watchMode     string
	watchDebounce time.Duration
)

// WatchCmd imports archives dropped into the inbox until interrupted.
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Import archives dropped into the inbox directory",
	Long: "Import archives dropped into the inbox directory.\n\n" +
		"Watches import.inbox_dir and imports every .zip that appears in it once " +
		"the file has stopped changing. Imported archives move to done/, " +
		"archives that fail move to failed/. Existing project files are left " +
		"untouched unless --mode override is given. Use serve to run the watcher " +
		"together with the HTTP listener.",
	Example: `  # Watch the configured inbox
  snapshot watch

  # Overwrite existing files and wait longer for copies to settle
  snapshot watch --mode override --debounce 3s`,
	Args:    cobra.NoArgs,
	PreRunE: validateWatch,
	RunE:    runWatch,
}

func init() {
	WatchCmd.Flags().StringVarP(&watchMode, "mode", "m", "", "Conflict mode: override or skip (default from config)")
	WatchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "Quiet period before an archive is imported (default from config)")
}

func validateWatch(cmd *cobra.Command, args []string) error {
	if watchDebounce < 0 {
		return fmt.Errorf("--debounce must not be negative")
	}

	// All errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	mode, err := app.ImportMode(watchMode)
	if err != nil {
		return err
	}
	debounce := watchDebounce
	if debounce == 0 {
		debounce = time.Duration(app.Config.Import.DebounceMS) * time.Millisecond
	}

	watcher, err := imports.NewWatcher(app.Paths.InboxDir, app.Importer(),
		imports.WithDebounceWindow(debounce),
		imports.WithImportMode(mode),
		imports.WithWatcherLogger(logger.With("component", "inbox")))
	if err != nil {
		return fmt.Errorf("failed to create inbox watcher; %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start inbox watcher; %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s (%s mode); press Ctrl+C to stop\n", watcher.Inbox(), mode)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-watcher.Errors():
		runErr = fmt.Errorf("inbox watcher failed; %w", err)
	}

	if err := watcher.Stop(); err != nil {
		logger.Warn("failed to stop inbox watcher", "error", err)
	}

	stats := watcher.Stats()
	fmt.Fprintln(out)
	cmdutil.PrintSummary(out, "Inbox summary", []cmdutil.Field{
		{Label: "Events", Value: stats.EventsReceived},
		{Label: "Imported", Value: cmdutil.SuccessText.Render(fmt.Sprint(stats.Imported))},
		{Label: "Failed", Value: stats.Failed},
		{Label: "Errors", Value: stats.Errors},
	})
	return runErr
}
