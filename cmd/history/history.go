package history

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/leefowlercu/asset-snapshot/internal/cmdutil"
	"github.com/leefowlercu/asset-snapshot/internal/storage"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	historyLimit   int
	historyAsset   string
	historyVerbose bool
)

// HistoryCmd lists recent exports or imports from the ledger.
var HistoryCmd = &cobra.Command{
	Use:   "history [exports|imports]",
	Short: "List recent exports or imports",
	Long: "List recent exports or imports.\n\n" +
		"Every export attempt and every import, whether from a file, a download " +
		"or the inbox, is recorded in the local ledger. History prints the most " +
		"recent entries, newest first. Exports are shown when no kind is given.",
	Example: `  # Recent exports
  snapshot history

  # Every export of one asset, with digests
  snapshot history exports --asset /Game/Props/Chair.Chair -v

  # Last 5 imports
  snapshot history imports --limit 5`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"exports", "imports"},
	PreRunE:   validateHistory,
	RunE:      runHistory,
}

func init() {
	HistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries")
	HistoryCmd.Flags().StringVar(&historyAsset, "asset", "", "Only show exports of this object path")
	HistoryCmd.Flags().BoolVarP(&historyVerbose, "verbose", "v", false, "Show digests, archive paths and durations")
}

func validateHistory(cmd *cobra.Command, args []string) error {
	if historyLimit <= 0 {
		return fmt.Errorf("--limit must be positive; got %d", historyLimit)
	}
	if historyAsset != "" && kind(args) == "imports" {
		return fmt.Errorf("--asset only applies to exports")
	}

	// All errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

func kind(args []string) string {
	if len(args) == 0 {
		return "exports"
	}
	return args[0]
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	app, err := cmdutil.Open(ctx, cmdutil.Logger())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if kind(args) == "imports" {
		records, err := app.Ledger.ListImports(ctx, historyLimit)
		if err != nil {
			return err
		}
		printImports(out, records)
		return nil
	}

	records, err := app.Ledger.ListExports(ctx, historyAsset, historyLimit)
	if err != nil {
		return err
	}
	printExports(out, records)
	return nil
}

func printExports(w io.Writer, records []storage.ExportRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No exports recorded")
		return
	}

	for _, rec := range records {
		fmt.Fprintf(w, "%s  %-4d %-20s %s\n",
			rec.CreatedAt.Local().Format(timeLayout), rec.BatchID, cmdutil.Status(rec.Outcome), rec.ObjectPath)
		if rec.Error != "" {
			fmt.Fprintf(w, "      %s\n", cmdutil.ErrorText.Render(rec.Error))
		}
		if !historyVerbose {
			continue
		}
		if rec.HashMain != "" {
			fmt.Fprintf(w, "      %s %s\n", cmdutil.Label.Render("hash:"), rec.HashMain)
		}
		if rec.ZipPath != "" {
			fmt.Fprintf(w, "      %s %s\n", cmdutil.Label.Render("zip: "), rec.ZipPath)
		}
		fmt.Fprintf(w, "      %s %s uploaded=%v\n", cmdutil.Label.Render("took:"), rec.Duration, rec.Uploaded)
	}
}

func printImports(w io.Writer, records []storage.ImportRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No imports recorded")
		return
	}

	for _, rec := range records {
		outcome := "imported"
		if rec.Error != "" {
			outcome = "failed"
		}
		fmt.Fprintf(w, "%s  %-8s %-8s %-20s %d imported, %d skipped\n",
			rec.CreatedAt.Local().Format(timeLayout), rec.Source, rec.Mode, cmdutil.Status(outcome), rec.Imported, rec.Skipped)
		if historyVerbose && rec.ZipPath != "" {
			fmt.Fprintf(w, "      %s %s\n", cmdutil.Label.Render("zip:"), rec.ZipPath)
		}
		if rec.Error != "" {
			fmt.Fprintf(w, "      %s\n", cmdutil.ErrorText.Render(rec.Error))
		}
	}
}
