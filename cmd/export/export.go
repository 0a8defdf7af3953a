package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leefowlercu/asset-snapshot/internal/cmdutil"
	assetexport "github.com/leefowlercu/asset-snapshot/internal/export"
)

var (
	exportInclude string
	exportExclude string
	exportSingle  bool
)

// ExportCmd exports one asset or every asset under a content path.
var ExportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export assets into preview archives",
	Long: "Export assets into preview archives.\n\n" +
		"The path may be an object path, a package path or a content folder such " +
		"as /Game/Props. Every matching asset is hashed, checked against the " +
		"catalog server, captured and written as a store-only zip named by the " +
		"BLAKE3 digest of its main file. Class filters accept comma separated " +
		"class names or aliases (mesh, material, anim, blueprint, niagara). " +
		"Filters published by the catalog server are merged with the flags.",
	Example: `  # Export every asset in a folder
  snapshot export /Game/Props

  # Export only meshes and materials
  snapshot export /Game/Props --include mesh,material

  # Export a single asset by object path
  snapshot export /Game/Props/Chair.Chair --single`,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateExport,
	RunE:    runExport,
}

func init() {
	ExportCmd.Flags().StringVar(&exportInclude, "include", "", "Comma separated classes to export")
	ExportCmd.Flags().StringVar(&exportExclude, "exclude", "", "Comma separated classes to skip")
	ExportCmd.Flags().BoolVar(&exportSingle, "single", false, "Treat the path as one object path")
}

func validateExport(cmd *cobra.Command, args []string) error {
	if !strings.HasPrefix(args[0], "/") {
		return fmt.Errorf("path must be an absolute content path such as /Game/Props; got %q", args[0])
	}
	if exportSingle && (exportInclude != "" || exportExclude != "") {
		return fmt.Errorf("--include and --exclude cannot be combined with --single")
	}

	// All errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
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

	exp, err := app.Exporter()
	if err != nil {
		return err
	}

	if exportSingle {
		res := exp.ExportAsset(ctx, args[0])
		printResult(cmd, res)
		if res.Outcome == assetexport.OutcomeFailed {
			return fmt.Errorf("failed to export %s; %w", res.ObjectPath, res.Err)
		}
		return nil
	}

	batch := exp.ExportBatch(ctx, args[0], exportInclude, exportExclude)
	if batch.Total == 0 {
		fmt.Fprintf(out, "No exportable assets found under %s\n", args[0])
		return nil
	}

	for _, res := range batch.Results {
		printResult(cmd, res)
	}
	fmt.Fprintln(out)

	failed := batch.Count(assetexport.OutcomeFailed)
	cmdutil.PrintSummary(out, "Export summary", []cmdutil.Field{
		{Label: "Batch", Value: batch.BatchID},
		{Label: "Exported", Value: fmt.Sprintf("%d/%d", batch.Exported, batch.Total)},
		{Label: "Skipped (remote)", Value: batch.Count(assetexport.OutcomeSkippedRemote)},
		{Label: "Skipped (local)", Value: batch.Count(assetexport.OutcomeSkippedLocal)},
		{Label: "Unsupported", Value: batch.Count(assetexport.OutcomeSkippedUnsupported)},
		{Label: "Failed", Value: failed},
		{Label: "Output", Value: app.Paths.ExportRoot},
	})

	if failed > 0 {
		return fmt.Errorf("%d of %d assets failed to export", failed, batch.Total)
	}
	return nil
}

func printResult(cmd *cobra.Command, res assetexport.Result) {
	out := cmd.OutOrStdout()
	line := fmt.Sprintf("%-20s %s", cmdutil.Status(string(res.Outcome)), res.ObjectPath)

	switch {
	case res.Err != nil:
		line += " " + cmdutil.MutedText.Render(res.Err.Error())
	case res.ZipPath != "":
		line += " " + cmdutil.MutedText.Render(res.ZipPath)
	}

	var notes []string
	if res.NoPic {
		notes = append(notes, "placeholder preview")
	}
	if res.LowQuality {
		notes = append(notes, "low quality")
	}
	if res.Uploaded {
		notes = append(notes, "uploaded")
	}
	if len(notes) > 0 {
		line += " " + cmdutil.WarningText.Render("("+strings.Join(notes, ", ")+")")
	}

	fmt.Fprintln(out, line)
}
