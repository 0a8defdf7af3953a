// Package importer provides the import command. The package is not named
// after the command because import is a reserved word.
package importer

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leefowlercu/asset-snapshot/internal/archive"
	"github.com/leefowlercu/asset-snapshot/internal/cmdutil"
	"github.com/leefowlercu/asset-snapshot/internal/imports"
)

var importMode string

// ImportCmd extracts a snapshot archive into the project's content directory.
var ImportCmd = &cobra.Command{
	Use:   "import <zip>",
	Short: "Import a snapshot archive into the project",
	Long: "Import a snapshot archive into the project.\n\n" +
		"Extracts every asset file in the archive into the content directory and " +
		"asks the asset registry to rescan the imported packages. Preview images " +
		"and metadata are not imported. In override mode existing files are " +
		"replaced; in skip mode they are left untouched.",
	Example: `  # Import an archive using the configured mode
  snapshot import ./3f9c...e1.zip

  # Replace files that already exist
  snapshot import ./3f9c...e1.zip --mode override`,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateImport,
	RunE:    runImport,
}

func init() {
	ImportCmd.Flags().StringVarP(&importMode, "mode", "m", "", "Conflict mode: override or skip (default from config)")
}

func validateImport(cmd *cobra.Command, args []string) error {
	if importMode != "" {
		if _, err := archive.ParseMode(importMode); err != nil {
			return err
		}
	}

	info, err := os.Stat(args[0])
	if err != nil {
		return fmt.Errorf("archive %q; %w", args[0], imports.ErrZipNotFound)
	}
	if info.IsDir() {
		return fmt.Errorf("archive %q is a directory", args[0])
	}

	// All errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := cmdutil.Open(ctx, cmdutil.Logger())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	mode, err := app.ImportMode(importMode)
	if err != nil {
		return err
	}

	res, err := app.Importer().ImportZip(ctx, args[0], mode)
	if err != nil {
		return err
	}

	PrintResult(cmd, "Import complete", res)
	return nil
}

// PrintResult writes the summary shared by the import and download commands.
func PrintResult(cmd *cobra.Command, title string, res *imports.Result) {
	out := cmd.OutOrStdout()
	cmdutil.PrintSummary(out, title, []cmdutil.Field{
		{Label: "Archive", Value: res.ZipPath},
		{Label: "Mode", Value: res.Mode},
		{Label: "Imported", Value: cmdutil.SuccessText.Render(fmt.Sprint(res.Imported))},
		{Label: "Skipped", Value: cmdutil.MutedText.Render(fmt.Sprint(res.Skipped))},
		{Label: "Rescanned", Value: len(res.Rescanned)},
	})
}
