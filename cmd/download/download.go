package download

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leefowlercu/asset-snapshot/cmd/importer"
	"github.com/leefowlercu/asset-snapshot/internal/archive"
	"github.com/leefowlercu/asset-snapshot/internal/cmdutil"
	"github.com/leefowlercu/asset-snapshot/internal/server"
)

var (
	downloadMode    string
	downloadBaseURL string

	snapshotID int
)

// DownloadCmd fetches a snapshot from the catalog server and imports it.
var DownloadCmd = &cobra.Command{
	Use:   "download <snapshot-id>",
	Short: "Download a snapshot from the catalog and import it",
	Long: "Download a snapshot from the catalog and import it.\n\n" +
		"Fetches <base_url>/download/<id>.zip into the staging directory and " +
		"imports it exactly like the import command. The catalog address comes " +
		"from server.base_url unless --base-url is given.",
	Example: `  # Download and import snapshot 42
  snapshot download 42

  # Use a different catalog server
  snapshot download 42 --base-url http://catalog.local:9090`,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateDownload,
	RunE:    runDownload,
}

func init() {
	DownloadCmd.Flags().StringVarP(&downloadMode, "mode", "m", "", "Conflict mode: override or skip (default from config)")
	DownloadCmd.Flags().StringVar(&downloadBaseURL, "base-url", "", "Catalog server address (overrides server.base_url)")
}

func validateDownload(cmd *cobra.Command, args []string) error {
	id, err := server.ParseSnapshotID(args[0])
	if err != nil {
		return err
	}
	snapshotID = id

	if downloadMode != "" {
		if _, err := archive.ParseMode(downloadMode); err != nil {
			return err
		}
	}

	// All errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := cmdutil.Open(ctx, cmdutil.Logger())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if downloadBaseURL != "" {
		app.Config.Server.BaseURL = downloadBaseURL
	}
	if app.Config.Server.BaseURL == "" {
		return fmt.Errorf("no catalog server configured; set server.base_url or pass --base-url")
	}

	mode, err := app.ImportMode(downloadMode)
	if err != nil {
		return err
	}

	res, err := app.Importer().DownloadAndImport(ctx, snapshotID, mode)
	if err != nil {
		return err
	}

	importer.PrintResult(cmd, fmt.Sprintf("Snapshot %d imported", snapshotID), res)
	return nil
}
