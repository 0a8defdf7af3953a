package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leefowlercu/asset-snapshot/internal/cmdutil"
	"github.com/leefowlercu/asset-snapshot/internal/config"
	"github.com/leefowlercu/asset-snapshot/internal/syncclient"
)

var (
	settingsBaseURL string
	settingsJSON    bool
)

// SettingsCmd shows the export settings published by the catalog server.
var SettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the export settings published by the catalog server",
	Long: "Show the export settings published by the catalog server.\n\n" +
		"Fetches <base_url>/settings and prints the values exports will use, " +
		"including the server's class filters. When the server cannot be reached " +
		"the built-in defaults are shown and marked unavailable.",
	Example: `  # Show settings from the configured server
  snapshot settings

  # Query another server as JSON
  snapshot settings --base-url http://catalog.local:9090 --json`,
	Args:    cobra.NoArgs,
	PreRunE: validateSettings,
	RunE:    runSettings,
}

func init() {
	SettingsCmd.Flags().StringVar(&settingsBaseURL, "base-url", "", "Catalog server address (overrides server.base_url)")
	SettingsCmd.Flags().BoolVar(&settingsJSON, "json", false, "Print the result as JSON")
}

func validateSettings(cmd *cobra.Command, args []string) error {
	// All errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

type settingsOutput struct {
	BaseURL   string              `json:"base_url"`
	Available bool                `json:"available"`
	Settings  syncclient.Settings `json:"settings"`
	Filters   *filtersOutput      `json:"export_filters,omitempty"`
}

type filtersOutput struct {
	Include              string `json:"include"`
	Exclude              string `json:"exclude"`
	SkipExportIfOnServer *bool  `json:"skip_export_if_on_server,omitempty"`
}

func runSettings(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	cfg, err := config.Get()
	if err != nil {
		return err
	}
	base := cfg.Server.BaseURL
	if settingsBaseURL != "" {
		base = settingsBaseURL
	}
	if syncclient.NormalizeBaseURL(base) == "" {
		return fmt.Errorf("no catalog server configured; set server.base_url or pass --base-url")
	}

	client := cmdutil.NewSyncClient(cfg, cmdutil.Logger())
	s := client.Settings(ctx, base)

	result := settingsOutput{
		BaseURL:   syncclient.NormalizeBaseURL(base),
		Available: s.Available,
		Settings:  s,
	}
	if f, ok := client.ExportFilters(ctx, base); ok {
		fo := &filtersOutput{Include: f.Include, Exclude: f.Exclude}
		if f.SkipKnown {
			fo.SkipExportIfOnServer = &f.SkipEnabled
		}
		result.Filters = fo
	}

	if settingsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	availability := cmdutil.SuccessText.Render("available")
	if !s.Available {
		availability = cmdutil.WarningText.Render("unavailable; showing defaults")
	}

	fields := []cmdutil.Field{
		{Label: "Server", Value: result.BaseURL},
		{Label: "Status", Value: availability},
		{Label: "Overwrite zips", Value: s.OverwriteZips},
		{Label: "Skip if on server", Value: s.SkipExportIfOnServer},
		{Label: "Check path", Value: s.CheckPathTemplate},
		{Label: "Upload after export", Value: s.UploadAfterExport},
		{Label: "Upload path", Value: s.UploadPathTemplate},
		{Label: "Default frames", Value: s.DefaultCount()},
		{Label: "Static mesh frames", Value: s.StaticMeshFrameCount()},
		{Label: "Skeletal mesh frames", Value: s.SkeletalMeshFrameCount()},
		{Label: "Material frames", Value: s.MaterialFrameCount()},
		{Label: "Blueprint frames", Value: s.BlueprintFrameCount()},
		{Label: "Niagara frames", Value: s.NiagaraFrameCount()},
		{Label: "Animation frames", Value: s.AnimSequenceFrameCount()},
	}
	cmdutil.PrintSummary(out, "Catalog settings", fields)

	if result.Filters != nil {
		fmt.Fprintln(out)
		cmdutil.PrintSummary(out, "Export filters", []cmdutil.Field{
			{Label: "Include", Value: orNone(result.Filters.Include)},
			{Label: "Exclude", Value: orNone(result.Filters.Exclude)},
		})
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return cmdutil.MutedText.Render("(none)")
	}
	return s
}
