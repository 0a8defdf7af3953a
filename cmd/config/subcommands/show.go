package subcommands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leefowlercu/asset-snapshot/internal/config"
)

var (
	showRaw bool
)

// ShowCmd displays the current configuration.
var ShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the current configuration",
	Long: "Display the current configuration.\n\n" +
		"Shows the configuration values exports and imports will use. By default, " +
		"shows the effective configuration with defaults and SNAPSHOT_ environment " +
		"overrides applied. Use --raw to show only the config file as written.",
	Example: `  # Show effective configuration
  snapshot config show

  # Show only explicitly set values
  snapshot config show --raw`,
	Args:    cobra.NoArgs,
	PreRunE: validateShow,
	RunE:    runShow,
}

func init() {
	ShowCmd.Flags().BoolVar(&showRaw, "raw", false, "Show only explicitly configured values (no defaults)")
}

func validateShow(cmd *cobra.Command, args []string) error {
	// All errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	if showRaw {
		return showRawConfig(cmd)
	}
	return showEffectiveConfig(cmd)
}

func showRawConfig(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	configPath := config.GetConfigPath()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(out, "# No configuration file found")
			fmt.Fprintf(out, "# Default location: %s\n", configPath)
			return nil
		}
		return fmt.Errorf("failed to read config file; %w", err)
	}

	fmt.Fprintf(out, "# Configuration file: %s\n", configPath)
	fmt.Fprintln(out, string(data))
	return nil
}

func showEffectiveConfig(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Get()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration; %w", err)
	}

	fmt.Fprintln(out, "# Effective configuration (with defaults)")
	fmt.Fprintf(out, "# Config file: %s\n", config.GetConfigPath())
	fmt.Fprintln(out, string(data))
	return nil
}
