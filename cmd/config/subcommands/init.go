package subcommands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leefowlercu/asset-snapshot/internal/config"
)

var (
	initForce bool
	initPath  string
)

// InitCmd writes a configuration file populated with default values.
var InitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	Long: "Write a configuration file with default values.\n\n" +
		"Creates the configuration file at the default location, or at --path, " +
		"populated with every setting and its default. An existing file is left " +
		"untouched unless --force is given.",
	Example: `  # Create ~/.config/snapshot/config.yaml
  snapshot config init

  # Overwrite an existing file
  snapshot config init --force`,
	Args:    cobra.NoArgs,
	PreRunE: validateInit,
	RunE:    runInit,
}

func init() {
	InitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
	InitCmd.Flags().StringVar(&initPath, "path", "", "Write to this path instead of the default location")
}

func validateInit(cmd *cobra.Command, args []string) error {
	// All errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	path := config.DefaultConfigPath()
	if initPath != "" {
		path = config.ExpandPath(initPath)
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists at %s; use --force to overwrite", path)
	}

	cfg := config.NewDefaultConfig()
	if err := config.Write(&cfg, path); err != nil {
		return err
	}

	fmt.Fprintf(out, "Configuration written: %s\n", path)
	return nil
}
