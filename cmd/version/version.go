package version

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leefowlercu/asset-snapshot/internal/version"
)

var versionJSON bool

// VersionCmd displays version and build information.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version and build information",
	Long: "Display version and build information.\n\n" +
		"Shows the semantic version, git commit hash, build date, Go toolchain " +
		"and platform of the current snapshot binary. The version is also sent " +
		"to the catalog server as the User-Agent.",
	Example: `  # Display version information
  snapshot version

  # Machine-readable output
  snapshot version --json`,
	Args:    cobra.NoArgs,
	PreRunE: validateVersion,
	RunE:    runVersion,
}

func init() {
	VersionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print version information as JSON")
}

func validateVersion(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	return nil
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := version.Get()
	if versionJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(cmd.OutOrStdout(), info.String())
	return nil
}
