// Package config provides the config parent command and subcommands.
package config

import (
	"github.com/spf13/cobra"

	"github.com/leefowlercu/asset-snapshot/cmd/config/subcommands"
)

// ConfigCmd is the parent command for all config-related subcommands.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage snapshot configuration",
	Long: "Manage snapshot configuration.\n\n" +
		"The config command allows you to create, view, edit, validate and reset " +
		"the snapshot configuration. Configuration is stored in a YAML file located " +
		"at ~/.config/snapshot/config.yaml by default. Every key can also be set " +
		"through a SNAPSHOT_ environment variable.",
}

func init() {
	ConfigCmd.AddCommand(subcommands.InitCmd)
	ConfigCmd.AddCommand(subcommands.ShowCmd)
	ConfigCmd.AddCommand(subcommands.EditCmd)
	ConfigCmd.AddCommand(subcommands.ResetCmd)
	ConfigCmd.AddCommand(subcommands.ValidateCmd)
}
