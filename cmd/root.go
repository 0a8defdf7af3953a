package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	configcmd "github.com/leefowlercu/asset-snapshot/cmd/config"
	"github.com/leefowlercu/asset-snapshot/cmd/download"
	"github.com/leefowlercu/asset-snapshot/cmd/export"
	"github.com/leefowlercu/asset-snapshot/cmd/hash"
	"github.com/leefowlercu/asset-snapshot/cmd/history"
	"github.com/leefowlercu/asset-snapshot/cmd/importer"
	"github.com/leefowlercu/asset-snapshot/cmd/serve"
	"github.com/leefowlercu/asset-snapshot/cmd/settings"
	versioncmd "github.com/leefowlercu/asset-snapshot/cmd/version"
	"github.com/leefowlercu/asset-snapshot/cmd/watch"
	"github.com/leefowlercu/asset-snapshot/internal/cmdutil"
	"github.com/leefowlercu/asset-snapshot/internal/config"
	"github.com/leefowlercu/asset-snapshot/internal/logging"
)

// logManager is created in bootstrap mode in init() and upgraded once config loads.
var logManager *logging.Manager

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Package project assets into content-addressed preview archives",
	Long: "Snapshot exports project assets together with their dependency closure into " +
		"store-only zip archives, named by the BLAKE3 digest of the asset's main file, " +
		"and keeps them in sync with a remote asset catalog.\n\n" +
		"Archives published by the catalog can be imported back into the project " +
		"directly, by snapshot id, or through a long-running listener that accepts " +
		"import requests and watches an inbox directory.",
	PersistentPreRunE: runInitialize,
}

func init() {
	logManager = logging.NewManager()
	slog.SetDefault(logManager.Logger())
	cmdutil.SetLogManager(logManager)

	snapshotCmd.AddCommand(export.ExportCmd)
	snapshotCmd.AddCommand(hash.HashCmd)
	snapshotCmd.AddCommand(importer.ImportCmd)
	snapshotCmd.AddCommand(download.DownloadCmd)
	snapshotCmd.AddCommand(serve.ServeCmd)
	snapshotCmd.AddCommand(watch.WatchCmd)
	snapshotCmd.AddCommand(settings.SettingsCmd)
	snapshotCmd.AddCommand(history.HistoryCmd)
	snapshotCmd.AddCommand(configcmd.ConfigCmd)
	snapshotCmd.AddCommand(versioncmd.VersionCmd)
}

func runInitialize(cmd *cobra.Command, args []string) error {
	logger := logManager.Logger()

	if err := config.Init(); err != nil {
		return err
	}

	logFile := config.GetPath("log_file")
	levelStr := config.GetString("log_level")
	level, ok := logging.ParseLevel(levelStr)
	if !ok {
		level = logging.DefaultLevel
		if levelStr != "" {
			logger.Warn("invalid log level configured, using default", "configured", levelStr, "default", "info")
		}
	}

	if err := logManager.Upgrade(logFile, level); err != nil {
		logger.Warn("failed to enable file logging, continuing with stderr only", "error", err)
	}

	return nil
}

// Execute runs the root command.
func Execute() error {
	snapshotCmd.SilenceErrors = true
	snapshotCmd.SilenceUsage = true

	defer func() { _ = logManager.Close() }()

	err := snapshotCmd.Execute()
	if err != nil {
		cmd, _, _ := snapshotCmd.Find(os.Args[1:])
		if cmd == nil {
			cmd = snapshotCmd
		}

		fmt.Fprintf(os.Stderr, "%s %v\n", cmdutil.ErrorText.Render("Error:"), err)
		if !cmd.SilenceUsage {
			fmt.Fprintln(os.Stderr)
			cmd.SetOut(os.Stderr)
			_ = cmd.Usage()
		}

		return err
	}

	return nil
}
