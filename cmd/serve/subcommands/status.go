// Package subcommands provides the serve subcommands (status, stop).
package subcommands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leefowlercu/asset-snapshot/internal/cmdutil"
	"github.com/leefowlercu/asset-snapshot/internal/config"
	"github.com/leefowlercu/asset-snapshot/internal/listenerclient"
	"github.com/leefowlercu/asset-snapshot/internal/server"
)

// ListenerStatus holds what is known about the local import listener.
type ListenerStatus struct {
	Running      bool                  `json:"running"`
	PID          int                   `json:"pid,omitempty"`
	StalePIDFile bool                  `json:"stale_pid_file,omitempty"`
	Health       *server.HealthStatus  `json:"health,omitempty"`
	Recent       []server.ImportRecord `json:"recent,omitempty"`
}

var statusRecent int

// StatusCmd shows the listener status.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show import listener status and health",
	Long: "Show import listener status and health.\n\n" +
		"Displays whether the listener is running, its PID, component health " +
		"and the most recent imports when the listener answers over HTTP.",
	Example: `  # Check listener status
  snapshot serve status

  # Include the last 10 imports
  snapshot serve status --recent 10`,
	PreRunE: validateStatus,
	RunE:    runStatus,
}

func init() {
	StatusCmd.Flags().IntVar(&statusRecent, "recent", 5, "Number of recent imports to show (0 to hide)")
}

func validateStatus(cmd *cobra.Command, args []string) error {
	if statusRecent < 0 {
		return fmt.Errorf("--recent must not be negative")
	}

	// All errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Get()
	if err != nil {
		return err
	}
	paths, err := cmdutil.ResolvePaths(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	status, err := getListenerStatus(ctx, paths.PIDFile, listenerclient.New(cfg.Server))
	if err != nil {
		return fmt.Errorf("failed to get listener status; %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), formatStatus(status))
	return nil
}

// getListenerStatus inspects the PID file and, when the owner is alive,
// asks the listener for its health.
func getListenerStatus(ctx context.Context, pidPath string, client *listenerclient.Client) (*ListenerStatus, error) {
	status := &ListenerStatus{}

	pid, alive, err := server.NewPIDFile(pidPath).Owner()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return status, nil
		}
		return nil, err
	}

	status.PID = pid
	if !alive {
		status.StalePIDFile = true
		return status, nil
	}
	status.Running = true

	if health, err := client.Ready(ctx); err == nil {
		status.Health = health
	}
	if statusRecent > 0 {
		if recent, err := client.Imports(ctx, statusRecent); err == nil {
			status.Recent = recent
		}
	}

	return status, nil
}

// formatStatus formats the listener status for display.
func formatStatus(status *ListenerStatus) string {
	var sb strings.Builder

	if !status.Running {
		sb.WriteString("Listener: " + cmdutil.MutedText.Render("not running"))
		if status.StalePIDFile {
			sb.WriteString(fmt.Sprintf(" (stale PID file with PID %d)", status.PID))
		}
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("Listener: %s (PID %d)", cmdutil.SuccessText.Render("running"), status.PID))

	if h := status.Health; h != nil {
		sb.WriteString(fmt.Sprintf("\nHealth: %s", h.Status))
		sb.WriteString(fmt.Sprintf("\nUptime: %s", h.Uptime))

		names := make([]string, 0, len(h.Components))
		for name := range h.Components {
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) > 0 {
			sb.WriteString("\nComponents:")
		}
		for _, name := range names {
			c := h.Components[name]
			state := cmdutil.Status("ok")
			if !c.Healthy {
				state = cmdutil.Status("error")
			}
			sb.WriteString(fmt.Sprintf("\n  - %s: %s", name, state))
			if c.Error != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", c.Error))
			}
		}

		if li := h.LastImport; li != nil {
			sb.WriteString(fmt.Sprintf("\nLast import: %d imported, %d skipped (%s)",
				li.Imported, li.Skipped, li.FinishedAt.Format("2006-01-02 15:04:05")))
			if li.Error != "" {
				sb.WriteString(" " + cmdutil.ErrorText.Render(li.Error))
			}
		}
	}

	if len(status.Recent) > 0 {
		sb.WriteString("\nRecent imports:")
		for _, rec := range status.Recent {
			outcome := "imported"
			if rec.Error != "" {
				outcome = "failed"
			}
			sb.WriteString(fmt.Sprintf("\n  %s %-8s %s %s",
				rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Source, cmdutil.Status(outcome), rec.ZipPath))
		}
	}

	return sb.String()
}
