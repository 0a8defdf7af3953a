package subcommands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/leefowlercu/asset-snapshot/internal/config"
	"github.com/leefowlercu/asset-snapshot/internal/testutil"
)

func run(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func newCommand(src *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:     src.Use,
		Args:    src.Args,
		PreRunE: src.PreRunE,
		RunE:    src.RunE,
	}
}

func initCommand() *cobra.Command {
	initForce = false
	initPath = ""
	cmd := newCommand(InitCmd)
	cmd.Flags().BoolVar(&initForce, "force", false, "")
	cmd.Flags().StringVar(&initPath, "path", "", "")
	return cmd
}

func showCommand() *cobra.Command {
	showRaw = false
	cmd := newCommand(ShowCmd)
	cmd.Flags().BoolVar(&showRaw, "raw", false, "")
	return cmd
}

func resetCommand() *cobra.Command {
	resetConfirm = false
	cmd := newCommand(ResetCmd)
	cmd.Flags().BoolVar(&resetConfirm, "confirm", false, "")
	return cmd
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := config.GetConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestInitCommand(t *testing.T) {
	testutil.NewTestEnv(t)

	output, err := run(t, initCommand(), "")
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	path := config.DefaultConfigPath()
	if !strings.Contains(output, path) {
		t.Errorf("output does not name %s:\n%s", path, output)
	}
	if _, err := config.LoadFromPath(path); err != nil {
		t.Errorf("written config does not load: %v", err)
	}

	if _, err := run(t, initCommand(), ""); err == nil {
		t.Error("expected error when file exists without --force")
	}
	if _, err := run(t, initCommand(), "", "--force"); err != nil {
		t.Errorf("init --force failed: %v", err)
	}
}

func TestInitCommand_CustomPath(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := filepath.Join(env.ConfigDir, "nested", "snapshot.yaml")

	if _, err := run(t, initCommand(), "", "--path", path); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config not written to custom path: %v", err)
	}
}

func TestShowCommand_Effective(t *testing.T) {
	testutil.NewTestEnv(t)

	output, err := run(t, showCommand(), "")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	for _, want := range []string{"Effective configuration", "log_level:", "import_listen_port:", "inbox_dir:"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestShowCommand_Raw(t *testing.T) {
	testutil.NewTestEnv(t)

	output, err := run(t, showCommand(), "", "--raw")
	if err != nil {
		t.Fatalf("show --raw failed: %v", err)
	}
	if !strings.Contains(output, "No configuration file found") {
		t.Errorf("unexpected output without a file:\n%s", output)
	}

	writeConfig(t, "log_level: debug\n")
	output, err = run(t, showCommand(), "", "--raw")
	if err != nil {
		t.Fatalf("show --raw failed: %v", err)
	}
	if !strings.Contains(output, "log_level: debug") || strings.Contains(output, "inbox_dir") {
		t.Errorf("raw output should only contain the file:\n%s", output)
	}
}

func TestValidateCommand(t *testing.T) {
	testutil.NewTestEnv(t)

	output, err := run(t, newCommand(ValidateCmd), "")
	if err != nil || !strings.Contains(output, "Using default configuration values") {
		t.Errorf("validate without file: %v\n%s", err, output)
	}

	writeConfig(t, "log_level: info\n")
	output, err = run(t, newCommand(ValidateCmd), "")
	if err != nil || !strings.Contains(output, "Configuration is valid") {
		t.Errorf("validate with valid file: %v\n%s", err, output)
	}

	writeConfig(t, "log_level: loud\nimport:\n  mode: merge\n")
	output, err = run(t, newCommand(ValidateCmd), "")
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	for _, want := range []string{"log_level", "import.mode"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestResetCommand(t *testing.T) {
	testutil.NewTestEnv(t)

	output, err := run(t, resetCommand(), "")
	if err != nil || !strings.Contains(output, "No configuration file found") {
		t.Errorf("reset without file: %v\n%s", err, output)
	}

	path := writeConfig(t, "log_level: debug\n")

	output, err = run(t, resetCommand(), "n\n")
	if err != nil || !strings.Contains(output, "Reset cancelled") {
		t.Errorf("declined reset: %v\n%s", err, output)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("declined reset removed the file: %v", err)
	}

	if _, err := run(t, resetCommand(), "", "--confirm"); err != nil {
		t.Fatalf("reset --confirm failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("config file still present: %v", err)
	}
	backups, _ := filepath.Glob(path + ".backup.*")
	if len(backups) != 1 {
		t.Fatalf("expected 1 backup, got %v", backups)
	}
	data, _ := os.ReadFile(backups[0])
	if string(data) != "log_level: debug\n" {
		t.Errorf("backup content = %q", data)
	}
}

func TestEditCommand(t *testing.T) {
	env := testutil.NewTestEnv(t)

	editor := filepath.Join(env.ConfigDir, "editor.sh")
	script := "#!/bin/sh\nsed -i 's/^log_level: .*/log_level: warn/' \"$1\"\n"
	if err := os.WriteFile(editor, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write editor script: %v", err)
	}
	t.Setenv("EDITOR", editor)

	output, err := run(t, newCommand(EditCmd), "")
	if err != nil {
		t.Fatalf("edit failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Configuration saved") {
		t.Errorf("unexpected output:\n%s", output)
	}
	cfg, err := config.LoadFromPath(config.GetConfigPath())
	if err != nil {
		t.Fatalf("edited config does not load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestEditCommand_InvalidResult(t *testing.T) {
	env := testutil.NewTestEnv(t)

	editor := filepath.Join(env.ConfigDir, "editor.sh")
	script := "#!/bin/sh\necho 'log_level: loud' > \"$1\"\n"
	if err := os.WriteFile(editor, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write editor script: %v", err)
	}
	t.Setenv("EDITOR", editor)

	output, err := run(t, newCommand(EditCmd), "")
	if err == nil {
		t.Fatal("expected error for invalid edited config")
	}
	if !strings.Contains(output, "invalid") {
		t.Errorf("unexpected output:\n%s", output)
	}
}

func TestFindEditor(t *testing.T) {
	t.Setenv("EDITOR", "")
	t.Setenv("VISUAL", "code")
	if got := findEditor(); got != "code" {
		t.Errorf("findEditor() = %q, want VISUAL", got)
	}

	t.Setenv("EDITOR", "hx")
	if got := findEditor(); got != "hx" {
		t.Errorf("findEditor() = %q, want EDITOR", got)
	}
}
