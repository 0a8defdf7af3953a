// Package testutil provides isolated project and config environments for
// command tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leefowlercu/asset-snapshot/internal/config"
)

// TestEnv is a throwaway project directory with its own config, ledger and
// log file.
type TestEnv struct {
	t          *testing.T
	ConfigDir  string
	ProjectDir string
}

// NewTestEnv creates an isolated environment and initializes config against
// it. Paths are overridden through SNAPSHOT_ variables so packages running in
// parallel never share state. Cleanup is automatic via t.Cleanup.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	root := t.TempDir()
	configDir := filepath.Join(root, "config")
	projectDir := filepath.Join(root, "project")
	for _, dir := range []string{configDir, filepath.Join(projectDir, "Content")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}

	t.Setenv("HOME", root)
	t.Setenv("SNAPSHOT_CONFIG_DIR", configDir)
	t.Setenv("SNAPSHOT_LOG_FILE", filepath.Join(configDir, "snapshot.log"))
	t.Setenv("SNAPSHOT_EXPORT_LEDGER_FILE", filepath.Join(configDir, "ledger.db"))
	t.Setenv("SNAPSHOT_SERVER_PID_FILE", filepath.Join(configDir, "listener.pid"))
	t.Setenv("SNAPSHOT_PROJECT_DIR", projectDir)

	config.Reset()
	if err := config.Init(); err != nil {
		t.Fatalf("failed to initialize test config: %v", err)
	}
	// No catalog server unless a test sets one.
	config.Set("server.base_url", "")

	t.Cleanup(config.Reset)

	return &TestEnv{
		t:          t,
		ConfigDir:  configDir,
		ProjectDir: projectDir,
	}
}

// LedgerPath returns where the export/import ledger database is created.
func (e *TestEnv) LedgerPath() string {
	return filepath.Join(e.ConfigDir, "ledger.db")
}

// ContentDir returns the project's Content directory.
func (e *TestEnv) ContentDir() string {
	return filepath.Join(e.ProjectDir, "Content")
}

// WriteRegistry writes the asset registry document to the project's
// default registry location.
func (e *TestEnv) WriteRegistry(doc string) string {
	e.t.Helper()
	return e.WriteProjectFile("assets.yaml", []byte(doc))
}

// WriteContentFile writes data under Content/ at rel, creating parents.
func (e *TestEnv) WriteContentFile(rel string, data []byte) string {
	e.t.Helper()
	return e.WriteProjectFile(filepath.Join("Content", rel), data)
}

// WriteProjectFile writes data at rel under the project directory.
func (e *TestEnv) WriteProjectFile(rel string, data []byte) string {
	e.t.Helper()

	path := filepath.Join(e.ProjectDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		e.t.Fatalf("failed to create dir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		e.t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
