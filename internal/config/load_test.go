package config

import (
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.ImportListenPort != DefaultImportListenPort {
		t.Errorf("ImportListenPort = %d, want %d", cfg.Server.ImportListenPort, DefaultImportListenPort)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := writeConfig(t, dir, "import:\n  mode: override\n  debounce_ms: 250\n")
		cfg, err := LoadFromPath(path)
		if err != nil {
			t.Fatalf("LoadFromPath() error = %v", err)
		}
		if cfg.Import.Mode != "override" || cfg.Import.DebounceMS != 250 {
			t.Errorf("Import = %+v", cfg.Import)
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := LoadFromPath(filepath.Join(dir, "nope.yaml")); err == nil {
			t.Error("LoadFromPath() should fail for a missing file")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		path := writeConfig(t, dir, "server:\n  import_listen_port: 70000\n")
		_, err := LoadFromPath(path)
		if err == nil {
			t.Fatal("LoadFromPath() should reject an out of range port")
		}
		if !IsValidationError(err) {
			t.Errorf("error should be a validation error, got %T: %v", err, err)
		}
	})
}
