package cmdutil

import (
	"path/filepath"
	"strings"

	"github.com/leefowlercu/asset-snapshot/internal/config"
)

// ResolvePath expands "~", resolves relative paths against base (or the
// working directory when base is empty) and cleans the result.
// Empty input returns an empty string.
func ResolvePath(base, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}

	path = config.ExpandPath(path)
	if !filepath.IsAbs(path) && base != "" {
		path = filepath.Join(base, path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
