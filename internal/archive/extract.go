package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Mode controls how extraction treats files that already exist.
type Mode int

const (
	// ModeOverwrite replaces existing files.
	ModeOverwrite Mode = iota
	// ModeSkipExisting leaves existing files untouched and counts them as skipped.
	ModeSkipExisting
)

// String returns the flag spelling of the mode.
func (m Mode) String() string {
	if m == ModeSkipExisting {
		return "skip"
	}
	return "override"
}

// ParseMode converts a flag value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "override", "overwrite":
		return ModeOverwrite, nil
	case "skip", "skip-existing", "skip_existing":
		return ModeSkipExisting, nil
	default:
		return ModeOverwrite, fmt.Errorf("unknown import mode %q; expected override or skip", s)
	}
}

// stagingFolder is the project-layout segment removed from import paths.
const stagingFolder = "Content"

// importableExts lists the file extensions written during extraction.
var importableExts = map[string]bool{
	".uasset": true,
	".uexp":   true,
	".ubulk":  true,
	".uptnl":  true,
	".umap":   true,
}

// IsImportable reports whether name has an importable asset extension.
func IsImportable(name string) bool {
	return importableExts[strings.ToLower(path.Ext(name))]
}

// isPrimaryAsset reports whether name is a file the asset database indexes directly.
func isPrimaryAsset(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".uasset" || ext == ".umap"
}

// Rescanner asks the host asset database to index newly written files.
type Rescanner interface {
	Rescan(ctx context.Context, files []string) error
}

// RescannerFunc adapts a function to the Rescanner interface.
type RescannerFunc func(ctx context.Context, files []string) error

// Rescan calls f.
func (f RescannerFunc) Rescan(ctx context.Context, files []string) error {
	return f(ctx, files)
}

// ExtractOptions configures Extract.
type ExtractOptions struct {
	Mode      Mode
	Rescanner Rescanner
	Logger    *slog.Logger
}

// ExtractResult summarizes an extraction.
type ExtractResult struct {
	Imported int
	Skipped  int
	// Rescanned holds the primary asset files handed to the Rescanner.
	Rescanned []string
}

// NormalizeRelPath converts backslashes to forward slashes and drops leading slashes.
func NormalizeRelPath(name string) string {
	p := strings.ReplaceAll(name, `\`, "/")
	return strings.TrimLeft(p, "/")
}

// IsSafePath reports whether an entry name may be extracted. Names that are
// empty, contain a drive colon, or have "." or ".." segments are unsafe.
func IsSafePath(name string) bool {
	p := NormalizeRelPath(name)
	if p == "" || strings.Contains(p, ":") {
		return false
	}
	for _, part := range strings.Split(p, "/") {
		if part == "." || part == ".." {
			return false
		}
	}
	return true
}

// ImportRelPath maps an entry name to its path below the import root.
// A "Content" segment in second or first position is removed so that
// "<Project>/Content/<rest>" lands at "<Project>/<rest>".
func ImportRelPath(name string) string {
	p := NormalizeRelPath(name)
	if p == "" {
		return p
	}

	parts := splitNonEmpty(p)
	if len(parts) >= 2 && strings.EqualFold(parts[1], stagingFolder) {
		parts = append(parts[:1], parts[2:]...)
		return strings.Join(parts, "/")
	}
	if len(parts) >= 1 && strings.EqualFold(parts[0], stagingFolder) {
		return strings.Join(parts[1:], "/")
	}
	return p
}

// Extract writes the importable entries of the archive read from r below dest.
//
// All entry names are validated before anything is written; a single unsafe
// name aborts the whole extraction with an UnsafePathError.
func Extract(ctx context.Context, r io.Reader, dest string, opts ExtractOptions) (*ExtractResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := Read(r)
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destination; %w", err)
	}

	type target struct {
		rel  string
		abs  string
		data []byte
	}
	targets := make([]target, 0, len(entries))

	for _, e := range entries {
		if e.Name == "" || strings.HasSuffix(e.Name, "/") || strings.HasSuffix(e.Name, `\`) {
			continue
		}
		if !IsSafePath(e.Name) {
			return nil, &UnsafePathError{Name: e.Name}
		}

		rel := ImportRelPath(e.Name)
		if rel == "" {
			continue
		}
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if !within(root, abs) {
			return nil, &UnsafePathError{Name: e.Name}
		}

		targets = append(targets, target{rel: rel, abs: abs, data: e.Data})
	}

	result := &ExtractResult{}
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if !IsImportable(t.rel) {
			result.Skipped++
			continue
		}

		if opts.Mode == ModeSkipExisting {
			if _, err := os.Stat(t.abs); err == nil {
				result.Skipped++
				continue
			}
		}

		if err := os.MkdirAll(filepath.Dir(t.abs), 0755); err != nil {
			return result, fmt.Errorf("failed to create directory for %s; %w", t.rel, err)
		}
		if err := os.WriteFile(t.abs, t.data, 0644); err != nil {
			return result, fmt.Errorf("failed to write %s; %w", t.abs, err)
		}

		if isPrimaryAsset(t.rel) {
			result.Rescanned = append(result.Rescanned, t.abs)
		}
		result.Imported++
	}

	if len(result.Rescanned) > 0 && opts.Rescanner != nil {
		if err := opts.Rescanner.Rescan(ctx, result.Rescanned); err != nil {
			logger.Warn("asset rescan failed", "files", len(result.Rescanned), "error", err)
		}
	}

	logger.Info("import complete", "imported", result.Imported, "skipped", result.Skipped, "dest", root)
	return result, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func splitNonEmpty(p string) []string {
	raw := strings.Split(p, "/")
	parts := raw[:0]
	for _, s := range raw {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}
