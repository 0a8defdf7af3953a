// Package registry is a file-backed host asset registry. It describes the
// project's assets, their classes and package dependency edges in a YAML
// document, and answers the lookups the exporter and importer need.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/leefowlercu/asset-snapshot/internal/deps"
)

// ErrAssetNotFound is returned when an object path is not registered.
var ErrAssetNotFound = errors.New("asset not found")

// Bounds is an axis-aligned size in centimeters.
type Bounds struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	Z float64 `yaml:"z" json:"z"`
}

// MeshInfo holds the geometry statistics reported for mesh assets.
type MeshInfo struct {
	Triangles           int    `yaml:"triangles"`
	Vertices            int    `yaml:"vertices"`
	LODs                int    `yaml:"lods"`
	NaniteEnabled       bool   `yaml:"nanite_enabled"`
	CollisionComplexity string `yaml:"collision_complexity"`
	Size                Bounds `yaml:"size_cm"`
}

// Asset is one registered asset.
type Asset struct {
	ObjectPath   string    `yaml:"object_path"`
	Class        string    `yaml:"class"`
	Dependencies []string  `yaml:"dependencies,omitempty"`
	AnimLength   float64   `yaml:"animation_length_seconds,omitempty"`
	Mesh         *MeshInfo `yaml:"mesh,omitempty"`
}

// Package returns the long package name of the asset.
func (a Asset) Package() string {
	return deps.PackageName(a.ObjectPath)
}

// Name returns the asset name, the last path segment of its package.
func (a Asset) Name() string {
	return deps.AssetName(a.ObjectPath)
}

type document struct {
	Assets []Asset `yaml:"assets"`
}

// Registry is safe for concurrent use; Reload swaps the whole index.
type Registry struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	byObject map[string]Asset
	byPkg    map[string][]Asset
	edges    map[string][]string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// Load reads the registry document at path.
func Load(path string, opts ...Option) (*Registry, error) {
	r := &Registry{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// New builds an in-memory registry from assets.
func New(assets []Asset, opts ...Option) *Registry {
	r := &Registry{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.index(assets)
	return r
}

// Reload re-reads the registry document from disk.
func (r *Registry) Reload() error {
	if r.path == "" {
		return nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("failed to read registry %s; %w", r.path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse registry %s; %w", r.path, err)
	}

	for i, a := range doc.Assets {
		if strings.TrimSpace(a.ObjectPath) == "" {
			return fmt.Errorf("failed to parse registry %s; asset %d has no object_path", r.path, i)
		}
	}

	r.index(doc.Assets)
	return nil
}

func (r *Registry) index(assets []Asset) {
	byObject := make(map[string]Asset, len(assets))
	byPkg := make(map[string][]Asset)
	edges := make(map[string][]string)

	for _, a := range assets {
		byObject[a.ObjectPath] = a
		pkg := a.Package()
		byPkg[pkg] = append(byPkg[pkg], a)
		edges[pkg] = appendUnique(edges[pkg], a.Dependencies...)
	}

	r.mu.Lock()
	r.byObject = byObject
	r.byPkg = byPkg
	r.edges = edges
	r.mu.Unlock()
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		v = deps.PackageName(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		dup := false
		for _, d := range dst {
			if d == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}

// Dependencies returns the packages pkg depends on. Unknown packages have no
// dependencies.
func (r *Registry) Dependencies(ctx context.Context, pkg string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.edges[pkg]...), nil
}

// Lookup returns the asset registered under objectPath.
func (r *Registry) Lookup(objectPath string) (Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byObject[objectPath]
	if !ok {
		return Asset{}, fmt.Errorf("%s; %w", objectPath, ErrAssetNotFound)
	}
	return a, nil
}

// AssetsInDir returns every asset whose package lies under dir, recursively,
// sorted by object path.
func (r *Registry) AssetsInDir(dir string) []Asset {
	prefix := strings.TrimRight(dir, "/") + "/"

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Asset
	for _, a := range r.byObject {
		if strings.HasPrefix(a.Package(), prefix) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectPath < out[j].ObjectPath })
	return out
}

// Len returns the number of registered assets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byObject)
}

// Rescan refreshes the registry after files were written into the content
// tree, the way the host asset database picks up imported packages.
func (r *Registry) Rescan(ctx context.Context, files []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.Reload(); err != nil {
		return err
	}
	r.logger.Info("asset registry rescanned", "files", len(files), "assets", r.Len())
	return nil
}
