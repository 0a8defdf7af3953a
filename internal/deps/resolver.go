// Package deps resolves an asset's package dependency closure and maps it to
// the files that make up the closure on disk.
package deps

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

// DefaultNamespace is the content root mount point traversed for dependencies.
const DefaultNamespace = "/Game/"

// Graph exposes package-level dependency edges from the host asset registry.
type Graph interface {
	Dependencies(ctx context.Context, pkg string) ([]string, error)
}

// Resolver computes dependency closures restricted to one namespace.
type Resolver struct {
	graph     Graph
	namespace string
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithNamespace sets the namespace whose packages are traversed.
func WithNamespace(ns string) Option {
	return func(r *Resolver) {
		if ns != "" {
			r.namespace = NormalizeNamespace(ns)
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver over graph.
func NewResolver(graph Graph, opts ...Option) *Resolver {
	r := &Resolver{
		graph:     graph,
		namespace: DefaultNamespace,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Namespace returns the normalized namespace, always with a trailing slash.
func (r *Resolver) Namespace() string {
	return r.namespace
}

// InNamespace reports whether pkg lives under the resolver's namespace.
func (r *Resolver) InNamespace(pkg string) bool {
	return strings.HasPrefix(pkg, r.namespace)
}

// ResolveClosure returns every package reachable from root through edges
// that stay inside the namespace, including root, sorted lexicographically.
// A root outside the namespace is returned alone without consulting the graph.
func (r *Resolver) ResolveClosure(ctx context.Context, root string) ([]string, error) {
	if !r.InNamespace(root) {
		return []string{root}, nil
	}

	visited := map[string]struct{}{root: {}}
	queue := []string{root}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pkg := queue[0]
		queue = queue[1:]

		edges, err := r.graph.Dependencies(ctx, pkg)
		if err != nil {
			// Missing registry data leaves the package as a leaf.
			r.logger.Warn("failed to read package dependencies", "package", pkg, "error", err)
			continue
		}

		for _, dep := range edges {
			if !r.InNamespace(dep) {
				continue
			}
			if _, seen := visited[dep]; seen {
				continue
			}
			visited[dep] = struct{}{}
			queue = append(queue, dep)
		}
	}

	closure := make([]string, 0, len(visited))
	for pkg := range visited {
		closure = append(closure, pkg)
	}
	sort.Strings(closure)
	return closure, nil
}

// NormalizeNamespace ensures ns starts and ends with a slash.
func NormalizeNamespace(ns string) string {
	ns = strings.TrimSpace(ns)
	if !strings.HasPrefix(ns, "/") {
		ns = "/" + ns
	}
	if !strings.HasSuffix(ns, "/") {
		ns += "/"
	}
	return ns
}

// PackageName strips the object suffix from an object path.
// "/Game/Props/Chair.Chair" becomes "/Game/Props/Chair".
func PackageName(objectPath string) string {
	if i := strings.LastIndex(objectPath, "."); i > strings.LastIndex(objectPath, "/") {
		return objectPath[:i]
	}
	return objectPath
}

// AssetName returns the last segment of a package or object path.
func AssetName(path string) string {
	pkg := PackageName(path)
	if i := strings.LastIndex(pkg, "/"); i >= 0 {
		return pkg[i+1:]
	}
	return pkg
}
