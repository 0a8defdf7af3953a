package export

import (
	"context"
	"fmt"

	"github.com/leefowlercu/asset-snapshot/internal/deps"
	"github.com/leefowlercu/asset-snapshot/internal/hashing"
)

// Inspection is the local, read-only view of an asset: its dependency
// closure, the files that closure maps to and the resulting digests.
type Inspection struct {
	ObjectPath string
	Class      string
	Kind       Kind
	Packages   []string
	Manifest   deps.FileManifest
	MainFile   string
	Digests    hashing.Digests
}

// Inspect resolves and hashes objectPath without contacting the catalog or
// writing an archive.
func (e *Exporter) Inspect(ctx context.Context, objectPath string) (Inspection, error) {
	asset, err := e.assets.Lookup(objectPath)
	if err != nil {
		return Inspection{}, err
	}

	pkg := asset.Package()
	in := Inspection{
		ObjectPath: asset.ObjectPath,
		Class:      asset.Class,
		Kind:       KindForClass(asset.Class),
	}
	if !e.resolver.InNamespace(pkg) {
		return in, fmt.Errorf("asset %s is outside namespace %s", objectPath, e.cfg.Namespace)
	}

	closure, err := e.resolver.ResolveClosure(ctx, pkg)
	if err != nil {
		return in, fmt.Errorf("failed to resolve dependencies; %w", err)
	}
	in.Packages = closure

	manifest, err := e.layout.ResolveManifest(closure)
	if err != nil {
		return in, fmt.Errorf("failed to resolve files; %w", err)
	}
	in.Manifest = manifest

	in.MainFile, _ = e.layout.MainFile(pkg)
	digests, err := hashing.Compute(in.MainFile, manifest.Rel, manifest.Abs)
	if err != nil {
		return in, fmt.Errorf("failed to hash main file; %w", err)
	}
	in.Digests = digests
	return in, nil
}
