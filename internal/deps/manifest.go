package deps

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// primaryExts are tried in order when locating a package's main file.
var primaryExts = []string{".uasset", ".umap"}

// siblingExts are auxiliary files stored next to the main file.
var siblingExts = []string{".uexp", ".ubulk", ".uptnl"}

// manifestExts is the allow-list of files gathered into a manifest.
var manifestExts = map[string]bool{
	".uasset": true,
	".umap":   true,
	".uexp":   true,
	".ubulk":  true,
	".uptnl":  true,
}

// FileManifest lists the on-disk files of a closure. Rel and Abs are parallel
// and sorted by Rel; Rel uses forward slashes relative to the content root.
type FileManifest struct {
	Rel        []string
	Abs        []string
	TotalBytes int64
}

// Len returns the number of files in the manifest.
func (m FileManifest) Len() int {
	return len(m.Rel)
}

// Layout maps packages in a namespace to files under a content directory.
type Layout struct {
	ContentDir string
	Namespace  string
}

// NewLayout creates a Layout with a normalized namespace.
func NewLayout(contentDir, namespace string) Layout {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return Layout{ContentDir: contentDir, Namespace: NormalizeNamespace(namespace)}
}

// PackageBase returns the extensionless file path of pkg, or false when pkg
// is outside the namespace.
func (l Layout) PackageBase(pkg string) (string, bool) {
	if !strings.HasPrefix(pkg, l.Namespace) {
		return "", false
	}
	tail := strings.TrimPrefix(pkg, l.Namespace)
	if tail == "" {
		return "", false
	}
	return filepath.Join(l.ContentDir, filepath.FromSlash(tail)), true
}

// PackageDir returns the content directory holding pkg.
func (l Layout) PackageDir(pkg string) (string, bool) {
	base, ok := l.PackageBase(pkg)
	if !ok {
		return "", false
	}
	return filepath.Dir(base), true
}

// MainFile returns the primary file of pkg: the first existing candidate of
// .uasset and .umap. When neither exists the .uasset path is returned with
// exists set to false.
func (l Layout) MainFile(pkg string) (file string, exists bool) {
	base, ok := l.PackageBase(pkg)
	if !ok {
		return "", false
	}
	for _, ext := range primaryExts {
		candidate := base + ext
		if isRegularFile(candidate) {
			return candidate, true
		}
	}
	return base + primaryExts[0], false
}

// ResolveManifest maps packages to their existing on-disk files, filtered to
// the allow-listed extensions, deduplicated by relative path and sorted.
func (l Layout) ResolveManifest(packages []string) (FileManifest, error) {
	seen := make(map[string]struct{})
	type file struct {
		rel string
		abs string
	}
	var files []file
	var total int64

	for _, pkg := range packages {
		main, _ := l.MainFile(pkg)
		if main == "" {
			continue
		}
		base := strings.TrimSuffix(main, filepath.Ext(main))

		candidates := []string{main}
		for _, ext := range siblingExts {
			candidates = append(candidates, base+ext)
		}

		for _, abs := range candidates {
			if !manifestExts[strings.ToLower(filepath.Ext(abs))] {
				continue
			}
			info, err := os.Stat(abs)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}

			rel, err := filepath.Rel(l.ContentDir, abs)
			if err != nil {
				return FileManifest{}, fmt.Errorf("failed to relativize %s; %w", abs, err)
			}
			rel = filepath.ToSlash(rel)

			if _, dup := seen[rel]; dup {
				continue
			}
			seen[rel] = struct{}{}
			files = append(files, file{rel: rel, abs: abs})
			total += info.Size()
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })

	m := FileManifest{
		Rel:        make([]string, len(files)),
		Abs:        make([]string, len(files)),
		TotalBytes: total,
	}
	for i, f := range files {
		m.Rel[i] = f.rel
		m.Abs[i] = f.abs
	}
	return m, nil
}

// NormalizeArchiveRel cleans a manifest path for metadata: backslashes become
// forward slashes, leading slashes are dropped and a "Content/" prefix is removed.
func NormalizeArchiveRel(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimLeft(p, "/")
	return strings.TrimPrefix(p, "Content/")
}

// RootFolders returns the sorted set of top-level folders spanned by rel paths.
func RootFolders(rel []string) []string {
	set := make(map[string]struct{})
	for _, r := range rel {
		clean := NormalizeArchiveRel(r)
		top, _, _ := strings.Cut(clean, "/")
		if top != "" {
			set[top] = struct{}{}
		}
	}

	roots := make([]string, 0, len(set))
	for r := range set {
		roots = append(roots, r)
	}
	sort.Strings(roots)
	return roots
}

// ExportSubdir returns the export folder for pkg: the first segment below the
// namespace, or the second when the first is the vendor namespace.
func ExportSubdir(pkg, namespace, vendorNamespace string) string {
	tail := strings.TrimPrefix(pkg, NormalizeNamespace(namespace))
	parts := splitPath(tail)
	if len(parts) == 0 {
		return tail
	}
	if vendorNamespace != "" && strings.EqualFold(parts[0], vendorNamespace) && len(parts) > 1 {
		return parts[1]
	}
	return parts[0]
}

// Vendor returns the first segment below the namespace, or "" when there is none.
func Vendor(pkg, namespace string) string {
	parts := splitPath(strings.TrimPrefix(pkg, NormalizeNamespace(namespace)))
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// TopFolder returns the first folder of pkg's long package path below the
// namespace. A package directly in the namespace root yields "".
func TopFolder(pkg, namespace string) string {
	dir := path.Dir(pkg)
	ns := NormalizeNamespace(namespace)
	if !strings.HasPrefix(dir+"/", ns) {
		return ""
	}
	rel := strings.TrimPrefix(dir+"/", ns)
	top, _, _ := strings.Cut(rel, "/")
	return top
}

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
