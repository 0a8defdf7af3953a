package export

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"sort"
	"strings"

	"github.com/leefowlercu/asset-snapshot/internal/deps"
	"github.com/leefowlercu/asset-snapshot/internal/events"
	"github.com/leefowlercu/asset-snapshot/internal/registry"
)

// reclaimEvery is the number of assets between forced memory reclamation.
const reclaimEvery = 10

// BatchResult summarizes a batch export.
type BatchResult struct {
	BatchID  int64
	Exported int
	Total    int
	Results  []Result
}

// Count returns how many results ended with outcome.
func (b BatchResult) Count(outcome Outcome) int {
	n := 0
	for _, r := range b.Results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// ExportBatch exports every asset found at path. Path may be an object path,
// a directory under the namespace or a package path. Include and exclude are
// comma, semicolon, pipe or space separated class filters; the server's
// filters are merged in when a base URL is configured. Per-asset failures are
// reported in the result, never returned.
func (e *Exporter) ExportBatch(ctx context.Context, path, include, exclude string) BatchResult {
	e.run.Lock()
	defer e.run.Unlock()

	path = strings.TrimSpace(path)
	if path == "" {
		e.logger.Error("batch export requires a path")
		return BatchResult{}
	}

	found := e.findAssets(path)
	if len(found) == 0 {
		e.logger.Error("no assets found", "path", path)
		return BatchResult{}
	}

	filter := e.mergeServerFilters(ctx, ClassFilter{Include: include, Exclude: exclude})
	e.logger.Info("export filters",
		"include", filter.Include,
		"exclude", filter.Exclude,
		"server_include", filter.ServerInclude)

	selected, ok := filter.Apply(found)
	if !ok {
		e.logger.Warn("type filter did not match any exportable classes", "include", filter.Include)
		return BatchResult{}
	}
	if len(selected) == 0 {
		e.logger.Warn("no matching asset types to export", "path", path)
		return BatchResult{}
	}
	sortAssets(selected)

	total := len(selected)
	batchID := e.beginBatch(ctx, total)
	defer e.endBatch()

	start := e.clock.Now()
	e.publish(ctx, events.NewBatchStarted(batchID, path, total))

	out := BatchResult{BatchID: batchID, Total: total}
	for i, asset := range selected {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("batch export cancelled", "error", err, "exported", out.Exported, "total", total)
			break
		}

		b := e.advance()
		e.logger.Info("exporting asset",
			"current", b.Current,
			"total", total,
			"percent", b.Current*100/total,
			"asset", asset.ObjectPath)

		res := e.exportOne(ctx, asset.ObjectPath)
		out.Results = append(out.Results, res)
		if res.Outcome == OutcomeExported {
			out.Exported++
		}

		if i%reclaimEvery == reclaimEvery-1 {
			runtime.GC()
			debug.FreeOSMemory()
		}
	}

	e.publish(ctx, events.NewBatchCompleted(batchID, path, total, out.Exported, e.clock.Since(start)))
	e.logger.Info("export done", "exported", out.Exported, "total", total)
	return out
}

// findAssets resolves path as an object path, then a directory, then a
// package path.
func (e *Exporter) findAssets(path string) []registry.Asset {
	if strings.Contains(path, ".") {
		if a, err := e.assets.Lookup(path); err == nil {
			return []registry.Asset{a}
		}
	}

	if e.resolver.InNamespace(path) || strings.TrimRight(path, "/")+"/" == e.cfg.Namespace {
		if found := e.assets.AssetsInDir(path); len(found) > 0 {
			return found
		}
	}

	if e.resolver.InNamespace(path) && !strings.Contains(path, ".") {
		objectPath := path + "." + deps.AssetName(path)
		if a, err := e.assets.Lookup(objectPath); err == nil {
			return []registry.Asset{a}
		}
	}
	return nil
}

// ClassFilter selects assets by class. Each field is a comma, semicolon,
// pipe or space separated list of class names or aliases such as "mesh".
type ClassFilter struct {
	Include string
	Exclude string

	// ServerInclude is intersected with Include when both are set.
	ServerInclude string
}

// mergeServerFilters folds the server's export filters into f. A caller
// include list wins over the server's and is narrowed by it; exclude lists
// are joined.
func (e *Exporter) mergeServerFilters(ctx context.Context, f ClassFilter) ClassFilter {
	if e.cfg.BaseURL == "" {
		return f
	}

	server, ok := e.remote.ExportFilters(ctx, e.cfg.BaseURL)
	if !ok {
		e.logger.Warn("server export filters unavailable", "base_url", e.cfg.BaseURL)
		return f
	}

	if strings.TrimSpace(f.Include) == "" {
		f.Include = server.Include
	} else {
		f.ServerInclude = server.Include
	}

	if server.Exclude != "" {
		if strings.TrimSpace(f.Exclude) == "" {
			f.Exclude = server.Exclude
		} else {
			f.Exclude = f.Exclude + "," + server.Exclude
		}
	}
	return f
}

func parseTokens(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == ' ' || r == '\t'
	})
}

func classSet(raw string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range parseTokens(raw) {
		for _, c := range classesForToken(tok) {
			set[c] = true
		}
	}
	return set
}

func restrictToExportable(set map[string]bool) {
	for c := range set {
		if !slices.Contains(exportableClasses, c) {
			delete(set, c)
		}
	}
}

// Apply keeps exportable assets matching the include list and not the
// exclude list. It reports false when a non-empty include list matched no
// exportable class.
func (f ClassFilter) Apply(assets []registry.Asset) ([]registry.Asset, bool) {
	var includeSet map[string]bool
	if strings.TrimSpace(f.Include) != "" {
		includeSet = classSet(f.Include)
		if serverSet := classSet(f.ServerInclude); len(serverSet) > 0 {
			for c := range includeSet {
				if !serverSet[c] {
					delete(includeSet, c)
				}
			}
		}
		restrictToExportable(includeSet)
		if len(includeSet) == 0 {
			return nil, false
		}
	}

	excludeSet := classSet(f.Exclude)
	restrictToExportable(excludeSet)
	for c := range includeSet {
		delete(excludeSet, c)
	}

	var out []registry.Asset
	for _, a := range assets {
		if !slices.Contains(exportableClasses, a.Class) {
			continue
		}
		if includeSet != nil && !includeSet[a.Class] {
			continue
		}
		if excludeSet[a.Class] {
			continue
		}
		out = append(out, a)
	}
	return out, true
}

func sortAssets(assets []registry.Asset) {
	sort.SliceStable(assets, func(i, j int) bool {
		ki, kj := KindForClass(assets[i].Class).sortKey(), KindForClass(assets[j].Class).sortKey()
		if ki != kj {
			return ki < kj
		}
		return assets[i].ObjectPath < assets[j].ObjectPath
	})
}
