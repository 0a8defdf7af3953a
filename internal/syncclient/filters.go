package syncclient

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/leefowlercu/asset-snapshot/internal/metrics"
)

// Filters are the server-provided export class filters. Include and Exclude
// are comma separated class lists or tokens.
type Filters struct {
	Include string
	Exclude string

	// SkipKnown is set when the document carried a recognizable
	// skip_export_if_on_server value; SkipEnabled holds it.
	SkipKnown   bool
	SkipEnabled bool
}

type filtersEntry struct {
	filters   Filters
	valid     bool
	fetchedAt time.Time
	inFlight  bool
	startedAt time.Time
}

// ExportFilters returns the server export filters for base. Results are
// reused for FiltersTTL. A caller arriving while another fetch for the same
// base is outstanding gets false immediately instead of a duplicate request;
// an in-flight marker older than FiltersTTL is treated as stale and cleared.
func (c *Client) ExportFilters(ctx context.Context, base string) (Filters, bool) {
	base = NormalizeBaseURL(base)
	if base == "" {
		return Filters{}, false
	}

	c.filtersMu.Lock()
	entry, ok := c.filters[base]
	if !ok {
		entry = &filtersEntry{}
		c.filters[base] = entry
	}

	now := c.clock.Now()
	if entry.valid && now.Sub(entry.fetchedAt) < FiltersTTL {
		f := entry.filters
		c.filtersMu.Unlock()
		metrics.RecordCacheAccess("filters", true)
		return f, true
	}

	if entry.inFlight {
		if now.Sub(entry.startedAt) > FiltersTTL {
			entry.inFlight = false
		}
		c.filtersMu.Unlock()
		return Filters{}, false
	}

	entry.inFlight = true
	entry.startedAt = now
	c.filtersMu.Unlock()
	metrics.RecordCacheAccess("filters", false)

	doc, err := c.fetchSettingsDoc(ctx, base, "filters")

	var filters Filters
	if err != nil {
		c.logger.Warn("export filters unavailable", "base_url", base, "error", err)
	} else {
		filters = ParseFilters(doc)
		c.logger.Debug("export filters fetched", "include", filters.Include, "exclude", filters.Exclude)
	}

	c.filtersMu.Lock()
	defer c.filtersMu.Unlock()
	entry.filters = filters
	entry.valid = err == nil
	entry.fetchedAt = c.clock.Now()
	entry.inFlight = false

	return filters, err == nil
}

// ParseFilters extracts export filters from a decoded /settings document.
func ParseFilters(doc map[string]any) Filters {
	var f Filters
	f.Include = filterList(doc["export_include_types"])
	f.Exclude = filterList(doc["export_exclude_types"])

	if raw, ok := doc["skip_export_if_on_server"]; ok {
		f.SkipEnabled, f.SkipKnown = parseSkip(raw)
	}
	return f
}

// filterList accepts either a string or an array of strings. Array items are
// trimmed, empty items dropped and the rest joined with commas.
func filterList(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any:
		items, err := cast.ToStringSliceE(val)
		if err != nil {
			return ""
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if s := strings.TrimSpace(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	}
	return ""
}

// parseSkip reads a tri-state toggle: recognized true and false spellings
// return known=true, anything else is unknown.
func parseSkip(v any) (enabled, known bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case float64:
		return val != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "true", "yes", "on":
			return true, true
		case "0", "false", "no", "off":
			return false, true
		}
	}
	return false, false
}
