package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/leefowlercu/asset-snapshot/internal/metrics"
)

const (
	DefaultCheckPathTemplate  = "/assets/exists?hash={hash}&hash_type=blake3"
	DefaultUploadPathTemplate = "/assets/upload"

	minFrameCount       = 1
	maxFrameCount       = 24
	maxDiscardFrames    = 10
	defaultAnimFrames   = 4
	defaultDefaultCount = 1
)

// Settings is the remote export configuration. Available is false when the
// values are local defaults because the server could not be reached.
type Settings struct {
	Available bool

	OverwriteZips           bool
	DefaultImageCount       int
	StaticMeshImageCount    int
	SkeletalMeshImageCount  int
	MaterialImageCount      int
	BlueprintImageCount     int
	NiagaraImageCount       int
	AnimSequenceImageCount  int
	Capture360DiscardFrames int
	SkipExportIfOnServer    bool
	CheckPathTemplate       string
	UploadAfterExport       bool
	UploadPathTemplate      string
}

// DefaultSettings returns the values used when the server is unavailable.
func DefaultSettings() Settings {
	return Settings{
		DefaultImageCount:  defaultDefaultCount,
		CheckPathTemplate:  DefaultCheckPathTemplate,
		UploadAfterExport:  true,
		UploadPathTemplate: DefaultUploadPathTemplate,
	}
}

// ParseSettings coerces a decoded /settings document. Each field may arrive
// as a string, bool or number; absent or unparsable fields keep defaults.
func ParseSettings(doc map[string]any) Settings {
	s := DefaultSettings()
	s.Available = true

	s.OverwriteZips = ParseBool(SettingString(doc, "export_overwrite_zips", "false"), false)
	s.DefaultImageCount = ParseInt(SettingString(doc, "export_default_image_count", "1"), 1)
	s.StaticMeshImageCount = ParseInt(SettingString(doc, "export_static_mesh_image_count", ""), 0)
	s.SkeletalMeshImageCount = ParseInt(SettingString(doc, "export_skeletal_mesh_image_count", ""), 0)
	s.MaterialImageCount = ParseInt(SettingString(doc, "export_material_image_count", ""), 0)
	s.BlueprintImageCount = ParseInt(SettingString(doc, "export_blueprint_image_count", ""), 0)
	s.NiagaraImageCount = ParseInt(SettingString(doc, "export_niagara_image_count", ""), 0)
	s.AnimSequenceImageCount = ParseInt(SettingString(doc, "export_anim_sequence_image_count", ""), 0)
	s.Capture360DiscardFrames = ParseInt(SettingString(doc, "export_capture360_discard_frames", "0"), 0)
	s.SkipExportIfOnServer = ParseBool(SettingString(doc, "skip_export_if_on_server", "false"), false)
	s.CheckPathTemplate = SettingString(doc, "export_check_path_template", DefaultCheckPathTemplate)
	s.UploadAfterExport = ParseBool(SettingString(doc, "export_upload_after_export", "true"), true)
	s.UploadPathTemplate = SettingString(doc, "export_upload_path_template", DefaultUploadPathTemplate)

	return s
}

// SettingString renders a settings field as text. Numbers are truncated to
// integers; values cast cannot render fall back to def.
func SettingString(doc map[string]any, key, def string) string {
	v, ok := doc[key]
	if !ok || v == nil {
		return def
	}
	switch v.(type) {
	case float64, float32, json.Number:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return def
		}
		return strconv.Itoa(int(f))
	case map[string]any, []any:
		return def
	}
	str, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return str
}

// ParseBool reports whether value is one of 1, true, yes or on. An empty
// value yields def.
func ParseBool(value string, def bool) bool {
	raw := strings.ToLower(strings.TrimSpace(value))
	if raw == "" {
		return def
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// ParseInt parses a decimal integer, yielding def for empty or non-numeric input.
func ParseInt(value string, def int) int {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// ClampCount returns v, or def when v is not positive, clamped to 1..24.
func ClampCount(v, def int) int {
	if v <= 0 {
		v = def
	}
	return min(max(v, minFrameCount), maxFrameCount)
}

// DefaultCount is the configured default image count, at least 1.
func (s Settings) DefaultCount() int {
	if s.DefaultImageCount > 0 {
		return s.DefaultImageCount
	}
	return defaultDefaultCount
}

func (s Settings) kindCount(v int) int {
	def := s.DefaultCount()
	if v <= 0 {
		v = def
	}
	return ClampCount(v, def)
}

// StaticMeshFrameCount returns the number of preview frames for static meshes.
func (s Settings) StaticMeshFrameCount() int { return s.kindCount(s.StaticMeshImageCount) }

// SkeletalMeshFrameCount returns the number of preview frames for skeletal meshes.
func (s Settings) SkeletalMeshFrameCount() int { return s.kindCount(s.SkeletalMeshImageCount) }

// MaterialFrameCount returns the number of preview frames for materials.
func (s Settings) MaterialFrameCount() int { return s.kindCount(s.MaterialImageCount) }

// BlueprintFrameCount returns the number of preview frames for blueprints.
func (s Settings) BlueprintFrameCount() int { return s.kindCount(s.BlueprintImageCount) }

// NiagaraFrameCount returns the number of preview frames for effects.
func (s Settings) NiagaraFrameCount() int { return s.kindCount(s.NiagaraImageCount) }

// AnimSequenceFrameCount returns the number of preview frames for
// animations, falling back to 4 rather than the default count.
func (s Settings) AnimSequenceFrameCount() int {
	v := s.AnimSequenceImageCount
	if v <= 0 {
		v = defaultAnimFrames
	}
	return ClampCount(v, s.DefaultCount())
}

// DiscardFrames returns the number of warm-up frames dropped before a 360
// capture, clamped to 0..10.
func (s Settings) DiscardFrames() int {
	return min(max(s.Capture360DiscardFrames, 0), maxDiscardFrames)
}

type settingsEntry struct {
	settings  Settings
	fetchedAt time.Time
}

// Settings returns the server settings for base, fetching at most once per
// SettingsTTL. Failed fetches are cached too, so an unreachable server costs
// one timeout per window rather than one per caller.
func (c *Client) Settings(ctx context.Context, base string) Settings {
	base = NormalizeBaseURL(base)

	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()

	now := c.clock.Now()
	if entry, ok := c.settings[base]; ok && now.Sub(entry.fetchedAt) < SettingsTTL {
		metrics.RecordCacheAccess("settings", true)
		return entry.settings
	}
	metrics.RecordCacheAccess("settings", false)

	settings := DefaultSettings()
	if base != "" {
		doc, err := c.fetchSettingsDoc(ctx, base, "settings")
		if err != nil {
			c.logger.Warn("server settings unavailable; using defaults", "base_url", base, "error", err)
		} else {
			settings = ParseSettings(doc)
		}
	}

	c.settings[base] = settingsEntry{settings: settings, fetchedAt: now}
	return settings
}

// InvalidateSettings drops every cached settings entry.
func (c *Client) InvalidateSettings() {
	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()
	clear(c.settings)
}

// fetchSettingsDoc performs GET /settings and decodes the JSON object.
func (c *Client) fetchSettingsDoc(ctx context.Context, base, op string) (map[string]any, error) {
	return do(ctx, c, op, c.timeouts.Default, func(ctx context.Context) (map[string]any, error) {
		req, err := c.newRequest(ctx, http.MethodGet, joinPath(base, "/settings"), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request; %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch settings; %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{Op: op, Status: resp.StatusCode}
		}

		var doc map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse settings; %w", err)
		}
		if doc == nil {
			return nil, fmt.Errorf("failed to parse settings; %w", ErrUnavailable)
		}
		return doc, nil
	})
}
