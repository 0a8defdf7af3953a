package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// settingsServer serves body on /settings with status and counts requests.
func settingsServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/settings" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"127.0.0.1:9090", "http://127.0.0.1:9090"},
		{" http://catalog.local/ ", "http://catalog.local"},
		{"https://catalog.local///", "https://catalog.local"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeBaseURL(tt.in))
		})
	}
}

func TestParseSettings_Coercion(t *testing.T) {
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"export_overwrite_zips": "yes",
		"export_default_image_count": 3,
		"export_material_image_count": "5",
		"export_skeletal_mesh_image_count": "abc",
		"export_capture360_discard_frames": 2.9,
		"skip_export_if_on_server": true,
		"export_upload_after_export": "off",
		"export_check_path_template": "/exists/{hash}"
	}`), &doc))

	s := ParseSettings(doc)
	assert.True(t, s.Available)
	assert.True(t, s.OverwriteZips)
	assert.Equal(t, 3, s.DefaultImageCount)
	assert.Equal(t, 5, s.MaterialImageCount)
	assert.Equal(t, 0, s.SkeletalMeshImageCount)
	assert.Equal(t, 2, s.Capture360DiscardFrames)
	assert.True(t, s.SkipExportIfOnServer)
	assert.False(t, s.UploadAfterExport)
	assert.Equal(t, "/exists/{hash}", s.CheckPathTemplate)
	assert.Equal(t, DefaultUploadPathTemplate, s.UploadPathTemplate)
}

func TestSettingString(t *testing.T) {
	doc := map[string]any{
		"str":    " 4 ",
		"bool":   false,
		"float":  7.9,
		"number": json.Number("3.2"),
		"int":    9,
		"list":   []any{"a"},
		"nested": map[string]any{"a": 1},
		"null":   nil,
	}

	tests := []struct {
		key  string
		want string
	}{
		{"str", " 4 "},
		{"bool", "false"},
		{"float", "7"},
		{"number", "3"},
		{"int", "9"},
		{"list", "def"},
		{"nested", "def"},
		{"null", "def"},
		{"missing", "def"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, SettingString(doc, tt.key, "def"))
		})
	}
}

func TestParseBoolAndInt(t *testing.T) {
	assert.True(t, ParseBool(" ON ", false))
	assert.True(t, ParseBool("1", false))
	assert.True(t, ParseBool("yes", false))
	assert.False(t, ParseBool("enabled", true))
	assert.True(t, ParseBool("", true))

	assert.Equal(t, 12, ParseInt(" 12 ", 1))
	assert.Equal(t, 1, ParseInt("", 1))
	assert.Equal(t, 7, ParseInt("seven", 7))
	assert.Equal(t, 7, ParseInt("true", 7))
}

func TestSettings_FrameCounts(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		static   int
		anim     int
		material int
	}{
		{"defaults", DefaultSettings(), 1, 4, 1},
		{"default count applies to kinds", Settings{DefaultImageCount: 6}, 6, 4, 6},
		{"zero default falls back to one", Settings{DefaultImageCount: 0}, 1, 4, 1},
		{"explicit kind counts", Settings{DefaultImageCount: 2, StaticMeshImageCount: 8, AnimSequenceImageCount: 12, MaterialImageCount: 3}, 8, 12, 3},
		{"clamped to 24", Settings{DefaultImageCount: 40, AnimSequenceImageCount: 99}, 24, 24, 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.static, tt.settings.StaticMeshFrameCount())
			assert.Equal(t, tt.anim, tt.settings.AnimSequenceFrameCount())
			assert.Equal(t, tt.material, tt.settings.MaterialFrameCount())
		})
	}
}

func TestSettings_DiscardFramesClamped(t *testing.T) {
	assert.Equal(t, 0, Settings{Capture360DiscardFrames: -3}.DiscardFrames())
	assert.Equal(t, 4, Settings{Capture360DiscardFrames: 4}.DiscardFrames())
	assert.Equal(t, 10, Settings{Capture360DiscardFrames: 50}.DiscardFrames())
}

func TestClient_Settings_AbsentStaticMeshCountUsesDefault(t *testing.T) {
	srv, _ := settingsServer(t, http.StatusOK, `{"export_default_image_count": "3"}`)
	c := New()

	s := c.Settings(context.Background(), srv.URL)
	require.True(t, s.Available)
	assert.Equal(t, 3, s.StaticMeshFrameCount())
	assert.NotZero(t, s.SkeletalMeshFrameCount())
}

func TestClient_Settings_CachedPerBaseURL(t *testing.T) {
	srv, hits := settingsServer(t, http.StatusOK, `{"export_overwrite_zips": true}`)
	mock := clock.NewMock()
	c := New(WithClock(mock))
	ctx := context.Background()

	first := c.Settings(ctx, srv.URL)
	second := c.Settings(ctx, srv.URL+"/")
	assert.True(t, first.OverwriteZips)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load())

	mock.Add(SettingsTTL + time.Second)
	c.Settings(ctx, srv.URL)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_Settings_FailureIsCached(t *testing.T) {
	srv, hits := settingsServer(t, http.StatusInternalServerError, `oops`)
	mock := clock.NewMock()
	c := New(WithClock(mock))
	ctx := context.Background()

	s := c.Settings(ctx, srv.URL)
	assert.False(t, s.Available)
	assert.Equal(t, DefaultSettings(), s)

	c.Settings(ctx, srv.URL)
	assert.Equal(t, int32(1), hits.Load())

	mock.Add(SettingsTTL)
	c.Settings(ctx, srv.URL)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_Settings_BadJSON(t *testing.T) {
	srv, _ := settingsServer(t, http.StatusOK, `not json`)
	s := New().Settings(context.Background(), srv.URL)
	assert.False(t, s.Available)
}

func TestClient_Settings_EmptyBaseURL(t *testing.T) {
	s := New().Settings(context.Background(), "  ")
	assert.False(t, s.Available)
	assert.Equal(t, DefaultSettings(), s)
}

func TestClient_Settings_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := New(WithTimeouts(Timeouts{Default: 50 * time.Millisecond}))

	start := time.Now()
	s := c.Settings(context.Background(), srv.URL)
	assert.False(t, s.Available)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_InvalidateSettings(t *testing.T) {
	srv, hits := settingsServer(t, http.StatusOK, `{}`)
	c := New(WithClock(clock.NewMock()))

	c.Settings(context.Background(), srv.URL)
	c.InvalidateSettings()
	c.Settings(context.Background(), srv.URL)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_UserAgent(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("User-Agent"))
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	t.Cleanup(srv.Close)

	c := New(WithUserAgent("asset-snapshot/0.1.0"))
	s := c.Settings(context.Background(), srv.URL)
	require.True(t, s.Available)
	assert.Equal(t, "asset-snapshot/0.1.0", got.Load())
}
