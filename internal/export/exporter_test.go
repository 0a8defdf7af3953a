package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leefowlercu/asset-snapshot/internal/archive"
	"github.com/leefowlercu/asset-snapshot/internal/events"
	"github.com/leefowlercu/asset-snapshot/internal/preview"
	"github.com/leefowlercu/asset-snapshot/internal/registry"
	"github.com/leefowlercu/asset-snapshot/internal/storage"
	"github.com/leefowlercu/asset-snapshot/internal/syncclient"
)

type fixture struct {
	projectDir string
	contentDir string
	exportRoot string
	registry   *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	projectDir := t.TempDir()
	f := &fixture{
		projectDir: projectDir,
		contentDir: filepath.Join(projectDir, "Content"),
		exportRoot: filepath.Join(projectDir, "export"),
	}

	f.writeContent(t, "Props/Chair.uasset", "chair-main")
	f.writeContent(t, "Props/Chair.uexp", "chair-export")
	f.writeContent(t, "Materials/Wood.uasset", "wood-main")
	f.writeContent(t, "Materials/Wood_Inst.uasset", "wood-inst")
	f.writeContent(t, "Characters/Hero/Run.uasset", "run-main")
	f.writeContent(t, "Textures/T_Wood.uasset", "texture")

	f.registry = registry.New([]registry.Asset{
		{
			ObjectPath:   "/Game/Props/Chair.Chair",
			Class:        ClassStaticMesh,
			Dependencies: []string{"/Game/Materials/Wood", "/Engine/BasicShapes/Cube"},
			Mesh: &registry.MeshInfo{
				Triangles: 1200, Vertices: 800, LODs: 3,
				CollisionComplexity: "simple",
				Size:                registry.Bounds{X: 50, Y: 60, Z: 90},
			},
		},
		{ObjectPath: "/Game/Materials/Wood.Wood", Class: ClassMaterial},
		{ObjectPath: "/Game/Materials/Wood_Inst.Wood_Inst", Class: ClassMaterialInstanceConstant},
		{ObjectPath: "/Game/Characters/Hero/Run.Run", Class: ClassAnimSequence, AnimLength: 1.5},
		{ObjectPath: "/Game/Textures/T_Wood.T_Wood", Class: ClassTexture2D},
		{ObjectPath: "/Engine/BasicShapes/Cube.Cube", Class: ClassStaticMesh},
		{ObjectPath: "/Game/Props/Missing.Missing", Class: ClassStaticMesh},
	})
	return f
}

func (f *fixture) writeContent(t *testing.T, rel, body string) {
	t.Helper()
	p := filepath.Join(f.contentDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
}

func (f *fixture) config(baseURL string) Config {
	return Config{
		ProjectDir:      f.projectDir,
		ContentDir:      f.contentDir,
		ExportRoot:      f.exportRoot,
		Namespace:       "/Game/",
		VendorNamespace: "byHans1",
		BaseURL:         baseURL,
	}
}

// catalog is a fake catalog server.
type catalog struct {
	mu          sync.Mutex
	settings    map[string]any
	existStatus int
	exists      bool
	projectID   int

	existsCalls  atomic.Int32
	resolveCalls atomic.Int32
	uploads      atomic.Int32
	notifies     atomic.Int32
	uploadStatus int
	lastTemplate atomic.Value
}

func newCatalog(t *testing.T) (*catalog, *httptest.Server) {
	c := &catalog{
		settings:     map[string]any{},
		existStatus:  http.StatusOK,
		uploadStatus: http.StatusOK,
		projectID:    7,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/settings", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		_ = json.NewEncoder(w).Encode(c.settings)
	})
	existsHandler := func(w http.ResponseWriter, r *http.Request) {
		c.existsCalls.Add(1)
		c.lastTemplate.Store(r.URL.Path)
		c.mu.Lock()
		status, exists := c.existStatus, c.exists
		c.mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"exists": exists})
	}
	mux.HandleFunc("/assets/exists", existsHandler)
	mux.HandleFunc("/custom/exists", existsHandler)
	mux.HandleFunc("/assets/upload", func(w http.ResponseWriter, r *http.Request) {
		c.uploads.Add(1)
		w.WriteHeader(c.uploadStatus)
	})
	mux.HandleFunc("/projects/resolve", func(w http.ResponseWriter, r *http.Request) {
		c.resolveCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]int{"project_id": c.projectID})
	})
	mux.HandleFunc("/events/notify", func(w http.ResponseWriter, r *http.Request) {
		c.notifies.Add(1)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return c, srv
}

func (c *catalog) set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings[key] = v
}

func readArchive(t *testing.T, path string) (Meta, []archive.Entry) {
	t.Helper()
	entries, err := archive.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.Equal(t, archive.MetaName, entries[0].Name)

	var meta Meta
	require.NoError(t, json.Unmarshal(entries[0].Data, &meta))
	return meta, entries
}

func TestExportAsset_WritesArchiveWithPlaceholder(t *testing.T) {
	f := newFixture(t)
	e := New(f.config(""), f.registry)

	res := e.ExportAsset(context.Background(), "/Game/Props/Chair.Chair")
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeExported, res.Outcome)
	assert.True(t, res.NoPic)
	assert.Equal(t, filepath.Join(f.exportRoot, "Props", res.Digests.MainBLAKE3+".zip"), res.ZipPath)

	meta, entries := readArchive(t, res.ZipPath)
	require.Len(t, entries, 2)
	assert.Equal(t, "0.webp", entries[1].Name)

	assert.Equal(t, res.Digests.MainBLAKE3, meta.HashMainBLAKE3)
	assert.Len(t, meta.HashMainSHA256, 64)
	assert.Equal(t, "/Game/Props/Chair", meta.Package)
	assert.Equal(t, "Props", meta.Vendor)
	assert.Equal(t, "Props", meta.SourceFolder)
	assert.Equal(t, f.projectDir, meta.SourcePath)
	assert.Equal(t, ClassStaticMesh, meta.Class)
	assert.Equal(t, []string{"Materials/Wood.uasset", "Props/Chair.uasset", "Props/Chair.uexp"}, meta.FilesOnDisk)
	assert.Equal(t, int64(len("chair-main")+len("chair-export")+len("wood-main")), meta.DiskBytesTotal)
	assert.True(t, meta.PathWarning)
	assert.Equal(t, []string{"Materials", "Props"}, meta.PathRoots)
	assert.Equal(t, []string{"0.webp"}, meta.PreviewFiles)
	assert.Equal(t, 1, meta.NoPic)
	assert.Equal(t, preview.DefaultResolution, meta.CaptureResolution)
	assert.Equal(t, preview.DefaultFOV, meta.CaptureFOV)

	require.NotNil(t, meta.Mesh)
	assert.Equal(t, 1200, meta.Mesh.Polygons)
	assert.Equal(t, 90.0, meta.Mesh.ApproxSizeMaxCM)
	assert.Nil(t, meta.FrameCount)

	_, err := time.Parse(time.RFC3339, meta.ExportedAtUTC)
	assert.NoError(t, err)
}

func TestExportAsset_SkipsExistingArchive(t *testing.T) {
	f := newFixture(t)
	e := New(f.config(""), f.registry)
	ctx := context.Background()

	first := e.ExportAsset(ctx, "/Game/Materials/Wood.Wood")
	require.Equal(t, OutcomeExported, first.Outcome)

	second := e.ExportAsset(ctx, "/Game/Materials/Wood.Wood")
	assert.Equal(t, OutcomeSkippedLocal, second.Outcome)
	assert.Equal(t, first.ZipPath, second.ZipPath)
}

func TestExportAsset_OverwriteReplacesArchive(t *testing.T) {
	f := newFixture(t)
	cat, srv := newCatalog(t)
	cat.set("export_overwrite_zips", "true")
	cat.set("export_upload_after_export", false)

	e := New(f.config(srv.URL), f.registry)
	ctx := context.Background()

	require.Equal(t, OutcomeExported, e.ExportAsset(ctx, "/Game/Materials/Wood.Wood").Outcome)
	assert.Equal(t, OutcomeExported, e.ExportAsset(ctx, "/Game/Materials/Wood.Wood").Outcome)
}

func TestExportAsset_RemoteExistence(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		exists  bool
		outcome Outcome
	}{
		{"known hash is skipped", http.StatusOK, true, OutcomeSkippedRemote},
		{"unknown hash is exported", http.StatusOK, false, OutcomeExported},
		{"server error proceeds with export", http.StatusInternalServerError, false, OutcomeExported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			cat, srv := newCatalog(t)
			cat.existStatus = tt.status
			cat.exists = tt.exists
			cat.set("export_upload_after_export", false)

			e := New(f.config(srv.URL), f.registry)
			res := e.ExportAsset(context.Background(), "/Game/Materials/Wood.Wood")
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, int32(1), cat.existsCalls.Load())
		})
	}
}

func TestExportAsset_ConfiguredCheckTemplate(t *testing.T) {
	f := newFixture(t)
	cat, srv := newCatalog(t)
	cat.set("skip_export_if_on_server", true)
	cat.set("export_check_path_template", "/custom/exists?h={hash}")
	cat.set("export_upload_after_export", false)
	cat.exists = true

	e := New(f.config(srv.URL), f.registry)
	res := e.ExportAsset(context.Background(), "/Game/Materials/Wood.Wood")
	assert.Equal(t, OutcomeSkippedRemote, res.Outcome)
	assert.Equal(t, "/custom/exists", cat.lastTemplate.Load())
}

func TestExportAsset_UploadsAndCachesProject(t *testing.T) {
	f := newFixture(t)
	cat, srv := newCatalog(t)

	e := New(f.config(srv.URL), f.registry)
	ctx := context.Background()

	res := e.ExportAsset(ctx, "/Game/Materials/Wood.Wood")
	require.Equal(t, OutcomeExported, res.Outcome)
	assert.True(t, res.Uploaded)

	res = e.ExportAsset(ctx, "/Game/Materials/Wood_Inst.Wood_Inst")
	require.Equal(t, OutcomeExported, res.Outcome)
	assert.True(t, res.Uploaded)

	assert.Equal(t, int32(2), cat.uploads.Load())
	assert.Equal(t, int32(1), cat.resolveCalls.Load(), "project id is resolved once per folder")
	assert.Eventually(t, func() bool { return cat.notifies.Load() >= 1 }, time.Second, 10*time.Millisecond)
}

func TestExportAsset_UploadFailureStillExports(t *testing.T) {
	f := newFixture(t)
	cat, srv := newCatalog(t)
	cat.uploadStatus = http.StatusBadGateway

	e := New(f.config(srv.URL), f.registry)
	res := e.ExportAsset(context.Background(), "/Game/Materials/Wood.Wood")
	assert.Equal(t, OutcomeExported, res.Outcome)
	assert.False(t, res.Uploaded)
	assert.FileExists(t, res.ZipPath)
}

func TestExportAsset_UnresolvedProjectSkipsUpload(t *testing.T) {
	f := newFixture(t)
	cat, srv := newCatalog(t)
	cat.projectID = 0

	e := New(f.config(srv.URL), f.registry)
	ctx := context.Background()
	assert.Equal(t, OutcomeExported, e.ExportAsset(ctx, "/Game/Materials/Wood.Wood").Outcome)
	assert.Equal(t, OutcomeExported, e.ExportAsset(ctx, "/Game/Materials/Wood_Inst.Wood_Inst").Outcome)

	assert.Zero(t, cat.uploads.Load())
	assert.Equal(t, int32(1), cat.resolveCalls.Load(), "failed lookups are cached")
}

func TestExportAsset_Unsupported(t *testing.T) {
	f := newFixture(t)
	e := New(f.config(""), f.registry)
	ctx := context.Background()

	assert.Equal(t, OutcomeSkippedUnsupported, e.ExportAsset(ctx, "/Game/Textures/T_Wood.T_Wood").Outcome)
	assert.Equal(t, OutcomeSkippedUnsupported, e.ExportAsset(ctx, "/Engine/BasicShapes/Cube.Cube").Outcome)
}

func TestExportAsset_Failures(t *testing.T) {
	f := newFixture(t)
	e := New(f.config(""), f.registry)
	ctx := context.Background()

	res := e.ExportAsset(ctx, "/Game/Props/Missing.Missing")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Error(t, res.Err)

	res = e.ExportAsset(ctx, "/Game/Nope.Nope")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, registry.ErrAssetNotFound)
}

func TestExportAsset_AnimationFrames(t *testing.T) {
	f := newFixture(t)
	previews := t.TempDir()
	frameDir := filepath.Join(previews, "Characters", "Hero", "Run")
	require.NoError(t, os.MkdirAll(frameDir, 0755))
	frame, err := preview.Placeholder(8)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(frameDir, preview.FrameName(i)), frame, 0644))
	}

	e := New(f.config(""), f.registry, WithRenderer(preview.NewDirectory(previews)))
	res := e.ExportAsset(context.Background(), "/Game/Characters/Hero/Run.Run")
	require.Equal(t, OutcomeExported, res.Outcome)
	assert.False(t, res.NoPic)

	meta, entries := readArchive(t, res.ZipPath)
	assert.Len(t, entries, 5, "meta.json plus the four default animation frames")
	require.NotNil(t, meta.FrameCount)
	assert.Equal(t, 4, *meta.FrameCount)
	require.NotNil(t, meta.AnimationLengthSeconds)
	assert.Equal(t, 1.5, *meta.AnimationLengthSeconds)
	require.Len(t, meta.Frames, 4)
	assert.Equal(t, 0.0, meta.Frames[0].TimeSeconds)
	assert.InDelta(t, 0.5, meta.Frames[1].TimeSeconds, 1e-9)
	assert.InDelta(t, 1.5, meta.Frames[3].TimeSeconds, 1e-9)
	assert.Equal(t, "3.webp", meta.Frames[3].File)
	assert.Equal(t, 0, meta.NoPic)
	assert.Nil(t, meta.Mesh)
}

func TestExportAsset_CaptureErrorFallsBack(t *testing.T) {
	f := newFixture(t)
	broken := preview.RendererFunc(func(ctx context.Context, req preview.Request) (preview.Result, error) {
		return preview.Result{}, assert.AnError
	})

	e := New(f.config(""), f.registry, WithRenderer(broken))
	res := e.ExportAsset(context.Background(), "/Game/Characters/Hero/Run.Run")
	require.Equal(t, OutcomeExported, res.Outcome)
	assert.True(t, res.NoPic)

	meta, _ := readArchive(t, res.ZipPath)
	assert.Nil(t, meta.FrameCount)
	require.NotNil(t, meta.AnimationLengthSeconds)
	assert.Equal(t, []string{"0.webp"}, meta.PreviewFiles)
}

func TestExportAsset_RecordsLedgerAndEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	store, err := storage.Open(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	bus := events.NewBus()
	var exported, skipped atomic.Int32
	bus.Subscribe(events.AssetExported, func(events.Event) { exported.Add(1) })
	bus.Subscribe(events.AssetSkipped, func(events.Event) { skipped.Add(1) })

	e := New(f.config(""), f.registry, WithLedger(store), WithBus(bus))
	first := e.ExportAsset(ctx, "/Game/Materials/Wood.Wood")
	e.ExportAsset(ctx, "/Game/Materials/Wood.Wood")
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(1), exported.Load())
	assert.Equal(t, int32(1), skipped.Load())

	recs, err := store.ListExports(ctx, "/Game/Materials/Wood.Wood", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, string(OutcomeSkippedLocal), recs[0].Outcome)
	assert.Equal(t, string(OutcomeExported), recs[1].Outcome)
	assert.Equal(t, first.Digests.MainBLAKE3, recs[1].HashMain)

	last, err := store.LastBatchID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)

	// A new exporter continues numbering after the recorded batches.
	e2 := New(f.config(""), f.registry, WithLedger(store))
	e2.ExportAsset(ctx, "/Game/Materials/Wood.Wood")
	last, err = store.LastBatchID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

var _ Remote = (*syncclient.Client)(nil)
var _ AssetSource = (*registry.Registry)(nil)
var _ Ledger = (*storage.Storage)(nil)
