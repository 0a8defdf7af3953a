// Package export turns registry assets into content-addressed preview
// archives and synchronizes them with the catalog server.
package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/leefowlercu/asset-snapshot/internal/archive"
	"github.com/leefowlercu/asset-snapshot/internal/deps"
	"github.com/leefowlercu/asset-snapshot/internal/events"
	"github.com/leefowlercu/asset-snapshot/internal/hashing"
	"github.com/leefowlercu/asset-snapshot/internal/metrics"
	"github.com/leefowlercu/asset-snapshot/internal/preview"
	"github.com/leefowlercu/asset-snapshot/internal/registry"
	"github.com/leefowlercu/asset-snapshot/internal/storage"
	"github.com/leefowlercu/asset-snapshot/internal/syncclient"
)

// Outcome is the terminal state of one asset export.
type Outcome string

const (
	OutcomeExported           Outcome = "exported"
	OutcomeSkippedRemote      Outcome = "skipped_remote"
	OutcomeSkippedLocal       Outcome = "skipped_local"
	OutcomeSkippedUnsupported Outcome = "skipped_unsupported"
	OutcomeFailed             Outcome = "failed"
)

// AssetSource is the host asset registry as seen by the exporter.
type AssetSource interface {
	deps.Graph
	Lookup(objectPath string) (registry.Asset, error)
	AssetsInDir(dir string) []registry.Asset
}

// Remote is the catalog server client.
type Remote interface {
	Settings(ctx context.Context, base string) syncclient.Settings
	ExportFilters(ctx context.Context, base string) (syncclient.Filters, bool)
	CheckExists(ctx context.Context, base, pathTemplate, hash string) (syncclient.Existence, error)
	ResolveProjectID(ctx context.Context, base, sourcePath string) (int, error)
	Upload(ctx context.Context, base, pathTemplate, zipPath string, projectID int) error
	NotifyProgress(base string, p syncclient.Progress) <-chan struct{}
}

// Ledger persists export history.
type Ledger interface {
	RecordExport(ctx context.Context, rec storage.ExportRecord) error
	LastBatchID(ctx context.Context) (int64, error)
}

// Config locates the project on disk and the catalog server.
type Config struct {
	// ProjectDir is recorded as source_path in every manifest.
	ProjectDir      string
	ContentDir      string
	ExportRoot      string
	Namespace       string
	VendorNamespace string

	// BaseURL is the catalog server; empty disables all remote steps.
	BaseURL string
}

// Result describes one asset export.
type Result struct {
	ObjectPath string
	Class      string
	Outcome    Outcome
	ZipPath    string
	Digests    hashing.Digests
	NoPic      bool
	LowQuality bool
	Uploaded   bool
	Err        error
	Duration   time.Duration
}

// Batch is the progress state of the running export.
type Batch struct {
	ID      int64
	Total   int
	Current int
}

// Exporter runs the per-asset export pipeline. One export runs at a time;
// overlapping calls are serialized.
type Exporter struct {
	cfg      Config
	assets   AssetSource
	resolver *deps.Resolver
	layout   deps.Layout
	remote   Remote
	renderer preview.Renderer
	ledger   Ledger
	bus      events.Bus
	clock    clock.Clock
	logger   *slog.Logger

	run sync.Mutex

	mu          sync.Mutex
	batch       Batch
	batchSeeded bool
	projectIDs  map[string]int
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithRemote sets the catalog client.
func WithRemote(r Remote) Option {
	return func(e *Exporter) {
		e.remote = r
	}
}

// WithRenderer sets the preview renderer.
func WithRenderer(r preview.Renderer) Option {
	return func(e *Exporter) {
		e.renderer = r
	}
}

// WithLedger sets the export history store.
func WithLedger(l Ledger) Option {
	return func(e *Exporter) {
		e.ledger = l
	}
}

// WithBus sets the event bus export progress is published to.
func WithBus(b events.Bus) Option {
	return func(e *Exporter) {
		e.bus = b
	}
}

// WithClock sets the clock used for timestamps and durations.
func WithClock(c clock.Clock) Option {
	return func(e *Exporter) {
		e.clock = c
	}
}

// WithLogger sets the exporter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// New creates an Exporter over assets.
func New(cfg Config, assets AssetSource, opts ...Option) *Exporter {
	cfg.Namespace = deps.NormalizeNamespace(cfg.Namespace)
	cfg.BaseURL = syncclient.NormalizeBaseURL(cfg.BaseURL)

	e := &Exporter{
		cfg:        cfg,
		assets:     assets,
		renderer:   preview.Headless{},
		clock:      clock.New(),
		logger:     slog.Default(),
		projectIDs: make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.remote == nil {
		e.remote = syncclient.New(syncclient.WithLogger(e.logger))
	}

	e.resolver = deps.NewResolver(assets,
		deps.WithNamespace(cfg.Namespace),
		deps.WithLogger(e.logger))
	e.layout = deps.NewLayout(cfg.ContentDir, cfg.Namespace)
	return e
}

// CurrentBatch returns a snapshot of the batch counters.
func (e *Exporter) CurrentBatch() Batch {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batch
}

// ExportAsset exports a single asset outside of any batch.
func (e *Exporter) ExportAsset(ctx context.Context, objectPath string) Result {
	e.run.Lock()
	defer e.run.Unlock()

	e.beginBatch(ctx, 1)
	e.advance()
	defer e.endBatch()

	return e.exportOne(ctx, objectPath)
}

func (e *Exporter) beginBatch(ctx context.Context, total int) int64 {
	e.mu.Lock()
	seeded := e.batchSeeded
	e.mu.Unlock()

	var seed int64
	if !seeded && e.ledger != nil {
		last, err := e.ledger.LastBatchID(ctx)
		if err != nil {
			e.logger.Warn("failed to read last batch id", "error", err)
		}
		seed = last
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.batchSeeded {
		e.batch.ID = max(e.batch.ID, seed)
		e.batchSeeded = true
	}
	e.batch.ID++
	e.batch.Total = total
	e.batch.Current = 0
	return e.batch.ID
}

func (e *Exporter) advance() Batch {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batch.Current++
	return e.batch
}

func (e *Exporter) endBatch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batch.Total = 0
	e.batch.Current = 0
}

func (e *Exporter) exportOne(ctx context.Context, objectPath string) Result {
	start := e.clock.Now()
	res := Result{ObjectPath: objectPath}

	asset, err := e.assets.Lookup(objectPath)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
	} else {
		res.Class = asset.Class
		e.pipeline(ctx, asset, &res)
	}

	res.Duration = e.clock.Since(start)
	e.finish(ctx, res)
	return res
}

// pipeline walks one asset through resolve, hash, remote check, local check,
// capture, archive and upload, stopping at the first terminal outcome.
func (e *Exporter) pipeline(ctx context.Context, asset registry.Asset, res *Result) {
	pkg := asset.Package()
	kind := KindForClass(asset.Class)
	log := e.logger.With("asset", asset.ObjectPath)

	if !e.resolver.InNamespace(pkg) {
		log.Warn("skipping asset outside namespace", "namespace", e.cfg.Namespace)
		res.Outcome = OutcomeSkippedUnsupported
		return
	}
	if !kind.Exportable() {
		log.Info("skipping unsupported asset kind", "class", asset.Class)
		res.Outcome = OutcomeSkippedUnsupported
		return
	}

	closure, err := e.resolver.ResolveClosure(ctx, pkg)
	if err != nil {
		res.fail(fmt.Errorf("failed to resolve dependencies; %w", err))
		return
	}
	manifest, err := e.layout.ResolveManifest(closure)
	if err != nil {
		res.fail(fmt.Errorf("failed to resolve files; %w", err))
		return
	}

	mainFile, _ := e.layout.MainFile(pkg)
	digests, err := hashing.Compute(mainFile, manifest.Rel, manifest.Abs)
	if err != nil {
		res.fail(fmt.Errorf("failed to hash main file; %w", err))
		return
	}
	res.Digests = digests
	log = log.With("hash", digests.MainBLAKE3)

	settings := e.remote.Settings(ctx, e.cfg.BaseURL)
	if e.cfg.BaseURL != "" {
		if e.existsRemotely(ctx, log, settings, digests.MainBLAKE3) {
			res.Outcome = OutcomeSkippedRemote
			return
		}
	}

	zipPath := filepath.Join(e.cfg.ExportRoot,
		deps.ExportSubdir(pkg, e.cfg.Namespace, e.cfg.VendorNamespace),
		digests.MainBLAKE3+".zip")
	res.ZipPath = zipPath

	if _, err := os.Stat(zipPath); err == nil {
		if !settings.OverwriteZips {
			log.Info("archive already exists; skipping", "zip", zipPath)
			res.Outcome = OutcomeSkippedLocal
			return
		}
		if err := os.Remove(zipPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			res.fail(fmt.Errorf("failed to replace archive; %w", err))
			return
		}
	}

	meta, entries, err := e.build(ctx, asset, kind, settings, manifest, digests)
	if err != nil {
		res.fail(err)
		return
	}
	res.NoPic = meta.NoPic == 1
	res.LowQuality = meta.LowQuality == 1

	if err := archive.WriteFile(zipPath, entries); err != nil {
		res.fail(fmt.Errorf("failed to write archive; %w", err))
		return
	}
	if info, err := os.Stat(zipPath); err == nil {
		metrics.RecordArchiveBytes(info.Size())
	}
	log.Info("archive written", "zip", zipPath, "previews", len(meta.PreviewFiles), "no_pic", res.NoPic)

	res.Outcome = OutcomeExported

	if e.cfg.BaseURL != "" && settings.UploadAfterExport {
		res.Uploaded = e.upload(ctx, log, asset, settings, zipPath)
	}
}

func (r *Result) fail(err error) {
	r.Outcome = OutcomeFailed
	r.Err = err
}

// existsRemotely asks the catalog whether hash is already known. Any failure
// to answer means the export proceeds.
func (e *Exporter) existsRemotely(ctx context.Context, log *slog.Logger, s syncclient.Settings, hash string) bool {
	tmpl := syncclient.DefaultCheckPathTemplate
	if s.Available && s.SkipExportIfOnServer && s.CheckPathTemplate != "" {
		tmpl = s.CheckPathTemplate
	}

	exists, err := e.remote.CheckExists(ctx, e.cfg.BaseURL, tmpl, hash)
	if err != nil {
		log.Debug("existence check failed; proceeding with export", "error", err)
		return false
	}
	if exists == syncclient.ExistsTrue {
		log.Info("server already has hash; skipping export")
		return true
	}
	return false
}

// build captures previews and assembles the archive entries, meta.json first.
func (e *Exporter) build(ctx context.Context, asset registry.Asset, kind Kind, s syncclient.Settings, m deps.FileManifest, d hashing.Digests) (*Meta, []archive.Entry, error) {
	pkg := asset.Package()
	vendor := deps.Vendor(pkg, e.cfg.Namespace)

	files := make([]string, len(m.Rel))
	for i, r := range m.Rel {
		files[i] = deps.NormalizeArchiveRel(r)
	}

	meta := &Meta{
		HashMainBLAKE3: d.MainBLAKE3,
		HashMainSHA256: d.MainSHA256,
		HashFullBLAKE3: d.FullBLAKE3,
		Package:        pkg,
		Vendor:         vendor,
		SourcePath:     e.cfg.ProjectDir,
		SourceFolder:   vendor,
		ObjectPath:     asset.ObjectPath,
		Class:          asset.Class,
		ExportedAtUTC:  ExportedAt(e.clock.Now()),
		FilesOnDisk:    files,
		DiskBytesTotal: m.TotalBytes,
		CaptureFOV:     preview.DefaultFOV,
	}

	if roots := deps.RootFolders(m.Rel); len(roots) > 1 {
		meta.PathWarning = true
		meta.PathRoots = roots
		e.logger.Warn("asset spans multiple root folders", "asset", asset.ObjectPath, "roots", roots)
	}
	if kind.IsMesh() {
		meta.Mesh = newMeshMeta(asset.Mesh)
	}

	params := kind.Params(s)
	meta.CaptureResolution = params.Resolution

	capture, err := e.renderer.Capture(ctx, preview.Request{
		Asset:         asset,
		Frames:        params.Frames,
		DiscardFrames: s.DiscardFrames(),
		Resolution:    params.Resolution,
		FOV:           preview.DefaultFOV,
		Padding:       params.Padding,
		MinFrameBytes: params.MinFrameBytes,
	})
	if err != nil || len(capture.Frames) == 0 {
		if err != nil && !errors.Is(err, preview.ErrUnavailable) {
			e.logger.Warn("preview capture failed; using placeholder", "asset", asset.ObjectPath, "error", err)
		}
		capture = preview.Result{}
	}

	entries := make([]archive.Entry, 0, len(capture.Frames)+1)
	for i, frame := range capture.Frames {
		name := preview.FrameName(i)
		meta.PreviewFiles = append(meta.PreviewFiles, name)
		entries = append(entries, archive.Entry{Name: name, Data: frame})
	}
	meta.CaptureDistance = capture.Distance
	if capture.LowQuality {
		meta.LowQuality = 1
	}

	if kind == KindAnimSequence {
		length := asset.AnimLength
		meta.AnimationLengthSeconds = &length
		if n := len(capture.Frames); n > 0 {
			meta.FrameCount = &n
			meta.Frames = animationFrames(meta.PreviewFiles, length)
		}
	}

	if len(entries) == 0 {
		placeholder, err := preview.Placeholder(preview.DefaultResolution)
		if err != nil {
			return nil, nil, err
		}
		meta.NoPic = 1
		meta.PreviewFiles = []string{preview.FrameName(0)}
		entries = append(entries, archive.Entry{Name: preview.FrameName(0), Data: placeholder})
	}

	doc, err := meta.Marshal()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode meta.json; %w", err)
	}
	entries = append([]archive.Entry{{Name: archive.MetaName, Data: doc}}, entries...)
	return meta, entries, nil
}

// upload sends the archive to the catalog. Failures are logged and leave the
// export successful.
func (e *Exporter) upload(ctx context.Context, log *slog.Logger, asset registry.Asset, s syncclient.Settings, zipPath string) bool {
	projectID := e.projectID(ctx, e.resolvePath(asset.Package()))
	if projectID <= 0 {
		log.Warn("upload skipped; project id not resolved")
		return false
	}

	if err := e.remote.Upload(ctx, e.cfg.BaseURL, s.UploadPathTemplate, zipPath, projectID); err != nil {
		log.Warn("upload failed", "zip", zipPath, "error", err)
		return false
	}

	b := e.CurrentBatch()
	e.remote.NotifyProgress(e.cfg.BaseURL, syncclient.Progress{
		BatchID: b.ID,
		Current: b.Current,
		Total:   b.Total,
		Name:    asset.Name(),
	})
	e.publish(ctx, events.NewArchiveUploaded(asset.ObjectPath, zipPath, projectID))
	return true
}

// resolvePath is the source path a package's catalog project is keyed by:
// the content folder of its top-level directory, or the content root.
func (e *Exporter) resolvePath(pkg string) string {
	if top := deps.TopFolder(pkg, e.cfg.Namespace); top != "" {
		return filepath.Join(e.cfg.ContentDir, top)
	}
	return e.cfg.ContentDir
}

// projectID resolves and caches the project for sourcePath. Failures are
// cached too so an unreachable resolver is asked once per path.
func (e *Exporter) projectID(ctx context.Context, sourcePath string) int {
	e.mu.Lock()
	cached, ok := e.projectIDs[sourcePath]
	e.mu.Unlock()
	if ok {
		return cached
	}

	id, err := e.remote.ResolveProjectID(ctx, e.cfg.BaseURL, sourcePath)
	if err != nil {
		e.logger.Warn("failed to resolve project", "source_path", sourcePath, "error", err)
		id = 0
	}

	e.mu.Lock()
	e.projectIDs[sourcePath] = id
	e.mu.Unlock()
	return id
}

func (e *Exporter) finish(ctx context.Context, res Result) {
	metrics.RecordExport(string(res.Outcome), res.Duration)

	var errText string
	if res.Err != nil {
		errText = res.Err.Error()
		e.logger.Error("asset export failed", "asset", res.ObjectPath, "error", res.Err)
	}

	b := e.CurrentBatch()
	if e.ledger != nil {
		err := e.ledger.RecordExport(ctx, storage.ExportRecord{
			BatchID:    b.ID,
			ObjectPath: res.ObjectPath,
			Class:      res.Class,
			HashMain:   res.Digests.MainBLAKE3,
			HashFull:   res.Digests.FullBLAKE3,
			Outcome:    string(res.Outcome),
			ZipPath:    res.ZipPath,
			Uploaded:   res.Uploaded,
			Error:      errText,
			Duration:   res.Duration,
			CreatedAt:  e.clock.Now(),
		})
		if err != nil {
			e.logger.Warn("failed to record export", "asset", res.ObjectPath, "error", err)
		}
	}

	eventType := events.AssetSkipped
	switch res.Outcome {
	case OutcomeExported:
		eventType = events.AssetExported
	case OutcomeFailed:
		eventType = events.AssetFailed
	}
	e.publish(ctx, events.NewAssetEvent(eventType, events.AssetEvent{
		BatchID:    b.ID,
		ObjectPath: res.ObjectPath,
		Class:      res.Class,
		Hash:       res.Digests.MainBLAKE3,
		Outcome:    string(res.Outcome),
		ZipPath:    res.ZipPath,
		Error:      errText,
		Duration:   res.Duration,
	}))
}

func (e *Exporter) publish(ctx context.Context, event events.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, event); err != nil {
		e.logger.Debug("failed to publish event", "event_type", event.Type, "error", err)
	}
}
