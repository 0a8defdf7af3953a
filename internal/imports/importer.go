// Package imports brings snapshot archives back into the project content tree.
// Archives arrive as local files, as downloads from the catalog server or
// through an inbox directory watched for new zips.
package imports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/leefowlercu/asset-snapshot/internal/archive"
	"github.com/leefowlercu/asset-snapshot/internal/events"
	"github.com/leefowlercu/asset-snapshot/internal/metrics"
	"github.com/leefowlercu/asset-snapshot/internal/storage"
	"github.com/leefowlercu/asset-snapshot/internal/syncclient"
)

// Import sources recorded in the ledger and carried on events.
const (
	SourceFile     = "file"
	SourceDownload = "download"
	SourceInbox    = "inbox"
)

// ErrZipNotFound is returned when the archive to import does not exist.
var ErrZipNotFound = errors.New("zip file not found")

// Downloader fetches a snapshot archive from the catalog server.
type Downloader interface {
	Download(ctx context.Context, base string, id int, destDir string) (string, error)
}

// Ledger records finished imports.
type Ledger interface {
	RecordImport(ctx context.Context, rec storage.ImportRecord) error
}

// Config locates the import destination and the download staging area.
type Config struct {
	ContentDir string
	StagingDir string
	BaseURL    string
}

// Result summarizes one import.
type Result struct {
	Source    string
	ZipPath   string
	Mode      archive.Mode
	Imported  int
	Skipped   int
	Rescanned []string
}

// Importer extracts archives into the content directory. Imports are
// serialized; the host asset database is rescanned once per archive.
type Importer struct {
	cfg        Config
	downloader Downloader
	rescanner  archive.Rescanner
	ledger     Ledger
	bus        events.Bus
	clock      clock.Clock
	logger     *slog.Logger

	mu sync.Mutex
}

// Option configures an Importer.
type Option func(*Importer)

// WithDownloader sets the snapshot downloader. Defaults to a syncclient.Client.
func WithDownloader(d Downloader) Option {
	return func(i *Importer) {
		i.downloader = d
	}
}

// WithRescanner sets the asset database rescanner.
func WithRescanner(r archive.Rescanner) Option {
	return func(i *Importer) {
		i.rescanner = r
	}
}

// WithLedger sets the import ledger.
func WithLedger(l Ledger) Option {
	return func(i *Importer) {
		i.ledger = l
	}
}

// WithBus sets the event bus import events are published on.
func WithBus(bus events.Bus) Option {
	return func(i *Importer) {
		i.bus = bus
	}
}

// WithClock sets the clock used for ledger timestamps.
func WithClock(clk clock.Clock) Option {
	return func(i *Importer) {
		i.clock = clk
	}
}

// WithLogger sets the importer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Importer) {
		i.logger = logger
	}
}

// New creates an Importer writing into cfg.ContentDir.
func New(cfg Config, opts ...Option) *Importer {
	i := &Importer{
		cfg:    cfg,
		clock:  clock.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.downloader == nil {
		i.downloader = syncclient.New(syncclient.WithLogger(i.logger))
	}
	return i
}

// ImportZip extracts the archive at zipPath into the content directory.
func (i *Importer) ImportZip(ctx context.Context, zipPath string, mode archive.Mode) (*Result, error) {
	return i.importFrom(ctx, SourceFile, zipPath, mode)
}

// DownloadAndImport downloads snapshot id into the staging directory and
// imports it.
func (i *Importer) DownloadAndImport(ctx context.Context, id int, mode archive.Mode) (*Result, error) {
	if strings.TrimSpace(i.cfg.BaseURL) == "" {
		err := fmt.Errorf("failed to download snapshot %d; no base url configured; %w", id, syncclient.ErrUnavailable)
		i.fail(ctx, SourceDownload, "", mode, err)
		return nil, err
	}
	if id <= 0 {
		err := fmt.Errorf("invalid snapshot id %d", id)
		i.fail(ctx, SourceDownload, "", mode, err)
		return nil, err
	}

	i.logger.Info("downloading snapshot", "snapshot_id", id, "base_url", i.cfg.BaseURL)
	zipPath, err := i.downloader.Download(ctx, i.cfg.BaseURL, id, i.cfg.StagingDir)
	if err != nil {
		err = fmt.Errorf("failed to download snapshot %d; %w", id, err)
		i.fail(ctx, SourceDownload, "", mode, err)
		return nil, err
	}

	return i.importFrom(ctx, SourceDownload, zipPath, mode)
}

func (i *Importer) importFrom(ctx context.Context, source, zipPath string, mode archive.Mode) (*Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if strings.TrimSpace(zipPath) == "" {
		err := errors.New("zip path is empty")
		i.fail(ctx, source, zipPath, mode, err)
		return nil, err
	}

	abs, err := filepath.Abs(zipPath)
	if err != nil {
		err = fmt.Errorf("failed to resolve zip path; %w", err)
		i.fail(ctx, source, zipPath, mode, err)
		return nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("failed to open %s; %w", abs, ErrZipNotFound)
		} else {
			err = fmt.Errorf("failed to open zip; %w", err)
		}
		i.fail(ctx, source, abs, mode, err)
		return nil, err
	}
	defer f.Close()

	i.logger.Info("importing snapshot zip",
		"zip", abs,
		"content_dir", i.cfg.ContentDir,
		"mode", mode.String(),
		"source", source)

	res, err := archive.Extract(ctx, f, i.cfg.ContentDir, archive.ExtractOptions{
		Mode:      mode,
		Rescanner: i.rescanner,
		Logger:    i.logger,
	})
	if err != nil {
		err = fmt.Errorf("failed to import %s; %w", abs, err)
		i.fail(ctx, source, abs, mode, err)
		return nil, err
	}

	out := &Result{
		Source:    source,
		ZipPath:   abs,
		Mode:      mode,
		Imported:  res.Imported,
		Skipped:   res.Skipped,
		Rescanned: res.Rescanned,
	}

	metrics.RecordImport(nil, out.Imported, out.Skipped)
	i.record(ctx, storage.ImportRecord{
		Source:   source,
		ZipPath:  abs,
		Mode:     mode.String(),
		Imported: out.Imported,
		Skipped:  out.Skipped,
	})
	i.publish(ctx, events.NewImportCompleted(source, abs, mode.String(), out.Imported, out.Skipped))
	return out, nil
}

// fail records a failed import everywhere a successful one would be recorded.
func (i *Importer) fail(ctx context.Context, source, zipPath string, mode archive.Mode, err error) {
	i.logger.Error("import failed", "source", source, "zip", zipPath, "mode", mode.String(), "error", err)
	metrics.RecordImport(err, 0, 0)
	i.record(ctx, storage.ImportRecord{
		Source:  source,
		ZipPath: zipPath,
		Mode:    mode.String(),
		Error:   err.Error(),
	})
	i.publish(ctx, events.NewImportFailed(source, zipPath, mode.String(), err))
}

func (i *Importer) record(ctx context.Context, rec storage.ImportRecord) {
	if i.ledger == nil {
		return
	}
	rec.CreatedAt = i.clock.Now().UTC()
	// The ledger write must survive a cancelled import context.
	if err := i.ledger.RecordImport(context.WithoutCancel(ctx), rec); err != nil {
		i.logger.Warn("failed to record import", "zip", rec.ZipPath, "error", err)
	}
}

func (i *Importer) publish(ctx context.Context, event events.Event) {
	if i.bus == nil {
		return
	}
	if err := i.bus.Publish(context.WithoutCancel(ctx), event); err != nil {
		i.logger.Debug("failed to publish event", "event_type", event.Type, "error", err)
	}
}
