package imports

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leefowlercu/asset-snapshot/internal/archive"
	"github.com/leefowlercu/asset-snapshot/internal/metrics"
)

// Inbox subdirectories archives are moved to once processed.
const (
	DoneDir   = "done"
	FailedDir = "failed"
)

// WatcherStats contains inbox watcher statistics.
type WatcherStats struct {
	IsRunning      bool
	EventsReceived int64
	Imported       int64
	Failed         int64
	Errors         int64
}

// Watcher imports zip archives dropped into an inbox directory. Each archive
// is imported once its writes have settled, then moved to the done or failed
// subdirectory.
type Watcher struct {
	inbox     string
	importer  *Importer
	fsWatcher *fsnotify.Watcher
	coalescer *Coalescer
	logger    *slog.Logger

	mode           archive.Mode
	debounceWindow time.Duration

	mu       sync.RWMutex
	stats    WatcherStats
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// errChan reports fatal errors (fsnotify error channel).
	errChan chan error
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceWindow sets how long an archive must be quiet before import.
func WithDebounceWindow(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceWindow = d
	}
}

// WithImportMode sets the mode inbox archives are imported with.
// Defaults to archive.ModeSkipExisting.
func WithImportMode(mode archive.Mode) WatcherOption {
	return func(w *Watcher) {
		w.mode = mode
	}
}

// WithWatcherLogger sets the watcher logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a Watcher for inbox that imports through imp.
func NewWatcher(inbox string, imp *Importer, opts ...WatcherOption) (*Watcher, error) {
	if strings.TrimSpace(inbox) == "" {
		return nil, fmt.Errorf("inbox directory is required")
	}

	abs, err := filepath.Abs(inbox)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve inbox directory; %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher; %w", err)
	}

	w := &Watcher{
		inbox:          abs,
		importer:       imp,
		fsWatcher:      fsw,
		logger:         imp.logger,
		mode:           archive.ModeSkipExisting,
		debounceWindow: time.Second,
		stopCh:         make(chan struct{}),
		errChan:        make(chan error, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.coalescer = NewCoalescer(w.debounceWindow, imp.clock)

	return w, nil
}

// Inbox returns the watched directory.
func (w *Watcher) Inbox() string {
	return w.inbox
}

// Start creates the inbox layout, queues archives already waiting in it and
// begins watching for new ones.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.mu.Unlock()

	for _, dir := range []string{w.inbox, filepath.Join(w.inbox, DoneDir), filepath.Join(w.inbox, FailedDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create inbox directory %s; %w", dir, err)
		}
	}

	if err := w.fsWatcher.Add(w.inbox); err != nil {
		if isWatchLimitError(err) {
			return fmt.Errorf("watch limit reached for %s; %w", w.inbox, err)
		}
		return fmt.Errorf("failed to watch inbox %s; %w", w.inbox, err)
	}

	w.mu.Lock()
	w.running = true
	w.stats.IsRunning = true
	w.mu.Unlock()

	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.processReady(ctx)

	if err := w.sweep(); err != nil {
		w.logger.Warn("failed to scan inbox", "inbox", w.inbox, "error", err)
	}

	w.logger.Info("watching inbox", "inbox", w.inbox, "mode", w.mode.String())
	return nil
}

// Stop stops the watcher. Archives still settling stay in the inbox and are
// picked up by the next Start.
func (w *Watcher) Stop() error {
	var stopErr error
	w.stopOnce.Do(func() {
		w.mu.Lock()
		if !w.running {
			w.mu.Unlock()
			return
		}
		w.running = false
		w.stats.IsRunning = false
		w.mu.Unlock()

		// Stopping the coalescer closes Ready and unblocks processReady.
		w.coalescer.Stop()

		close(w.stopCh)
		w.wg.Wait()

		stopErr = w.fsWatcher.Close()
	})
	return stopErr
}

// Stats returns current watcher statistics.
func (w *Watcher) Stats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// Errors returns a channel for fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errChan
}

// CollectMetrics implements metrics.MetricsProvider.
func (w *Watcher) CollectMetrics(ctx context.Context) error {
	metrics.InboxPending.Set(float64(w.coalescer.Pending()))
	return nil
}

// sweep queues archives that arrived while nobody was watching.
func (w *Watcher) sweep() error {
	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isInboxArchive(e.Name()) {
			continue
		}
		w.coalescer.Touch(filepath.Join(w.inbox, e.Name()))
	}
	return nil
}

// processEvents reads from fsnotify and feeds the coalescer.
func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			w.logger.Error("fsnotify error", "error", err)
			select {
			case w.errChan <- err:
			default:
			}
		}
	}
}

// handleFsEvent processes a single fsnotify event.
func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	// Only direct children of the inbox; done/ and failed/ are not watched.
	if filepath.Dir(event.Name) != w.inbox || !isInboxArchive(event.Name) {
		return
	}

	w.mu.Lock()
	w.stats.EventsReceived++
	w.mu.Unlock()

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.coalescer.Forget(event.Name)
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		w.coalescer.Touch(event.Name)
	}
}

// processReady imports settled archives one at a time.
func (w *Watcher) processReady(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-w.coalescer.Ready():
			if !ok {
				return
			}
			w.importArchive(ctx, path)
		}
	}
}

func (w *Watcher) importArchive(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	dest := DoneDir
	if _, err := w.importer.importFrom(ctx, SourceInbox, path, w.mode); err != nil {
		dest = FailedDir
		w.mu.Lock()
		w.stats.Failed++
		w.mu.Unlock()
	} else {
		w.mu.Lock()
		w.stats.Imported++
		w.mu.Unlock()
	}

	moved, err := w.moveTo(path, dest)
	if err != nil {
		w.logger.Error("failed to move inbox archive", "zip", path, "dest", dest, "error", err)
		return
	}
	w.logger.Debug("inbox archive processed", "zip", path, "moved_to", moved)
}

// moveTo moves path into the named inbox subdirectory. An existing archive of
// the same name is kept and the new one gets a timestamp suffix.
func (w *Watcher) moveTo(path, sub string) (string, error) {
	dir := filepath.Join(w.inbox, sub)
	name := filepath.Base(path)
	target := filepath.Join(dir, name)

	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		target = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, w.importer.clock.Now().UnixNano(), ext))
	}

	if err := os.Rename(path, target); err != nil {
		return "", err
	}
	return target, nil
}

// isInboxArchive reports whether name is a zip the inbox should import.
// Hidden files are partial downloads or copies in progress.
func isInboxArchive(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".zip")
}

// isWatchLimitError checks if an error indicates watch limit exhaustion.
func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "too many open files") ||
		strings.Contains(errStr, "no space left on device") ||
		strings.Contains(errStr, "user limit on total number of inotify watches")
}
