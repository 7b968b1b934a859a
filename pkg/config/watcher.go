package config

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/getmockd/stubd/pkg/logging"
	"github.com/getmockd/stubd/pkg/store"
)

// DefaultDebounce coalesces bursts of file events into one reload.
const DefaultDebounce = 250 * time.Millisecond

// Watcher re-syncs a static mapping directory into a store whenever a
// document below it changes.
type Watcher struct {
	dir      string
	store    *store.Store
	debounce time.Duration
	logger   *slog.Logger
	onSync   func(*LoadReport, error)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithSyncHook is called after every reload.
func WithSyncHook(fn func(*LoadReport, error)) WatcherOption {
	return func(w *Watcher) {
		w.onSync = fn
	}
}

// NewWatcher creates a watcher of dir feeding st.
func NewWatcher(dir string, st *store.Store, opts ...WatcherOption) *Watcher {
	w := &Watcher{dir: dir, store: st, debounce: DefaultDebounce, logger: logging.Nop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done. It returns an error only when the
// watch cannot be established.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := w.addTree(fw, w.dir); err != nil {
		return err
	}
	w.logger.Info("watching static mappings", "dir", w.dir)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("stopped watching static mappings", "dir", w.dir)
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				// New subdirectories need their own watch.
				_ = w.addTree(fw, event.Name)
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.Sync()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("static mapping watch error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	changed := event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)
	if !changed {
		return false
	}
	// A removed or renamed directory takes its documents with it.
	return IsMappingFile(event.Name) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == w.dir {
				return fmt.Errorf("watching %s: %w", path, err)
			}
			return nil
		}
		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
		}
		return nil
	})
}

// Sync reloads the directory into the store now.
func (w *Watcher) Sync() {
	report, res, err := SyncStatic(w.store, w.dir)
	switch {
	case err != nil:
		w.logger.Error("failed to reload static mappings", "dir", w.dir, "error", err)
	default:
		for _, e := range report.Errors {
			w.logger.Warn("skipped mapping document", "source", e.Source, "error", e.Err)
		}
		w.logger.Info("reloaded static mappings",
			"dir", w.dir,
			"documents", report.Documents,
			"mappings", len(res.IDs),
			"removed", len(res.Deleted),
		)
	}
	if w.onSync != nil {
		w.onSync(report, err)
	}
}
