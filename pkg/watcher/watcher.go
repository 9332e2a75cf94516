// Package watcher triggers a reload when definition files change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/logging"
)

// DefaultDebounce is the quiet period after the last event before a reload.
const DefaultDebounce = 300 * time.Millisecond

// ReloadFunc is called once per settled burst of changes.
type ReloadFunc func(ctx context.Context) error

// Watcher observes a definitions directory.
type Watcher struct {
	dir      string
	reload   ReloadFunc
	debounce time.Duration
	poll     time.Duration
	store    *definition.Store
	log      *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithPollInterval switches to mtime polling at the given interval instead
// of filesystem notifications.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) { w.poll = d }
}

// WithStore makes polling start from the file times recorded by the
// store's last Load, so changes made after that load are not missed.
func WithStore(s *definition.Store) Option {
	return func(w *Watcher) { w.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// New creates a Watcher for dir.
func New(dir string, reload ReloadFunc, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		reload:   reload,
		debounce: DefaultDebounce,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = logging.Component(w.log, "watcher", "dir", dir)
	return w
}

// Run watches until ctx is done. Reload errors are logged and watching
// continues; only a failure to set up watching is returned.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch: %s is not a directory", w.dir)
	}
	if w.poll > 0 {
		return w.runPolling(ctx)
	}
	return w.runNotify(ctx)
}

func (w *Watcher) runNotify(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.dir); err != nil {
		return err
	}
	w.log.Info("watching for changes", "mode", "notify", "debounce", w.debounce)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(fw, ev) {
				continue
			}
			w.log.Debug("change detected", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		case <-timer.C:
			w.fire(ctx)
		}
	}
}

// relevant filters events down to definition files, and starts watching
// directories created inside the tree.
func (w *Watcher) relevant(fw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(fw, ev.Name); err != nil {
				w.log.Warn("watch new directory", "path", ev.Name, "error", err)
			}
			return true
		}
	}
	if !definition.IsDefinitionFile(ev.Name) {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) runPolling(ctx context.Context) error {
	store := w.store
	if store == nil {
		store = definition.NewStore(w.dir)
	}
	last := store.Snapshot()
	if len(last) == 0 {
		var err error
		if last, err = store.Scan(); err != nil {
			return fmt.Errorf("scan %s: %w", w.dir, err)
		}
	}
	w.log.Info("watching for changes", "mode", "poll", "interval", w.poll)

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current, err := store.Scan()
			if err != nil {
				w.log.Warn("scan failed", "error", err)
				continue
			}
			if maps.Equal(last, current) {
				continue
			}
			last = current
			w.fire(ctx)
		}
	}
}

func (w *Watcher) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	w.log.Info("definitions changed, reloading")
	if err := w.reload(ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.log.Warn("reload failed", "error", err)
	}
}
