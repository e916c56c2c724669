package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher is a recursive fsnotify watcher over a set of roots.
type Watcher struct {
	fs     *fsnotify.Watcher
	deb    *Debouncer
	filter Filter
	opts   Options

	mu    sync.RWMutex
	roots []string
}

// New creates a watcher for roots. A nil filter watches every directory
// except .git.
func New(roots []string, filter Filter, opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		fs:     fsw,
		deb:    NewDebouncer(opts.DebounceWindow, opts.EventBufferSize),
		filter: filter,
		opts:   opts,
	}
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("resolve absolute path: %w", err)
		}
		w.roots = appendRoot(w.roots, abs)
	}
	return w, nil
}

// appendRoot keeps roots deduplicated and ordered longest first so the
// innermost root owns a path.
func appendRoot(roots []string, root string) []string {
	root = filepath.Clean(root)
	for _, r := range roots {
		if r == root {
			return roots
		}
	}
	roots = append(roots, root)
	sort.Slice(roots, func(i, j int) bool { return len(roots[i]) > len(roots[j]) })
	return roots
}

// Events returns the debounced batches. It is closed when Run returns.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.deb.Output()
}

// Roots returns the watched roots.
func (w *Watcher) Roots() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.roots...)
}

// AddRoot starts watching another root while running.
func (w *Watcher) AddRoot(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.mu.Lock()
	w.roots = appendRoot(w.roots, abs)
	w.mu.Unlock()
	return w.addRecursive(abs, abs, false)
}

// Run watches until ctx is done. Roots that do not exist are skipped with
// a warning.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		_ = w.fs.Close()
		w.deb.Stop()
	}()

	for _, root := range w.Roots() {
		if err := w.addRecursive(root, root, false); err != nil {
			slog.Warn("watch_root_failed", slog.String("root", root), slog.String("error", err.Error()))
		}
	}
	slog.Info("watch_started",
		slog.Int("roots", len(w.Roots())),
		slog.Int("directories", len(w.fs.WatchList())),
		slog.Duration("debounce", w.opts.DebounceWindow))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				slog.Warn("watch_overflow")
				for _, root := range w.Roots() {
					w.deb.Add(FileEvent{Path: root, Root: root, Operation: OpOverflow, Timestamp: time.Now()})
				}
				continue
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) rootFor(path string) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, r := range w.roots {
		if path == r || strings.HasPrefix(path, r+string(filepath.Separator)) {
			return r
		}
	}
	return ""
}

func (w *Watcher) skipDir(root, dir string) bool {
	if filepath.Base(dir) == ".git" {
		return true
	}
	return w.filter != nil && w.filter.SkipDir(root, dir)
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	root := w.rootFor(path)
	if root == "" || path == root {
		return
	}
	if w.skipDir(root, filepath.Dir(path)) {
		return
	}

	now := time.Now()
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Lstat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if w.skipDir(root, path) {
				return
			}
			// Files may land before the watch is added, so they are
			// reported from the walk.
			if err := w.addRecursive(root, path, true); err != nil {
				slog.Debug("watch_add_failed", slog.String("path", path), slog.String("error", err.Error()))
			}
			return
		}
		w.deb.Add(FileEvent{Path: path, Root: root, Operation: OpCreate, Timestamp: now})

	case ev.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return
		}
		w.deb.Add(FileEvent{Path: path, Root: root, Operation: OpModify, Timestamp: now})

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// The new name of a rename arrives as its own Create.
		w.deb.Add(FileEvent{Path: path, Root: root, Operation: OpDelete, Timestamp: now})
	}
}

// addRecursive watches dir and every directory below it that the filter
// keeps. With report set, files found are emitted as creates.
func (w *Watcher) addRecursive(root, dir string, report bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			if report {
				w.deb.Add(FileEvent{Path: path, Root: root, Operation: OpCreate, Timestamp: time.Now()})
			}
			return nil
		}
		if path != root && w.skipDir(root, path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			slog.Debug("watch_add_failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	})
}
