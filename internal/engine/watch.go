package engine

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanfind/internal/index"
	"github.com/Aman-CERP/amanfind/internal/watcher"
)

// ErrAlreadyWatching is returned by a second concurrent Watch.
var ErrAlreadyWatching = errors.New("engine is already watching")

// watchState tracks one Watch call: the watcher and an orchestrator loop
// per container.
type watchState struct {
	ctx   context.Context
	w     *watcher.Watcher
	wg    sync.WaitGroup
	loops map[string]context.CancelFunc
}

// start runs o's event loop unless it is already running.
func (ws *watchState) start(name string, o *index.Orchestrator) {
	if _, ok := ws.loops[name]; ok {
		return
	}
	ctx, cancel := context.WithCancel(ws.ctx)
	ws.loops[name] = cancel
	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		o.Start(ctx)
	}()
}

func (ws *watchState) stop(name string) {
	if cancel, ok := ws.loops[name]; ok {
		cancel()
		delete(ws.loops, name)
	}
}

// Watch reconciles every container once, then follows filesystem changes
// under all indexed roots until ctx is done. Each change is routed to
// every container whose roots contain it.
func (e *Engine) Watch(ctx context.Context) error {
	e.mu.Lock()
	if e.watching != nil {
		e.mu.Unlock()
		return ErrAlreadyWatching
	}
	var roots []string
	for _, cc := range e.cfg.Containers {
		roots = append(roots, cc.IndexedPaths...)
	}
	w, err := watcher.New(roots, e.scanner, watcher.Options{DebounceWindow: e.cfg.DebounceDuration()})
	if err != nil {
		e.mu.Unlock()
		return err
	}
	ws := &watchState{ctx: ctx, w: w, loops: make(map[string]context.CancelFunc)}
	e.watching = ws

	for _, name := range e.cfg.ContainerNames() {
		o, err := e.orchestratorLocked(name)
		if err != nil {
			slog.Warn("watch_container_skipped", slog.String("container", name), slog.String("error", err.Error()))
			continue
		}
		ws.start(name, o)
		o.EnqueueFull()
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		for name := range ws.loops {
			ws.stop(name)
		}
		e.watching = nil
		e.mu.Unlock()
		ws.wg.Wait()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		for batch := range w.Events() {
			e.route(batch)
		}
		return nil
	})
	return g.Wait()
}

// route hands each event to the containers that own its path.
func (e *Engine) route(batch []watcher.FileEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	byContainer := make(map[string][]watcher.FileEvent)
	for _, ev := range batch {
		for name, cc := range e.cfg.Containers {
			if owns(cc.IndexedPaths, ev.Path) {
				byContainer[name] = append(byContainer[name], ev)
			}
		}
	}
	for name, events := range byContainer {
		o, err := e.orchestratorLocked(name)
		if err != nil {
			continue
		}
		if e.watching != nil {
			e.watching.start(name, o)
		}
		o.Enqueue(events)
	}
	slog.Debug("watch_batch_routed", slog.Int("events", len(batch)), slog.Int("containers", len(byContainer)))
}

func owns(roots []string, path string) bool {
	for _, r := range roots {
		r = filepath.Clean(r)
		if path == r || strings.HasPrefix(path, r+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
