package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/amanfind/internal/chunk"
	"github.com/Aman-CERP/amanfind/internal/embed"
	"github.com/Aman-CERP/amanfind/internal/scanner"
	"github.com/Aman-CERP/amanfind/internal/store"
	"github.com/Aman-CERP/amanfind/internal/watcher"
)

// DefaultWriteRetries bounds store write attempts per file.
const DefaultWriteRetries = 3

// Config wires an Orchestrator.
type Config struct {
	Container string
	Roots     []string

	Store   *store.Store
	Pool    *embed.Pool
	Scanner *scanner.Scanner
	Chunker *chunk.Chunker

	// Images is optional.
	Images ImageExtractor

	// WriteRetries excludes the first attempt. Zero means
	// DefaultWriteRetries.
	WriteRetries int

	// GitHistory appends a chunk of recent commit subjects to files inside
	// a git work tree.
	GitHistory bool
}

// request is the work for one pass. Paths map to the last operation seen.
type request struct {
	full  bool
	paths map[string]watcher.Operation
}

func (r request) empty() bool {
	return !r.full && len(r.paths) == 0
}

// Orchestrator runs indexing passes for one container. Passes never
// overlap; events that arrive during a pass are folded into the next one.
type Orchestrator struct {
	cfg Config
	git *gitHistory

	// upsert writes one file's rows; tests replace it to fail writes.
	upsert func(ctx context.Context, container string, f store.File, rows []store.Row) error

	passMu sync.Mutex

	mu        sync.Mutex
	roots     []string
	state     State
	pending   map[string]watcher.Operation
	needsFull bool
	last      Summary
	lastPass  time.Time
	lastErr   error

	wake chan struct{}
}

// New creates an orchestrator. Store, Pool, Scanner and Chunker are
// required.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Container == "" {
		return nil, fmt.Errorf("container name is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("embedding pool is required")
	}
	if cfg.Scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if cfg.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if cfg.WriteRetries <= 0 {
		cfg.WriteRetries = DefaultWriteRetries
	}
	o := &Orchestrator{
		cfg:     cfg,
		pending: make(map[string]watcher.Operation),
		wake:    make(chan struct{}, 1),
	}
	o.upsert = cfg.Store.Upsert
	if cfg.GitHistory {
		o.git = newGitHistory()
	}
	o.SetRoots(cfg.Roots)
	return o, nil
}

// Container returns the container this orchestrator writes.
func (o *Orchestrator) Container() string { return o.cfg.Container }

// SetRoots replaces the indexed roots. Tracked files outside the new roots
// are removed by the next full pass.
func (o *Orchestrator) SetRoots(roots []string) {
	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			cleaned = append(cleaned, abs)
		}
	}
	// Longest first so the innermost root owns a path.
	sort.Slice(cleaned, func(i, j int) bool { return len(cleaned[i]) > len(cleaned[j]) })

	o.mu.Lock()
	o.roots = cleaned
	o.mu.Unlock()
}

// Roots returns the indexed roots.
func (o *Orchestrator) Roots() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.roots...)
}

func (o *Orchestrator) rootFor(path string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range o.roots {
		if path == r || strings.HasPrefix(path, r+string(filepath.Separator)) {
			return r
		}
	}
	return ""
}

// Status returns a snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{
		State:     o.state,
		Pending:   len(o.pending),
		NeedsFull: o.needsFull,
		LastPass:  o.lastPass,
		Last:      o.last,
	}
	if o.lastErr != nil {
		st.LastError = o.lastErr.Error()
	}
	return st
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Enqueue records watcher events for the next pass. An overflow event asks
// for a full walk.
func (o *Orchestrator) Enqueue(events []watcher.FileEvent) {
	if len(events) == 0 {
		return
	}
	o.mu.Lock()
	for _, e := range events {
		if e.Operation == watcher.OpOverflow {
			o.needsFull = true
			continue
		}
		o.pending[e.Path] = e.Operation
	}
	o.mu.Unlock()
	o.signal()
}

// EnqueueFull asks for a full walk on the next pass.
func (o *Orchestrator) EnqueueFull() {
	o.mu.Lock()
	o.needsFull = true
	o.mu.Unlock()
	o.signal()
}

func (o *Orchestrator) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) takePending() request {
	o.mu.Lock()
	defer o.mu.Unlock()
	req := request{full: o.needsFull, paths: o.pending}
	o.pending = make(map[string]watcher.Operation)
	o.needsFull = false
	return req
}

// requeue puts a failed request back. Newer events for a path win.
func (o *Orchestrator) requeue(req request) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.needsFull = o.needsFull || req.full
	for p, op := range req.paths {
		if _, ok := o.pending[p]; !ok {
			o.pending[p] = op
		}
	}
}

// Run performs a full pass, folding in any queued events. It blocks until
// the pass ends.
func (o *Orchestrator) Run(ctx context.Context, progress ProgressFunc) (Summary, error) {
	req := o.takePending()
	explicitFull := req.full
	req.full = true

	sum, err := o.pass(ctx, req, progress)
	if err != nil {
		req.full = explicitFull
		o.requeue(req)
	}
	return sum, err
}

// Start processes queued events until ctx is done. Each wake-up drains the
// queue; a failed pass is retried on the next wake-up.
func (o *Orchestrator) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.wake:
		}

		for {
			req := o.takePending()
			if req.empty() {
				break
			}
			if _, err := o.pass(ctx, req, nil); err != nil {
				o.requeue(req)
				if ctx.Err() != nil {
					return
				}
				slog.Warn("index_pass_failed",
					slog.String("container", o.cfg.Container),
					slog.String("error", err.Error()))
				break
			}
		}
	}
}

func (o *Orchestrator) finish(sum Summary, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = StateIdle
	o.lastErr = err
	if err == nil {
		o.last = sum
		o.lastPass = time.Now()
	}
}

// isCancelled reports whether err came from ctx being done.
func isCancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
