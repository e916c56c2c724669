// Package engine wires configuration, the index store, the embedding pool,
// the per-container indexing orchestrators, the searcher and the file
// watcher behind one facade. The CLI and any other front end talk only to
// Engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/amanfind/internal/chunk"
	"github.com/Aman-CERP/amanfind/internal/config"
	"github.com/Aman-CERP/amanfind/internal/embed"
	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
	"github.com/Aman-CERP/amanfind/internal/index"
	"github.com/Aman-CERP/amanfind/internal/scanner"
	"github.com/Aman-CERP/amanfind/internal/search"
	"github.com/Aman-CERP/amanfind/internal/store"
	"github.com/Aman-CERP/amanfind/internal/telemetry"
)

// ErrPathNotPermitted is returned by Read for paths outside every
// container's indexed roots.
var ErrPathNotPermitted = errors.New("path is not under any indexed root")

// Engine is safe for concurrent use.
type Engine struct {
	cfgPath string
	images  index.ImageExtractor

	store    *store.Store
	pool     *embed.Pool
	ownsPool bool
	scanner  *scanner.Scanner
	chunker  *chunk.Chunker
	searcher *search.Searcher
	metrics  *telemetry.Metrics

	mu       sync.RWMutex
	cfg      *config.Config
	orchs    map[string]*index.Orchestrator
	watching *watchState
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfigPath persists container changes to path. Without it changes
// live only in memory.
func WithConfigPath(path string) Option {
	return func(e *Engine) { e.cfgPath = path }
}

// WithPool uses an existing embedding pool. The caller keeps ownership.
func WithPool(pool *embed.Pool) Option {
	return func(e *Engine) { e.pool = pool }
}

// WithImageExtractor routes image files through x before chunking.
// Without one, images are excluded.
func WithImageExtractor(x index.ImageExtractor) Option {
	return func(e *Engine) { e.images = x }
}

// New opens the store under cfg.DataDir and builds the pipeline.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	e := &Engine{cfg: cfg, orchs: make(map[string]*index.Orchestrator)}
	for _, opt := range opts {
		opt(e)
	}

	st, err := store.Open(cfg.DataDir, store.Options{
		LexicalBackend:           cfg.Index.LexicalBackend,
		MaterializationThreshold: cfg.Index.MaterializationThreshold,
	})
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeStoreOpen, "failed to open index store", err)
	}
	e.store = st

	if cfg.Search.Telemetry {
		ts, err := telemetry.NewSQLiteStore(st.DB())
		if err != nil {
			slog.Warn("telemetry_unavailable", slog.String("error", err.Error()))
		} else {
			e.metrics = telemetry.New(ts, telemetry.DefaultConfig())
		}
	}

	if e.pool == nil {
		pool, err := embed.NewPoolFromConfig(ctx, cfg)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		e.pool = pool
		e.ownsPool = true
	}

	sc, err := scanner.New(scanner.OptionsFromConfig(cfg))
	if err != nil {
		_ = e.closeParts()
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}
	e.scanner = sc
	e.chunker = chunk.New(chunk.PoliciesFromConfig(cfg.Chunking))

	e.searcher, err = search.New(st, e.pool, search.OptionsFromConfig(cfg.Search))
	if err != nil {
		_ = e.closeParts()
		return nil, err
	}

	slog.Debug("engine_ready",
		slog.String("data_dir", cfg.DataDir),
		slog.String("lexical_backend", st.Backend()),
		slog.String("model", e.pool.ModelName()),
		slog.Int("containers", len(cfg.Containers)))
	return e, nil
}

// Close releases the store and, when the engine created it, the pool.
func (e *Engine) Close() error {
	return e.closeParts()
}

func (e *Engine) closeParts() error {
	var errs []error
	errs = append(errs, e.metrics.Close())
	if e.ownsPool && e.pool != nil {
		errs = append(errs, e.pool.Close())
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	return errors.Join(errs...)
}

// Config returns a snapshot of the configuration.
func (e *Engine) Config() config.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return *e.cfg
}

// resolve maps "" to the active container and checks it is configured.
func (e *Engine) resolve(container string) (string, config.ContainerConfig, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if container == "" {
		container = e.cfg.ActiveContainer
	}
	cc, err := e.cfg.Container(container)
	if err != nil {
		return "", config.ContainerConfig{}, err
	}
	return container, cc, nil
}

// orchestrator returns the container's orchestrator, creating it on first
// use. One orchestrator per container keeps passes serial.
func (e *Engine) orchestrator(container string) (*index.Orchestrator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orchestratorLocked(container)
}

func (e *Engine) orchestratorLocked(container string) (*index.Orchestrator, error) {
	if o, ok := e.orchs[container]; ok {
		return o, nil
	}
	cc, err := e.cfg.Container(container)
	if err != nil {
		return nil, err
	}
	o, err := index.New(index.Config{
		Container:    container,
		Roots:        cc.IndexedPaths,
		Store:        e.store,
		Pool:         e.pool,
		Scanner:      e.scanner,
		Chunker:      e.chunker,
		Images:       e.images,
		WriteRetries: e.cfg.Index.WriteRetries,
		GitHistory:   e.cfg.Index.GitHistory,
	})
	if err != nil {
		return nil, err
	}
	e.orchs[container] = o
	return o, nil
}

// Index runs one full reconciliation pass over the container's roots.
// An empty container name means the active container.
func (e *Engine) Index(ctx context.Context, container string, progress index.ProgressFunc) (index.Summary, error) {
	name, _, err := e.resolve(container)
	if err != nil {
		return index.Summary{}, err
	}
	o, err := e.orchestrator(name)
	if err != nil {
		return index.Summary{}, err
	}
	return o.Run(ctx, progress)
}

// Search runs a hybrid query. A container that was never indexed returns
// no results.
func (e *Engine) Search(ctx context.Context, req search.Request) (search.Response, error) {
	name, _, err := e.resolve(req.Container)
	if err != nil {
		return search.Response{}, err
	}
	req.Container = name

	ok, err := e.store.HasContainer(ctx, name)
	if err != nil {
		return search.Response{}, err
	}
	if !ok && strings.TrimSpace(req.Query) != "" {
		return search.Response{Results: []search.Result{}}, nil
	}
	start := time.Now()
	resp, err := e.searcher.Search(ctx, req)
	if err == nil {
		e.record(telemetry.KindSearch, name, req.Query, len(resp.Results), start)
	}
	return resp, err
}

// Related returns files whose content sits close to path's.
func (e *Engine) Related(ctx context.Context, path, container string, topK int) (search.Response, error) {
	name, _, err := e.resolve(container)
	if err != nil {
		return search.Response{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return search.Response{}, amerrors.ValidationError(fmt.Sprintf("invalid path %q", path), err)
	}
	start := time.Now()
	resp, err := e.searcher.Related(ctx, name, abs, topK)
	if err == nil {
		e.record(telemetry.KindRelated, name, abs, len(resp.Results), start)
	}
	return resp, err
}

func (e *Engine) record(kind telemetry.Kind, container, query string, results int, start time.Time) {
	e.metrics.Record(telemetry.QueryEvent{
		Container:   container,
		Kind:        kind,
		Query:       query,
		ResultCount: results,
		Latency:     time.Since(start),
		Timestamp:   start,
	})
}

// QueryStats reports query telemetry for the last days days, with at most
// limit top terms and zero-result queries.
func (e *Engine) QueryStats(ctx context.Context, days, limit int) (*telemetry.Snapshot, error) {
	if e.metrics == nil {
		return nil, amerrors.ConfigError("query telemetry is disabled", nil).
			WithSuggestion("set search.telemetry: true in the config file")
	}
	return e.metrics.Report(ctx, days, limit)
}

// Model reports the embedder's model name and vector width.
func (e *Engine) Model() (string, int) {
	return e.pool.ModelName(), e.pool.Dimensions()
}
