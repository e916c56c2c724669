package embed

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// PoolOption configures a Pool.
type PoolOption func(*Pool) error

// WithWorkers sets the number of concurrent model calls.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) error {
		if n <= 0 {
			return fmt.Errorf("worker count must be positive, got %d", n)
		}
		p.workers = n
		return nil
	}
}

// WithBatchSize sets the number of texts per model call.
func WithBatchSize(n int) PoolOption {
	return func(p *Pool) error {
		if n <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		if n > MaxBatchSize {
			n = MaxBatchSize
		}
		p.batchSize = n
		return nil
	}
}

// WithLogger sets the pool logger.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) error {
		p.logger = logger
		return nil
	}
}

// Pool is the shared model handle. Every embedding and rerank call runs as
// a task on one bounded ants pool, so indexing batches and interactive
// queries wait their turn instead of loading the model concurrently.
type Pool struct {
	embedder  Embedder
	reranker  Reranker
	workers   int
	batchSize int
	logger    *slog.Logger

	pool *ants.Pool

	mu     sync.RWMutex
	closed bool
}

// NewPool wraps embedder and reranker. A nil reranker defaults to a
// LexicalReranker over embedder.
func NewPool(embedder Embedder, reranker Reranker, opts ...PoolOption) (*Pool, error) {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		embedder:  embedder,
		reranker:  reranker,
		workers:   workers,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	if p.reranker == nil {
		p.reranker = NewLexicalReranker(embedder)
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(p.workers, ants.WithPanicHandler(func(r any) {
		p.logger.Error("embed_worker_panic", slog.Any("panic", r))
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	p.pool = pool
	return p, nil
}

type batchResult struct {
	vecs [][]float32
	err  error
}

// Embed embeds texts in batches and returns vectors in input order.
func (p *Pool) Embed(ctx context.Context, texts []string, role Role) ([][]float32, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var batches [][]string
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[start:end])
	}

	results := make([]batchResult, len(batches))
	var wg sync.WaitGroup
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		i, batch := i, batch
		err := p.pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				results[i].err = err
				return
			}
			results[i].vecs, results[i].err = p.embedder.EmbedBatch(ctx, batch, role)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("failed to submit embedding batch: %w", err)
		}
	}
	wg.Wait()

	out := make([][]float32, 0, len(texts))
	for i, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		if len(r.vecs) != len(batches[i]) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(r.vecs), len(batches[i]))
		}
		out = append(out, r.vecs...)
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (p *Pool) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{query}, RoleQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Rerank scores docs against query on the pool.
func (p *Pool) Rerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	var res struct {
		scores []float64
		err    error
	}
	var wg sync.WaitGroup
	wg.Add(1)
	if err := p.pool.Submit(func() {
		defer wg.Done()
		if err := ctx.Err(); err != nil {
			res.err = err
			return
		}
		res.scores, res.err = p.reranker.Rerank(ctx, query, docs)
	}); err != nil {
		wg.Done()
		return nil, fmt.Errorf("failed to submit rerank: %w", err)
	}
	wg.Wait()
	return res.scores, res.err
}

// Dimensions returns the embedder's vector width.
func (p *Pool) Dimensions() int { return p.embedder.Dimensions() }

// ModelName returns the embedder's model name.
func (p *Pool) ModelName() string { return p.embedder.ModelName() }

// Available reports whether the pool is open and the embedder ready.
func (p *Pool) Available(ctx context.Context) bool {
	if p.checkOpen() != nil {
		return false
	}
	return p.embedder.Available(ctx)
}

// Running returns the number of busy workers.
func (p *Pool) Running() int { return p.pool.Running() }

func (p *Pool) checkOpen() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	return nil
}

// Close releases the workers and closes the embedder.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.pool.Release()
	return p.embedder.Close()
}
