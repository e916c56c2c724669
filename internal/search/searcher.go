package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanfind/internal/embed"
	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
	"github.com/Aman-CERP/amanfind/internal/store"
)

// ErrNotIndexed is returned by Related for a path with no indexed chunks.
var ErrNotIndexed = errors.New("file is not indexed")

// Searcher runs queries against the store. It only reads; any number of
// searches may run alongside each other and alongside an indexing pass.
type Searcher struct {
	store    *store.Store
	pool     *embed.Pool
	opts     Options
	expander *Expander
	sessions *sessions
}

// New creates a searcher. Zero Options fields take their defaults.
func New(st *store.Store, pool *embed.Pool, opts Options) (*Searcher, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("embedding pool is required")
	}
	opts = opts.withDefaults()
	return &Searcher{
		store:    st,
		pool:     pool,
		opts:     opts,
		expander: NewExpander(opts.Synonyms, opts.MaxVariants),
		sessions: newSessions(),
	}, nil
}

// Options returns the effective options.
func (s *Searcher) Options() Options { return s.opts }

// Search runs the hybrid pipeline:
// 1. Embed the query and expand lexical variants
// 2. Vector search and one lexical search per variant, in parallel
// 3. RRF fusion of the vector list and the deduplicated lexical lists
// 4. Rerank the fused head on the embedding pool
// 5. Order by reranker score, keep one chunk per file, cut to TopK
func (s *Searcher) Search(ctx context.Context, req Request) (Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Response{}, amerrors.New(amerrors.ErrCodeQueryEmpty, "query is empty", ErrEmptyQuery).
			WithSuggestion("Provide a non-empty search query")
	}

	ctx, done := s.sessions.begin(ctx, req.Session)
	defer done()

	resp, err := s.search(ctx, req, query)
	if errors.Is(context.Cause(ctx), ErrSuperseded) {
		return Response{}, ErrSuperseded
	}
	return resp, err
}

func (s *Searcher) search(ctx context.Context, req Request, query string) (Response, error) {
	start := time.Now()
	topK := req.TopK
	if topK <= 0 {
		topK = s.opts.TopK
	}
	snippetSize := req.SnippetSize
	if snippetSize <= 0 {
		snippetSize = s.opts.SnippetSize
	}
	filter := store.Filter{Extensions: req.Extensions, PathPrefix: req.PathPrefix}

	ms, err := s.store.CheckModel(ctx, req.Container, s.pool.ModelName(), s.pool.Dimensions())
	if err != nil {
		return Response{}, err
	}
	resp := Response{
		Results:      []Result{},
		VectorsStale: ms.Stale,
		Variants:     s.expander.Variants(query),
	}

	var vector []store.Hit
	lexical := make([][]store.Hit, len(resp.Variants))

	g, gctx := errgroup.WithContext(ctx)
	if !ms.Stale {
		g.Go(func() error {
			hits, stale, err := s.vectorPath(gctx, req.Container, query, filter)
			if err != nil {
				return err
			}
			vector = hits
			if stale {
				resp.VectorsStale = true
			}
			return nil
		})
	}
	for i, v := range resp.Variants {
		g.Go(func() error {
			hits, err := s.store.LexicalSearch(gctx, req.Container, v, s.opts.LexicalTop, filter)
			if err != nil {
				return fmt.Errorf("lexical search failed: %w", err)
			}
			lexical[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Response{}, err
	}

	fused := Fuse(s.opts.RRFK, vector, lexical)
	if len(fused) > s.opts.RerankTop {
		fused = fused[:s.opts.RerankTop]
	}

	ranked, err := s.rerank(ctx, query, fused)
	if err != nil {
		return Response{}, err
	}
	if s.opts.OnePerFile {
		ranked = bestPerFile(ranked)
	}
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	terms := snippetTerms(resp.Variants)
	for _, r := range ranked {
		resp.Results = append(resp.Results, Result{
			Path:      r.Path,
			Snippet:   Snippet(r.Text, terms, snippetSize),
			Score:     r.score,
			Ordinal:   r.Ordinal,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			Heading:   r.Heading,
		})
	}

	slog.Debug("search_complete",
		slog.String("container", req.Container),
		slog.Int("variants", len(resp.Variants)),
		slog.Int("vector_hits", len(vector)),
		slog.Int("fused", len(fused)),
		slog.Int("results", len(resp.Results)),
		slog.Bool("vectors_stale", resp.VectorsStale),
		slog.Duration("duration", time.Since(start)))
	return resp, nil
}

// vectorPath embeds the query and searches by similarity. A width mismatch
// is reported as stale rather than as an error, and so is an embedder that
// is down: the lexical path still answers.
func (s *Searcher) vectorPath(ctx context.Context, container, query string, f store.Filter) ([]store.Hit, bool, error) {
	vec, err := s.pool.EmbedQuery(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		slog.Warn("query_embed_failed",
			slog.String("container", container),
			slog.String("error", err.Error()))
		return nil, false, nil
	}
	hits, err := s.store.VectorSearch(ctx, container, vec, s.opts.VectorTop, f)
	if errors.Is(err, store.ErrDimensionMismatch) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("vector search failed: %w", err)
	}
	return hits, false, nil
}

type ranked struct {
	Fused
	rerank float64
	score  float64
}

// rerank orders fused rows by reranker score, ties by fused order. When the
// reranker fails the fused order stands and the RRF score is scaled into
// (0, 1] instead.
func (s *Searcher) rerank(ctx context.Context, query string, fused []Fused) ([]ranked, error) {
	out := make([]ranked, len(fused))
	for i, f := range fused {
		out[i] = ranked{Fused: f}
	}
	if len(out) == 0 {
		return out, nil
	}

	docs := make([]string, len(fused))
	for i, f := range fused {
		docs[i] = f.Text
	}
	scores, err := s.pool.Rerank(ctx, query, docs)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err == nil && len(scores) != len(docs) {
		err = fmt.Errorf("reranker returned %d scores for %d docs", len(scores), len(docs))
	}
	if err != nil {
		slog.Warn("rerank_failed", slog.String("error", err.Error()))
		maxRRF := 2 / float64(s.opts.RRFK+1)
		for i := range out {
			out[i].score = out[i].Fused.Score / maxRRF
		}
		return out, nil
	}

	for i := range out {
		out[i].rerank = scores[i]
		out[i].score = embed.Logistic(scores[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].rerank > out[j].rerank
	})
	return out, nil
}

// bestPerFile keeps the first row seen for each path.
func bestPerFile(rows []ranked) []ranked {
	seen := make(map[string]bool, len(rows))
	out := rows[:0]
	for _, r := range rows {
		if seen[r.Path] {
			continue
		}
		seen[r.Path] = true
		out = append(out, r)
	}
	return out
}

func snippetTerms(variants []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range variants {
		for _, w := range strings.Fields(v) {
			if !seen[w] {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	return out
}

// Related returns chunks from other files that sit closest to the mean of
// path's chunk vectors, best chunk per file.
func (s *Searcher) Related(ctx context.Context, container, path string, topK int) (Response, error) {
	if topK <= 0 {
		topK = s.opts.TopK
	}
	ms, err := s.store.CheckModel(ctx, container, s.pool.ModelName(), s.pool.Dimensions())
	if err != nil {
		return Response{}, err
	}
	resp := Response{Results: []Result{}, VectorsStale: ms.Stale}
	if ms.Stale {
		return resp, nil
	}

	chunks, err := s.store.ChunksForPath(ctx, container, path)
	if err != nil {
		return Response{}, err
	}
	vectors := make([][]float32, 0, len(chunks))
	for _, c := range chunks {
		vectors = append(vectors, c.Vector)
	}
	mean := embed.MeanVector(vectors)
	if mean == nil {
		return Response{}, fmt.Errorf("%s: %w", path, ErrNotIndexed)
	}

	// The file's own chunks come back first, so ask for enough to get past
	// them.
	n := max(s.opts.VectorTop, len(chunks)+topK*4)
	hits, err := s.store.VectorSearch(ctx, container, mean, n, store.Filter{})
	if errors.Is(err, store.ErrDimensionMismatch) {
		resp.VectorsStale = true
		return resp, nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("vector search failed: %w", err)
	}

	seen := map[string]bool{path: true}
	for _, h := range hits {
		if seen[h.Path] {
			continue
		}
		seen[h.Path] = true
		resp.Results = append(resp.Results, Result{
			Path:      h.Path,
			Snippet:   Snippet(h.Text, nil, s.opts.SnippetSize),
			Score:     max(0, h.Score),
			Ordinal:   h.Ordinal,
			StartLine: h.StartLine,
			EndLine:   h.EndLine,
			Heading:   h.Heading,
		})
		if len(resp.Results) == topK {
			break
		}
	}
	return resp, nil
}
