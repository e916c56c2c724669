package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// graphOversample widens graph candidate lists so that filtered-out and
// deleted keys still leave n results.
const graphOversample = 4

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sum float64
	for _, x := range out {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range out {
		out[i] *= inv
	}
	return out
}

// sortHits orders by score descending, then path and ordinal.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Path != hits[j].Path {
			return hits[i].Path < hits[j].Path
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
}

// VectorSearch returns the n rows most similar to vec by cosine. Below the
// materialization threshold, or without a graph, every row is scanned.
// Otherwise graph candidates are merged with an exact scan of the tail.
func (s *Store) VectorSearch(ctx context.Context, container string, vec []float32, n int, f Filter) ([]Hit, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	t, err := s.requireContainer(ctx, container)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []Hit{}, nil
	}
	f = f.normalized()

	dims, err := getStateInt(ctx, s.db, container, stateDims)
	if err != nil {
		return nil, err
	}
	if dims != 0 && int(dims) != len(vec) {
		return nil, fmt.Errorf("%w: index has %d dims, query has %d", ErrDimensionMismatch, dims, len(vec))
	}
	query := normalized(vec)

	count, err := s.rowCount(ctx, t)
	if err != nil {
		return nil, err
	}

	var graph *annIndex
	if count >= s.opts.MaterializationThreshold {
		graph, err = s.graphFor(container)
		if err != nil {
			return nil, err
		}
		if graph != nil && graph.meta.Dims != len(query) {
			graph = nil
		}
	}

	var hits []Hit
	if graph == nil {
		hits, err = s.scan(ctx, t, query, 0, f)
	} else {
		hits, err = s.graphSearch(ctx, t, graph, query, n, f)
	}
	if err != nil {
		return nil, err
	}

	sortHits(hits)
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

// scan computes exact similarity for rows with id > afterID that pass f.
func (s *Store) scan(ctx context.Context, t tables, query []float32, afterID int64, f Filter) ([]Hit, error) {
	where, args := filterClause(f, "r")
	args = append([]any{afterID}, args...)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s r WHERE r.id > ? AND r.vector IS NOT NULL AND %s`,
		prefixed(rowColumns, "r"), quote(t.rows), where), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := scanRow(rows, true)
		if err != nil {
			return nil, err
		}
		if len(r.Vector) != len(query) {
			continue
		}
		score := cosine(query, r.Vector)
		r.Vector = nil
		hits = append(hits, Hit{Row: r, Score: score})
	}
	return hits, rows.Err()
}

func (s *Store) graphSearch(ctx context.Context, t tables, graph *annIndex, query []float32, n int, f Filter) ([]Hit, error) {
	k := n * graphOversample
	if !f.Empty() {
		k *= graphOversample
	}
	if k > graph.graph.Len() {
		k = graph.graph.Len()
	}
	candidates := graph.search(query, k)

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	resolved, err := s.rowsByID(ctx, t, ids, false)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(candidates))
	for _, c := range candidates {
		row, ok := resolved[c.id]
		// Rows deleted or replaced since the rebuild no longer resolve.
		if !ok || !f.Match(row.Path) {
			continue
		}
		hits = append(hits, Hit{Row: row, Score: c.score})
	}

	tail, err := s.scan(ctx, t, query, graph.meta.MaxID, f)
	if err != nil {
		return nil, err
	}
	return append(hits, tail...), nil
}

func prefixed(columns, alias string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func (s *Store) rowCount(ctx context.Context, t tables) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quote(t.rows))).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

// Maintain rebuilds derivative structures. At or above the threshold the
// graph is rebuilt when none exists or when mutations since the last
// rebuild reach the threshold. Below it, a stale graph is removed.
func (s *Store) Maintain(ctx context.Context, container string) (MaintainResult, error) {
	if err := s.checkOpen(); err != nil {
		return MaintainResult{}, err
	}
	t, err := s.requireContainer(ctx, container)
	if err != nil {
		return MaintainResult{}, err
	}

	count, err := s.rowCount(ctx, t)
	if err != nil {
		return MaintainResult{}, err
	}
	res := MaintainResult{Rows: count}
	threshold := s.opts.MaterializationThreshold

	if count < threshold {
		existing, err := s.graphFor(container)
		if err != nil {
			return res, err
		}
		if existing != nil {
			s.mu.Lock()
			delete(s.graphs, container)
			s.mu.Unlock()
			s.removeANN(container)
			res.Removed = true
		}
		return res, nil
	}

	mutations, err := getStateInt(ctx, s.db, container, stateMutations)
	if err != nil {
		return res, err
	}
	existing, err := s.graphFor(container)
	if err != nil {
		return res, err
	}
	if existing != nil && mutations < int64(threshold) {
		return res, nil
	}

	if err := s.rebuild(ctx, container, t); err != nil {
		return res, err
	}
	res.Rebuilt = true

	if err := s.lexical.optimize(ctx, s, container, t); err != nil {
		slog.Warn("lexical_optimize_failed",
			slog.String("container", container),
			slog.String("error", err.Error()))
	}
	return res, nil
}

func (s *Store) rebuild(ctx context.Context, container string, t tables) error {
	start := time.Now()
	dims, err := getStateInt(ctx, s.db, container, stateDims)
	if err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, vector FROM %s WHERE vector IS NOT NULL ORDER BY id`, quote(t.rows)))
	if err != nil {
		return fmt.Errorf("failed to read vectors: %w", err)
	}
	var ids []int64
	var vectors [][]float32
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan vector: %w", err)
		}
		v := decodeVector(blob)
		if dims == 0 {
			dims = int64(len(v))
		}
		ids = append(ids, id)
		vectors = append(vectors, normalized(v))
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	graph := buildANN(ids, vectors, int(dims))
	if err := graph.save(s.annPath(container)); err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}

	if err := setState(ctx, s.db, container, stateMutations, "0"); err != nil {
		return err
	}
	if err := setState(ctx, s.db, container, stateANNRows, strconv.Itoa(graph.meta.Rows)); err != nil {
		return err
	}
	if err := setState(ctx, s.db, container, stateLastRebuild,
		strconv.FormatInt(graph.meta.Built.UnixNano(), 10)); err != nil {
		return err
	}

	s.mu.Lock()
	if s.graphs != nil {
		s.graphs[container] = graph
	}
	s.mu.Unlock()

	slog.Info("ann_rebuilt",
		slog.String("container", container),
		slog.Int("rows", graph.meta.Rows),
		slog.Int("dims", int(dims)),
		slog.Duration("duration", time.Since(start)))
	return nil
}
