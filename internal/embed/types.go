// Package embed turns text into vectors and scores query/candidate pairs.
//
// All model access goes through Pool, the single process-wide handle shared
// by indexing and search. Pool dispatches work to a bounded worker pool so
// callers queue instead of contending.
package embed

import (
	"context"
	"errors"
	"math"
	"time"
)

// Embedding defaults.
const (
	// DefaultBatchSize is the number of texts per model invocation.
	DefaultBatchSize = 64

	// MaxBatchSize caps BatchSize to bound request memory.
	MaxBatchSize = 512

	// DefaultTimeout bounds one model call.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries for transient model failures.
	DefaultMaxRetries = 3

	// DefaultCacheSize is the number of query embeddings kept in memory.
	DefaultCacheSize = 256
)

// Role distinguishes documents from queries. Some model families embed
// them with different prefixes.
type Role int

const (
	RoleIndex Role = iota
	RoleQuery
)

func (r Role) String() string {
	if r == RoleQuery {
		return "query"
	}
	return "index"
}

// Prefix returns the E5-style input prefix for the role.
func (r Role) Prefix() string {
	if r == RoleQuery {
		return "query: "
	}
	return "passage: "
}

// ErrClosed is returned by calls on a closed embedder or pool.
var ErrClosed = errors.New("embedder is closed")

// Embedder generates vectors. Implementations return one vector per input
// in input order.
type Embedder interface {
	// EmbedBatch embeds texts for the given role.
	EmbedBatch(ctx context.Context, texts []string, role Role) ([][]float32, error)

	// Dimensions returns the vector length.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Reranker scores candidates against a query. Scores are order-preserving
// with docs and comparable only within one call.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]float64, error)
}

// NormalizeVector scales v to unit length in place and returns it.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	mag := math.Sqrt(sum)
	for i, x := range v {
		v[i] = float32(float64(x) / mag)
	}
	return v
}

// Cosine returns the cosine similarity of a and b, or 0 on length mismatch.
func Cosine(a, b []float32) float64 {
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

// MeanVector averages vectors of equal length and normalizes the result.
func MeanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float32, len(vectors[0]))
	n := 0
	for _, v := range vectors {
		if len(v) != len(out) {
			continue
		}
		for i, x := range v {
			out[i] += x
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range out {
		out[i] /= float32(n)
	}
	return NormalizeVector(out)
}
