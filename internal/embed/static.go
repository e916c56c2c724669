package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"

	"github.com/Aman-CERP/amanfind/internal/tokenize"
)

// StaticDimensions is the default static embedder width.
const StaticDimensions = 384

const staticModelPrefix = "static-"

// Feature weights.
const (
	unigramWeight = 1.0
	bigramWeight  = 0.5
	trigramWeight = 0.3
)

// StaticEmbedder is a deterministic feature-hashing embedder over terms,
// term bigrams and character trigrams. It needs no model files or network.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder with dims dimensions.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = StaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// StaticModelName returns the model name for a width, e.g. "static-384".
func StaticModelName(dims int) string {
	return staticModelPrefix + strconv.Itoa(dims)
}

// ParseStaticModel extracts the width from a static model name.
func ParseStaticModel(name string) (int, bool) {
	if !strings.HasPrefix(name, staticModelPrefix) {
		return 0, false
	}
	dims, err := strconv.Atoi(strings.TrimPrefix(name, staticModelPrefix))
	if err != nil || dims <= 0 {
		return 0, false
	}
	return dims, true
}

// EmbedBatch embeds each text independently. Role does not change the
// output.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string, _ Role) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *StaticEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	terms := tokenize.Terms(text)
	if len(terms) == 0 {
		return v
	}

	for i, term := range terms {
		e.add(v, "u:"+term, unigramWeight)
		if i > 0 {
			e.add(v, "b:"+terms[i-1]+" "+term, bigramWeight)
		}
		padded := []rune("#" + term + "#")
		for j := 0; j+3 <= len(padded); j++ {
			e.add(v, "t:"+string(padded[j:j+3]), trigramWeight)
		}
	}
	return NormalizeVector(v)
}

// add applies signed feature hashing: the top hash bit picks the sign.
func (e *StaticEmbedder) add(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

// Dimensions returns the vector width.
func (e *StaticEmbedder) Dimensions() int { return e.dims }

// ModelName returns "static-<dims>".
func (e *StaticEmbedder) ModelName() string { return StaticModelName(e.dims) }

// Available reports whether the embedder is open.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *StaticEmbedder) String() string {
	return fmt.Sprintf("StaticEmbedder(%d)", e.dims)
}
