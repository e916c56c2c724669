package embed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// countingEmbedder is a test double that records calls and returns the
// static embedder's vectors.
type countingEmbedder struct {
	inner      *StaticEmbedder
	batchCalls atomic.Int64
	texts      atomic.Int64

	mu    sync.Mutex
	roles []Role
	fail  error
}

func newCountingEmbedder(dims int) *countingEmbedder {
	return &countingEmbedder{inner: NewStaticEmbedder(dims)}
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string, role Role) ([][]float32, error) {
	c.batchCalls.Add(1)
	c.texts.Add(int64(len(texts)))
	c.mu.Lock()
	c.roles = append(c.roles, role)
	fail := c.fail
	c.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return c.inner.EmbedBatch(ctx, texts, role)
}

func (c *countingEmbedder) Dimensions() int                    { return c.inner.Dimensions() }
func (c *countingEmbedder) ModelName() string                  { return "counting-" + fmt.Sprint(c.inner.Dimensions()) }
func (c *countingEmbedder) Available(ctx context.Context) bool { return true }
func (c *countingEmbedder) Close() error                       { return nil }
