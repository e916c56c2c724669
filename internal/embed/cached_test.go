package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_QueryHits(t *testing.T) {
	// Given a cached embedder over a counting embedder
	inner := newCountingEmbedder(32)
	cached, err := NewCachedEmbedder(inner, 10)
	require.NoError(t, err)

	// When the same query is embedded twice
	first, err := cached.EmbedBatch(context.Background(), []string{"invoice totals"}, RoleQuery)
	require.NoError(t, err)
	second, err := cached.EmbedBatch(context.Background(), []string{"invoice totals"}, RoleQuery)
	require.NoError(t, err)

	// Then the inner embedder is called once
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.batchCalls.Load())
	hits, misses := cached.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCachedEmbedder_MixedBatchEmbedsOnlyMisses(t *testing.T) {
	inner := newCountingEmbedder(32)
	cached, err := NewCachedEmbedder(inner, 10)
	require.NoError(t, err)

	_, err = cached.EmbedBatch(context.Background(), []string{"alpha"}, RoleQuery)
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(context.Background(), []string{"alpha", "beta", "gamma"}, RoleQuery)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, int64(3), inner.texts.Load())

	direct, err := inner.inner.EmbedBatch(context.Background(), []string{"alpha", "beta", "gamma"}, RoleQuery)
	require.NoError(t, err)
	assert.Equal(t, direct, vecs)
}

func TestCachedEmbedder_IndexRoleBypassesCache(t *testing.T) {
	inner := newCountingEmbedder(16)
	cached, err := NewCachedEmbedder(inner, 10)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := cached.EmbedBatch(context.Background(), []string{"same passage"}, RoleIndex)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), inner.batchCalls.Load())
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	inner := newCountingEmbedder(16)
	inner.fail = errors.New("model offline")
	cached, err := NewCachedEmbedder(inner, 10)
	require.NoError(t, err)

	_, err = cached.EmbedBatch(context.Background(), []string{"q"}, RoleQuery)
	require.Error(t, err)

	inner.mu.Lock()
	inner.fail = nil
	inner.mu.Unlock()

	vecs, err := cached.EmbedBatch(context.Background(), []string{"q"}, RoleQuery)
	require.NoError(t, err)
	assert.Len(t, vecs[0], 16)
	assert.Equal(t, int64(2), inner.batchCalls.Load())
}
