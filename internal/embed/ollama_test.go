package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

type fakeOllama struct {
	dims       int
	embedCalls atomic.Int64
	failFirst  int64
	status     int

	mu     sync.Mutex
	inputs []string
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"nomic-embed-text:latest"}]}`))
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		n := f.embedCalls.Add(1)
		if n <= f.failFirst {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte("busy"))
			return
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.inputs = append(f.inputs, req.Input...)
		f.mu.Unlock()

		resp := ollamaEmbedResponse{Model: req.Model}
		for i := range req.Input {
			v := make([]float64, f.dims)
			v[i%f.dims] = 1
			resp.Embeddings = append(resp.Embeddings, v)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func TestOllamaEmbedder_ProbesModelAndDimensions(t *testing.T) {
	// Given a server with a tagged model
	fake := &fakeOllama{dims: 8}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	// When the embedder is created with the untagged name
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// Then the tagged name and probed width are used
	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 8, e.Dimensions())
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_RolePrefixes(t *testing.T) {
	fake := &fakeOllama{dims: 4}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Model: "e5", Dimensions: 4, RolePrefixes: true, SkipHealthCheck: true,
	})
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"find invoices"}, RoleQuery)
	require.NoError(t, err)
	_, err = e.EmbedBatch(context.Background(), []string{"invoice text"}, RoleIndex)
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"query: find invoices", "passage: invoice text"}, fake.inputs)
}

func TestOllamaEmbedder_BlankTextsSkipServer(t *testing.T) {
	fake := &fakeOllama{dims: 4}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Dimensions: 4, SkipHealthCheck: true,
	})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"  ", "real"}, RoleIndex)
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0, 0, 0, 0}, vecs[0])
	assert.Len(t, vecs[1], 4)
	assert.Equal(t, int64(1), fake.embedCalls.Load())
}

func TestOllamaEmbedder_RetriesServerErrors(t *testing.T) {
	// Given a server that fails twice with 503
	fake := &fakeOllama{dims: 4, failFirst: 2, status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Dimensions: 4, SkipHealthCheck: true, Timeout: time.Second,
	})
	require.NoError(t, err)

	// When a batch is embedded
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"}, RoleIndex)

	// Then the third attempt succeeds
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, int64(3), fake.embedCalls.Load())
}

func TestOllamaEmbedder_ClientErrorsAreNotRetried(t *testing.T) {
	fake := &fakeOllama{dims: 4, failFirst: 10, status: http.StatusBadRequest}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, Dimensions: 4, SkipHealthCheck: true,
	})
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"a"}, RoleIndex)
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeEmbedFailed, amerrors.GetCode(err))
	assert.Equal(t, int64(1), fake.embedCalls.Load())
}

func TestOllamaEmbedder_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: url, Timeout: time.Second})
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeModelUnavailable, amerrors.GetCode(err))
}

func TestOllamaEmbedder_Closed(t *testing.T) {
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Dimensions: 4, SkipHealthCheck: true})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.EmbedBatch(context.Background(), []string{"a"}, RoleIndex)
	assert.ErrorIs(t, err, ErrClosed)
}
