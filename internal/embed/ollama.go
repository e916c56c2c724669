package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

// Ollama defaults.
const (
	// DefaultOllamaHost is the local Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is used when the config names no model.
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaConnectTimeout bounds the health check.
	OllamaConnectTimeout = 5 * time.Second

	// OllamaPoolSize is the HTTP connection pool size.
	OllamaPoolSize = 4
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host  string
	Model string

	// Dimensions overrides probing when non-zero.
	Dimensions int

	Timeout    time.Duration
	MaxRetries int
	PoolSize   int

	// RolePrefixes prepends "query: " / "passage: " (E5 family models).
	RolePrefixes bool

	// SkipHealthCheck skips model discovery and probing (tests).
	SkipHealthCheck bool
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaEmbedder calls a local Ollama server's /api/embed endpoint.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	breaker   *amerrors.CircuitBreaker

	mu        sync.RWMutex
	modelName string
	dims      int
	closed    bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder connects to Ollama, resolves the model name against the
// installed models and probes the output width.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}

	// No client-level timeout: per-request contexts carry it.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		IdleConnTimeout:     10 * time.Second,
	}
	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		breaker:   amerrors.NewCircuitBreaker("ollama", amerrors.WithMaxFailures(5), amerrors.WithResetTimeout(30*time.Second)),
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	if cfg.SkipHealthCheck {
		return e, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, OllamaConnectTimeout+cfg.Timeout)
	defer cancel()

	name, err := e.resolveModel(checkCtx)
	if err != nil {
		transport.CloseIdleConnections()
		return nil, amerrors.ModelError("ollama is not reachable or the model is not installed", err).
			WithSuggestion(fmt.Sprintf("run 'ollama pull %s' or set embeddings.provider: static", cfg.Model))
	}
	e.modelName = name

	if e.dims == 0 {
		vecs, err := e.embed(checkCtx, []string{"dimension probe"})
		if err != nil {
			transport.CloseIdleConnections()
			return nil, amerrors.ModelError("failed to probe embedding dimensions", err)
		}
		e.dims = len(vecs[0])
	}

	slog.Debug("ollama_embedder_ready", slog.String("model", e.modelName), slog.Int("dims", e.dims))
	return e, nil
}

// resolveModel matches the configured model against installed names,
// ignoring a ":latest"-style tag when needed.
func (e *OllamaEmbedder) resolveModel(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to connect to ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return "", fmt.Errorf("failed to decode model list: %w", err)
	}

	want := strings.ToLower(e.config.Model)
	wantBase := strings.SplitN(want, ":", 2)[0]
	for _, m := range tags.Models {
		if strings.ToLower(m.Name) == want {
			return m.Name, nil
		}
	}
	for _, m := range tags.Models {
		if strings.SplitN(strings.ToLower(m.Name), ":", 2)[0] == wantBase {
			return m.Name, nil
		}
	}
	return "", fmt.Errorf("model %q not installed", e.config.Model)
}

// EmbedBatch embeds texts in one request. Blank texts get zero vectors.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string, role Role) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	dims := e.dims
	e.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	results := make([][]float32, len(texts))
	var idx []int
	var inputs []string
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, dims)
			continue
		}
		if e.config.RolePrefixes {
			text = role.Prefix() + text
		}
		idx = append(idx, i)
		inputs = append(inputs, text)
	}
	if len(inputs) == 0 {
		return results, nil
	}

	retry := amerrors.DefaultRetryConfig()
	retry.MaxRetries = e.config.MaxRetries
	retry.ShouldRetry = amerrors.IsRetryable

	vecs, err := amerrors.RetryWithResult(ctx, retry, func() ([][]float32, error) {
		return amerrors.Call(e.breaker, func() ([][]float32, error) {
			callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
			defer cancel()
			return e.embed(callCtx, inputs)
		})
	})
	if err != nil {
		return nil, err
	}

	for j, i := range idx {
		results[i] = vecs[j]
	}
	return results, nil
}

func (e *OllamaEmbedder) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.modelName, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, amerrors.New(amerrors.ErrCodeModelTimeout, "embedding request timed out", err)
		}
		return nil, amerrors.ModelError("embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, amerrors.ModelError("embedding server error", cause)
		}
		return nil, amerrors.New(amerrors.ErrCodeEmbedFailed, "embedding request rejected", cause)
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeEmbedFailed, "failed to decode embedding response", err)
	}
	if len(out.Embeddings) != len(inputs) {
		return nil, amerrors.New(amerrors.ErrCodeEmbedFailed,
			fmt.Sprintf("expected %d embeddings, got %d", len(inputs), len(out.Embeddings)), nil)
	}

	vecs := make([][]float32, len(out.Embeddings))
	for i, emb := range out.Embeddings {
		v := make([]float32, len(emb))
		for j, x := range emb {
			v[j] = float32(x)
		}
		if e.dims != 0 && len(v) != e.dims {
			return nil, amerrors.New(amerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("model returned %d dims, expected %d", len(v), e.dims), nil)
		}
		vecs[i] = NormalizeVector(v)
	}
	return vecs, nil
}

// Dimensions returns the probed or configured width.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the resolved model name.
func (e *OllamaEmbedder) ModelName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.modelName
}

// Available checks that the server answers.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, OllamaConnectTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close drops pooled connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
