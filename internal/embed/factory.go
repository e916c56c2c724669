package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/amanfind/internal/config"
	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

// Provider names.
const (
	ProviderStatic = "static"
	ProviderOllama = "ollama"
)

// NewEmbedder builds the configured embedder wrapped in a query cache.
// An unavailable Ollama server is an error with a suggestion, never a
// fallback to the static embedder.
func NewEmbedder(ctx context.Context, cfg *config.Config) (Embedder, error) {
	ec := cfg.Embeddings

	var inner Embedder
	switch strings.ToLower(ec.Provider) {
	case "", ProviderStatic:
		dims := ec.Dimensions
		if d, ok := ParseStaticModel(ec.Model); ok {
			dims = d
		}
		inner = NewStaticEmbedder(dims)

	case ProviderOllama:
		oc := OllamaConfig{
			Host:         ec.OllamaHost,
			Model:        ec.Model,
			Dimensions:   ec.Dimensions,
			Timeout:      cfg.EmbedTimeout(),
			RolePrefixes: ec.RolePrefixes,
		}
		cacheDir := cfg.ModelCacheDir()
		if oc.Dimensions == 0 {
			if m, err := ReadManifest(cacheDir, ec.Model); err == nil && m != nil {
				oc.Dimensions = m.Dims
			}
		}
		ollama, err := NewOllamaEmbedder(ctx, oc)
		if err != nil {
			return nil, err
		}
		if _, err := EnsureManifest(cacheDir, ec.Model, ollama.Dimensions()); err != nil {
			slog.Warn("model_manifest_write_failed", slog.String("model", ec.Model), slog.String("error", err.Error()))
		}
		inner = ollama

	default:
		return nil, amerrors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", ec.Provider), nil).
			WithSuggestion("set embeddings.provider to static or ollama")
	}

	cached, err := NewCachedEmbedder(inner, ec.CacheSize)
	if err != nil {
		_ = inner.Close()
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return cached, nil
}

// NewPoolFromConfig builds the embedder and the shared pool around it.
func NewPoolFromConfig(ctx context.Context, cfg *config.Config) (*Pool, error) {
	embedder, err := NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var opts []PoolOption
	if cfg.Embeddings.Workers > 0 {
		opts = append(opts, WithWorkers(cfg.Embeddings.Workers))
	}
	if cfg.Embeddings.BatchSize > 0 {
		opts = append(opts, WithBatchSize(cfg.Embeddings.BatchSize))
	}
	pool, err := NewPool(embedder, nil, opts...)
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}
	slog.Info("embedder_ready",
		slog.String("model", pool.ModelName()),
		slog.Int("dims", pool.Dimensions()))
	return pool, nil
}
