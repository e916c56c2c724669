package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Aman-CERP/amanfind/internal/config"
	"github.com/Aman-CERP/amanfind/internal/embed"
)

// embedderTimeout bounds the embedder probe.
const embedderTimeout = 10 * time.Second

type embedderFactory func(ctx context.Context, cfg *config.Config) (embed.Embedder, error)

func defaultEmbedderFactory(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	return embed.NewEmbedder(ctx, cfg)
}

// CheckEmbedder builds the configured embedder and embeds a probe text.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{Name: "embedder", Required: true}

	ctx, cancel := context.WithTimeout(ctx, embedderTimeout)
	defer cancel()

	e, err := c.newEmbedder(ctx, c.cfg)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s embedder unavailable: %v", c.cfg.Embeddings.Provider, err)
		return result
	}
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(ctx, []string{"preflight probe"}, embed.RoleQuery)
	if err != nil || len(vecs) != 1 || len(vecs[0]) != e.Dimensions() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s failed to embed a probe text", e.ModelName())
		if err != nil {
			result.Details = err.Error()
		}
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dims)", e.ModelName(), e.Dimensions())
	return result
}

// CheckIndexedPaths reports one result per container whose roots are
// missing or unreadable.
func (c *Checker) CheckIndexedPaths() []CheckResult {
	var out []CheckResult
	for _, name := range c.cfg.ContainerNames() {
		cc := c.cfg.Containers[name]
		if len(cc.IndexedPaths) == 0 && name == config.DefaultContainer {
			continue
		}
		result := CheckResult{Name: "paths:" + name, Status: StatusPass}
		var missing []string
		for _, p := range cc.IndexedPaths {
			if _, err := os.ReadDir(p); err != nil {
				missing = append(missing, p)
			}
		}
		switch {
		case len(cc.IndexedPaths) == 0:
			result.Status = StatusWarn
			result.Message = "no indexed paths"
			result.Details = fmt.Sprintf("Run 'amanfind containers add-path %s <folder>'", name)
		case len(missing) > 0:
			result.Status = StatusWarn
			result.Message = fmt.Sprintf("%d of %d paths unreadable", len(missing), len(cc.IndexedPaths))
			result.Details = fmt.Sprint(missing)
		default:
			result.Message = fmt.Sprintf("%d paths readable", len(cc.IndexedPaths))
		}
		out = append(out, result)
	}
	return out
}
