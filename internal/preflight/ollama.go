package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/Aman-CERP/amanfind/internal/embed"
)

// ollamaProbeTimeout bounds the tags request.
const ollamaProbeTimeout = 3 * time.Second

// CheckOllama reports whether the Ollama server is reachable and has the
// configured model pulled. A missing binary only warns, since the server
// may run elsewhere.
func (c *Checker) CheckOllama(ctx context.Context) CheckResult {
	result := CheckResult{Name: "ollama", Required: true}
	host := strings.TrimRight(c.cfg.Embeddings.OllamaHost, "/")
	if host == "" {
		host = embed.DefaultOllamaHost
	}

	ctx, cancel := context.WithTimeout(ctx, ollamaProbeTimeout)
	defer cancel()
	models, err := c.ollamaModels(ctx, host)
	if err != nil {
		result.Status = StatusFail
		result.Message = "server not reachable at " + host
		result.Details = "Start it with 'ollama serve'"
		if _, lerr := c.lookPath("ollama"); lerr != nil {
			result.Details = "Install Ollama from https://ollama.com, then run 'ollama serve'"
		}
		return result
	}

	want := c.cfg.Embeddings.Model
	if want != "" && !hasModel(models, want) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("model %s not pulled", want)
		result.Details = "Run 'ollama pull " + want + "'"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d models)", host, len(models))
	if _, err := c.lookPath("ollama"); err != nil {
		result.Details = "ollama binary not on PATH; using a remote server"
	}
	return result
}

func (c *Checker) ollamaModels(ctx context.Context, host string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// hasModel matches by full name or by name without the tag, so
// "nomic-embed-text" finds "nomic-embed-text:latest".
func hasModel(available []string, want string) bool {
	want = strings.ToLower(want)
	wantBase, _, _ := strings.Cut(want, ":")
	for _, a := range available {
		a = strings.ToLower(a)
		base, _, _ := strings.Cut(a, ":")
		if a == want || (!strings.Contains(want, ":") && base == wantBase) {
			return true
		}
	}
	return false
}

var defaultLookPath = exec.LookPath
