package embed

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/amanfind/internal/lockfile"
)

const manifestLockName = ".manifest.lock"

// Manifest records a model's identity in the shared model cache so other
// processes can skip dimension probing.
type Manifest struct {
	Name    string    `json:"name"`
	Dims    int       `json:"dims"`
	Created time.Time `json:"created"`
}

// ManifestPath returns the manifest file for model under cacheDir.
func ManifestPath(cacheDir, model string) string {
	return filepath.Join(cacheDir, sanitizeModel(model)+".json")
}

func sanitizeModel(model string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, model)
}

// ReadManifest loads a model manifest. It returns (nil, nil) when none
// exists.
func ReadManifest(cacheDir, model string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(cacheDir, model))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// EnsureManifest writes a manifest for model unless one with the same
// dimensions exists. The cache directory lock serializes writers across
// processes.
func EnsureManifest(cacheDir, model string, dims int) (*Manifest, error) {
	if cacheDir == "" {
		return nil, fmt.Errorf("model cache directory is not set")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create model cache: %w", err)
	}

	lock := lockfile.New(filepath.Join(cacheDir, manifestLockName))
	if err := lock.Lock(); err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	existing, err := ReadManifest(cacheDir, model)
	if err == nil && existing != nil && existing.Dims == dims {
		return existing, nil
	}

	m := &Manifest{Name: model, Dims: dims, Created: time.Now().UTC()}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	path := ManifestPath(cacheDir, model)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return m, nil
}
