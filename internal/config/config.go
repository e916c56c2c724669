// Package config loads and persists amanfind configuration.
//
// Precedence, lowest first: built-in defaults, the YAML file, AMANFIND_*
// environment variables. A file that fails to parse or validate never stops
// the process: the last-known-good copy is used instead, then defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultContainer always exists and cannot be deleted.
const DefaultContainer = "Default"

// Source records where a loaded Config came from.
type Source string

const (
	SourceDefaults      Source = "defaults"
	SourceFile          Source = "file"
	SourceLastKnownGood Source = "last-known-good"
)

// Config is the complete amanfind configuration.
type Config struct {
	Version         int                        `yaml:"version"`
	DataDir         string                     `yaml:"data_dir"`
	Embeddings      EmbeddingsConfig           `yaml:"embeddings"`
	Chunking        ChunkingConfig             `yaml:"chunking"`
	Index           IndexConfig                `yaml:"index"`
	Search          SearchConfig               `yaml:"search"`
	Watch           WatchConfig                `yaml:"watch"`
	Containers      map[string]ContainerConfig `yaml:"containers"`
	ActiveContainer string                     `yaml:"active_container"`

	// Source is set by Load and never persisted.
	Source Source `yaml:"-"`
}

// ContainerConfig describes one named index scope.
type ContainerConfig struct {
	Description  string   `yaml:"description"`
	IndexedPaths []string `yaml:"indexed_paths"`
}

// EmbeddingsConfig selects and tunes the embedding model.
type EmbeddingsConfig struct {
	// Provider is "static" (offline hashing) or "ollama" (local server).
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	// Workers bounds concurrent model invocations across indexing and queries.
	Workers       int    `yaml:"workers"`
	OllamaHost    string `yaml:"ollama_host"`
	RolePrefixes  bool   `yaml:"role_prefixes"`
	Timeout       string `yaml:"timeout"`
	CacheSize     int    `yaml:"cache_size"`
	ModelCacheDir string `yaml:"model_cache_dir"`
}

// ChunkPolicy bounds chunk sizes for one file category.
type ChunkPolicy struct {
	MaxBytes     int `yaml:"max_bytes"`
	OverlapBytes int `yaml:"overlap_bytes"`
	MinBytes     int `yaml:"min_bytes"`
}

// ChunkingConfig holds per-category chunk policies.
type ChunkingConfig struct {
	Text     ChunkPolicy `yaml:"text"`
	Markup   ChunkPolicy `yaml:"markup"`
	Code     ChunkPolicy `yaml:"code"`
	KeyValue ChunkPolicy `yaml:"key_value"`
}

// IndexConfig tunes walking and the index store.
type IndexConfig struct {
	// IncludeExtensions replaces the built-in text allow list when non-empty.
	IncludeExtensions []string `yaml:"include_extensions"`
	ExcludeExtensions []string `yaml:"exclude_extensions"`
	ExcludePatterns   []string `yaml:"exclude_patterns"`
	MaxFileSizeMB     int      `yaml:"max_file_size_mb"`
	FollowSymlinks    bool     `yaml:"follow_symlinks"`

	// MaterializationThreshold is the row count above which the ANN graph
	// is built; below it vector search is an exact scan.
	MaterializationThreshold int    `yaml:"materialization_threshold"`
	WriteRetries             int    `yaml:"write_retries"`
	LexicalBackend           string `yaml:"lexical_backend"`
	GitHistory               bool   `yaml:"git_history"`
}

// SearchConfig holds the query pipeline knobs.
type SearchConfig struct {
	// RRFK is the reciprocal rank fusion constant k.
	RRFK        int                 `yaml:"rrf_k"`
	VectorTop   int                 `yaml:"vector_top"`
	LexicalTop  int                 `yaml:"lexical_top"`
	RerankTop   int                 `yaml:"rerank_top"`
	MaxVariants int                 `yaml:"max_variants"`
	TopK        int                 `yaml:"top_k"`
	SnippetSize int                 `yaml:"snippet_size"`
	OnePerFile  bool                `yaml:"one_per_file"`
	Synonyms    map[string][]string `yaml:"synonyms"`

	// Telemetry records query counts, latency and terms to a local
	// database under the data dir. Nothing leaves the machine.
	Telemetry bool `yaml:"telemetry"`
}

// WatchConfig tunes the file watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

var defaultExcludePatterns = []string{
	".git/",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	".venv/",
	"target/",
	"dist/",
	"build/",
	"*.min.js",
	"*.min.css",
	"package-lock.json",
	"yarn.lock",
	"go.sum",
}

// NewConfig returns a Config with defaults and the Default container.
func NewConfig() *Config {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Embeddings: EmbeddingsConfig{
			Provider:  "static",
			Model:     "static-384",
			BatchSize: 64,
			Workers:   workers,
			Timeout:   "60s",
			CacheSize: 256,
		},
		Chunking: ChunkingConfig{
			Text:     ChunkPolicy{MaxBytes: 800, OverlapBytes: 200, MinBytes: 64},
			Markup:   ChunkPolicy{MaxBytes: 800, OverlapBytes: 200, MinBytes: 64},
			Code:     ChunkPolicy{MaxBytes: 1500, OverlapBytes: 200, MinBytes: 64},
			KeyValue: ChunkPolicy{MaxBytes: 1200, OverlapBytes: 0, MinBytes: 32},
		},
		Index: IndexConfig{
			ExcludePatterns:          append([]string(nil), defaultExcludePatterns...),
			MaxFileSizeMB:            10,
			MaterializationThreshold: 256,
			WriteRetries:             3,
			LexicalBackend:           "sqlite",
		},
		Search: SearchConfig{
			RRFK:        60,
			VectorTop:   50,
			LexicalTop:  30,
			RerankTop:   15,
			MaxVariants: 4,
			TopK:        10,
			SnippetSize: 300,
			OnePerFile:  true,
			Telemetry:   true,
		},
		Watch: WatchConfig{Debounce: "500ms"},
		Containers: map[string]ContainerConfig{
			DefaultContainer: {Description: "Default container", IndexedPaths: []string{}},
		},
		ActiveContainer: DefaultContainer,
		Source:          SourceDefaults,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanfind")
	}
	return filepath.Join(home, ".amanfind")
}

// DefaultPath returns the config file path, honoring XDG_CONFIG_HOME.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanfind", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanfind", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanfind", "config.yaml")
}

// ModelCacheDir returns the directory shared by every process loading models.
func (c *Config) ModelCacheDir() string {
	if c.Embeddings.ModelCacheDir != "" {
		return c.Embeddings.ModelCacheDir
	}
	return filepath.Join(c.DataDir, "models")
}

// DebounceDuration parses Watch.Debounce, defaulting to 500ms.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// EmbedTimeout parses Embeddings.Timeout, defaulting to 60s.
func (c *Config) EmbedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Embeddings.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// Validate checks ranges and container invariants.
func (c *Config) Validate() error {
	var problems []string

	switch c.Embeddings.Provider {
	case "static", "ollama":
	default:
		problems = append(problems, fmt.Sprintf("embeddings.provider must be static or ollama, got %q", c.Embeddings.Provider))
	}
	if c.Embeddings.BatchSize <= 0 {
		problems = append(problems, "embeddings.batch_size must be positive")
	}
	if c.Embeddings.Workers <= 0 {
		problems = append(problems, "embeddings.workers must be positive")
	}
	for name, p := range map[string]ChunkPolicy{
		"text": c.Chunking.Text, "markup": c.Chunking.Markup,
		"code": c.Chunking.Code, "key_value": c.Chunking.KeyValue,
	} {
		if p.MaxBytes <= 0 || p.OverlapBytes < 0 || p.OverlapBytes >= p.MaxBytes {
			problems = append(problems, fmt.Sprintf("chunking.%s needs max_bytes > overlap_bytes >= 0", name))
		}
	}
	switch c.Index.LexicalBackend {
	case "sqlite", "bleve":
	default:
		problems = append(problems, fmt.Sprintf("index.lexical_backend must be sqlite or bleve, got %q", c.Index.LexicalBackend))
	}
	if c.Index.MaterializationThreshold <= 0 {
		problems = append(problems, "index.materialization_threshold must be positive")
	}
	if c.Index.WriteRetries < 0 {
		problems = append(problems, "index.write_retries must not be negative")
	}
	if c.Search.RRFK <= 0 {
		problems = append(problems, "search.rrf_k must be positive")
	}
	if c.Search.VectorTop <= 0 || c.Search.LexicalTop <= 0 || c.Search.RerankTop <= 0 {
		problems = append(problems, "search.vector_top, lexical_top and rerank_top must be positive")
	}
	if _, ok := c.Containers[DefaultContainer]; !ok {
		problems = append(problems, "containers must include Default")
	}
	if _, ok := c.Containers[c.ActiveContainer]; !ok {
		problems = append(problems, fmt.Sprintf("active_container %q is not a configured container", c.ActiveContainer))
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// parse decodes data over defaults. Fields absent from data keep defaults.
func parse(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Containers == nil {
		cfg.Containers = map[string]ContainerConfig{}
	}
	if _, ok := cfg.Containers[DefaultContainer]; !ok {
		cfg.Containers[DefaultContainer] = ContainerConfig{IndexedPaths: []string{}}
	}
	if cfg.ActiveContainer == "" {
		cfg.ActiveContainer = DefaultContainer
	}
	return cfg, nil
}

// envOverride sets one field from an AMANFIND_* variable. Set reports
// false when the value cannot be parsed.
type envOverride struct {
	name string
	set  func(c *Config, v string) bool
}

var envOverrides = []envOverride{
	{"AMANFIND_DATA_DIR", func(c *Config, v string) bool { c.DataDir = v; return true }},
	{"AMANFIND_EMBED_PROVIDER", func(c *Config, v string) bool { c.Embeddings.Provider = v; return true }},
	{"AMANFIND_EMBED_MODEL", func(c *Config, v string) bool { c.Embeddings.Model = v; return true }},
	{"AMANFIND_OLLAMA_HOST", func(c *Config, v string) bool { c.Embeddings.OllamaHost = v; return true }},
	{"AMANFIND_LEXICAL_BACKEND", func(c *Config, v string) bool { c.Index.LexicalBackend = v; return true }},
	{"AMANFIND_TELEMETRY", func(c *Config, v string) bool {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false
		}
		c.Search.Telemetry = b
		return true
	}},
	{"AMANFIND_RRF_K", func(c *Config, v string) bool {
		k, err := strconv.Atoi(v)
		if err != nil {
			return false
		}
		c.Search.RRFK = k
		return true
	}},
}

// applyEnvOverrides applies each set variable in turn. A variable that does
// not parse, or leaves the config invalid, is logged and skipped; the
// value it would have replaced stays.
func (c *Config) applyEnvOverrides() {
	for _, o := range envOverrides {
		v := os.Getenv(o.name)
		if v == "" {
			continue
		}
		prev := *c
		if !o.set(c, v) {
			slog.Warn("config_env_override_ignored", slog.String("var", o.name), slog.String("value", v))
			continue
		}
		if err := c.Validate(); err != nil {
			*c = prev
			slog.Warn("config_env_override_ignored",
				slog.String("var", o.name),
				slog.String("value", v),
				slog.String("error", err.Error()))
		}
	}
}
