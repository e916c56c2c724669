package chunk

import (
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageConfig describes how to find declarations in one grammar.
type LanguageConfig struct {
	Name string
	// CommentTypes are node types that attach to the following declaration.
	CommentTypes []string
	// WrapperTypes hold the real declaration in a field (export, decorators).
	WrapperTypes map[string]string
}

// LanguageRegistry maps language names to grammars.
type LanguageRegistry struct {
	mu        sync.RWMutex
	configs   map[string]*LanguageConfig
	languages map[string]*sitter.Language
}

var (
	defaultRegistry     *LanguageRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the shared registry of built-in grammars.
func DefaultRegistry() *LanguageRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewLanguageRegistry()
	})
	return defaultRegistry
}

// NewLanguageRegistry creates a registry with the built-in grammars.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:   make(map[string]*LanguageConfig),
		languages: make(map[string]*sitter.Language),
	}

	comment := []string{"comment"}
	jsWrappers := map[string]string{"export_statement": "declaration"}

	r.Register(&LanguageConfig{Name: "go", CommentTypes: comment}, golang.GetLanguage())
	r.Register(&LanguageConfig{
		Name:         "python",
		CommentTypes: comment,
		WrapperTypes: map[string]string{"decorated_definition": "definition"},
	}, python.GetLanguage())
	r.Register(&LanguageConfig{Name: "javascript", CommentTypes: comment, WrapperTypes: jsWrappers}, javascript.GetLanguage())
	r.Register(&LanguageConfig{Name: "typescript", CommentTypes: comment, WrapperTypes: jsWrappers}, typescript.GetLanguage())
	r.Register(&LanguageConfig{Name: "tsx", CommentTypes: comment, WrapperTypes: jsWrappers}, tsx.GetLanguage())
	r.Register(&LanguageConfig{Name: "rust", CommentTypes: []string{"line_comment", "block_comment", "attribute_item"}}, rust.GetLanguage())
	r.Register(&LanguageConfig{Name: "java", CommentTypes: []string{"line_comment", "block_comment"}}, java.GetLanguage())

	return r
}

// Register adds or replaces a grammar.
func (r *LanguageRegistry) Register(cfg *LanguageConfig, lang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
	r.languages[cfg.Name] = lang
}

// Get returns the config and grammar for a language name.
func (r *LanguageRegistry) Get(name string) (*LanguageConfig, *sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	if !ok {
		return nil, nil, false
	}
	return cfg, r.languages[name], true
}

func (cfg *LanguageConfig) isComment(nodeType string) bool {
	for _, t := range cfg.CommentTypes {
		if t == nodeType {
			return true
		}
	}
	return false
}
