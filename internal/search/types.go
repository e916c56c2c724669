package search

import (
	"errors"

	"github.com/Aman-CERP/amanfind/internal/config"
)

// Sentinel errors.
var (
	// ErrSuperseded is returned by a search that was cancelled because a
	// newer search started on the same session.
	ErrSuperseded = errors.New("search superseded by a newer query")

	// ErrEmptyQuery is returned for a blank query.
	ErrEmptyQuery = errors.New("query is empty")
)

// Defaults used when Options fields are zero.
const (
	DefaultVectorTop   = 50
	DefaultLexicalTop  = 30
	DefaultRerankTop   = 15
	DefaultTopK        = 10
	DefaultSnippetSize = 300
)

// Options tunes the pipeline.
type Options struct {
	RRFK        int
	VectorTop   int
	LexicalTop  int
	RerankTop   int
	MaxVariants int
	TopK        int
	SnippetSize int

	// OnePerFile keeps only the best chunk of each file.
	OnePerFile bool

	// Synonyms extend DefaultSynonyms.
	Synonyms map[string][]string
}

// DefaultOptions returns the pipeline defaults.
func DefaultOptions() Options {
	return Options{
		RRFK:        DefaultRRFConstant,
		VectorTop:   DefaultVectorTop,
		LexicalTop:  DefaultLexicalTop,
		RerankTop:   DefaultRerankTop,
		MaxVariants: DefaultMaxVariants,
		TopK:        DefaultTopK,
		SnippetSize: DefaultSnippetSize,
		OnePerFile:  true,
	}
}

// OptionsFromConfig maps the search config section.
func OptionsFromConfig(cfg config.SearchConfig) Options {
	return Options{
		RRFK:        cfg.RRFK,
		VectorTop:   cfg.VectorTop,
		LexicalTop:  cfg.LexicalTop,
		RerankTop:   cfg.RerankTop,
		MaxVariants: cfg.MaxVariants,
		TopK:        cfg.TopK,
		SnippetSize: cfg.SnippetSize,
		OnePerFile:  cfg.OnePerFile,
		Synonyms:    cfg.Synonyms,
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RRFK <= 0 {
		o.RRFK = d.RRFK
	}
	if o.VectorTop <= 0 {
		o.VectorTop = d.VectorTop
	}
	if o.LexicalTop <= 0 {
		o.LexicalTop = d.LexicalTop
	}
	if o.RerankTop <= 0 {
		o.RerankTop = d.RerankTop
	}
	if o.MaxVariants <= 0 {
		o.MaxVariants = d.MaxVariants
	}
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.SnippetSize <= 0 {
		o.SnippetSize = d.SnippetSize
	}
	return o
}

// Request is one search.
type Request struct {
	Container string
	Query     string

	// Zero values fall back to Options.
	TopK        int
	SnippetSize int

	// Extensions and PathPrefix pre-filter both retrieval paths.
	Extensions []string
	PathPrefix string

	// Session, when set, cancels any earlier search still running on the
	// same session.
	Session string
}

// Result is one ranked chunk.
type Result struct {
	Path    string
	Snippet string

	// Score is in (0, 1).
	Score float64

	Ordinal   int
	StartLine int
	EndLine   int
	Heading   string
}

// Response is the outcome of a search.
type Response struct {
	Results []Result

	// VectorsStale is set when the container's vectors do not match the
	// current embedder and only lexical results were used.
	VectorsStale bool

	// Variants are the lexical queries that ran.
	Variants []string
}
