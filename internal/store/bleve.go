package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/amanfind/internal/tokenize"
)

const (
	// TermTokenizerName is the bleve tokenizer splitting code and prose terms.
	TermTokenizerName = "amanfind_terms"

	// StopFilterName is the bleve multilingual stop word filter.
	StopFilterName = "amanfind_stop"

	// TermAnalyzerName is the analyzer used for row content.
	TermAnalyzerName = "amanfind_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(TermTokenizerName, termTokenizerConstructor)
	_ = registry.RegisterTokenFilter(StopFilterName, stopFilterConstructor)
}

// bleveDocument is the stored form of a row.
type bleveDocument struct {
	Content string `json:"content"`
	Path    string `json:"path"`
	Ext     string `json:"ext"`
}

// bleveBackend keeps one bleve index per container under dir. Writes land
// after the row transaction commits; Maintain reconciles any drift.
type bleveBackend struct {
	dir string

	mu      sync.Mutex
	indexes map[string]bleve.Index
}

func newBleveBackend(dir string) *bleveBackend {
	return &bleveBackend{dir: dir, indexes: make(map[string]bleve.Index)}
}

func (b *bleveBackend) name() string { return BackendBleve }

func (b *bleveBackend) pathFor(container string) string {
	return filepath.Join(b.dir, TableName(container)+".bleve")
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	err := indexMapping.AddCustomAnalyzer(TermAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": TermTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			StopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	content := bleve.NewTextFieldMapping()
	content.Analyzer = TermAnalyzerName
	content.Store = false
	keyword := bleve.NewKeywordFieldMapping()
	keyword.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("path", keyword)
	doc.AddFieldMappingsAt("ext", keyword)

	indexMapping.DefaultMapping = doc
	indexMapping.DefaultAnalyzer = TermAnalyzerName
	return indexMapping, nil
}

// validateIndexIntegrity checks index_meta.json before opening so a
// half-written index is cleared instead of failing every query.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// open returns the container's index, creating it on first use.
func (b *bleveBackend) open(container string) (bleve.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx, ok := b.indexes[container]; ok {
		return idx, nil
	}

	path := b.pathFor(container)
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", b.dir, err)
	}
	if err := validateIndexIntegrity(path); err != nil {
		slog.Warn("bleve_index_corrupted", slog.String("path", path), slog.String("error", err.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w", path, err)
		}
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		m, merr := createIndexMapping()
		if merr != nil {
			return nil, merr
		}
		idx, err = bleve.New(path, m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open lexical index: %w", err)
	}
	b.indexes[container] = idx
	return idx, nil
}

func (b *bleveBackend) indexTx(context.Context, *sql.Tx, tables, []lexicalDoc) error { return nil }
func (b *bleveBackend) removeTx(context.Context, *sql.Tx, tables, []int64) error     { return nil }

func (b *bleveBackend) afterCommit(container string, removed []int64, added []lexicalDoc) {
	if len(removed) == 0 && len(added) == 0 {
		return
	}
	if err := b.apply(container, removed, added); err != nil {
		slog.Warn("bleve_write_failed",
			slog.String("container", container),
			slog.String("error", err.Error()))
	}
}

func (b *bleveBackend) apply(container string, removed []int64, added []lexicalDoc) error {
	idx, err := b.open(container)
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	for _, id := range removed {
		batch.Delete(strconv.FormatInt(id, 10))
	}
	for _, d := range added {
		doc := bleveDocument{Content: d.text, Path: d.path, Ext: d.ext}
		if err := batch.Index(strconv.FormatInt(d.id, 10), doc); err != nil {
			return fmt.Errorf("failed to index document %d: %w", d.id, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

func (b *bleveBackend) search(ctx context.Context, _ *Store, container string, _ tables, terms []string, n int, f Filter) ([]scoredID, error) {
	idx, err := b.open(container)
	if err != nil {
		return nil, err
	}

	match := bleve.NewMatchQuery(strings.Join(terms, " "))
	match.SetField("content")
	clauses := []query.Query{match}

	if len(f.Extensions) > 0 {
		var exts []query.Query
		for _, e := range f.Extensions {
			tq := bleve.NewTermQuery(e)
			tq.SetField("ext")
			exts = append(exts, tq)
		}
		clauses = append(clauses, bleve.NewDisjunctionQuery(exts...))
	}
	if f.PathPrefix != "" {
		pq := bleve.NewPrefixQuery(f.PathPrefix)
		pq.SetField("path")
		clauses = append(clauses, pq)
	}

	var q query.Query = match
	if len(clauses) > 1 {
		q = bleve.NewConjunctionQuery(clauses...)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = n
	req.SortBy([]string{"-_score", "_id"})
	result, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := make([]scoredID, 0, len(result.Hits))
	for _, hit := range result.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, scoredID{id: id, score: hit.Score})
	}
	return out, nil
}

// optimize reconciles the bleve index with the rows table when their
// document counts drift apart.
func (b *bleveBackend) optimize(ctx context.Context, s *Store, container string, t tables) error {
	idx, err := b.open(container)
	if err != nil {
		return err
	}
	docCount, err := idx.DocCount()
	if err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}
	var rowCount uint64
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quote(t.rows))).Scan(&rowCount); err != nil {
		return fmt.Errorf("failed to count rows: %w", err)
	}
	if docCount == rowCount {
		return nil
	}

	slog.Info("bleve_reconcile",
		slog.String("container", container),
		slog.Uint64("documents", docCount),
		slog.Uint64("rows", rowCount))

	b.mu.Lock()
	delete(b.indexes, container)
	b.mu.Unlock()
	_ = idx.Close()
	if err := os.RemoveAll(b.pathFor(container)); err != nil {
		return fmt.Errorf("failed to clear lexical index: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, path, ext, text FROM %s ORDER BY id`, quote(t.rows)))
	if err != nil {
		return fmt.Errorf("failed to read rows: %w", err)
	}
	var docs []lexicalDoc
	for rows.Next() {
		var d lexicalDoc
		if err := rows.Scan(&d.id, &d.path, &d.ext, &d.text); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, d)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return err
	}
	return b.apply(container, nil, docs)
}

func (b *bleveBackend) rename(oldName, newName string) error {
	b.mu.Lock()
	if idx, ok := b.indexes[oldName]; ok {
		_ = idx.Close()
		delete(b.indexes, oldName)
	}
	b.mu.Unlock()
	return renameIfExists(b.pathFor(oldName), b.pathFor(newName))
}

func (b *bleveBackend) drop(container string) error {
	b.mu.Lock()
	if idx, ok := b.indexes[container]; ok {
		_ = idx.Close()
		delete(b.indexes, container)
	}
	b.mu.Unlock()
	return os.RemoveAll(b.pathFor(container))
}

func (b *bleveBackend) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for name, idx := range b.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.indexes, name)
	}
	return firstErr
}

func termTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &termTokenizer{}, nil
}

// termTokenizer emits tokenize.Tokenize terms with byte offsets into the
// input.
type termTokenizer struct{}

func (t *termTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	lower := strings.ToLower(text)
	tokens := tokenize.Tokenize(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for i, token := range tokens {
		start := strings.Index(lower[offset:], token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)
		if end > len(text) {
			end = len(text)
		}
		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
		// Camel-case parts overlap their parent word, so only advance past
		// the token start.
		offset = start
	}
	return result
}

func stopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &stopFilter{}, nil
}

type stopFilter struct{}

func (f *stopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if !tokenize.IsStopWord(string(token.Term)) {
			result = append(result, token)
		}
	}
	return result
}
