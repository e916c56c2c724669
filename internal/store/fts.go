package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanfind/internal/tokenize"
)

type lexicalDoc struct {
	id   int64
	path string
	ext  string
	text string
}

// lexicalBackend is the BM25 index behind LexicalSearch. The *Tx methods
// run inside the row transaction; afterCommit lets backends outside SQLite
// catch up once the rows are durable.
type lexicalBackend interface {
	name() string
	indexTx(ctx context.Context, tx *sql.Tx, t tables, docs []lexicalDoc) error
	removeTx(ctx context.Context, tx *sql.Tx, t tables, ids []int64) error
	afterCommit(container string, removed []int64, added []lexicalDoc)
	search(ctx context.Context, s *Store, container string, t tables, terms []string, n int, f Filter) ([]scoredID, error)
	optimize(ctx context.Context, s *Store, container string, t tables) error
	rename(oldName, newName string) error
	drop(container string) error
	close() error
}

type scoredID struct {
	id    int64
	score float64
}

// analyze is the shared text pipeline for every lexical backend: code-aware
// tokens without stop words.
func analyze(text string) []string {
	return tokenize.Terms(text)
}

// ftsBackend stores pre-tokenized content in the container's FTS5 table with
// rowid equal to the row id.
type ftsBackend struct{}

func (ftsBackend) name() string { return BackendSQLite }

func (ftsBackend) indexTx(ctx context.Context, tx *sql.Tx, t tables, docs []lexicalDoc) error {
	if len(docs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (rowid, content) VALUES (?, ?)`, quote(t.fts)))
	if err != nil {
		return fmt.Errorf("failed to prepare FTS statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, d := range docs {
		content := strings.Join(analyze(d.text), " ")
		if _, err := stmt.ExecContext(ctx, d.id, content); err != nil {
			return fmt.Errorf("failed to index row %d: %w", d.id, err)
		}
	}
	return nil
}

func (ftsBackend) removeTx(ctx context.Context, tx *sql.Tx, t tables, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE rowid IN (%s)`, quote(t.fts), placeholders), args...)
	return err
}

func (ftsBackend) afterCommit(string, []int64, []lexicalDoc) {}

// ftsQuery ORs quoted terms. Terms are letter/digit runs, so quoting is
// enough to keep FTS5 syntax out.
func ftsQuery(terms []string) string {
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + term + `"`
	}
	return strings.Join(quoted, " OR ")
}

func (ftsBackend) search(ctx context.Context, s *Store, _ string, t tables, terms []string, n int, f Filter) ([]scoredID, error) {
	where, args := filterClause(f, "r")
	// bm25() is negative with lower meaning better.
	query := fmt.Sprintf(`
		SELECT r.id, bm25(%[1]s) AS score
		FROM %[1]s JOIN %[2]s r ON r.id = %[1]s.rowid
		WHERE %[1]s MATCH ? AND %[3]s
		ORDER BY score, r.id
		LIMIT ?`, quote(t.fts), quote(t.rows), where)

	all := append([]any{ftsQuery(terms)}, args...)
	all = append(all, n)

	rows, err := s.db.QueryContext(ctx, query, all...)
	if err != nil {
		// Invalid match expressions count as no results.
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []scoredID
	for rows.Next() {
		var h scoredID
		if err := rows.Scan(&h.id, &h.score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		h.score = -h.score
		out = append(out, h)
	}
	return out, rows.Err()
}

func (ftsBackend) optimize(ctx context.Context, s *Store, _ string, t tables) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %[1]s(%[1]s) VALUES('optimize')`, quote(t.fts)))
	return err
}

func (ftsBackend) rename(string, string) error { return nil }
func (ftsBackend) drop(string) error           { return nil }
func (ftsBackend) close() error                { return nil }

// LexicalSearch returns the top n rows for query by BM25. Stop words are
// removed first; a query of only stop words returns nothing.
func (s *Store) LexicalSearch(ctx context.Context, container, query string, n int, f Filter) ([]Hit, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	t, err := s.requireContainer(ctx, container)
	if err != nil {
		return nil, err
	}
	f = f.normalized()
	terms := analyze(query)
	if len(terms) == 0 || n <= 0 {
		return []Hit{}, nil
	}

	scored, err := s.lexical.search(ctx, s, container, t, terms, n, f)
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return []Hit{}, nil
	}

	ids := make([]int64, len(scored))
	for i, h := range scored {
		ids[i] = h.id
	}
	resolved, err := s.rowsByID(ctx, t, ids, false)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(scored))
	for _, h := range scored {
		row, ok := resolved[h.id]
		if !ok || !f.Match(row.Path) {
			continue
		}
		hits = append(hits, Hit{Row: row, Score: h.score})
	}
	return hits, nil
}
