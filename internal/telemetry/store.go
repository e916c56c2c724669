package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	dateLayout = "2006-01-02"

	// maxZeroResults bounds the persisted zero-result queries.
	maxZeroResults = 100
)

// SQLiteStore persists telemetry in tables beside the index metadata.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the telemetry tables in db if needed. The store
// does not own db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if err := InitSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// InitSchema creates the telemetry tables.
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_kind_stats (
		date TEXT NOT NULL,
		kind TEXT NOT NULL,
		queries INTEGER NOT NULL DEFAULT 0,
		zero_results INTEGER NOT NULL DEFAULT 0,
		repeats INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, kind)
	);

	CREATE TABLE IF NOT EXISTS query_terms (
		term TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 0,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

	CREATE TABLE IF NOT EXISTS zero_result_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		container TEXT NOT NULL,
		query TEXT NOT NULL,
		at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS query_latency_stats (
		date TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// AddKindCounts adds to the day's per-kind counters.
func (s *SQLiteStore) AddKindCounts(ctx context.Context, date string, counts map[Kind]KindCount) error {
	if len(counts) == 0 {
		return nil
	}
	return s.inTx(ctx, `
		INSERT INTO query_kind_stats (date, kind, queries, zero_results, repeats)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date, kind) DO UPDATE SET
			queries = queries + excluded.queries,
			zero_results = zero_results + excluded.zero_results,
			repeats = repeats + excluded.repeats
	`, func(stmt *sql.Stmt) error {
		for k, c := range counts {
			if _, err := stmt.ExecContext(ctx, date, string(k), c.Queries, c.ZeroResults, c.Repeats); err != nil {
				return fmt.Errorf("add kind count: %w", err)
			}
		}
		return nil
	})
}

// AddLatencyCounts adds to the day's latency histogram.
func (s *SQLiteStore) AddLatencyCounts(ctx context.Context, date string, counts map[LatencyBucket]int64) error {
	if len(counts) == 0 {
		return nil
	}
	return s.inTx(ctx, `
		INSERT INTO query_latency_stats (date, bucket, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count
	`, func(stmt *sql.Stmt) error {
		for b, n := range counts {
			if _, err := stmt.ExecContext(ctx, date, string(b), n); err != nil {
				return fmt.Errorf("add latency count: %w", err)
			}
		}
		return nil
	})
}

// AddTermCounts adds to the term frequency table.
func (s *SQLiteStore) AddTermCounts(ctx context.Context, terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}
	return s.inTx(ctx, `
		INSERT INTO query_terms (term, count, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(term) DO UPDATE SET
			count = count + excluded.count,
			last_seen = CURRENT_TIMESTAMP
	`, func(stmt *sql.Stmt) error {
		for t, n := range terms {
			if _, err := stmt.ExecContext(ctx, t, n); err != nil {
				return fmt.Errorf("add term count: %w", err)
			}
		}
		return nil
	})
}

// AddZeroResults appends queries and trims the table to the newest
// maxZeroResults rows.
func (s *SQLiteStore) AddZeroResults(ctx context.Context, queries []ZeroResult) error {
	if len(queries) == 0 {
		return nil
	}
	err := s.inTx(ctx, `
		INSERT INTO zero_result_queries (container, query, at) VALUES (?, ?, ?)
	`, func(stmt *sql.Stmt) error {
		for _, q := range queries {
			if _, err := stmt.ExecContext(ctx, q.Container, q.Query, q.At.UnixNano()); err != nil {
				return fmt.Errorf("insert zero-result query: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM zero_result_queries
		WHERE id NOT IN (
			SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?
		)
	`, maxZeroResults)
	if err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}
	return nil
}

// Report aggregates the days from..to inclusive. Term counts are
// all-time; zero-result queries are filtered to the window.
func (s *SQLiteStore) Report(ctx context.Context, from, to string, limit int) (*Snapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	start, err := time.ParseInLocation(dateLayout, from, time.Local)
	if err != nil {
		return nil, fmt.Errorf("parse from date: %w", err)
	}
	snap := &Snapshot{
		Kinds:       make(map[Kind]KindCount),
		Latency:     make(map[LatencyBucket]int64),
		TopTerms:    []TermCount{},
		ZeroResults: []ZeroResult{},
		Since:       start,
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, SUM(queries), SUM(zero_results), SUM(repeats)
		FROM query_kind_stats
		WHERE date >= ? AND date <= ?
		GROUP BY kind
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query kind counts: %w", err)
	}
	err = scanRows(rows, func() error {
		var k string
		var c KindCount
		if err := rows.Scan(&k, &c.Queries, &c.ZeroResults, &c.Repeats); err != nil {
			return err
		}
		snap.Kinds[Kind(k)] = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT bucket, SUM(count)
		FROM query_latency_stats
		WHERE date >= ? AND date <= ?
		GROUP BY bucket
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}
	err = scanRows(rows, func() error {
		var b string
		var n int64
		if err := rows.Scan(&b, &n); err != nil {
			return err
		}
		snap.Latency[LatencyBucket(b)] = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT term, count FROM query_terms ORDER BY count DESC, term LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	err = scanRows(rows, func() error {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return err
		}
		snap.TopTerms = append(snap.TopTerms, tc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT container, query, at FROM zero_result_queries
		WHERE at >= ?
		ORDER BY id DESC LIMIT ?
	`, start.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	err = scanRows(rows, func() error {
		var zr ZeroResult
		var at int64
		if err := rows.Scan(&zr.Container, &zr.Query, &at); err != nil {
			return err
		}
		zr.At = time.Unix(0, at)
		snap.ZeroResults = append(snap.ZeroResults, zr)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SQLiteStore) inTx(ctx context.Context, query string, fn func(*sql.Stmt) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	if err := fn(stmt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanRows(rows *sql.Rows, scan func() error) error {
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := scan(); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
	}
	return rows.Err()
}
