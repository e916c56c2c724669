package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

const dbFileName = "index.db"

// Options configures a Store.
type Options struct {
	// LexicalBackend is "sqlite" (FTS5, default) or "bleve".
	LexicalBackend string

	// MaterializationThreshold is the row count at which the ANN graph is
	// built. Zero means DefaultMaterializationThreshold.
	MaterializationThreshold int
}

// Store is the per-data-directory index store. It is safe for concurrent
// use; writes are serialized through a single SQLite connection.
type Store struct {
	db      *sql.DB
	dataDir string
	opts    Options
	lexical lexicalBackend

	mu     sync.RWMutex
	graphs map[string]*annIndex
	closed bool
}

// Open opens or creates the store under dataDir.
func Open(dataDir string, opts Options) (*Store, error) {
	if opts.MaterializationThreshold <= 0 {
		opts.MaterializationThreshold = DefaultMaterializationThreshold
	}
	if opts.LexicalBackend == "" {
		opts.LexicalBackend = BackendSQLite
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dataDir, err)
	}

	db, err := openDB(filepath.Join(dataDir, dbFileName))
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:      db,
		dataDir: dataDir,
		opts:    opts,
		graphs:  make(map[string]*annIndex),
	}

	switch opts.LexicalBackend {
	case BackendSQLite:
		s.lexical = &ftsBackend{}
	case BackendBleve:
		s.lexical = newBleveBackend(filepath.Join(dataDir, "lexical"))
	default:
		_ = db.Close()
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: sqlite, bleve)", opts.LexicalBackend)
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores most DSN params, so pragmas are set here.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	return db, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);
	CREATE TABLE IF NOT EXISTS store_state (
		container TEXT NOT NULL,
		key       TEXT NOT NULL,
		value     TEXT NOT NULL,
		PRIMARY KEY (container, key)
	);
	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`)
	return err
}

// DataDir returns the store directory.
func (s *Store) DataDir() string { return s.dataDir }

// DB exposes the metadata database for tables owned by other packages.
// Callers must not close it.
func (s *Store) DB() *sql.DB { return s.db }

// Backend returns the lexical backend name.
func (s *Store) Backend() string { return s.lexical.name() }

// Threshold returns the ANN materialization threshold.
func (s *Store) Threshold() int { return s.opts.MaterializationThreshold }

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close checkpoints the WAL and closes the database and lexical backend.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.graphs = nil
	s.mu.Unlock()

	var errs []string
	if err := s.lexical.close(); err != nil {
		errs = append(errs, err.Error())
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err := s.db.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close store: %s", strings.Join(errs, "; "))
	}
	return nil
}

// HasContainer reports whether the container's tables exist.
func (s *Store) HasContainer(ctx context.Context, container string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	return tableExists(ctx, s.db, tablesFor(container).rows)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tableExists(ctx context.Context, q queryer, name string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query schema: %w", err)
	}
	return count > 0, nil
}

// CreateContainer creates the container's tables. It fails with
// ErrContainerExists if they already exist.
func (s *Store) CreateContainer(ctx context.Context, container string) error {
	ok, err := s.HasContainer(ctx, container)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrContainerExists, container)
	}
	return s.EnsureContainer(ctx, container)
}

// EnsureContainer creates the container's tables if needed.
func (s *Store) EnsureContainer(ctx context.Context, container string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	t := tablesFor(container)
	stmt := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		path       TEXT NOT NULL,
		ordinal    INTEGER NOT NULL,
		ext        TEXT NOT NULL,
		text       TEXT NOT NULL,
		vector     BLOB,
		mtime      INTEGER NOT NULL,
		start_byte INTEGER NOT NULL,
		end_byte   INTEGER NOT NULL,
		start_line INTEGER NOT NULL,
		end_line   INTEGER NOT NULL,
		heading    TEXT NOT NULL DEFAULT '',
		extra      TEXT NOT NULL DEFAULT '{}',
		UNIQUE (path, ordinal)
	);
	CREATE TABLE IF NOT EXISTS %[2]s (
		path       TEXT PRIMARY KEY,
		mtime      INTEGER NOT NULL,
		size       INTEGER NOT NULL DEFAULT 0,
		chunks     INTEGER NOT NULL DEFAULT 0,
		category   TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL,
		indexed_at INTEGER NOT NULL DEFAULT 0,
		deleted_at INTEGER NOT NULL DEFAULT 0,
		error      TEXT NOT NULL DEFAULT ''
	);
	CREATE VIRTUAL TABLE IF NOT EXISTS %[3]s USING fts5(
		content,
		tokenize='unicode61'
	);`, quote(t.rows), quote(t.files), quote(t.fts))

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create container %s: %w", container, err)
	}
	return nil
}

// RenameContainer renames the container's tables, state and derivative
// files.
func (s *Store) RenameContainer(ctx context.Context, oldName, newName string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	from, to := tablesFor(oldName), tablesFor(newName)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	exists, err := tableExists(ctx, tx, from.rows)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, oldName)
	}
	taken, err := tableExists(ctx, tx, to.rows)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: %s", ErrContainerExists, newName)
	}

	for _, pair := range [][2]string{{from.rows, to.rows}, {from.files, to.files}, {from.fts, to.fts}} {
		stmt := fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, quote(pair[0]), quote(pair[1]))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to rename %s: %w", pair[0], err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE store_state SET container = ? WHERE container = ?`, newName, oldName); err != nil {
		return fmt.Errorf("failed to rename state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rename: %w", err)
	}

	s.mu.Lock()
	delete(s.graphs, oldName)
	s.mu.Unlock()

	if err := renameIfExists(s.annPath(oldName), s.annPath(newName)); err != nil {
		slog.Warn("ann_rename_failed", slog.String("container", oldName), slog.String("error", err.Error()))
	}
	if err := renameIfExists(s.annPath(oldName)+metaSuffix, s.annPath(newName)+metaSuffix); err != nil {
		slog.Warn("ann_meta_rename_failed", slog.String("container", oldName), slog.String("error", err.Error()))
	}
	if err := s.lexical.rename(oldName, newName); err != nil {
		slog.Warn("lexical_rename_failed", slog.String("container", oldName), slog.String("error", err.Error()))
	}

	slog.Info("container_renamed", slog.String("from", oldName), slog.String("to", newName))
	return nil
}

// DropContainer removes the container's tables, state and derivative files
// in one transaction.
func (s *Store) DropContainer(ctx context.Context, container string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	t := tablesFor(container)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, name := range []string{t.fts, t.files, t.rows} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quote(name))); err != nil {
			return fmt.Errorf("failed to drop %s: %w", name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM store_state WHERE container = ?`, container); err != nil {
		return fmt.Errorf("failed to drop state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit drop: %w", err)
	}

	s.mu.Lock()
	delete(s.graphs, container)
	s.mu.Unlock()

	s.removeANN(container)
	if err := s.lexical.drop(container); err != nil {
		slog.Warn("lexical_drop_failed", slog.String("container", container), slog.String("error", err.Error()))
	}

	slog.Info("container_dropped", slog.String("container", container))
	return nil
}

func renameIfExists(from, to string) error {
	if _, err := os.Stat(from); os.IsNotExist(err) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	return os.Rename(from, to)
}

// requireContainer returns ErrContainerNotFound if the tables are missing.
func (s *Store) requireContainer(ctx context.Context, container string) (tables, error) {
	t := tablesFor(container)
	ok, err := tableExists(ctx, s.db, t.rows)
	if err != nil {
		return t, err
	}
	if !ok {
		return t, fmt.Errorf("%w: %s", ErrContainerNotFound, container)
	}
	return t, nil
}
