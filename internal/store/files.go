package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

const fileColumns = `path, mtime, size, chunks, category, status, indexed_at, deleted_at, error`

func scanFile(sc rowScanner) (FileRecord, error) {
	var (
		f                           FileRecord
		mtime, indexedAt, deletedAt int64
		status                      string
	)
	if err := sc.Scan(&f.Path, &mtime, &f.Size, &f.Chunks, &f.Category, &status,
		&indexedAt, &deletedAt, &f.Error); err != nil {
		return FileRecord{}, fmt.Errorf("failed to scan file: %w", err)
	}
	f.Status = FileStatus(status)
	f.MTime = time.Unix(0, mtime)
	if indexedAt != 0 {
		f.IndexedAt = time.Unix(0, indexedAt)
	}
	if deletedAt != 0 {
		f.DeletedAt = time.Unix(0, deletedAt)
	}
	return f, nil
}

func (s *Store) queryFiles(ctx context.Context, container, where string, args ...any) ([]FileRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	t, err := s.requireContainer(ctx, container)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s ORDER BY path`, fileColumns, quote(t.files), where), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FileStates returns path → mtime for every indexed file. Failed files are
// absent so the next pass retries them.
func (s *Store) FileStates(ctx context.Context, container string) (map[string]time.Time, error) {
	files, err := s.queryFiles(ctx, container, `status = ?`, string(StatusIndexed))
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(files))
	for _, f := range files {
		out[f.Path] = f.MTime
	}
	return out, nil
}

// TrackedPaths returns every path with rows or a failure record, which is
// the set delta reconciliation compares against the walk.
func (s *Store) TrackedPaths(ctx context.Context, container string) ([]string, error) {
	files, err := s.queryFiles(ctx, container, `status != ?`, string(StatusDeleted))
	if err != nil {
		return nil, err
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out, nil
}

// ListFiles returns indexed files sorted by path, optionally restricted to
// a path prefix and a set of extensions.
func (s *Store) ListFiles(ctx context.Context, container, prefix string, exts []string) ([]FileRecord, error) {
	files, err := s.queryFiles(ctx, container, `status = ?`, string(StatusIndexed))
	if err != nil {
		return nil, err
	}
	f := Filter{Extensions: exts, PathPrefix: prefix}.normalized()
	out := make([]FileRecord, 0, len(files))
	for _, file := range files {
		if f.Match(file.Path) {
			out = append(out, file)
		}
	}
	return out, nil
}

// FilesSince returns indexed files whose mtime is at or after since, and
// tombstones whose deletion time is at or after since.
func (s *Store) FilesSince(ctx context.Context, container string, since time.Time) (changed, deleted []FileRecord, err error) {
	cutoff := since.UnixNano()
	changed, err = s.queryFiles(ctx, container, `status = ? AND mtime >= ?`, string(StatusIndexed), cutoff)
	if err != nil {
		return nil, nil, err
	}
	deleted, err = s.queryFiles(ctx, container, `status = ? AND deleted_at >= ?`, string(StatusDeleted), cutoff)
	if err != nil {
		return nil, nil, err
	}
	return changed, deleted, nil
}

// FailedFiles returns files whose last attempt failed.
func (s *Store) FailedFiles(ctx context.Context, container string) ([]FileRecord, error) {
	return s.queryFiles(ctx, container, `status = ?`, string(StatusFailed))
}

// MarkFailed records a failed attempt for path. Rows from an earlier
// successful pass are kept, so the file stays searchable.
func (s *Store) MarkFailed(ctx context.Context, container, path string, mtime time.Time, reason string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	t, err := s.requireContainer(ctx, container)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (path, mtime, status, error)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET mtime = excluded.mtime, status = excluded.status,
			deleted_at = 0, error = excluded.error`, quote(t.files)),
		path, mtime.UnixNano(), string(StatusFailed), truncateError(reason))
	if err != nil {
		return amerrors.StoreError("failed to record failure", err)
	}
	return nil
}

func truncateError(s string) string {
	const max = 500
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Stats summarizes a container. A container without tables reports
// HasIndex false rather than an error.
func (s *Store) Stats(ctx context.Context, container string) (Stats, error) {
	if err := s.checkOpen(); err != nil {
		return Stats{}, err
	}
	t := tablesFor(container)
	ok, err := tableExists(ctx, s.db, t.rows)
	if err != nil || !ok {
		return Stats{}, err
	}

	var st Stats
	st.HasIndex = true
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'indexed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'deleted' THEN 1 ELSE 0 END), 0)
		FROM %s`, quote(t.files))).Scan(&st.Files, &st.Failed, &st.Deleted); err != nil {
		return Stats{}, fmt.Errorf("failed to count files: %w", err)
	}
	if st.Chunks, err = s.rowCount(ctx, t); err != nil {
		return Stats{}, err
	}
	graph, err := s.graphFor(container)
	if err != nil {
		return Stats{}, err
	}
	st.HasGraph = graph != nil
	return st, nil
}
