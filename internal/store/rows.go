package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

// encodeVector packs v as little-endian float32.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

func encodeExtra(extra map[string]string) string {
	if len(extra) == 0 {
		return "{}"
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func decodeExtra(s string) map[string]string {
	if s == "" || s == "{}" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// Upsert replaces every row for file.Path with rows in one transaction and
// marks the file indexed. Row IDs are assigned here.
func (s *Store) Upsert(ctx context.Context, container string, file File, rows []Row) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	t, err := s.requireContainer(ctx, container)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return amerrors.StoreError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	oldIDs, err := rowIDsForPath(ctx, tx, t, file.Path)
	if err != nil {
		return err
	}
	if err := s.lexical.removeTx(ctx, tx, t, oldIDs); err != nil {
		return amerrors.StoreError("failed to remove lexical entries", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE path = ?`, quote(t.rows)), file.Path); err != nil {
		return amerrors.StoreError("failed to delete prior rows", err)
	}

	insert, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (path, ordinal, ext, text, vector, mtime, start_byte, end_byte, start_line, end_line, heading, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, quote(t.rows)))
	if err != nil {
		return amerrors.StoreError("failed to prepare insert", err)
	}
	defer func() { _ = insert.Close() }()

	ext := extOf(file.Path)
	mtime := file.MTime.UnixNano()
	docs := make([]lexicalDoc, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		res, err := insert.ExecContext(ctx, file.Path, r.Ordinal, ext, r.Text, encodeVector(r.Vector), mtime,
			r.StartByte, r.EndByte, r.StartLine, r.EndLine, r.Heading, encodeExtra(r.Extra))
		if err != nil {
			return amerrors.StoreError(fmt.Sprintf("failed to insert row %s#%d", file.Path, r.Ordinal), err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return amerrors.StoreError("failed to read row id", err)
		}
		r.ID = id
		r.Path = file.Path
		r.MTime = file.MTime
		docs = append(docs, lexicalDoc{id: id, path: file.Path, ext: ext, text: r.Text})
	}

	if err := s.lexical.indexTx(ctx, tx, t, docs); err != nil {
		return amerrors.StoreError("failed to index lexical entries", err)
	}

	now := time.Now().UnixNano()
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (path, mtime, size, chunks, category, status, indexed_at, deleted_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, '')
		ON CONFLICT(path) DO UPDATE SET
			mtime = excluded.mtime, size = excluded.size, chunks = excluded.chunks,
			category = excluded.category, status = excluded.status,
			indexed_at = excluded.indexed_at, deleted_at = 0, error = ''`, quote(t.files)),
		file.Path, mtime, file.Size, len(rows), file.Category, string(StatusIndexed), now); err != nil {
		return amerrors.StoreError("failed to record file", err)
	}

	if err := addMutations(ctx, tx, container, len(oldIDs)+len(rows)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return amerrors.StoreError("failed to commit upsert", err)
	}

	s.lexical.afterCommit(container, oldIDs, docs)
	return nil
}

// DeletePath removes every row for path and turns its file record into a
// tombstone.
func (s *Store) DeletePath(ctx context.Context, container, path string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	t, err := s.requireContainer(ctx, container)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return amerrors.StoreError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	oldIDs, err := rowIDsForPath(ctx, tx, t, path)
	if err != nil {
		return err
	}
	if err := s.lexical.removeTx(ctx, tx, t, oldIDs); err != nil {
		return amerrors.StoreError("failed to remove lexical entries", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE path = ?`, quote(t.rows)), path); err != nil {
		return amerrors.StoreError("failed to delete rows", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (path, mtime, status, deleted_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT(path) DO UPDATE SET status = excluded.status, chunks = 0, deleted_at = excluded.deleted_at`,
		quote(t.files)), path, string(StatusDeleted), time.Now().UnixNano()); err != nil {
		return amerrors.StoreError("failed to tombstone file", err)
	}
	if err := addMutations(ctx, tx, container, len(oldIDs)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return amerrors.StoreError("failed to commit delete", err)
	}

	s.lexical.afterCommit(container, oldIDs, nil)
	return nil
}

func rowIDsForPath(ctx context.Context, tx *sql.Tx, t tables, path string) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE path = ?`, quote(t.rows)), path)
	if err != nil {
		return nil, amerrors.StoreError("failed to query row ids", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const rowColumns = `id, path, ordinal, text, vector, mtime, start_byte, end_byte, start_line, end_line, heading, extra`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(sc rowScanner, withVector bool) (Row, error) {
	var (
		r      Row
		vec    []byte
		mtime  int64
		extras string
	)
	if err := sc.Scan(&r.ID, &r.Path, &r.Ordinal, &r.Text, &vec, &mtime,
		&r.StartByte, &r.EndByte, &r.StartLine, &r.EndLine, &r.Heading, &extras); err != nil {
		return Row{}, fmt.Errorf("failed to scan row: %w", err)
	}
	if withVector {
		r.Vector = decodeVector(vec)
	}
	r.MTime = time.Unix(0, mtime)
	r.Extra = decodeExtra(extras)
	return r, nil
}

// ChunksForPath returns the rows of path in ordinal order, with vectors.
func (s *Store) ChunksForPath(ctx context.Context, container, path string) ([]Row, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	t, err := s.requireContainer(ctx, container)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE path = ? ORDER BY ordinal`, rowColumns, quote(t.rows)), path)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// rowsByID loads rows for ids. Missing ids are skipped.
func (s *Store) rowsByID(ctx context.Context, t tables, ids []int64, withVector bool) (map[int64]Row, error) {
	out := make(map[int64]Row, len(ids))
	const batch = 500
	for start := 0; start < len(ids); start += batch {
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT %s FROM %s WHERE id IN (%s)`, rowColumns, quote(t.rows), placeholders), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve rows: %w", err)
		}
		for rows.Next() {
			r, err := scanRow(rows, withVector)
			if err != nil {
				_ = rows.Close()
				return nil, err
			}
			out[r.ID] = r
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// filterClause renders f as a SQL predicate over the rows table alias.
func filterClause(f Filter, alias string) (string, []any) {
	var parts []string
	var args []any
	if exts := NormalizeExtensions(f.Extensions); len(exts) > 0 {
		parts = append(parts, fmt.Sprintf("%s.ext IN (%s)", alias,
			strings.TrimSuffix(strings.Repeat("?,", len(exts)), ",")))
		for _, e := range exts {
			args = append(args, e)
		}
	}
	if f.PathPrefix != "" {
		parts = append(parts, fmt.Sprintf("substr(%s.path, 1, ?) = ?", alias))
		args = append(args, len([]rune(f.PathPrefix)), f.PathPrefix)
	}
	if len(parts) == 0 {
		return "1=1", nil
	}
	return strings.Join(parts, " AND "), args
}
