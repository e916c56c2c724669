package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getState(ctx context.Context, q queryer, container, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx,
		`SELECT value FROM store_state WHERE container = ? AND key = ?`, container, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read state %s: %w", key, err)
	}
	return value, nil
}

func getStateInt(ctx context.Context, q queryer, container, key string) (int64, error) {
	v, err := getState(ctx, q, container, key)
	if err != nil || v == "" {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid state %s=%q: %w", key, v, err)
	}
	return n, nil
}

func setState(ctx context.Context, e execer, container, key, value string) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO store_state (container, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(container, key) DO UPDATE SET value = excluded.value`,
		container, key, value)
	if err != nil {
		return fmt.Errorf("failed to write state %s: %w", key, err)
	}
	return nil
}

func addMutations(ctx context.Context, e execer, container string, n int) error {
	if n == 0 {
		return nil
	}
	_, err := e.ExecContext(ctx,
		`INSERT INTO store_state (container, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(container, key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + ? AS TEXT)`,
		container, stateMutations, strconv.Itoa(n), n)
	if err != nil {
		return fmt.Errorf("failed to count mutations: %w", err)
	}
	return nil
}

// CheckModel compares the stored model and width with the current
// embedder's. A container with no stored model is never stale.
func (s *Store) CheckModel(ctx context.Context, container, model string, dims int) (ModelState, error) {
	if err := s.checkOpen(); err != nil {
		return ModelState{}, err
	}
	storedModel, err := getState(ctx, s.db, container, stateModel)
	if err != nil {
		return ModelState{}, err
	}
	storedDims, err := getStateInt(ctx, s.db, container, stateDims)
	if err != nil {
		return ModelState{}, err
	}

	state := ModelState{Model: storedModel, Dims: int(storedDims)}
	if storedDims != 0 && int(storedDims) != dims {
		state.Stale = true
	}
	if storedModel != "" && storedModel != model {
		state.Stale = true
	}
	return state, nil
}

// SetModel records the model that produced the container's vectors. It is
// called after a pass that re-embedded everything.
func (s *Store) SetModel(ctx context.Context, container, model string, dims int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prevDims, err := getStateInt(ctx, tx, container, stateDims)
	if err != nil {
		return err
	}
	if err := setState(ctx, tx, container, stateModel, model); err != nil {
		return err
	}
	if err := setState(ctx, tx, container, stateDims, strconv.Itoa(dims)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit model: %w", err)
	}

	// A width change invalidates the graph.
	if prevDims != 0 && int(prevDims) != dims {
		s.mu.Lock()
		delete(s.graphs, container)
		s.mu.Unlock()
		s.removeANN(container)
	}
	return nil
}

// StoredDims returns the container's recorded vector width, or 0.
func (s *Store) StoredDims(ctx context.Context, container string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	n, err := getStateInt(ctx, s.db, container, stateDims)
	return int(n), err
}

// LastRebuild returns when the ANN graph was last built, or zero.
func (s *Store) LastRebuild(ctx context.Context, container string) (time.Time, error) {
	n, err := getStateInt(ctx, s.db, container, stateLastRebuild)
	if err != nil || n == 0 {
		return time.Time{}, err
	}
	return time.Unix(0, n), nil
}
