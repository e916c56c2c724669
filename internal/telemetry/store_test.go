package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	st, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return st
}

func TestSQLiteStore_KindCountsAccumulate(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	// Given two flushes on one day and one on the next
	require.NoError(t, st.AddKindCounts(ctx, "2026-10-01", map[Kind]KindCount{
		KindSearch: {Queries: 5, ZeroResults: 1, Repeats: 2},
	}))
	require.NoError(t, st.AddKindCounts(ctx, "2026-10-01", map[Kind]KindCount{
		KindSearch:  {Queries: 3},
		KindRelated: {Queries: 1},
	}))
	require.NoError(t, st.AddKindCounts(ctx, "2026-10-02", map[Kind]KindCount{
		KindSearch: {Queries: 10},
	}))

	// When reporting only the first day
	snap, err := st.Report(ctx, "2026-10-01", "2026-10-01", 10)
	require.NoError(t, err)

	// Then both flushes are summed and the second day is excluded
	assert.Equal(t, KindCount{Queries: 8, ZeroResults: 1, Repeats: 2}, snap.Kinds[KindSearch])
	assert.Equal(t, KindCount{Queries: 1}, snap.Kinds[KindRelated])
	assert.Equal(t, int64(9), snap.Total())

	snap, err = st.Report(ctx, "2026-10-01", "2026-10-02", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(18), snap.Kinds[KindSearch].Queries)
}

func TestSQLiteStore_LatencyCounts(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.AddLatencyCounts(ctx, "2026-10-01", map[LatencyBucket]int64{BucketP10: 4, BucketP500: 1}))
	require.NoError(t, st.AddLatencyCounts(ctx, "2026-10-01", map[LatencyBucket]int64{BucketP10: 1}))

	snap, err := st.Report(ctx, "2026-10-01", "2026-10-01", 10)
	require.NoError(t, err)

	assert.Equal(t, int64(5), snap.Latency[BucketP10])
	assert.Equal(t, int64(1), snap.Latency[BucketP500])
	assert.Zero(t, snap.Latency[BucketP1000])
}

func TestSQLiteStore_TopTermsOrderedAndLimited(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.AddTermCounts(ctx, map[string]int64{"invoice": 3, "march": 1, "budget": 2}))
	require.NoError(t, st.AddTermCounts(ctx, map[string]int64{"march": 5}))

	snap, err := st.Report(ctx, "2026-10-01", "2026-10-01", 2)
	require.NoError(t, err)

	assert.Equal(t, []TermCount{{Term: "march", Count: 6}, {Term: "invoice", Count: 3}}, snap.TopTerms)
}

func TestSQLiteStore_ZeroResultsTrimmedAndWindowed(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	// Given an old miss and more recent misses than the table keeps
	require.NoError(t, st.AddZeroResults(ctx, []ZeroResult{
		{Container: "Default", Query: "ancient", At: now.AddDate(0, 0, -30)},
	}))
	var batch []ZeroResult
	for i := 0; i < maxZeroResults+5; i++ {
		batch = append(batch, ZeroResult{Container: "Work", Query: fmt.Sprintf("miss-%d", i), At: now})
	}
	require.NoError(t, st.AddZeroResults(ctx, batch))

	var rows int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM zero_result_queries`).Scan(&rows))
	assert.Equal(t, maxZeroResults, rows)

	// When reporting today
	today := now.Format(dateLayout)
	snap, err := st.Report(ctx, today, today, 3)
	require.NoError(t, err)

	// Then the newest misses come first
	require.Len(t, snap.ZeroResults, 3)
	assert.Equal(t, fmt.Sprintf("miss-%d", maxZeroResults+4), snap.ZeroResults[0].Query)
	assert.Equal(t, "Work", snap.ZeroResults[0].Container)
}

func TestSQLiteStore_ReportEmpty(t *testing.T) {
	st := setupTestStore(t)

	snap, err := st.Report(context.Background(), "2026-10-01", "2026-10-07", 0)
	require.NoError(t, err)

	assert.Equal(t, int64(0), snap.Total())
	assert.Empty(t, snap.TopTerms)
	assert.Empty(t, snap.ZeroResults)
	assert.Equal(t, "2026-10-01", snap.Since.Format(dateLayout))
}

func TestSQLiteStore_ReportRejectsBadDate(t *testing.T) {
	st := setupTestStore(t)

	_, err := st.Report(context.Background(), "yesterday", "today", 10)
	assert.Error(t, err)
}

func TestMetrics_ReportReadsThroughStore(t *testing.T) {
	st := setupTestStore(t)
	m := New(st, Config{FlushInterval: 0})
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Container: "Default", Kind: KindSearch, Query: "quarterly budget", ResultCount: 0, Latency: 12 * time.Millisecond})
	m.Record(QueryEvent{Container: "Default", Kind: KindSearch, Query: "quarterly budget", ResultCount: 0, Latency: 12 * time.Millisecond})

	snap, err := m.Report(context.Background(), 7, 10)
	require.NoError(t, err)

	assert.Equal(t, KindCount{Queries: 2, ZeroResults: 2, Repeats: 1}, snap.Kinds[KindSearch])
	assert.Equal(t, int64(2), snap.Latency[BucketP50])
	assert.Len(t, snap.ZeroResults, 2)
	assert.ElementsMatch(t, []TermCount{{Term: "quarterly", Count: 2}, {Term: "budget", Count: 2}}, snap.TopTerms)
}
