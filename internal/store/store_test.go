package store

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func file(path string, mtime time.Time) File {
	return File{Path: path, MTime: mtime, Size: 10, Category: "text"}
}

func upsertText(t *testing.T, s *Store, container, path string, vec []float32, texts ...string) []Row {
	t.Helper()
	rows := make([]Row, len(texts))
	for i, text := range texts {
		rows[i] = Row{Ordinal: i, Text: text, Vector: vec, EndByte: len(text), StartLine: 1, EndLine: 1}
	}
	require.NoError(t, s.Upsert(context.Background(), container, file(path, time.Unix(100, 0)), rows))
	return rows
}

// spread returns distinct unit-ish vectors on a 4-dim spiral.
func spread(i int) []float32 {
	a := float64(i) * 0.35
	return []float32{float32(math.Cos(a)), float32(math.Sin(a)), float32(i) * 0.05, 0.5}
}

func TestTableName_InjectiveAndUnderscoreFree(t *testing.T) {
	names := []string{"Default", "default", "a_b", "a-b", "a.b", "ab", "x", "x0078", "y", "Docs 2", "日本", "😀", "a_files"}
	seen := make(map[string]string)
	for _, n := range names {
		got := TableName(n)
		require.True(t, strings.HasPrefix(got, "c_"))
		assert.NotContains(t, got[2:], "_", "escaped name must not contain underscore: %s", n)
		if prev, ok := seen[got]; ok {
			t.Fatalf("TableName(%q) collides with TableName(%q): %s", n, prev, got)
		}
		seen[got] = n
	}
}

func TestStore_UpsertReplacesRows(t *testing.T) {
	// Given: a file with three chunks
	s := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.EnsureContainer(ctx, "Default"))
	first := upsertText(t, s, "Default", "/docs/a.md", spread(1), "one", "two", "three")

	// When: the file is rewritten with one chunk
	second := upsertText(t, s, "Default", "/docs/a.md", spread(2), "replacement")

	// Then: only the new row remains, with a fresh id
	rows, err := s.ChunksForPath(ctx, "Default", "/docs/a.md")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "replacement", rows[0].Text)
	assert.Equal(t, second[0].ID, rows[0].ID)
	assert.Greater(t, rows[0].ID, first[2].ID)
	assert.Len(t, rows[0].Vector, 4)

	st, err := s.Stats(ctx, "Default")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Files)
	assert.Equal(t, 1, st.Chunks)
	assert.True(t, st.HasIndex)
}

func TestStore_DeletePathTombstones(t *testing.T) {
	// Given: two indexed files
	s := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.EnsureContainer(ctx, "Default"))
	upsertText(t, s, "Default", "/docs/a.md", spread(1), "alpha")
	upsertText(t, s, "Default", "/docs/b.md", spread(2), "beta")
	before := time.Now().Add(-time.Second)

	// When: one is deleted
	require.NoError(t, s.DeletePath(ctx, "Default", "/docs/a.md"))

	// Then: its rows are gone and it is reported as a tombstone
	rows, err := s.ChunksForPath(ctx, "Default", "/docs/a.md")
	require.NoError(t, err)
	assert.Empty(t, rows)

	states, err := s.FileStates(ctx, "Default")
	require.NoError(t, err)
	assert.NotContains(t, states, "/docs/a.md")
	assert.Contains(t, states, "/docs/b.md")

	_, deleted, err := s.FilesSince(ctx, "Default", before)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "/docs/a.md", deleted[0].Path)
	assert.Equal(t, StatusDeleted, deleted[0].Status)

	hits, err := s.LexicalSearch(ctx, "Default", "alpha", 10, Filter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_LexicalSearch(t *testing.T) {
	for _, backend := range []string{BackendSQLite, BackendBleve} {
		t.Run(backend, func(t *testing.T) {
			// Given: a code file and a markdown file
			s := newTestStore(t, Options{LexicalBackend: backend})
			ctx := context.Background()
			require.NoError(t, s.EnsureContainer(ctx, "Default"))
			upsertText(t, s, "Default", "/src/user.go", spread(1), "func getUserById(id string) *User")
			upsertText(t, s, "Default", "/docs/guide.md", spread(2), "The parser reads markdown headings")
			upsertText(t, s, "Default", "/docs/users.md", spread(3), "Managing user accounts")

			// When: searching a camelCase part
			hits, err := s.LexicalSearch(ctx, "Default", "user", 10, Filter{})
			require.NoError(t, err)

			// Then: both files mentioning users match
			paths := hitPaths(hits)
			assert.ElementsMatch(t, []string{"/src/user.go", "/docs/users.md"}, paths)
			for _, h := range hits {
				assert.Greater(t, h.Score, 0.0)
			}

			// And: an extension filter without a dot applies before ranking
			hits, err = s.LexicalSearch(ctx, "Default", "user", 10, Filter{Extensions: []string{"md"}})
			require.NoError(t, err)
			assert.Equal(t, []string{"/docs/users.md"}, hitPaths(hits))

			// And: a path prefix filter applies too
			hits, err = s.LexicalSearch(ctx, "Default", "user markdown", 10, Filter{PathPrefix: "/docs/"})
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"/docs/guide.md", "/docs/users.md"}, hitPaths(hits))

			// And: stop words alone match nothing
			hits, err = s.LexicalSearch(ctx, "Default", "the and of", 10, Filter{})
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func hitPaths(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Path
	}
	return out
}

func TestStore_VectorSearchBruteForce(t *testing.T) {
	// Given: a container below the threshold
	s := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.EnsureContainer(ctx, "Default"))
	upsertText(t, s, "Default", "/a.md", []float32{1, 0, 0, 0}, "a")
	upsertText(t, s, "Default", "/b.txt", []float32{0, 1, 0, 0}, "b")
	upsertText(t, s, "Default", "/c.md", []float32{0.9, 0.1, 0, 0}, "c")

	// When: searching near a
	hits, err := s.VectorSearch(ctx, "Default", []float32{1, 0, 0, 0}, 2, Filter{})
	require.NoError(t, err)

	// Then: a and c come first, in order
	assert.Equal(t, []string{"/a.md", "/c.md"}, hitPaths(hits))
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)

	// And: filters act before truncation
	hits, err = s.VectorSearch(ctx, "Default", []float32{1, 0, 0, 0}, 2, Filter{Extensions: []string{".txt"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"/b.txt"}, hitPaths(hits))
}

func TestStore_VectorSearchDimensionMismatch(t *testing.T) {
	// Given: a container recorded as 4-dim
	s := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.EnsureContainer(ctx, "Default"))
	upsertText(t, s, "Default", "/a.md", spread(1), "a")
	require.NoError(t, s.SetModel(ctx, "Default", "static-4", 4))

	// When: querying with 3 dims
	_, err := s.VectorSearch(ctx, "Default", []float32{1, 0, 0}, 5, Filter{})

	// Then: the mismatch is reported
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestStore_GraphWithTailAndDeletes(t *testing.T) {
	// Given: a container past a small threshold with a built graph
	s := newTestStore(t, Options{MaterializationThreshold: 8})
	ctx := context.Background()
	require.NoError(t, s.EnsureContainer(ctx, "Default"))
	for i := 0; i < 10; i++ {
		upsertText(t, s, "Default", pathN(i), spread(i), "chunk")
	}
	res, err := s.Maintain(ctx, "Default")
	require.NoError(t, err)
	assert.True(t, res.Rebuilt)
	assert.Equal(t, 10, res.Rows)

	st, err := s.Stats(ctx, "Default")
	require.NoError(t, err)
	assert.True(t, st.HasGraph)

	// When: searching an indexed vector through the graph
	hits, err := s.VectorSearch(ctx, "Default", spread(3), 3, Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, pathN(3), hits[0].Path)

	// And: a row written after the rebuild is found through the tail scan
	upsertText(t, s, "Default", "/tail.md", []float32{-1, 0, 0, 0}, "tail")
	hits, err = s.VectorSearch(ctx, "Default", []float32{-1, 0, 0, 0}, 1, Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/tail.md", hits[0].Path)

	// And: a row deleted after the rebuild is never returned
	require.NoError(t, s.DeletePath(ctx, "Default", pathN(3)))
	hits, err = s.VectorSearch(ctx, "Default", spread(3), 5, Filter{})
	require.NoError(t, err)
	assert.NotContains(t, hitPaths(hits), pathN(3))

	// And: maintenance without enough mutations keeps the graph
	res, err = s.Maintain(ctx, "Default")
	require.NoError(t, err)
	assert.False(t, res.Rebuilt)
}

func pathN(i int) string {
	return "/docs/" + string(rune('a'+i)) + ".md"
}

func TestStore_MaintainRemovesGraphBelowThreshold(t *testing.T) {
	// Given: a built graph
	s := newTestStore(t, Options{MaterializationThreshold: 8})
	ctx := context.Background()
	require.NoError(t, s.EnsureContainer(ctx, "Default"))
	for i := 0; i < 8; i++ {
		upsertText(t, s, "Default", pathN(i), spread(i), "chunk")
	}
	res, err := s.Maintain(ctx, "Default")
	require.NoError(t, err)
	require.True(t, res.Rebuilt)

	// When: the container shrinks below the threshold
	require.NoError(t, s.DeletePath(ctx, "Default", pathN(0)))
	res, err = s.Maintain(ctx, "Default")
	require.NoError(t, err)

	// Then: the graph is removed and search falls back to a scan
	assert.True(t, res.Removed)
	st, err := s.Stats(ctx, "Default")
	require.NoError(t, err)
	assert.False(t, st.HasGraph)

	hits, err := s.VectorSearch(ctx, "Default", spread(1), 1, Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, pathN(1), hits[0].Path)
}

func TestStore_GraphSurvivesReopen(t *testing.T) {
	// Given: a store with a materialized graph
	dir := t.TempDir()
	ctx := context.Background()
	s, err := Open(dir, Options{MaterializationThreshold: 8})
	require.NoError(t, err)
	require.NoError(t, s.EnsureContainer(ctx, "Default"))
	for i := 0; i < 9; i++ {
		upsertText(t, s, "Default", pathN(i), spread(i), "chunk")
	}
	_, err = s.Maintain(ctx, "Default")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// When: it is reopened
	s, err = Open(dir, Options{MaterializationThreshold: 8})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Then: the graph loads from disk
	st, err := s.Stats(ctx, "Default")
	require.NoError(t, err)
	assert.True(t, st.HasGraph)
	assert.Equal(t, 9, st.Chunks)

	last, err := s.LastRebuild(ctx, "Default")
	require.NoError(t, err)
	assert.False(t, last.IsZero())
}

func TestStore_CheckModel(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.EnsureContainer(ctx, "Default"))

	// Given: no recorded model, nothing is stale
	state, err := s.CheckModel(ctx, "Default", "static-384", 384)
	require.NoError(t, err)
	assert.False(t, state.Stale)

	// When: a model is recorded
	require.NoError(t, s.SetModel(ctx, "Default", "static-384", 384))

	tests := []struct {
		name  string
		model string
		dims  int
		stale bool
	}{
		{"same model", "static-384", 384, false},
		{"different width", "static-256", 256, true},
		{"same width other model", "nomic-embed-text", 384, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := s.CheckModel(ctx, "Default", tt.model, tt.dims)
			require.NoError(t, err)
			assert.Equal(t, tt.stale, state.Stale)
			assert.Equal(t, 384, state.Dims)
		})
	}

	dims, err := s.StoredDims(ctx, "Default")
	require.NoError(t, err)
	assert.Equal(t, 384, dims)
}

func TestStore_RenameAndDropContainer(t *testing.T) {
	for _, backend := range []string{BackendSQLite, BackendBleve} {
		t.Run(backend, func(t *testing.T) {
			// Given: a populated container
			s := newTestStore(t, Options{LexicalBackend: backend})
			ctx := context.Background()
			require.NoError(t, s.CreateContainer(ctx, "Docs"))
			require.ErrorIs(t, s.CreateContainer(ctx, "Docs"), ErrContainerExists)
			upsertText(t, s, "Docs", "/docs/a.md", spread(1), "quarterly report")
			require.NoError(t, s.SetModel(ctx, "Docs", "static-4", 4))

			// When: it is renamed
			require.NoError(t, s.RenameContainer(ctx, "Docs", "Notes"))

			// Then: data and state follow the new name
			ok, err := s.HasContainer(ctx, "Docs")
			require.NoError(t, err)
			assert.False(t, ok)
			hits, err := s.LexicalSearch(ctx, "Notes", "quarterly", 5, Filter{})
			require.NoError(t, err)
			assert.Equal(t, []string{"/docs/a.md"}, hitPaths(hits))
			dims, err := s.StoredDims(ctx, "Notes")
			require.NoError(t, err)
			assert.Equal(t, 4, dims)

			// And: renaming onto an existing container fails
			require.NoError(t, s.CreateContainer(ctx, "Other"))
			assert.ErrorIs(t, s.RenameContainer(ctx, "Notes", "Other"), ErrContainerExists)

			// When: it is dropped
			require.NoError(t, s.DropContainer(ctx, "Notes"))

			// Then: it has no index and retrieval reports it missing
			st, err := s.Stats(ctx, "Notes")
			require.NoError(t, err)
			assert.False(t, st.HasIndex)
			_, err = s.LexicalSearch(ctx, "Notes", "quarterly", 5, Filter{})
			assert.ErrorIs(t, err, ErrContainerNotFound)
			dims, err = s.StoredDims(ctx, "Notes")
			require.NoError(t, err)
			assert.Zero(t, dims)
		})
	}
}

func TestStore_FileQueries(t *testing.T) {
	// Given: indexed files of mixed types
	s := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.EnsureContainer(ctx, "Default"))
	upsertText(t, s, "Default", "/docs/b.md", spread(1), "b")
	upsertText(t, s, "Default", "/docs/a.MD", spread(2), "a")
	upsertText(t, s, "Default", "/src/main.go", spread(3), "main")

	// When: listing with a prefix and extension
	files, err := s.ListFiles(ctx, "Default", "/docs/", []string{"md"})
	require.NoError(t, err)

	// Then: matches are sorted by path
	require.Len(t, files, 2)
	assert.Equal(t, "/docs/a.MD", files[0].Path)
	assert.Equal(t, "/docs/b.md", files[1].Path)

	// When: a later attempt on main.go fails
	require.NoError(t, s.MarkFailed(ctx, "Default", "/src/main.go", time.Unix(200, 0), "embed: model unavailable"))

	// Then: its rows are kept but it is retried next pass
	rows, err := s.ChunksForPath(ctx, "Default", "/src/main.go")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	states, err := s.FileStates(ctx, "Default")
	require.NoError(t, err)
	assert.NotContains(t, states, "/src/main.go")

	failed, err := s.FailedFiles(ctx, "Default")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "embed: model unavailable", failed[0].Error)

	tracked, err := s.TrackedPaths(ctx, "Default")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/docs/a.MD", "/docs/b.md", "/src/main.go"}, tracked)

	st, err := s.Stats(ctx, "Default")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Files)
	assert.Equal(t, 1, st.Failed)
}

func TestStore_FilesSinceUsesMTime(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.EnsureContainer(ctx, "Default"))

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-time.Minute)
	require.NoError(t, s.Upsert(ctx, "Default", file("/old.md", old), []Row{{Text: "old"}}))
	require.NoError(t, s.Upsert(ctx, "Default", file("/new.md", recent), []Row{{Text: "new"}}))

	changed, deleted, err := s.FilesSince(ctx, "Default", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "/new.md", changed[0].Path)
	assert.Empty(t, deleted)
}

func TestStore_LockWriter(t *testing.T) {
	s := newTestStore(t, Options{})

	// Given: the writer lock is held
	lock, err := s.LockWriter("Default")
	require.NoError(t, err)

	// When: a second writer tries to take it
	_, err = s.LockWriter("Default")

	// Then: it is busy
	assert.ErrorIs(t, err, ErrWriterBusy)

	// And: other containers are independent
	other, err := s.LockWriter("Other")
	require.NoError(t, err)
	require.NoError(t, other.Unlock())

	// And: it can be taken again after release
	require.NoError(t, lock.Unlock())
	again, err := s.LockWriter("Default")
	require.NoError(t, err)
	require.NoError(t, again.Unlock())
}

func TestStore_ClosedStore(t *testing.T) {
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Stats(context.Background(), "Default")
	assert.ErrorIs(t, err, ErrClosed)
}
