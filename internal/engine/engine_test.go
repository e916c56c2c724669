package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanfind/internal/config"
	"github.com/Aman-CERP/amanfind/internal/embed"
	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
	"github.com/Aman-CERP/amanfind/internal/search"
)

type testEnv struct {
	engine  *Engine
	cfgPath string
	docs    string
}

// newTestEnv builds an engine with a "Docs" container rooted at a temp
// folder. Files maps names under that folder to content.
func newTestEnv(t *testing.T, files map[string]string) *testEnv {
	t.Helper()
	docs := t.TempDir()
	for name, content := range files {
		writeFile(t, filepath.Join(docs, name), content)
	}

	cfg := config.NewConfig()
	cfg.DataDir = t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	pool, err := embed.NewPool(embed.NewStaticEmbedder(64), nil, embed.WithWorkers(2))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	e, err := New(context.Background(), cfg, WithPool(pool), WithConfigPath(cfgPath))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	require.NoError(t, e.CreateContainer(context.Background(), "Docs", "test documents", []string{docs}))
	return &testEnv{engine: e, cfgPath: cfgPath, docs: docs}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestEngine_SmallFileIsOneChunkAndTopResult(t *testing.T) {
	// Given: container Docs holding one short a.md
	env := newTestEnv(t, map[string]string{
		"a.md": "The aurora was visible over Tromsø last night.\n",
	})
	ctx := context.Background()

	// When: indexing
	sum, err := env.engine.Index(ctx, "Docs", nil)
	require.NoError(t, err)

	// Then: exactly one chunk exists for a.md
	assert.Equal(t, 1, sum.Indexed)
	status, err := env.engine.IndexStatus(ctx, "Docs")
	require.NoError(t, err)
	assert.True(t, status.HasIndex)
	assert.Equal(t, 1, status.TotalFiles)
	assert.Equal(t, 1, status.TotalChunks)
	assert.Equal(t, []string{env.docs}, status.IndexedPaths)

	// When: searching for a phrase only a.md contains
	resp, err := env.engine.Search(ctx, search.Request{Container: "Docs", Query: "aurora over Tromsø"})

	// Then: a.md is the top result with a non-zero score
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, filepath.Join(env.docs, "a.md"), resp.Results[0].Path)
	assert.Greater(t, resp.Results[0].Score, 0.0)
}

func TestEngine_DeleteContainerDropsIndex(t *testing.T) {
	// Given: an indexed container
	env := newTestEnv(t, map[string]string{"a.md": "quarterly planning notes"})
	ctx := context.Background()
	_, err := env.engine.Index(ctx, "Docs", nil)
	require.NoError(t, err)

	// When: deleting it
	require.NoError(t, env.engine.DeleteContainer(ctx, "Docs"))

	// Then: it is no longer listed and reports no index
	for _, c := range env.engine.ListContainers() {
		assert.NotEqual(t, "Docs", c.Name)
	}
	status, err := env.engine.IndexStatus(ctx, "Docs")
	require.NoError(t, err)
	assert.False(t, status.HasIndex)
	assert.Zero(t, status.TotalFiles)

	// And: the saved config agrees
	saved, err := config.Load(env.cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, saved.Containers, "Docs")
}

func TestEngine_DefaultContainerIsProtected(t *testing.T) {
	env := newTestEnv(t, nil)

	err := env.engine.DeleteContainer(context.Background(), config.DefaultContainer)
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeContainerLocked, amerrors.GetCode(err))

	err = env.engine.RenameContainer(context.Background(), config.DefaultContainer, "Other")
	assert.Equal(t, amerrors.ErrCodeContainerLocked, amerrors.GetCode(err))
}

func TestEngine_Containers(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.md": "greenhouse tomato harvest log"})
	ctx := context.Background()
	_, err := env.engine.Index(ctx, "Docs", nil)
	require.NoError(t, err)

	// Duplicate names are rejected.
	err = env.engine.CreateContainer(ctx, "Docs", "", nil)
	assert.Equal(t, amerrors.ErrCodeContainerExists, amerrors.GetCode(err))

	// Rename keeps the index.
	require.NoError(t, env.engine.RenameContainer(ctx, "Docs", "Garden"))
	status, err := env.engine.IndexStatus(ctx, "Garden")
	require.NoError(t, err)
	assert.True(t, status.HasIndex)
	assert.Equal(t, 1, status.TotalFiles)
	resp, err := env.engine.Search(ctx, search.Request{Container: "Garden", Query: "tomato harvest"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results)

	// The old name is gone.
	_, err = env.engine.Search(ctx, search.Request{Container: "Docs", Query: "tomato"})
	assert.Equal(t, amerrors.ErrCodeContainerAbsent, amerrors.GetCode(err))

	// Switching the active container is persisted and listed.
	require.NoError(t, env.engine.SetActiveContainer("Garden"))
	var active []string
	for _, c := range env.engine.ListContainers() {
		if c.Active {
			active = append(active, c.Name)
		}
	}
	assert.Equal(t, []string{"Garden"}, active)
	saved, err := config.Load(env.cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "Garden", saved.ActiveContainer)

	// An empty container name means the active one.
	resp, err = env.engine.Search(ctx, search.Request{Query: "tomato harvest"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results)
}

func TestEngine_SearchNeverIndexedContainer(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.engine.Search(context.Background(), search.Request{Container: config.DefaultContainer, Query: "anything"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestEngine_AddAndRemovePath(t *testing.T) {
	// Given: an indexed container and a second folder
	env := newTestEnv(t, map[string]string{"a.md": "first folder note about otters"})
	extra := t.TempDir()
	writeFile(t, filepath.Join(extra, "b.md"), "second folder note about beavers")
	ctx := context.Background()
	_, err := env.engine.Index(ctx, "Docs", nil)
	require.NoError(t, err)

	// When: adding the folder and reindexing
	require.NoError(t, env.engine.AddPath("Docs", extra))
	_, err = env.engine.Index(ctx, "Docs", nil)
	require.NoError(t, err)

	// Then: both folders are indexed
	files, err := env.engine.ListFiles(ctx, "Docs", "", nil)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	// When: removing the first folder and reindexing
	require.NoError(t, env.engine.RemovePath("Docs", env.docs))
	_, err = env.engine.Index(ctx, "Docs", nil)
	require.NoError(t, err)

	// Then: only the second folder remains
	files, err = env.engine.ListFiles(ctx, "Docs", "", nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(extra, "b.md"), files[0].Path)
}

func TestEngine_ListFiles(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"b.md":          "bravo notes",
		"a.txt":         "alpha notes",
		"sub/c.md":      "charlie notes",
		"sub/deep/d.go": "package deep\n\nfunc D() {}\n",
	})
	ctx := context.Background()
	_, err := env.engine.Index(ctx, "Docs", nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		prefix string
		exts   []string
		want   []string
	}{
		{name: "all sorted", want: []string{"a.txt", "b.md", "sub/c.md", "sub/deep/d.go"}},
		{name: "by extension", exts: []string{"md"}, want: []string{"b.md", "sub/c.md"}},
		{name: "by prefix", prefix: filepath.Join(env.docs, "sub"), want: []string{"sub/c.md", "sub/deep/d.go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := env.engine.ListFiles(ctx, "Docs", tt.prefix, tt.exts)
			require.NoError(t, err)
			got := make([]string, len(files))
			for i, f := range files {
				rel, err := filepath.Rel(env.docs, f.Path)
				require.NoError(t, err)
				got[i] = filepath.ToSlash(rel)
				assert.Positive(t, f.Size)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_Read(t *testing.T) {
	env := newTestEnv(t, map[string]string{"lines.txt": "one\ntwo\nthree\nfour\n"})
	path := filepath.Join(env.docs, "lines.txt")

	outside := filepath.Join(t.TempDir(), "secret.txt")
	writeFile(t, outside, "secret")
	link := filepath.Join(env.docs, "link.txt")
	require.NoError(t, os.Symlink(outside, link))

	tests := []struct {
		name       string
		path       string
		start, end int
		want       string
		code       string
	}{
		{name: "whole file", path: path, want: "one\ntwo\nthree\nfour\n"},
		{name: "inclusive range", path: path, start: 2, end: 3, want: "two\nthree\n"},
		{name: "open end", path: path, start: 3, want: "three\nfour\n"},
		{name: "open start", path: path, end: 1, want: "one\n"},
		{name: "past the end", path: path, start: 10, want: ""},
		{name: "inverted range", path: path, start: 3, end: 2, code: amerrors.ErrCodeInvalidRange},
		{name: "outside roots", path: outside, code: amerrors.ErrCodePathDenied},
		{name: "symlink escaping root", path: link, code: amerrors.ErrCodePathDenied},
		{name: "missing", path: filepath.Join(env.docs, "nope.txt"), code: amerrors.ErrCodeFileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.engine.Read(tt.path, tt.start, tt.end)
			if tt.code != "" {
				require.Error(t, err)
				assert.Equal(t, tt.code, amerrors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := env.engine.Read(outside, 0, 0)
	assert.ErrorIs(t, err, ErrPathNotPermitted)
}

func TestEngine_DiffSince(t *testing.T) {
	// Given: two indexed files, one long
	long := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	env := newTestEnv(t, map[string]string{
		"keep.md": "kept file",
		"long.md": long,
	})
	ctx := context.Background()
	_, err := env.engine.Index(ctx, "Docs", nil)
	require.NoError(t, err)

	// When: one file is deleted and the container reindexed
	require.NoError(t, os.Remove(filepath.Join(env.docs, "keep.md")))
	_, err = env.engine.Index(ctx, "Docs", nil)
	require.NoError(t, err)
	diff, err := env.engine.DiffSince(ctx, "Docs", time.Hour)
	require.NoError(t, err)

	// Then: the live file is changed with a short preview, the other deleted
	longPath := filepath.Join(env.docs, "long.md")
	assert.Equal(t, []string{longPath}, diff.ChangedPaths)
	assert.LessOrEqual(t, len(diff.Previews[longPath]), previewBytes)
	assert.True(t, strings.HasPrefix(long, diff.Previews[longPath]))
	assert.Equal(t, []string{filepath.Join(env.docs, "keep.md")}, diff.DeletedPaths)

	_, err = env.engine.DiffSince(ctx, "Docs", 0)
	assert.Error(t, err)
}

func TestEngine_Related(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"cats.md":    "cats purr and sleep in the sun",
		"kittens.md": "kittens purr and sleep in the sun all afternoon",
		"db.md":      "database indexes speed up range queries",
	})
	ctx := context.Background()
	_, err := env.engine.Index(ctx, "Docs", nil)
	require.NoError(t, err)

	resp, err := env.engine.Related(ctx, filepath.Join(env.docs, "cats.md"), "Docs", 1)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, filepath.Join(env.docs, "kittens.md"), resp.Results[0].Path)
}

func TestEngine_Watch(t *testing.T) {
	// Given: a container with one file and a running watch
	env := newTestEnv(t, map[string]string{"a.md": "watched folder first note"})
	env.engine.cfg.Watch.Debounce = "50ms"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.engine.Watch(ctx) }()

	status := func() Status {
		st, err := env.engine.IndexStatus(context.Background(), "Docs")
		require.NoError(t, err)
		return st
	}

	// Then: the initial reconcile indexes the existing file
	require.Eventually(t, func() bool { return status().TotalFiles == 1 }, 10*time.Second, 50*time.Millisecond)
	assert.ErrorIs(t, env.engine.Watch(ctx), ErrAlreadyWatching)
	// Let the watcher register its directories.
	time.Sleep(200 * time.Millisecond)

	// When: a file is added
	writeFile(t, filepath.Join(env.docs, "b.md"), "watched folder second note")

	// Then: it is indexed without an explicit pass
	require.Eventually(t, func() bool { return status().TotalFiles == 2 }, 10*time.Second, 50*time.Millisecond)

	// When: a file is removed
	require.NoError(t, os.Remove(filepath.Join(env.docs, "a.md")))
	require.Eventually(t, func() bool { return status().TotalFiles == 1 }, 10*time.Second, 50*time.Millisecond)

	// Then: cancelling ends the watch cleanly
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestEngine_QueryStats(t *testing.T) {
	// Given: an indexed container and two identical searches
	env := newTestEnv(t, map[string]string{
		"budget.md": "The quarterly budget review is on Friday.\n",
	})
	ctx := context.Background()
	_, err := env.engine.Index(ctx, "Docs", nil)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = env.engine.Search(ctx, search.Request{Container: "Docs", Query: "quarterly budget"})
		require.NoError(t, err)
	}

	// When: reading query telemetry
	snap, err := env.engine.QueryStats(ctx, 7, 10)
	require.NoError(t, err)

	// Then: both searches and the repeat are counted
	assert.Equal(t, int64(2), snap.Kinds["search"].Queries)
	assert.Equal(t, int64(1), snap.Kinds["search"].Repeats)
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, int64(2), snap.TopTerms[0].Count)
}

func TestEngine_QueryStatsDisabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.DataDir = t.TempDir()
	cfg.Search.Telemetry = false
	pool, err := embed.NewPool(embed.NewStaticEmbedder(64), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	e, err := New(context.Background(), cfg, WithPool(pool))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	_, err = e.QueryStats(context.Background(), 7, 10)

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeConfigInvalid, amerrors.GetCode(err))
}

func TestOwns(t *testing.T) {
	roots := []string{"/data/docs", "/data/notes/"}
	assert.True(t, owns(roots, "/data/docs"))
	assert.True(t, owns(roots, "/data/docs/a.md"))
	assert.True(t, owns(roots, "/data/notes/b.md"))
	assert.False(t, owns(roots, "/data/docs2/a.md"))
	assert.False(t, owns(roots, "/data"))
}
