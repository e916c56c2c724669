package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type skipNamed string

func (s skipNamed) SkipDir(_, path string) bool {
	return filepath.Base(path) == string(s)
}

// startWatcher runs a watcher over root until the test ends.
func startWatcher(t *testing.T, root string, filter Filter) *Watcher {
	t.Helper()
	w, err := New([]string{root}, filter, Options{DebounceWindow: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give Run time to register the initial watches.
	time.Sleep(100 * time.Millisecond)
	return w
}

// collectUntil gathers events until one matches want or the timeout hits.
func collectUntil(t *testing.T, w *Watcher, want func(FileEvent) bool) []FileEvent {
	t.Helper()
	var seen []FileEvent
	deadline := time.After(3 * time.Second)
	for {
		select {
		case batch, ok := <-w.Events():
			require.True(t, ok, "events closed")
			seen = append(seen, batch...)
			for _, e := range batch {
				if want(e) {
					return seen
				}
			}
		case <-deadline:
			t.Fatalf("timed out; saw %v", seen)
			return nil
		}
	}
}

func is(path string, op Operation) func(FileEvent) bool {
	return func(e FileEvent) bool { return e.Path == path && e.Operation == op }
}

func TestWatcher_CreateModifyDelete(t *testing.T) {
	// Given: a watched directory
	root := t.TempDir()
	w := startWatcher(t, root, nil)
	file := filepath.Join(root, "note.md")

	// When: a file is created
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))

	// Then: a create arrives with the owning root
	events := collectUntil(t, w, is(file, OpCreate))
	last := events[len(events)-1]
	assert.Equal(t, root, last.Root)

	// When: it is modified
	require.NoError(t, os.WriteFile(file, []byte("hello again"), 0o644))
	collectUntil(t, w, is(file, OpModify))

	// When: it is removed
	require.NoError(t, os.Remove(file))
	collectUntil(t, w, is(file, OpDelete))
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, nil)

	// Given: a directory created after the watch started
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond)

	// When: a file is written inside it
	file := filepath.Join(sub, "inner.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	// Then: the file's create is reported
	collectUntil(t, w, is(file, OpCreate))
}

func TestWatcher_MovedInDirectoryReportsFiles(t *testing.T) {
	// Given: a populated directory outside the root
	outside := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(outside, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "pkg", "a.md"), []byte("a"), 0o644))

	root := t.TempDir()
	w := startWatcher(t, root, nil)

	// When: it is moved into the root
	moved := filepath.Join(root, "pkg")
	require.NoError(t, os.Rename(filepath.Join(outside, "pkg"), moved))

	// Then: files already inside are reported as created
	collectUntil(t, w, is(filepath.Join(moved, "a.md"), OpCreate))
}

func TestWatcher_FilteredDirectoryIsSilent(t *testing.T) {
	// Given: a filter that skips node_modules
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "node_modules"), 0o755))
	w := startWatcher(t, root, skipNamed("node_modules"))

	// When: a file changes inside the skipped tree, then a sentinel changes
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "dep.js"), []byte("x"), 0o644))
	sentinel := filepath.Join(root, "visible.md")
	require.NoError(t, os.WriteFile(sentinel, []byte("x"), 0o644))

	// Then: only the sentinel is reported
	events := collectUntil(t, w, is(sentinel, OpCreate))
	for _, e := range events {
		assert.False(t, strings.Contains(e.Path, "node_modules"), "unexpected event %v", e)
	}
}

func TestWatcher_InnermostRootOwnsPath(t *testing.T) {
	outer := t.TempDir()
	inner := filepath.Join(outer, "inner")
	require.NoError(t, os.Mkdir(inner, 0o755))

	w, err := New([]string{outer, inner, outer}, nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{inner, outer}, w.Roots())
	assert.Equal(t, inner, w.rootFor(filepath.Join(inner, "a.md")))
	assert.Equal(t, outer, w.rootFor(filepath.Join(outer, "b.md")))
	assert.Equal(t, "", w.rootFor("/elsewhere/c.md"))
}

func TestWatcher_EventsCloseOnCancel(t *testing.T) {
	w, err := New([]string{t.TempDir()}, nil, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	require.NoError(t, <-done)
	_, ok := <-w.Events()
	assert.False(t, ok)
}
