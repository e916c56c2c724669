package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWindow = 30 * time.Millisecond

func ev(path string, op Operation) FileEvent {
	return FileEvent{Path: path, Root: "/root", Operation: op, Timestamp: time.Now()}
}

// nextBatch waits for one batch or fails.
func nextBatch(t *testing.T, ch <-chan []FileEvent) []FileEvent {
	t.Helper()
	select {
	case batch, ok := <-ch:
		require.True(t, ok, "output closed")
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
		return nil
	}
}

func assertNoBatch(t *testing.T, ch <-chan []FileEvent, wait time.Duration) {
	t.Helper()
	select {
	case batch := <-ch:
		t.Fatalf("unexpected batch: %v", batch)
	case <-time.After(wait):
	}
}

func TestCoalesce(t *testing.T) {
	tests := []struct {
		name     string
		prev     Operation
		next     Operation
		want     Operation
		wantKeep bool
	}{
		{"create then modify stays create", OpCreate, OpModify, OpCreate, true},
		{"create then delete cancels", OpCreate, OpDelete, 0, false},
		{"modify then modify", OpModify, OpModify, OpModify, true},
		{"modify then delete is delete", OpModify, OpDelete, OpDelete, true},
		{"delete then create is modify", OpDelete, OpCreate, OpModify, true},
		{"delete then modify is modify", OpDelete, OpModify, OpModify, true},
		{"overflow wins", OpModify, OpOverflow, OpOverflow, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, keep := coalesce(tt.prev, tt.next)
			assert.Equal(t, tt.wantKeep, keep)
			if keep {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDebouncer_EmitsAfterWindow(t *testing.T) {
	// Given: a debouncer
	d := NewDebouncer(testWindow, 4)
	defer d.Stop()

	// When: one event is added
	d.Add(ev("/root/a.md", OpModify))

	// Then: it is emitted alone once the window passes
	batch := nextBatch(t, d.Output())
	require.Len(t, batch, 1)
	assert.Equal(t, "/root/a.md", batch[0].Path)
	assert.Equal(t, OpModify, batch[0].Operation)
	assert.Equal(t, 0, d.Pending())
}

func TestDebouncer_BurstCollapsesToOneEvent(t *testing.T) {
	// Given: a debouncer
	d := NewDebouncer(testWindow, 4)
	defer d.Stop()

	// When: a path is created then written repeatedly inside the window
	d.Add(ev("/root/a.md", OpCreate))
	for i := 0; i < 5; i++ {
		d.Add(ev("/root/a.md", OpModify))
	}

	// Then: a single create is emitted
	batch := nextBatch(t, d.Output())
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncer_CreateThenDeleteEmitsNothing(t *testing.T) {
	d := NewDebouncer(testWindow, 4)
	defer d.Stop()

	d.Add(ev("/root/tmp.swp", OpCreate))
	d.Add(ev("/root/tmp.swp", OpDelete))

	assert.Equal(t, 0, d.Pending())
	assertNoBatch(t, d.Output(), 4*testWindow)
}

func TestDebouncer_DeleteThenCreateIsModify(t *testing.T) {
	// Given: an editor that saves by replacing the file
	d := NewDebouncer(testWindow, 4)
	defer d.Stop()

	// When: delete and create arrive for the same path
	d.Add(ev("/root/a.md", OpDelete))
	d.Add(ev("/root/a.md", OpCreate))

	// Then: consumers see a modification
	batch := nextBatch(t, d.Output())
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncer_BatchIsSortedByPath(t *testing.T) {
	d := NewDebouncer(testWindow, 4)
	defer d.Stop()

	d.Add(ev("/root/c.md", OpModify))
	d.Add(ev("/root/a.md", OpModify))
	d.Add(ev("/root/b.md", OpDelete))

	batch := nextBatch(t, d.Output())
	require.Len(t, batch, 3)
	assert.Equal(t, []string{"/root/a.md", "/root/b.md", "/root/c.md"},
		[]string{batch[0].Path, batch[1].Path, batch[2].Path})
}

func TestDebouncer_FullOutputBecomesOverflow(t *testing.T) {
	// Given: an output channel with room for one batch
	d := NewDebouncer(testWindow, 1)
	defer d.Stop()

	// When: two batches are produced without a reader
	d.Add(ev("/root/a.md", OpModify))
	time.Sleep(4 * testWindow)
	d.Add(ev("/root/b.md", OpModify))
	time.Sleep(4 * testWindow)

	// Then: the first batch is intact
	first := nextBatch(t, d.Output())
	require.Len(t, first, 1)
	assert.Equal(t, "/root/a.md", first[0].Path)

	// And: the dropped batch is replaced by an overflow for its root
	second := nextBatch(t, d.Output())
	require.NotEmpty(t, second)
	assert.Equal(t, OpOverflow, second[0].Operation)
	assert.Equal(t, "/root", second[0].Root)
}

func TestDebouncer_OverflowEventPassesThrough(t *testing.T) {
	d := NewDebouncer(testWindow, 4)
	defer d.Stop()

	d.Add(FileEvent{Path: "/root", Root: "/root", Operation: OpOverflow})
	d.Add(FileEvent{Path: "/root", Root: "/root", Operation: OpOverflow})

	batch := nextBatch(t, d.Output())
	require.Len(t, batch, 1)
	assert.Equal(t, OpOverflow, batch[0].Operation)
	assert.Equal(t, "/root", batch[0].Path)
}

func TestDebouncer_StopIsIdempotent(t *testing.T) {
	// Given: a debouncer with a pending event
	d := NewDebouncer(testWindow, 4)
	d.Add(ev("/root/a.md", OpModify))

	// When: stopped twice
	d.Stop()
	assert.NotPanics(t, d.Stop)

	// Then: the output is closed and later adds are ignored
	_, ok := <-d.Output()
	assert.False(t, ok)
	assert.NotPanics(t, func() { d.Add(ev("/root/b.md", OpModify)) })
	assert.Equal(t, 0, d.Pending())
}
