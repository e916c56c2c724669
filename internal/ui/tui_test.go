package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func newTestModel() (*passModel, *ProgressTracker) {
	tracker := NewProgressTracker()
	return newPassModel(tracker, "Docs", NoColorStyles()), tracker
}

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	assert.ErrorIs(t, err, errNotTTY)
	assert.Nil(t, r)
}

func TestPassModel_WalkingView(t *testing.T) {
	// Given: a fresh model
	m, _ := newTestModel()

	// When: rendering before any file is counted
	view := m.View()

	// Then: the header, all stages and the walking placeholder are shown
	assert.Contains(t, view, "amanfind • Docs")
	assert.Contains(t, view, "Walking")
	assert.Contains(t, view, "Processing")
	assert.Contains(t, view, "Maintenance")
	assert.Contains(t, view, "q to quit")
}

func TestPassModel_ProgressView(t *testing.T) {
	// Given: a model halfway through a pass with one warning
	m, tracker := newTestModel()
	tracker.Apply(ProgressEvent{Stage: StageProcessing, Current: 5, Total: 10, Path: "/docs/notes.md"})
	tracker.AddError(ErrorEvent{IsWarn: true})

	// When: rendering
	view := m.View()

	// Then: the count, the percentage, the path and the warning are shown
	assert.Contains(t, view, "5 / 10 files")
	assert.Contains(t, view, "50%")
	assert.Contains(t, view, "/docs/notes.md")
	assert.Contains(t, view, "1 warnings")
}

func TestPassModel_CompleteQuits(t *testing.T) {
	// Given: a running model
	m, _ := newTestModel()

	// When: the pass completes
	_, cmd := m.Update(completeMsg(CompletionStats{
		Container: "Docs",
		Indexed:   3,
		Chunks:    9,
		Failed:    1,
		Duration:  90 * time.Second,
	}))

	// Then: the program quits and the summary is shown
	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Indexing complete: Docs")
	assert.Contains(t, view, "1m 30s")
	assert.Contains(t, view, "1 failed")
}

func TestPassModel_QuitKey(t *testing.T) {
	m, _ := newTestModel()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	assert.NotNil(t, cmd)
	assert.Equal(t, "Cancelled.\n", m.View())
}

func TestPassModel_WindowResize(t *testing.T) {
	m, _ := newTestModel()

	m.Update(tea.WindowSizeMsg{Width: 30, Height: 10})

	assert.Equal(t, 30, m.width)
	assert.Equal(t, 20, m.bar.Width)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{3 * time.Minute, "3m"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{time.Hour + 2*time.Minute + 10*time.Second, "1h 2m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d), tt.d.String())
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path   string
		maxLen int
		want   string
	}{
		{"/docs/a.md", 20, "/docs/a.md"},
		{"/home/user/projects/report.md", 20, "...rojects/report.md"},
		{"averyveryverylongfilename.md", 10, "...name.md"},
		{"/a/b", 3, "..."},
	}
	for _, tt := range tests {
		got := truncatePath(tt.path, tt.maxLen)
		assert.Equal(t, tt.want, got)
		assert.LessOrEqual(t, len(got), max(tt.maxLen, 3))
	}
}
