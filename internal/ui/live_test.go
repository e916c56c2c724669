package ui

import (
	"bytes"
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanfind/internal/search"
)

func fakeSearch(calls *[]string) SearchFunc {
	return func(_ context.Context, q string) (search.Response, error) {
		*calls = append(*calls, q)
		return search.Response{Results: []search.Result{{Path: "/docs/" + q + ".md", Score: 0.8, Snippet: "about " + q}}}, nil
	}
}

func TestRunLiveSearch_RequiresTTY(t *testing.T) {
	err := RunLiveSearch(context.Background(), NewConfig(&bytes.Buffer{}), "", nil)

	assert.ErrorIs(t, err, errNotTTY)
}

func TestLiveModel_TypingRunsQuery(t *testing.T) {
	// Given: a live model over a fake search
	var calls []string
	m := newLiveModel(context.Background(), fakeSearch(&calls), "ta", NoColorStyles())

	// When: a key is typed and the resulting query runs
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	msg := m.query()()
	_, _ = m.Update(msg)

	// Then: the query saw the edited input and its result is shown
	require.NotEmpty(t, calls)
	assert.Equal(t, "tax", calls[len(calls)-1])
	view := m.View()
	assert.Contains(t, view, "/docs/tax.md")
	assert.Contains(t, view, "about tax")
}

func TestLiveModel_DropsOutdatedResponses(t *testing.T) {
	// Given: a model that already shows the response to query 5
	m := newLiveModel(context.Background(), nil, "", NoColorStyles())
	m.input.SetValue("new")
	_, _ = m.Update(liveResultMsg{seq: 5, resp: search.Response{Results: []search.Result{{Path: "/new.md"}}}})

	// When: an older response and a superseded one arrive
	_, _ = m.Update(liveResultMsg{seq: 3, resp: search.Response{Results: []search.Result{{Path: "/old.md"}}}})
	_, _ = m.Update(liveResultMsg{seq: 6, err: search.ErrSuperseded})

	// Then: the newest real response stays on screen
	view := m.View()
	assert.Contains(t, view, "/new.md")
	assert.NotContains(t, view, "/old.md")
	assert.NotContains(t, view, "superseded")
}

func TestLiveModel_EmptyInputSkipsSearch(t *testing.T) {
	var calls []string
	m := newLiveModel(context.Background(), fakeSearch(&calls), "", NoColorStyles())

	_, _ = m.Update(m.query()())

	assert.Empty(t, calls)
	assert.NotContains(t, m.View(), "no results")
}

func TestLiveModel_EscQuits(t *testing.T) {
	m := newLiveModel(context.Background(), nil, "", NoColorStyles())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})

	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 10))
	assert.Equal(t, "Zür…", truncateRunes("Zürich", 4))
}
