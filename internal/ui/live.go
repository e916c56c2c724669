package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Aman-CERP/amanfind/internal/search"
)

// SearchFunc runs one query for the live view.
type SearchFunc func(ctx context.Context, query string) (search.Response, error)

// liveResultsShown caps the rows drawn under the prompt.
const liveResultsShown = 10

// RunLiveSearch shows a prompt that re-runs fn on every edit until the
// user quits. Responses to queries that were edited away are dropped.
func RunLiveSearch(ctx context.Context, cfg Config, initial string, fn SearchFunc) error {
	if !IsTTY(cfg.Output) {
		return errNotTTY
	}
	m := newLiveModel(ctx, fn, initial, GetStyles(cfg.NoColor))
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	_, err := tea.NewProgram(m, opts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type liveResultMsg struct {
	seq  int
	resp search.Response
	err  error
}

type liveModel struct {
	ctx    context.Context
	fn     SearchFunc
	input  textinput.Model
	styles Styles
	seq    int
	shown  int
	resp   search.Response
	err    error
	width  int
}

func newLiveModel(ctx context.Context, fn SearchFunc, initial string, styles Styles) *liveModel {
	in := textinput.New()
	in.Placeholder = "type to search"
	in.Prompt = "› "
	in.SetValue(initial)
	in.Focus()
	return &liveModel{ctx: ctx, fn: fn, input: in, styles: styles, width: 80}
}

// Init implements tea.Model.
func (m *liveModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.query())
}

// query issues a search for the current input, tagged with a new sequence.
func (m *liveModel) query() tea.Cmd {
	m.seq++
	seq, q := m.seq, m.input.Value()
	if strings.TrimSpace(q) == "" {
		return func() tea.Msg { return liveResultMsg{seq: seq} }
	}
	return func() tea.Msg {
		resp, err := m.fn(m.ctx, q)
		return liveResultMsg{seq: seq, resp: resp, err: err}
	}
}

// Update implements tea.Model.
func (m *liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		}
		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if m.input.Value() != before {
			return m, tea.Batch(cmd, m.query())
		}
		return m, cmd
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case liveResultMsg:
		if msg.seq < m.shown || errors.Is(msg.err, search.ErrSuperseded) {
			return m, nil
		}
		m.shown = msg.seq
		m.resp, m.err = msg.resp, msg.err
	}
	return m, nil
}

// View implements tea.Model.
func (m *liveModel) View() string {
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(m.styles.Error.Render(m.err.Error()))
		b.WriteString("\n")
	case strings.TrimSpace(m.input.Value()) == "":
	case len(m.resp.Results) == 0:
		b.WriteString(m.styles.Dim.Render("no results"))
		b.WriteString("\n")
	default:
		if m.resp.VectorsStale {
			b.WriteString(m.styles.Warning.Render("keyword matches only, vectors are stale"))
			b.WriteString("\n")
		}
		for i, res := range m.resp.Results {
			if i == liveResultsShown {
				break
			}
			fmt.Fprintf(&b, "%s %s\n", m.styles.Score.Render(fmt.Sprintf("%.2f", res.Score)), m.styles.Path.Render(res.Path))
			if res.Snippet != "" {
				b.WriteString("     " + m.styles.Dim.Render(truncateRunes(res.Snippet, max(m.width-6, 20))) + "\n")
			}
		}
	}
	b.WriteString("\n" + m.styles.Dim.Render("esc to quit"))
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
