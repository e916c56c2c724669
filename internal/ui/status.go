package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Aman-CERP/amanfind/internal/engine"
)

// StatusInfo is the display form of a container's status.
type StatusInfo struct {
	Container    string       `json:"container"`
	IndexedPaths []string     `json:"indexed_paths"`
	TotalFiles   int          `json:"total_files"`
	TotalChunks  int          `json:"total_chunks"`
	HasIndex     bool         `json:"has_index"`
	HasGraph     bool         `json:"has_graph"`
	State        string       `json:"state"`
	Pending      int          `json:"pending"`
	LastPass     *time.Time   `json:"last_pass,omitempty"`
	Model        string       `json:"model,omitempty"`
	Dims         int          `json:"dims,omitempty"`
	VectorsStale bool         `json:"vectors_stale"`
	Failed       []FailedInfo `json:"failed"`
}

type FailedInfo struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// NewStatusInfo converts an engine status.
func NewStatusInfo(st engine.Status) StatusInfo {
	info := StatusInfo{
		Container:    st.Container,
		IndexedPaths: st.IndexedPaths,
		TotalFiles:   st.TotalFiles,
		TotalChunks:  st.TotalChunks,
		HasIndex:     st.HasIndex,
		HasGraph:     st.HasGraph,
		State:        st.State,
		Pending:      st.Pending,
		Model:        st.Model,
		Dims:         st.Dims,
		VectorsStale: st.VectorsStale,
		Failed:       make([]FailedInfo, 0, len(st.Failed)),
	}
	if !st.LastPass.IsZero() {
		t := st.LastPass
		info.LastPass = &t
	}
	for _, f := range st.Failed {
		info.Failed = append(info.Failed, FailedInfo{Path: f.Path, Error: f.Error})
	}
	return info
}

// StatusRenderer prints container status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render prints info for a terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	w := &errWriter{w: r.out}
	w.printf("%s\n\n", r.styles.Header.Render("Container: "+info.Container))

	if len(info.IndexedPaths) == 0 {
		w.printf("  Paths:     %s\n", r.styles.Dim.Render("(none)"))
	}
	for i, p := range info.IndexedPaths {
		label := "  Paths:    "
		if i > 0 {
			label = "            "
		}
		w.printf("%s %s\n", label, p)
	}

	if !info.HasIndex {
		w.printf("  Index:     %s\n", r.styles.Warning.Render("not built"))
	} else {
		w.printf("  Files:     %d\n", info.TotalFiles)
		w.printf("  Chunks:    %d\n", info.TotalChunks)
		graph := r.styles.Dim.Render("flat scan")
		if info.HasGraph {
			graph = r.styles.Success.Render("built")
		}
		w.printf("  Graph:     %s\n", graph)
	}
	w.printf("  State:     %s\n", r.renderState(info.State))
	if info.Pending > 0 {
		w.printf("  Pending:   %d\n", info.Pending)
	}
	if info.LastPass != nil {
		w.printf("  Last pass: %s\n", formatTime(*info.LastPass))
	}
	if info.Model != "" {
		model := fmt.Sprintf("%s (%d dims)", info.Model, info.Dims)
		if info.VectorsStale {
			model += " " + r.styles.Warning.Render("stale, re-embedding on next pass")
		}
		w.printf("  Model:     %s\n", model)
	}

	if len(info.Failed) > 0 {
		w.printf("\n  %s\n", r.styles.Error.Render(fmt.Sprintf("%d failed:", len(info.Failed))))
		for _, f := range info.Failed {
			w.printf("    %s: %s\n", f.Path, r.styles.Dim.Render(f.Error))
		}
	}
	return w.err
}

// RenderJSON prints info as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	return writeJSON(r.out, info)
}

func (r *StatusRenderer) renderState(state string) string {
	switch state {
	case "idle":
		return r.styles.Success.Render(state)
	case "", "unknown":
		return r.styles.Error.Render("unknown")
	default:
		return r.styles.Active.Render(state)
	}
}

// formatTime renders t relative to now for the last week, absolute after.
func formatTime(t time.Time) string {
	diff := time.Since(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes renders a size with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMG"[exp])
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func (e *errWriter) line(s string) {
	e.printf("%s\n", strings.TrimRight(s, "\n"))
}
