package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/amanfind/internal/engine"
	"github.com/Aman-CERP/amanfind/internal/search"
)

// ResultsRenderer prints query, listing and container output.
type ResultsRenderer struct {
	out    io.Writer
	styles Styles
}

func NewResultsRenderer(out io.Writer, noColor bool) *ResultsRenderer {
	return &ResultsRenderer{out: out, styles: GetStyles(noColor)}
}

type resultJSON struct {
	Path      string  `json:"path"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
	StartLine int     `json:"start_line,omitempty"`
	EndLine   int     `json:"end_line,omitempty"`
	Heading   string  `json:"heading,omitempty"`
}

type responseJSON struct {
	Results      []resultJSON `json:"results"`
	VectorsStale bool         `json:"vectors_stale,omitempty"`
}

// Search prints ranked results, one block per hit.
func (r *ResultsRenderer) Search(resp search.Response) error {
	w := &errWriter{w: r.out}
	if resp.VectorsStale {
		w.line(r.styles.Warning.Render("vectors are stale; showing keyword matches only until the next index pass"))
	}
	if len(resp.Results) == 0 {
		w.line(r.styles.Dim.Render("no results"))
		return w.err
	}
	for i, res := range resp.Results {
		loc := res.Path
		if res.StartLine > 0 {
			loc = fmt.Sprintf("%s:%d-%d", res.Path, res.StartLine, res.EndLine)
		}
		w.printf("%s %s %s\n",
			r.styles.Label.Render(fmt.Sprintf("%2d.", i+1)),
			r.styles.Path.Render(loc),
			r.styles.Score.Render(fmt.Sprintf("%.3f", res.Score)))
		if res.Heading != "" {
			w.line("    " + r.styles.Active.Render(res.Heading))
		}
		if res.Snippet != "" {
			w.line("    " + r.styles.Dim.Render(res.Snippet))
		}
	}
	return w.err
}

// SearchJSON prints results as JSON.
func (r *ResultsRenderer) SearchJSON(resp search.Response) error {
	out := responseJSON{Results: make([]resultJSON, 0, len(resp.Results)), VectorsStale: resp.VectorsStale}
	for _, res := range resp.Results {
		out.Results = append(out.Results, resultJSON{
			Path:      res.Path,
			Score:     res.Score,
			Snippet:   res.Snippet,
			StartLine: res.StartLine,
			EndLine:   res.EndLine,
			Heading:   res.Heading,
		})
	}
	return writeJSON(r.out, out)
}

// Files prints one path per line with its size.
func (r *ResultsRenderer) Files(files []engine.FileInfo) error {
	w := &errWriter{w: r.out}
	for _, f := range files {
		w.printf("%9s  %s\n", r.styles.Label.Render(FormatBytes(f.Size)), f.Path)
	}
	return w.err
}

// Diff prints changed files with previews, then deletions.
func (r *ResultsRenderer) Diff(d engine.Diff) error {
	w := &errWriter{w: r.out}
	if len(d.ChangedPaths) == 0 && len(d.DeletedPaths) == 0 {
		w.line(r.styles.Dim.Render("no changes"))
		return w.err
	}
	for _, p := range d.ChangedPaths {
		w.line(r.styles.Success.Render("M ") + p)
		if pv := strings.Join(strings.Fields(d.Previews[p]), " "); pv != "" {
			w.line("    " + r.styles.Dim.Render(pv))
		}
	}
	for _, p := range d.DeletedPaths {
		w.line(r.styles.Error.Render("D ") + p)
	}
	return w.err
}

// Containers prints the container list, marking the active one.
func (r *ResultsRenderer) Containers(list []engine.ContainerInfo) error {
	w := &errWriter{w: r.out}
	for _, c := range list {
		mark := "  "
		name := c.Name
		if c.Active {
			mark = r.styles.Active.Render("* ")
			name = r.styles.Active.Render(name)
		}
		line := mark + name
		if c.Description != "" {
			line += "  " + r.styles.Label.Render(c.Description)
		}
		w.line(line)
		for _, p := range c.IndexedPaths {
			w.line("    " + r.styles.Dim.Render(p))
		}
	}
	return w.err
}

// JSON prints any value as indented JSON.
func (r *ResultsRenderer) JSON(v any) error {
	return writeJSON(r.out, v)
}
