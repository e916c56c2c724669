package ui

import (
	"fmt"
	"io"
	"sort"

	"github.com/Aman-CERP/amanfind/internal/telemetry"
)

// StatsRenderer prints query telemetry.
type StatsRenderer struct {
	out    io.Writer
	styles Styles
}

func NewStatsRenderer(out io.Writer, noColor bool) *StatsRenderer {
	return &StatsRenderer{out: out, styles: GetStyles(noColor)}
}

// Render prints a telemetry snapshot for a terminal.
func (r *StatsRenderer) Render(snap *telemetry.Snapshot) error {
	w := &errWriter{w: r.out}
	w.printf("%s\n\n", r.styles.Header.Render("Queries since "+snap.Since.Format("2006-01-02")))

	total := snap.Total()
	if total == 0 {
		w.line(r.styles.Dim.Render("no queries recorded"))
		return w.err
	}

	w.printf("  Total:     %d\n", total)
	kinds := make([]string, 0, len(snap.Kinds))
	for k := range snap.Kinds {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		c := snap.Kinds[telemetry.Kind(k)]
		w.printf("  %-10s %d (%d empty, %d repeated)\n", k+":", c.Queries, c.ZeroResults, c.Repeats)
	}
	zero := fmt.Sprintf("%.1f%%", snap.ZeroResultPercentage())
	if snap.ZeroResultPercentage() >= 20 {
		zero = r.styles.Warning.Render(zero)
	}
	w.printf("  Empty:     %s\n", zero)
	w.printf("  Repeated:  %.1f%%\n", snap.RepeatPercentage())

	w.printf("\n  %s\n", r.styles.Label.Render("Latency"))
	for _, b := range telemetry.LatencyBuckets {
		w.printf("    %-8s %d\n", bucketLabel(b), snap.Latency[b])
	}

	if len(snap.TopTerms) > 0 {
		w.printf("\n  %s\n", r.styles.Label.Render("Top terms"))
		for _, tc := range snap.TopTerms {
			w.printf("    %-20s %d\n", tc.Term, tc.Count)
		}
	}

	if len(snap.ZeroResults) > 0 {
		w.printf("\n  %s\n", r.styles.Label.Render("Recent empty queries"))
		for _, zr := range snap.ZeroResults {
			w.printf("    %s %s\n", zr.Query, r.styles.Dim.Render("("+zr.Container+", "+formatTime(zr.At)+")"))
		}
	}
	return w.err
}

// RenderJSON prints the snapshot as indented JSON.
func (r *StatsRenderer) RenderJSON(snap *telemetry.Snapshot) error {
	return writeJSON(r.out, snap)
}

func bucketLabel(b telemetry.LatencyBucket) string {
	switch b {
	case telemetry.BucketP10:
		return "<10ms"
	case telemetry.BucketP50:
		return "<50ms"
	case telemetry.BucketP100:
		return "<100ms"
	case telemetry.BucketP500:
		return "<500ms"
	default:
		return ">=500ms"
	}
}
