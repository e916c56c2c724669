// Package ui renders indexing progress and command output for the
// terminal: a bubbletea view for interactive terminals, plain lines for
// pipes and CI.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/amanfind/internal/index"
)

// Stage is the part of an indexing pass being shown.
type Stage int

const (
	StageWalking Stage = iota
	StageProcessing
	StageMaintenance
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageWalking:
		return "Walking"
	case StageProcessing:
		return "Processing"
	case StageMaintenance:
		return "Maintenance"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon is the short tag plain output prefixes lines with.
func (s Stage) Icon() string {
	switch s {
	case StageWalking:
		return "WALK"
	case StageProcessing:
		return "FILE"
	case StageMaintenance:
		return "TIDY"
	case StageComplete:
		return "DONE"
	default:
		return "????"
	}
}

// ProgressEvent is one progress update.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
	Path    string
	Message string
}

// ErrorEvent is a per-file problem shown during a pass.
type ErrorEvent struct {
	Path   string
	Err    error
	IsWarn bool
}

// CompletionStats summarizes a finished pass.
type CompletionStats struct {
	Container string
	Indexed   int
	Skipped   int
	Deleted   int
	Failed    int
	Excluded  int
	Chunks    int
	Duration  time.Duration
	Model     string
	Dims      int
}

// StatsFromSummary converts a pass summary for display.
func StatsFromSummary(sum index.Summary, model string, dims int) CompletionStats {
	return CompletionStats{
		Container: sum.Container,
		Indexed:   sum.Indexed,
		Skipped:   sum.Skipped,
		Deleted:   sum.Deleted,
		Failed:    sum.Failed,
		Excluded:  sum.Excluded,
		Chunks:    sum.Chunks,
		Duration:  sum.Duration,
		Model:     model,
		Dims:      dims,
	}
}

// EventFromProgress maps orchestrator progress onto a ProgressEvent. A
// pass reports nothing while walking, so a zero total means the walk is
// still running.
func EventFromProgress(p index.Progress) ProgressEvent {
	if p.Total == 0 {
		return ProgressEvent{Stage: StageWalking, Message: "discovering files"}
	}
	st := StageProcessing
	if p.Processed >= p.Total {
		st = StageMaintenance
	}
	return ProgressEvent{Stage: st, Current: p.Processed, Total: p.Total, Path: p.Path}
}

// ProgressFunc adapts a Renderer to the orchestrator's progress callback.
func ProgressFunc(r Renderer) index.ProgressFunc {
	return func(p index.Progress) {
		r.UpdateProgress(EventFromProgress(p))
	}
}

// Renderer shows one indexing pass.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config controls renderer selection.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool

	// Title is shown in the TUI header, usually the container name.
	Title string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain disables the TUI.
func WithForcePlain(plain bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = plain
	}
}

func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

func WithTitle(title string) ConfigOption {
	return func(c *Config) {
		c.Title = title
	}
}

// NewConfig creates a Config writing to output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the TUI for interactive terminals and the plain
// renderer for pipes, CI, or when plain output was requested.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor checks the NO_COLOR convention.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks the usual CI environment variables.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
