// Package index keeps a container's rows in step with its indexed paths.
// Each container has one Orchestrator; it is the only writer of the
// container's tables.
package index

import (
	"context"
	"time"
)

// State is the orchestrator's position in a pass.
type State int

const (
	StateIdle State = iota
	StateWalking
	StateProcessing
	StateUpserting
	StateMaintenance
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWalking:
		return "walking"
	case StateProcessing:
		return "processing"
	case StateUpserting:
		return "upserting"
	case StateMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// Progress is reported after each file of a pass.
type Progress struct {
	Processed int
	Total     int
	Path      string
}

// ProgressFunc receives progress. It is called from the pass goroutine
// and must not block.
type ProgressFunc func(Progress)

// Summary is the outcome of one pass.
type Summary struct {
	Container string
	// Full is false for passes driven only by watcher events.
	Full     bool
	Indexed  int
	Skipped  int
	Deleted  int
	Failed   int
	Excluded int
	Chunks   int
	Duration time.Duration
}

// Status is a snapshot of an orchestrator.
type Status struct {
	State     State
	Pending   int
	NeedsFull bool
	LastPass  time.Time
	Last      Summary
	LastError string
}

// ImageExtractor turns an image into indexable text (OCR, EXIF). Without
// one, images are excluded.
type ImageExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}
