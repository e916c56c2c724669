// Package watcher turns filesystem churn under the indexed roots into
// debounced batches of change events. It never touches the index; the
// consumer routes batches to the owning container's orchestrator.
package watcher

import (
	"time"
)

// Operation is the kind of a change event.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete

	// OpOverflow means events under Root were lost and the consumer must
	// fall back to a full walk.
	OpOverflow
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpOverflow:
		return "OVERFLOW"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one coalesced change.
type FileEvent struct {
	// Path is absolute. For OpOverflow it equals Root.
	Path string

	// Root is the watched root the path belongs to.
	Root string

	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Filter decides which directories are not watched. The scanner satisfies
// it, so the watcher and the walk agree on ignored trees.
type Filter interface {
	SkipDir(root, path string) bool
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow is the quiet period per path before its event is
	// emitted. Default: 500ms
	DebounceWindow time.Duration

	// EventBufferSize is the capacity of the batch channel. Default: 64
	EventBufferSize int
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		EventBufferSize: 64,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
