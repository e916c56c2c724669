package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces events per path. A path's event is emitted once no
// new event for it arrived within the window. Sequences merge as follows:
//   - CREATE + MODIFY = CREATE (file is still new)
//   - CREATE + DELETE = nothing (file never really existed)
//   - MODIFY + DELETE = DELETE (file is gone)
//   - DELETE + CREATE = MODIFY (file was replaced)
//
// When the output channel is full the batch is dropped and an OpOverflow
// event per affected root is emitted once the consumer catches up.
type Debouncer struct {
	window time.Duration

	mu       sync.Mutex
	pending  map[string]*pendingEvent
	overflow map[string]bool
	output   chan []FileEvent
	timer    *time.Timer
	stopped  bool
}

type pendingEvent struct {
	event FileEvent
	due   time.Time
}

// NewDebouncer creates a debouncer whose output holds up to buffer batches.
func NewDebouncer(window time.Duration, buffer int) *Debouncer {
	if buffer <= 0 {
		buffer = DefaultOptions().EventBufferSize
	}
	return &Debouncer{
		window:   window,
		pending:  make(map[string]*pendingEvent),
		overflow: make(map[string]bool),
		output:   make(chan []FileEvent, buffer),
	}
}

func pendingKey(e FileEvent) string {
	if e.Operation == OpOverflow {
		return "\x00overflow\x00" + e.Root
	}
	return e.Path
}

// Add records an event and restarts its path's window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	key := pendingKey(event)
	due := time.Now().Add(d.window)
	if existing, ok := d.pending[key]; ok {
		op, keep := coalesce(existing.event.Operation, event.Operation)
		if !keep {
			delete(d.pending, key)
		} else {
			isDir := existing.event.IsDir || event.IsDir
			existing.event = event
			existing.event.Operation = op
			existing.event.IsDir = isDir
			existing.due = due
		}
	} else {
		d.pending[key] = &pendingEvent{event: event, due: due}
	}
	d.schedule()
}

// coalesce merges an earlier and a later operation on one path. It reports
// false when the two cancel out.
func coalesce(prev, next Operation) (Operation, bool) {
	if prev == OpOverflow || next == OpOverflow {
		return OpOverflow, true
	}
	switch prev {
	case OpCreate:
		switch next {
		case OpDelete:
			return 0, false
		default:
			return OpCreate, true
		}
	case OpModify:
		if next == OpDelete {
			return OpDelete, true
		}
		return OpModify, true
	case OpDelete:
		if next == OpDelete {
			return OpDelete, true
		}
		// Recreated or rewritten in place.
		return OpModify, true
	}
	return next, true
}

// schedule arms the timer for the earliest due event. Callers hold mu.
func (d *Debouncer) schedule() {
	var earliest time.Time
	for _, pe := range d.pending {
		if earliest.IsZero() || pe.due.Before(earliest) {
			earliest = pe.due
		}
	}
	if len(d.overflow) > 0 {
		retry := time.Now().Add(d.window)
		if earliest.IsZero() || retry.Before(earliest) {
			earliest = retry
		}
	}
	if earliest.IsZero() {
		if d.timer != nil {
			d.timer.Stop()
		}
		return
	}

	delay := time.Until(earliest)
	if delay < 0 {
		delay = 0
	}
	if d.timer == nil {
		d.timer = time.AfterFunc(delay, d.flush)
		return
	}
	d.timer.Reset(delay)
}

// flush emits every event whose window has passed, as one batch sorted by
// path with overflow events first.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	now := time.Now()
	var batch []FileEvent
	for key, pe := range d.pending {
		if pe.due.After(now) {
			continue
		}
		if pe.event.Operation == OpOverflow {
			d.overflow[pe.event.Root] = true
		} else {
			batch = append(batch, pe.event)
		}
		delete(d.pending, key)
	}
	for root := range d.overflow {
		batch = append(batch, FileEvent{Path: root, Root: root, Operation: OpOverflow, Timestamp: now})
	}

	if len(batch) > 0 {
		sort.SliceStable(batch, func(i, j int) bool {
			oi, oj := batch[i].Operation == OpOverflow, batch[j].Operation == OpOverflow
			if oi != oj {
				return oi
			}
			return batch[i].Path < batch[j].Path
		})
		select {
		case d.output <- batch:
			d.overflow = make(map[string]bool)
		default:
			for _, e := range batch {
				d.overflow[e.Root] = true
			}
			slog.Warn("watch_output_full",
				slog.Int("batch_size", len(batch)),
				slog.Int("overflow_roots", len(d.overflow)))
		}
	}
	d.schedule()
}

// Pending returns the number of events waiting for their window.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop drops pending events and closes the output channel. Safe to call
// multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	d.pending = make(map[string]*pendingEvent)
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
