package ui

import (
	"sync"
	"time"
)

const (
	// rateInterval is how often the files/sec rate is sampled.
	rateInterval = 500 * time.Millisecond

	// Weights of the newest sample in the moving averages.
	rateSmoothing = 0.2
	etaSmoothing  = 0.3
)

// ProgressTracker accumulates progress for the TUI. It is safe for
// concurrent use.
type ProgressTracker struct {
	mu         sync.Mutex
	stage      Stage
	current    int
	total      int
	path       string
	start      time.Time
	stageStart time.Time
	errors     int
	warnings   int

	lastCount int
	lastTick  time.Time
	rate      float64
	peak      float64
	lastETA   time.Duration
}

// ProgressStats is a snapshot of a tracker.
type ProgressStats struct {
	Stage    Stage
	Current  int
	Total    int
	Progress float64
	ETA      time.Duration
	Elapsed  time.Duration
	Path     string
	Errors   int
	Warnings int

	// Rate is the smoothed files/sec, Peak its highest sample.
	Rate float64
	Peak float64
}

func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{stage: StageWalking, start: now, stageStart: now, lastTick: now}
}

// Apply records an event. Entering a new stage resets the counters and
// the ETA.
func (p *ProgressTracker) Apply(ev ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if ev.Stage != p.stage {
		p.stage = ev.Stage
		p.stageStart = now
		p.lastCount = 0
		p.lastTick = now
		p.lastETA = 0
	}
	p.current = ev.Current
	p.total = ev.Total
	if ev.Path != "" {
		p.path = ev.Path
	}

	elapsed := now.Sub(p.lastTick)
	if elapsed < rateInterval {
		return
	}
	if delta := ev.Current - p.lastCount; delta > 0 {
		sample := float64(delta) / elapsed.Seconds()
		if p.rate == 0 {
			p.rate = sample
		} else {
			p.rate = rateSmoothing*sample + (1-rateSmoothing)*p.rate
		}
		p.peak = max(p.peak, sample)
	}
	p.lastCount = ev.Current
	p.lastTick = now
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(ev ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Stats returns a snapshot. It takes the write lock since the ETA is
// smoothed across calls.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Stage:    p.stage,
		Current:  p.current,
		Total:    p.total,
		Progress: fraction(p.current, p.total),
		ETA:      p.eta(),
		Elapsed:  time.Since(p.start),
		Path:     p.path,
		Errors:   p.errors,
		Warnings: p.warnings,
		Rate:     p.rate,
		Peak:     p.peak,
	}
}

func (p *ProgressTracker) eta() time.Duration {
	done := fraction(p.current, p.total)
	if done <= 0 || done >= 1 {
		return 0
	}
	elapsed := time.Since(p.stageStart)
	remaining := time.Duration(float64(elapsed)/done) - elapsed
	if remaining < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	p.lastETA = time.Duration(etaSmoothing*float64(remaining) + (1-etaSmoothing)*float64(p.lastETA))
	return p.lastETA
}

func fraction(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	return min(float64(current)/float64(total), 1)
}
