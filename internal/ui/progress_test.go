package ui

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_StartsWalking(t *testing.T) {
	p := NewProgressTracker()

	st := p.Stats()

	assert.Equal(t, StageWalking, st.Stage)
	assert.Zero(t, st.Progress)
	assert.Zero(t, st.ETA)
}

func TestProgressTracker_Apply(t *testing.T) {
	// Given: a tracker processing files
	p := NewProgressTracker()
	p.Apply(ProgressEvent{Stage: StageProcessing, Current: 25, Total: 100, Path: "/docs/a.md"})

	// When: a later event carries no path
	p.Apply(ProgressEvent{Stage: StageProcessing, Current: 50, Total: 100})

	// Then: counts advance and the last path is kept
	st := p.Stats()
	assert.Equal(t, StageProcessing, st.Stage)
	assert.Equal(t, 50, st.Current)
	assert.InDelta(t, 0.5, st.Progress, 1e-9)
	assert.Equal(t, "/docs/a.md", st.Path)
}

func TestProgressTracker_ProgressIsCapped(t *testing.T) {
	p := NewProgressTracker()

	p.Apply(ProgressEvent{Stage: StageProcessing, Current: 12, Total: 10})

	assert.Equal(t, 1.0, p.Stats().Progress)
}

func TestProgressTracker_RateAndETA(t *testing.T) {
	// Given: a tracker that saw some progress
	p := NewProgressTracker()
	p.Apply(ProgressEvent{Stage: StageProcessing, Current: 0, Total: 100})
	time.Sleep(rateInterval + 50*time.Millisecond)

	// When: more files are done after a sampling interval
	p.Apply(ProgressEvent{Stage: StageProcessing, Current: 20, Total: 100})

	// Then: a rate and an ETA are estimated
	st := p.Stats()
	assert.Greater(t, st.Rate, 0.0)
	assert.Equal(t, st.Rate, st.Peak)
	assert.Greater(t, st.ETA, time.Duration(0))
}

func TestProgressTracker_AddError(t *testing.T) {
	p := NewProgressTracker()

	p.AddError(ErrorEvent{})
	p.AddError(ErrorEvent{IsWarn: true})
	p.AddError(ErrorEvent{IsWarn: true})

	st := p.Stats()
	assert.Equal(t, 1, st.Errors)
	assert.Equal(t, 2, st.Warnings)
}

func TestProgressTracker_Concurrent(t *testing.T) {
	p := NewProgressTracker()
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Apply(ProgressEvent{Stage: StageProcessing, Current: i, Total: 10})
			p.AddError(ErrorEvent{IsWarn: i%2 == 0})
			_ = p.Stats()
		}()
	}
	wg.Wait()

	st := p.Stats()
	assert.Equal(t, 10, st.Errors+st.Warnings)
}
