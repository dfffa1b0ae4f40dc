package dispatcher

import (
	"context"
	"sync"
	"time"

	"convoy/internal/pipeline"
)

// Run tracks one ProcessAll drain from launch to completion.
type Run struct {
	started time.Time

	mu       sync.Mutex
	results  []pipeline.ItemResult
	duration time.Duration

	done chan struct{}
}

func newRun() *Run {
	return &Run{
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

// Done is closed once the run has finished and all item results are recorded.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes or the context ends.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return nil
	}
}

// Results returns a copy of the per-item results recorded so far. After Done
// is closed the slice is complete.
func (r *Run) Results() []pipeline.ItemResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pipeline.ItemResult, len(r.results))
	copy(out, r.results)
	return out
}

// Elapsed reports how long the run has been going, or its total duration once
// finished.
func (r *Run) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.duration > 0 {
		return r.duration
	}
	return time.Since(r.started)
}

func (r *Run) record(result pipeline.ItemResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *Run) finish() {
	r.mu.Lock()
	r.duration = time.Since(r.started)
	r.mu.Unlock()
	close(r.done)
}

func (r *Run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Run) tally() (processed, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.results {
		if res.Succeeded() {
			processed++
		} else {
			failed++
		}
	}
	return processed, failed
}
