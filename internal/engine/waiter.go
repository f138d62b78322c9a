package engine

import (
	"errors"

	"github.com/antoniostano/whisperpool/internal/model"
)

var (
	ErrJobNotFound = errors.New("engine: job not found")
)

// OnSegments is invoked with the full segment slice observed so far and the
// count of segments newly appended since the previous call. newCount == 0
// signals the terminal delivery (job reached a terminal status). Returning
// true requests early stop (the waiter detaches without waiting for
// completion).
type OnSegments func(segments []model.Segment, newCount int) (stop bool)

// Wait implements the blocking-wait-with-streaming-callback waiter (spec
// §4.5). It acquires a scoped reference to the job's sync handle so the
// handle outlives the call, blocks on the job's condition variable between
// deliveries, and returns the job's terminal status once reached (or the
// current status if the caller's callback requested stop early).
func (e *Engine) Wait(id string, onSegments OnSegments) (model.Status, error) {
	j, ok := e.registry.lookup(id)
	if !ok {
		return "", ErrJobNotFound
	}

	handle := j.sync.Acquire()
	defer handle.Release()

	consumed := 0

	for {
		j.sync.mu.Lock()
		// Block until either a new segment has been appended or the job has
		// reached a terminal status. abort_requested alone never wakes this
		// loop with new data to deliver — only the subsequent status
		// transition does, which Broadcast already covers.
		for consumed == len(j.segments) && !j.status.Terminal() {
			j.sync.cond.Wait()
		}
		// Snapshot under lock, then release before invoking the callback so
		// the worker is never blocked waiting on a slow consumer.
		segs := make([]model.Segment, len(j.segments))
		copy(segs, j.segments)
		status := j.status
		newCount := len(segs) - consumed
		j.sync.mu.Unlock()

		if newCount > 0 {
			consumed = len(segs)
			if onSegments(segs, newCount) {
				return status, nil
			}
		}

		if status.Terminal() {
			onSegments(segs, 0)
			return status, nil
		}
	}
}
