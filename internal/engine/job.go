package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/antoniostano/whisperpool/internal/model"
)

// job is the registry's internal representation. Immutable request fields
// are set once at construction. status/segments are guarded by sync's
// mutex; abortRequested is a lock-free, write-once atomic.
type job struct {
	id        string
	createdAt time.Time

	samples []float32
	wavBlob []byte
	cfg     model.DecodeConfig

	abortRequested atomic.Bool

	sync *refCountedSync // lazily-allocated per-job lock + condition variable

	status   model.Status
	segments []model.Segment
}

func newJob(id string, samples []float32, wavBlob []byte, cfg model.DecodeConfig) *job {
	return &job{
		id:        id,
		createdAt: time.Now(),
		samples:   samples,
		wavBlob:   wavBlob,
		cfg:       cfg,
		status:    model.StatusWaiting,
		sync:      newRefCountedSync(),
	}
}

func (j *job) view() model.JobView {
	j.sync.mu.Lock()
	defer j.sync.mu.Unlock()
	segs := make([]model.Segment, len(j.segments))
	copy(segs, j.segments)
	return model.JobView{ID: j.id, Status: j.status, Segments: segs, CreatedAt: j.createdAt}
}

func (j *job) getStatus() model.Status {
	j.sync.mu.Lock()
	defer j.sync.mu.Unlock()
	return j.status
}

// setTerminal transitions the job to a terminal status and wakes all
// waiters. It is a no-op if the job is already terminal (defensive; the
// worker loop never calls this twice for one job).
func (j *job) setTerminal(status model.Status) {
	j.sync.mu.Lock()
	defer j.sync.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = status
	j.sync.cond.Broadcast()
}

// setRunning transitions Waiting -> Running and wakes waiters (so a waiter
// blocked on "still Waiting" re-checks).
func (j *job) setRunning() {
	j.sync.mu.Lock()
	defer j.sync.mu.Unlock()
	j.status = model.StatusRunning
	j.sync.cond.Broadcast()
}

// appendSegment is called by the worker's newSegment callback. It appends
// under the job lock and broadcasts, matching the spec's
// "append to job.segments under job.lock, notify_all" rule.
func (j *job) appendSegment(seg model.Segment) {
	j.sync.mu.Lock()
	defer j.sync.mu.Unlock()
	j.segments = append(j.segments, seg)
	j.sync.cond.Broadcast()
}

func (j *job) requestAbort() {
	j.abortRequested.Store(true)
	// Wake any waiter blocked on "status == Running"; abort alone does not
	// change status, but waiters also re-check abortRequested each wake.
	j.sync.mu.Lock()
	j.sync.cond.Broadcast()
	j.sync.mu.Unlock()
}

func (j *job) isAbortRequested() bool { return j.abortRequested.Load() }

// refCountedSync is a lazily-borrowed, reference-counted condition-variable
// handle, ported from the ReferenceKeeper<T> pattern in
// original_source/src/ref-keeper.hpp: workers and waiters each Acquire a
// scoped handle before touching job state and Release it when done, so the
// handle's lifetime is exactly "someone is still interested in this job".
//
// Go's garbage collector already reclaims the mutex/cond once nothing
// references the job, so this does not free memory early the way the C++
// original does; what it preserves is the *protocol*: every borrower must
// pair Acquire with Release, and the reference count is observable for
// tests and diagnostics without inspecting goroutine state.
type refCountedSync struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count atomic.Int32
}

func newRefCountedSync() *refCountedSync {
	s := &refCountedSync{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Acquire returns a scoped handle; call Release when done borrowing.
func (s *refCountedSync) Acquire() *syncHandle {
	s.count.Add(1)
	return &syncHandle{s: s}
}

func (s *refCountedSync) refs() int32 { return s.count.Load() }

type syncHandle struct {
	s        *refCountedSync
	released bool
}

func (h *syncHandle) Release() {
	if h.released {
		return
	}
	h.released = true
	h.s.count.Add(-1)
}
