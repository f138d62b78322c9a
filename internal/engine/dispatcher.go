// Package engine implements the asynchronous transcription job engine: the
// job registry (component C), the dispatcher/worker pool (component D),
// and the waiter protocol (component E). It is grounded on
// WhisperQueueProcessorImpl in original_source/src/whisper.cpp, adapted to
// Go goroutines/channels, and on the teacher's
// internal/taskruntime/service.go goroutine-launch idiom.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/antoniostano/whisperpool/internal/decoder"
	"github.com/antoniostano/whisperpool/internal/model"
	"github.com/antoniostano/whisperpool/internal/observability"
)

// DriverFactory constructs one decoder.Driver per worker. Workers keep
// their driver warm across jobs; the factory is called once per spawned
// worker, never per job.
type DriverFactory func() (*decoder.Driver, error)

// Engine is the bounded worker pool: it accepts jobs, dispatches them to at
// most MaxInstances concurrently-decoding workers, and exposes the waiter
// protocol and job status queries.
type Engine struct {
	registry  *registry
	queue     fifoQueue
	newDriver DriverFactory
	events    *bus

	maxInstances int64
	sem          *semaphore.Weighted // bounds concurrent decode calls (testable property: at most MaxInstances)

	mu      sync.Mutex
	active  int
	eg      *errgroup.Group
	metrics *observability.Metrics
}

// New constructs an Engine. maxInstances <= 0 defaults to 2, matching the
// reference implementation's default. metrics may be nil.
func New(newDriver DriverFactory, maxInstances int, metrics *observability.Metrics) *Engine {
	if maxInstances <= 0 {
		maxInstances = 2
	}
	return &Engine{
		registry:     newRegistry(),
		newDriver:    newDriver,
		events:       newBus(),
		maxInstances: int64(maxInstances),
		sem:          semaphore.NewWeighted(int64(maxInstances)),
		eg:           &errgroup.Group{},
		metrics:      metrics,
	}
}

// Enqueue assigns an id, inserts the job as Waiting, pushes it onto the
// FIFO queue, and spawns a worker if capacity allows. Matches spec §4.4
// "Submission".
func (e *Engine) Enqueue(samples []float32, wavBlob []byte, cfg model.DecodeConfig) (string, error) {
	j, err := e.registry.insert(samples, wavBlob, cfg)
	if err != nil {
		return "", err
	}
	e.queue.push(j.id)
	e.metrics.SetQueueDepth(e.queue.len())
	e.events.publish(j.id, EventQueued, nil)
	e.maybeSpawnWorker()
	return j.id, nil
}

func (e *Engine) maybeSpawnWorker() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int64(e.active) >= e.maxInstances {
		return
	}
	e.active++
	e.metrics.SetActiveWorkers(e.active)
	e.eg.Go(func() error {
		defer func() {
			e.mu.Lock()
			e.active--
			e.metrics.SetActiveWorkers(e.active)
			e.mu.Unlock()
		}()
		e.runWorker()
		return nil
	})
}

// runWorker is one worker's lifetime: acquire a decoder, drain the FIFO
// queue non-blockingly, decode each job, then exit. Ported from the
// processor() loop in original_source/src/whisper.cpp.
func (e *Engine) runWorker() {
	driver, err := e.newDriver()
	if err != nil {
		log.Printf("engine: worker could not construct a decoder driver: %v", err)
		return
	}

	var localAbort atomic.Bool

	for {
		id, ok := e.queue.pop()
		if !ok {
			return
		}
		e.metrics.SetQueueDepth(e.queue.len())
		j, ok := e.registry.lookup(id)
		if !ok {
			continue
		}

		if j.isAbortRequested() {
			j.setTerminal(model.StatusAborted)
			e.metrics.ObserveJobFinished(string(model.StatusAborted))
			e.events.publish(id, EventAborted, nil)
			continue
		}

		localAbort.Store(false)
		handle := j.sync.Acquire()
		j.setRunning()
		e.events.publish(id, EventRunning, nil)

		if err := e.sem.Acquire(context.Background(), 1); err != nil {
			handle.Release()
			j.setTerminal(model.StatusFailed)
			e.metrics.ObserveJobFinished(string(model.StatusFailed))
			continue
		}
		start := time.Now()
		outcome := func() (out decoder.Outcome) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("engine: recovered panic while decoding job %s: %v", id, r)
					out = decoder.Outcome{Kind: decoder.ModelError, Err: fmt.Errorf("engine: decode panic: %v", r)}
				}
			}()
			return driver.Run(j.samples, j.cfg, func(seg model.Segment) bool {
				j.appendSegment(seg)
				e.metrics.ObserveSegmentEmitted()
				e.events.publish(id, EventSegment, &seg)
				return false
			}, func() bool {
				return localAbort.Load() || j.isAbortRequested()
			})
		}()
		e.metrics.ObserveDecodeLatency(time.Since(start))
		e.sem.Release(1)

		status := outcomeStatus(outcome)
		j.setTerminal(status)
		e.metrics.ObserveJobFinished(string(status))
		switch status {
		case model.StatusDone:
			e.events.publish(id, EventDone, nil)
		case model.StatusAborted:
			e.events.publish(id, EventAborted, nil)
		default:
			e.events.publish(id, EventFailed, nil)
		}
		handle.Release()
	}
}

func outcomeStatus(o decoder.Outcome) model.Status {
	switch o.Kind {
	case decoder.Ok:
		return model.StatusDone
	case decoder.Aborted:
		return model.StatusAborted
	default:
		return model.StatusFailed
	}
}

// Abort sets the job's abort flag. If a worker is currently processing it,
// the worker's own shouldAbort poll (combining the job flag) will notice
// promptly; a still-Waiting job is aborted the next time a worker dequeues
// it. Returns ErrJobNotFound if id is unknown.
func (e *Engine) Abort(id string) error {
	j, ok := e.registry.lookup(id)
	if !ok {
		return ErrJobNotFound
	}
	j.requestAbort()
	return nil
}

// Status returns the job's current status. O(1) under the job's own lock.
func (e *Engine) Status(id string) (model.Status, error) {
	j, ok := e.registry.lookup(id)
	if !ok {
		return "", ErrJobNotFound
	}
	return j.getStatus(), nil
}

// Results returns a snapshot of a job's segments. Safe to call at any time;
// for a Running job the snapshot reflects whatever has been appended so
// far, not the final result.
func (e *Engine) Results(id string) (model.JobView, error) {
	j, ok := e.registry.lookup(id)
	if !ok {
		return model.JobView{}, ErrJobNotFound
	}
	return j.view(), nil
}

// Subscribe returns a channel of lifecycle events for all jobs (component
// K, the realtime progress channel). Callers filter by JobID themselves;
// filtering server-side would require per-job fan-out bookkeeping the
// spec does not ask for.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.events.subscribe()
}

// Shutdown waits for all in-flight workers to drain (no new jobs are
// accepted concurrently with Shutdown by contract of the caller) or until
// ctx is done.
func (e *Engine) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- e.eg.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("engine: shutdown: %w", ctx.Err())
	}
}
