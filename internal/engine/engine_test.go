package engine

import (
	"context"
	"testing"
	"time"

	"github.com/antoniostano/whisperpool/internal/acoustic"
	"github.com/antoniostano/whisperpool/internal/decoder"
	"github.com/antoniostano/whisperpool/internal/model"
)

func testDriverFactory() DriverFactory {
	return func() (*decoder.Driver, error) {
		return &decoder.Driver{Model: acoustic.NewModel(16000)}, nil
	}
}

func sineSamples(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 0.1
	}
	return out
}

func TestEnqueueAndWaitReachesDone(t *testing.T) {
	e := New(testDriverFactory(), 2, nil)
	id, err := e.Enqueue(sineSamples(1600), nil, model.DefaultDecodeConfig())
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	status, err := e.Wait(id, func([]model.Segment, int) bool { return false })
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if status != model.StatusDone {
		t.Fatalf("status = %v, want Done", status)
	}
}

func TestStatusUnknownJobIsNotFound(t *testing.T) {
	e := New(testDriverFactory(), 2, nil)
	if _, err := e.Status("does-not-exist"); err != ErrJobNotFound {
		t.Fatalf("Status() error = %v, want ErrJobNotFound", err)
	}
}

func TestAbortUnknownJobIsNotFound(t *testing.T) {
	e := New(testDriverFactory(), 2, nil)
	if err := e.Abort("does-not-exist"); err != ErrJobNotFound {
		t.Fatalf("Abort() error = %v, want ErrJobNotFound", err)
	}
}

func TestAbortBeforeDispatchMarksJobAborted(t *testing.T) {
	// A worker builds its driver before it pops the queue, so a factory
	// that blocks until released keeps the job Waiting until Abort has
	// been called.
	release := make(chan struct{})
	factory := func() (*decoder.Driver, error) {
		<-release
		return testDriverFactory()()
	}
	e := New(factory, 1, nil)
	id, err := e.Enqueue(sineSamples(1600), nil, model.DefaultDecodeConfig())
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	_ = e.Abort(id)
	close(release)

	status, err := e.Wait(id, func([]model.Segment, int) bool { return false })
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if status != model.StatusAborted {
		t.Fatalf("status = %v, want Aborted", status)
	}
}

func TestResultsSnapshotBeforeTerminalIsNotFinal(t *testing.T) {
	e := New(testDriverFactory(), 2, nil)
	id, err := e.Enqueue(sineSamples(1600), nil, model.DefaultDecodeConfig())
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := e.Results(id); err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if _, err := e.Wait(id, func([]model.Segment, int) bool { return false }); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	view, err := e.Results(id)
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if view.Status != model.StatusDone {
		t.Fatalf("view.Status = %v, want Done", view.Status)
	}
}

func TestEightJobsOnTwoInstancesAllReachDone(t *testing.T) {
	e := New(testDriverFactory(), 2, nil)
	ids := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		id, err := e.Enqueue(sineSamples(1600), nil, model.DefaultDecodeConfig())
		if err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		status, err := e.Wait(id, func([]model.Segment, int) bool { return false })
		if err != nil {
			t.Fatalf("Wait(%s) error = %v", id, err)
		}
		if status != model.StatusDone {
			t.Fatalf("job %s status = %v, want Done", id, status)
		}
	}
}

func TestSubscribePublishesLifecycleEvents(t *testing.T) {
	e := New(testDriverFactory(), 2, nil)
	events, unsubscribe := e.Subscribe()
	defer unsubscribe()

	id, err := e.Enqueue(sineSamples(1600), nil, model.DefaultDecodeConfig())
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	seenDone := false
	timeout := time.After(2 * time.Second)
	for !seenDone {
		select {
		case evt := <-events:
			if evt.JobID != id {
				continue
			}
			if evt.Type == EventDone {
				seenDone = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for EventDone")
		}
	}
}

func TestShutdownDrainsInFlightWorkers(t *testing.T) {
	e := New(testDriverFactory(), 2, nil)
	if _, err := e.Enqueue(sineSamples(1600), nil, model.DefaultDecodeConfig()); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
