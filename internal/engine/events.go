package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/antoniostano/whisperpool/internal/model"
)

// EventType distinguishes the job lifecycle notifications pushed onto the
// realtime progress channel (spec SPEC_FULL §2 component K).
type EventType string

const (
	EventQueued    EventType = "queued"
	EventRunning   EventType = "running"
	EventSegment   EventType = "segment"
	EventDone      EventType = "done"
	EventFailed    EventType = "failed"
	EventAborted   EventType = "aborted"
)

// Event is one lifecycle notification for a single job.
type Event struct {
	ID      string        `json:"id"`
	JobID   string        `json:"job_id"`
	Type    EventType     `json:"type"`
	Segment *model.Segment `json:"segment,omitempty"`
	At      time.Time     `json:"at"`
}

// bus is a best-effort pub/sub fan-out of job events to subscribers (the
// websocket progress channel), grounded on the teacher's
// internal/tasks/manager.go Subscribe/publishLocked pattern: bounded
// per-subscriber channel, non-blocking send so a slow consumer never stalls
// a worker.
type bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func newBus() *bus {
	return &bus{subs: make(map[int]chan Event)}
}

// subscribe returns a channel of events for every job and an unsubscribe
// func; callers filter by JobID themselves.
func (b *bus) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
}

func (b *bus) publish(jobID string, typ EventType, seg *model.Segment) {
	evt := Event{ID: uuid.NewString(), JobID: jobID, Type: typ, Segment: seg, At: time.Now()}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// slow subscriber: drop rather than block a worker goroutine
		}
	}
}
