package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/whisperpool/internal/engine"
)

const wsWriteTimeout = 10 * time.Second

// handleProgressWS implements GET /api/whisper/{id}/ws (component K): a
// websocket that streams lifecycle events for one job until it reaches a
// terminal state, then closes. Grounded on the teacher's websocket-upgrade
// handler, narrowed to a single job id via the engine's shared event bus.
// Only events published after the socket subscribes are sent; earlier
// events are not replayed. For a job that is already terminal when the
// socket opens, no message arrives and the socket stays open until the
// client closes it.
func (s *Server) handleProgressWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.engine.Status(id); err != nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsubscribe := s.engine.Subscribe()
	defer unsubscribe()

	s.metrics.WaiterConnections.Inc()
	defer s.metrics.WaiterConnections.Dec()

	// Drain client reads in the background so a closed connection is
	// noticed promptly; this connection never expects inbound messages.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.JobID != id {
				continue
			}
			writeCtxDeadline(conn, wsWriteTimeout)
			if err := conn.WriteJSON(evt); err != nil {
				s.metrics.ObserveWSWriteError("write_error")
				return
			}
			s.metrics.ObserveWSMessage("out", string(evt.Type))
			if isTerminalEvent(evt.Type) {
				return
			}
		}
	}
}

func isTerminalEvent(t engine.EventType) bool {
	switch t {
	case engine.EventDone, engine.EventFailed, engine.EventAborted:
		return true
	default:
		return false
	}
}
