// Package httpapi implements the HTTP boundary (component G): thin chi
// handlers translating the job engine and document store's contracts into
// the wire protocol in spec §6. Grounded on the teacher's
// internal/httpapi/server.go chi-router and websocket-upgrade idioms.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/whisperpool/internal/config"
	"github.com/antoniostano/whisperpool/internal/engine"
	"github.com/antoniostano/whisperpool/internal/observability"
	"github.com/antoniostano/whisperpool/internal/storage"
)

// Server holds everything the HTTP boundary adapts: the job engine, the
// document store, configuration, and metrics.
type Server struct {
	cfg      config.Config
	engine   *engine.Engine
	store    *storage.Store
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	static   http.Handler
}

// New constructs a Server. store may be nil if the document-store routes
// should be disabled (e.g. in tests that only exercise the job engine).
func New(cfg config.Config, eng *engine.Engine, store *storage.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		engine:  eng,
		store:   store,
		metrics: metrics,
		static:  newStaticHandler(cfg.StaticAssetsPath),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// Router builds the chi mux for the whole service.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/api/whisper", s.handleEnqueue)
	r.Get("/api/whisper/{id}/status", s.handleStatus)
	r.Get("/api/whisper/{id}/abort", s.handleAbort)
	r.Get("/api/whisper/{id}/wait", s.handleWait)
	r.Get("/api/whisper/{id}/ws", s.handleProgressWS)

	if s.store != nil {
		r.Put("/api/storage/{id}", s.handlePutDocument)
		r.Get("/api/storage/{id}", s.handleGetDocument)
		r.Delete("/api/storage/{id}", s.handleDeleteDocument)
		r.Get("/api/storage/{id}/verify", s.handleVerifyOwner)
		r.Put("/api/storage/{id}/audio", s.handlePutAudio)
		r.Get("/api/storage/{id}/audio", s.handleGetAudio)
		r.Delete("/api/storage/{id}/audio", s.handleDeleteAudio)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// truthy implements spec §6's query-flag grammar: "1" or any value
// starting with y/Y or t/T.
func truthy(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	if v == "1" {
		return true
	}
	c := v[0]
	return c == 'y' || c == 'Y' || c == 't' || c == 'T'
}

func writeCtxDeadline(conn *websocket.Conn, d time.Duration) {
	_ = conn.SetWriteDeadline(time.Now().Add(d))
}
