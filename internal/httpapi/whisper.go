package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/whisperpool/internal/audio"
	"github.com/antoniostano/whisperpool/internal/engine"
	"github.com/antoniostano/whisperpool/internal/model"
)

const maxUploadBytes = 64 << 20 // 64 MiB

// handleEnqueue implements POST /api/whisper (spec §6 "Enqueue").
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "bad_input", "malformed multipart/form-data: "+err.Error())
		return
	}

	file, _, err := r.FormFile("input")
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_input", "missing required field \"input\"")
		return
	}
	defer file.Close()

	wavBlob, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_input", "error reading upload: "+err.Error())
		return
	}

	info, err := audio.DecodeWAV(wavBlob)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_input", "unreadable WAV: "+err.Error())
		return
	}
	if len(info.Samples) == 0 {
		respondError(w, http.StatusBadRequest, "bad_input", "zero-sample PCM")
		return
	}

	cfg := model.DefaultDecodeConfig()
	cfg.VAD.SampleRate = info.SampleRate
	if lang := strings.TrimSpace(r.FormValue("lang")); lang != "" {
		cfg.Language = lang
	}
	if v := strings.TrimSpace(r.FormValue("use_vad")); v != "" {
		cfg.UseVAD = truthy(v)
	}
	if v := strings.TrimSpace(r.FormValue("threads")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Threads = n
		}
	}
	if preset := strings.TrimSpace(r.FormValue("dtw_preset")); preset != "" {
		cfg.DTWPreset = preset
	}

	queueMode := truthy(r.URL.Query().Get("enqueue")) ||
		truthy(r.URL.Query().Get("queue")) ||
		truthy(r.URL.Query().Get("q"))

	id, err := s.engine.Enqueue(info.Samples, wavBlob, cfg)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	s.metrics.ObserveJobEnqueued()

	if s.store != nil {
		s.store.PutFile(id, wavBlob, ".wav")
	}

	if queueMode {
		respondJSON(w, http.StatusOK, map[string]string{"id": id})
		return
	}

	status, err := s.engine.Wait(id, func([]model.Segment, int) bool { return false })
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	s.respondResult(w, id, status)
}

// handleStatus implements GET /api/whisper/{id}/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.engine.Status(id)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// handleAbort implements GET /api/whisper/{id}/abort.
func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Abort(id); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"aborted": true})
}

// handleWait implements GET /api/whisper/{id}/wait: a chunked JSONL stream
// of segments followed by a terminal marker line (spec §6 "Stream
// results").
func (s *Server) handleWait(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	w.Header().Set("Content-Type", "application/jsonl")
	flusher, canFlush := w.(http.Flusher)

	s.metrics.WaiterConnections.Inc()
	defer s.metrics.WaiterConnections.Dec()

	delivered := 0
	status, err := s.engine.Wait(id, func(segments []model.Segment, newCount int) bool {
		if newCount == 0 {
			return false
		}
		for _, seg := range segments[delivered:] {
			_ = writeJSONLine(w, seg)
		}
		delivered = len(segments)
		if canFlush {
			flusher.Flush()
		}
		return false
	})
	if err != nil {
		if errors.Is(err, engine.ErrJobNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		_ = writeJSONLine(w, map[string]string{"error": "internal"})
		return
	}

	switch status {
	case model.StatusDone:
		_ = writeJSONLine(w, map[string]bool{"done": true})
	case model.StatusFailed:
		_ = writeJSONLine(w, map[string]string{"error": "failed"})
	case model.StatusAborted:
		_ = writeJSONLine(w, map[string]string{"error": "aborted"})
	}
	if canFlush {
		flusher.Flush()
	}
}

func writeJSONLine(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

func (s *Server) respondResult(w http.ResponseWriter, id string, status model.Status) {
	view, err := s.engine.Results(id)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	lang := ""
	if len(view.Segments) > 0 {
		lang = view.Segments[len(view.Segments)-1].Lang
	}
	result := model.Result{Segments: view.Segments, Lang: lang}
	switch status {
	case model.StatusFailed:
		respondError(w, http.StatusInternalServerError, "decoder_error", "decode failed")
		return
	case model.StatusAborted:
		respondError(w, http.StatusConflict, "aborted", "job was aborted")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "unknown job id")
		return
	}
	respondError(w, http.StatusInternalServerError, "internal", err.Error())
}
