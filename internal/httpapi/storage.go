package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/whisperpool/internal/storage"
)

const storageRequestTimeout = 10 * time.Second

type putDocumentRequest struct {
	Data string `json:"data"`
	Type string `json:"type,omitempty"`
}

// handlePutDocument implements PUT /api/storage/{id}: creates or fully
// replaces a document. The owner key is supplied via the "key" query
// parameter and becomes the document's owner-proof secret (spec §3
// "Document (store)").
func (s *Server) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := r.URL.Query().Get("key")

	var req putDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_input", "malformed JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storageRequestTimeout)
	defer cancel()

	if err := s.store.Put(ctx, id, req.Data, key, req.Type); err != nil {
		s.metrics.ObserveStorageError("put")
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id})
}

// handleGetDocument implements GET /api/storage/{id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), storageRequestTimeout)
	defer cancel()

	docType, data, err := s.store.Get(ctx, id)
	if err != nil {
		s.respondStorageError(w, "get", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "type": docType, "data": data})
}

// handleDeleteDocument implements DELETE /api/storage/{id}: the owner key
// is supplied via the "key" query parameter and must match the document's
// stored key exactly (spec §8 testable scenario: wrong key -> 403).
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := r.URL.Query().Get("key")
	ctx, cancel := context.WithTimeout(r.Context(), storageRequestTimeout)
	defer cancel()

	if err := s.store.Remove(ctx, id, key); err != nil {
		s.respondStorageError(w, "remove", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleVerifyOwner implements GET /api/storage/{id}/verify?key=...,
// reporting whether key is the document's owner key without mutating
// anything.
func (s *Server) handleVerifyOwner(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := r.URL.Query().Get("key")
	ctx, cancel := context.WithTimeout(r.Context(), storageRequestTimeout)
	defer cancel()

	ok, err := s.store.CheckOwnerKey(ctx, id, key)
	if err != nil {
		s.respondStorageError(w, "verify", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"owner": ok})
}

// handlePutAudio implements PUT /api/storage/{id}/audio: stores the raw
// request body as the document's binary side-channel file. Unlike
// storage.PutFile itself (which has no notion of keys), this endpoint
// enforces owner-key verification so an unauthorized caller cannot
// overwrite another job's audio (spec §8 testable scenario 5).
func (s *Server) handlePutAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := r.URL.Query().Get("key")
	ctx, cancel := context.WithTimeout(r.Context(), storageRequestTimeout)
	defer cancel()

	ok, err := s.store.CheckOwnerKey(ctx, id, key)
	if err != nil {
		s.respondStorageError(w, "put_audio", err)
		return
	}
	if !ok {
		respondError(w, http.StatusForbidden, "forbidden", "key does not match document owner")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_input", "error reading body: "+err.Error())
		return
	}
	if !s.store.PutFile(id, body, ".wav") {
		s.metrics.ObserveStorageError("put_audio")
		respondError(w, http.StatusInternalServerError, "internal", "file storage disabled or write failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"stored": true})
}

// handleGetAudio implements GET /api/storage/{id}/audio.
func (s *Server) handleGetAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, ok := s.store.GetFile(id, ".wav")
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "no audio stored for this id")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	_, _ = w.Write(data)
}

// handleDeleteAudio implements DELETE /api/storage/{id}/audio, enforcing
// the same owner-key check as handlePutAudio.
func (s *Server) handleDeleteAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := r.URL.Query().Get("key")
	ctx, cancel := context.WithTimeout(r.Context(), storageRequestTimeout)
	defer cancel()

	ok, err := s.store.CheckOwnerKey(ctx, id, key)
	if err != nil {
		s.respondStorageError(w, "delete_audio", err)
		return
	}
	if !ok {
		respondError(w, http.StatusForbidden, "forbidden", "key does not match document owner")
		return
	}
	if !s.store.RemoveFile(id, ".wav") {
		respondError(w, http.StatusNotFound, "not_found", "no audio stored for this id")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func (s *Server) respondStorageError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "unknown document id")
	case errors.Is(err, storage.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden", "key does not match document owner")
	default:
		s.metrics.ObserveStorageError(op)
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
