package httpapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/antoniostano/whisperpool/internal/acoustic"
	"github.com/antoniostano/whisperpool/internal/audio"
	"github.com/antoniostano/whisperpool/internal/config"
	"github.com/antoniostano/whisperpool/internal/decoder"
	"github.com/antoniostano/whisperpool/internal/engine"
	"github.com/antoniostano/whisperpool/internal/observability"
)

// testMetrics is built once: NewMetrics registers its instruments with the
// default Prometheus registry, which rejects a second registration.
var testMetrics = observability.NewMetrics("whisperpool_test")

func testServer() *Server {
	newDriver := func() (*decoder.Driver, error) {
		return &decoder.Driver{Model: acoustic.NewModel(16000)}, nil
	}
	metrics := testMetrics
	eng := engine.New(newDriver, 2, metrics)
	cfg := config.Config{StaticAssetsPath: ""}
	return New(cfg, eng, nil, metrics)
}

func testWAVBytes(t *testing.T) []byte {
	t.Helper()
	pcm := make([]byte, 3200) // 1600 samples of silence at 16-bit mono
	wav, err := audio.EncodeWAVPCM16LE(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	return wav
}

func multipartWAVBody(t *testing.T, wav []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("input", "audio.wav")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(wav); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestHealthAndReady(t *testing.T) {
	s := testServer()
	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestEnqueueSyncModeReturnsResult(t *testing.T) {
	s := testServer()
	body, contentType := multipartWAVBody(t, testWAVBytes(t))

	req := httptest.NewRequest(http.MethodPost, "/api/whisper", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := result["segments"]; !ok {
		t.Fatalf("response missing \"segments\": %v", result)
	}
}

func TestEnqueueAsyncModeReturnsID(t *testing.T) {
	s := testServer()
	body, contentType := multipartWAVBody(t, testWAVBytes(t))

	req := httptest.NewRequest(http.MethodPost, "/api/whisper?enqueue=1", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if result["id"] == "" {
		t.Fatalf("response missing \"id\": %v", result)
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/api/whisper/"+result["id"]+"/status", nil)
	statusRec := httptest.NewRecorder()
	s.Router().ServeHTTP(statusRec, statusReq)
	if statusRec.Code != http.StatusOK {
		t.Fatalf("status endpoint: status = %d", statusRec.Code)
	}
}

func TestEnqueueMissingInputIsBadRequest(t *testing.T) {
	s := testServer()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/whisper", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStatusUnknownJobIs404(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/api/whisper/ZZZZZZ/status", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAbortUnknownJobIs404(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/api/whisper/ZZZZZZ/abort", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStorageRoutesDisabledWithoutStore(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/api/storage/abc", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (route should not exist without a store)", rec.Code)
	}
}

func TestTruthy(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"0":     false,
		"1":     true,
		"y":     true,
		"Y":     true,
		"yes":   true,
		"t":     true,
		"true":  true,
		"no":    false,
		"false": false,
	}
	for in, want := range cases {
		if got := truthy(in); got != want {
			t.Errorf("truthy(%q) = %v, want %v", in, got, want)
		}
	}
}
