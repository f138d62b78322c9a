package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTokenDeterministic(t *testing.T) {
	a := Token("doc1", "secret")
	b := Token("doc1", "secret")
	if a != b {
		t.Fatalf("expected deterministic token, got %q vs %q", a, b)
	}
	if len(a) != 64 { // hex-encoded SHA-256
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestTokenDiffersByInput(t *testing.T) {
	if Token("doc1", "secret") == Token("doc2", "secret") {
		t.Fatal("expected different ids to produce different tokens")
	}
	if Token("doc1", "secret") == Token("doc1", "other") {
		t.Fatal("expected different keys to produce different tokens")
	}
}

func TestFileSideChannelRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := &Store{fileStoragePath: dir}

	if !s.PutFile("abc123", []byte("riff-wav-bytes"), ".wav") {
		t.Fatal("expected PutFile to succeed")
	}

	data, ok := s.GetFile("abc123", ".wav")
	if !ok {
		t.Fatal("expected GetFile to find the file")
	}
	if string(data) != "riff-wav-bytes" {
		t.Fatalf("expected round-tripped bytes, got %q", data)
	}

	if !s.RemoveFile("abc123", ".wav") {
		t.Fatal("expected RemoveFile to succeed")
	}
	if _, ok := s.GetFile("abc123", ".wav"); ok {
		t.Fatal("expected file to be gone after RemoveFile")
	}
}

func TestFileSideChannelDisabled(t *testing.T) {
	s := &Store{}
	if s.PutFile("abc123", []byte("x"), ".wav") {
		t.Fatal("expected PutFile to fail when file storage is disabled")
	}
	if _, ok := s.GetFile("abc123", ".wav"); ok {
		t.Fatal("expected GetFile to fail when file storage is disabled")
	}
	if s.RemoveFile("abc123", ".wav") {
		t.Fatal("expected RemoveFile to fail when file storage is disabled")
	}
}

func TestRemoveFilesMatchesByBasenameAcrossExtensions(t *testing.T) {
	dir := t.TempDir()
	s := &Store{fileStoragePath: dir}

	s.PutFile("job1", []byte("a"), ".wav")
	s.PutFile("job1", []byte("b"), ".json")
	s.PutFile("job2", []byte("c"), ".wav")

	if !s.RemoveFiles("job1") {
		t.Fatal("expected RemoveFiles to report success")
	}

	if _, err := os.Stat(filepath.Join(dir, "job1.wav")); err == nil {
		t.Fatal("expected job1.wav to be removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "job1.json")); err == nil {
		t.Fatal("expected job1.json to be removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "job2.wav")); err != nil {
		t.Fatal("expected job2.wav to remain")
	}
}

func TestRemoveFilesNoMatchesStillSucceeds(t *testing.T) {
	dir := t.TempDir()
	s := &Store{fileStoragePath: dir}
	if !s.RemoveFiles("nonexistent") {
		t.Fatal("expected RemoveFiles with no matches to report success")
	}
}
