// Package storage implements the document store (spec component F):
// arbitrary JSON documents keyed by an opaque id, protected by an
// owner-proof secret, plus a shared-writer grant mechanism and a binary
// file side-channel for the job's source WAV blob.
//
// Grounded on Storage/StorageImpl in original_source/src/storage.cpp and
// storage.hpp, ported from SQLite to the teacher's pgx/pgxpool stack (see
// store_postgres.go in the teacher) since the example pack carries no
// SQLite driver; see DESIGN.md for the documented deviation.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a document id has no matching row.
var ErrNotFound = errors.New("storage: document not found")

// ErrForbidden is returned when an owner-key or writer-token check fails.
var ErrForbidden = errors.New("storage: key check failed")

// Document is one stored record (spec §3 "Document (store)").
type Document struct {
	ID       string
	Type     string
	Key      string // owner-proof secret; never returned to callers via Get
	Created  time.Time
	Modified time.Time
	Data     string
}

// Writer is one shared-writer grant on a document.
type Writer struct {
	Token     string
	Timestamp time.Time
	Hint      string
}

// Store is the Postgres-backed document store plus a filesystem-backed
// binary side-channel for associated files (e.g. a job's source WAV).
type Store struct {
	pool            *pgxpool.Pool
	fileStoragePath string
}

// Open connects to databaseURL, migrates the schema, and resolves
// fileStoragePath (created if missing). An empty fileStoragePath disables
// the file side-channel: PutFile/GetFile/RemoveFile become no-ops that
// report failure, matching the reference implementation's
// file_storage_path.empty() guard.
func Open(ctx context.Context, databaseURL, fileStoragePath string) (*Store, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	s := &Store{pool: pool}
	if fileStoragePath != "" {
		if err := os.MkdirAll(fileStoragePath, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create file storage path %q: %w", fileStoragePath, err)
		}
		resolved, err := filepath.Abs(fileStoragePath)
		if err != nil {
			return nil, fmt.Errorf("storage: resolve file storage path %q: %w", fileStoragePath, err)
		}
		s.fileStoragePath = resolved
	}
	return s, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL DEFAULT 'json',
			key TEXT NOT NULL DEFAULT '',
			created TIMESTAMPTZ NOT NULL DEFAULT now(),
			modified TIMESTAMPTZ NOT NULL DEFAULT now(),
			data TEXT NOT NULL DEFAULT ''
		);`,
		`ALTER TABLE documents ADD COLUMN IF NOT EXISTS type TEXT NOT NULL DEFAULT 'json';`,
		`ALTER TABLE documents ADD COLUMN IF NOT EXISTS key TEXT NOT NULL DEFAULT '';`,
		`ALTER TABLE documents ADD COLUMN IF NOT EXISTS created TIMESTAMPTZ NOT NULL DEFAULT now();`,
		`ALTER TABLE documents ADD COLUMN IF NOT EXISTS modified TIMESTAMPTZ NOT NULL DEFAULT now();`,
		`UPDATE documents SET created = now() WHERE created IS NULL;`,
		`UPDATE documents SET modified = created WHERE modified IS NULL;`,
		`CREATE INDEX IF NOT EXISTS documents_index ON documents (id);`,
		`CREATE TABLE IF NOT EXISTS shared_document_writers (
			document_id TEXT NOT NULL,
			token TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			hint TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS shared_document_writers_index_document_id ON shared_document_writers (document_id);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS shared_document_writers_index_token ON shared_document_writers (document_id, token);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("storage: init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Token derives a shared-writer token from a document id and a key,
// matching the reference's get_token: SHA256(id || key), hex-encoded.
func Token(id, key string) string {
	sum := sha256.Sum256([]byte(id + key))
	return hex.EncodeToString(sum[:])
}

// Put inserts or fully replaces a document.
func (s *Store) Put(ctx context.Context, id, data, key, docType string) error {
	if docType == "" {
		docType = "json"
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, type, key, data) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET type = EXCLUDED.type, key = EXCLUDED.key, data = EXCLUDED.data, modified = now()`,
		id, docType, key, data)
	if err != nil {
		return fmt.Errorf("storage: put %q: %w", id, err)
	}
	return nil
}

// Get returns a document's type and data. ErrNotFound if id is unknown.
func (s *Store) Get(ctx context.Context, id string) (docType, data string, err error) {
	row := s.pool.QueryRow(ctx, `SELECT type, data FROM documents WHERE id = $1`, id)
	if err := row.Scan(&docType, &data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrNotFound
		}
		return "", "", fmt.Errorf("storage: get %q: %w", id, err)
	}
	return docType, data, nil
}

// Update replaces a document's data after verifying accessToken against
// the owner's derived token. Returns ErrNotFound if id is unknown,
// ErrForbidden if accessToken doesn't match.
func (s *Store) Update(ctx context.Context, id, data, accessToken string) error {
	ownerKey, err := s.ownerKey(ctx, id)
	if err != nil {
		return err
	}
	if Token(id, ownerKey) != accessToken {
		return ErrForbidden
	}
	if _, err := s.pool.Exec(ctx, `UPDATE documents SET data = $2, modified = now() WHERE id = $1`, id, data); err != nil {
		return fmt.Errorf("storage: update %q: %w", id, err)
	}
	return nil
}

// Remove deletes a document if key matches its owner key, then removes
// any associated files. Returns ErrForbidden if key doesn't match (the
// row is left untouched in that case), ErrNotFound if id is unknown.
func (s *Store) Remove(ctx context.Context, id, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND coalesce(key, '') = $2`, id, key)
	if err != nil {
		return fmt.Errorf("storage: remove %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.ownerKey(ctx, id); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrForbidden
	}
	s.RemoveFiles(id)
	return nil
}

// CheckOwnerKey reports whether key matches id's owner key.
func (s *Store) CheckOwnerKey(ctx context.Context, id, key string) (bool, error) {
	ownerKey, err := s.ownerKey(ctx, id)
	if err != nil {
		return false, err
	}
	return ownerKey == key, nil
}

// CheckWriterKey reports whether key derives a token present in the
// shared-writer grants for id.
func (s *Store) CheckWriterKey(ctx context.Context, id, key string) (bool, error) {
	token := Token(id, key)
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM shared_document_writers WHERE document_id = $1 AND token = $2`,
		id, token).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("storage: check writer key %q: %w", id, err)
	}
	return count > 0, nil
}

// AddWriterKey grants a new shared-writer token derived from key, after
// verifying accessToken against the owner's token. Returns ErrForbidden on
// mismatch.
func (s *Store) AddWriterKey(ctx context.Context, id, accessToken, key, hint string) error {
	ownerKey, err := s.ownerKey(ctx, id)
	if err != nil {
		return err
	}
	if Token(id, ownerKey) != accessToken {
		return ErrForbidden
	}
	token := Token(id, key)
	_, err = s.pool.Exec(ctx,
		`INSERT INTO shared_document_writers (document_id, token, hint) VALUES ($1, $2, $3)
		 ON CONFLICT (document_id, token) DO UPDATE SET hint = EXCLUDED.hint, timestamp = now()`,
		id, token, hint)
	if err != nil {
		return fmt.Errorf("storage: add writer key %q: %w", id, err)
	}
	return nil
}

// GetDocumentWriters lists shared-writer grants for id, after verifying
// ownerKey.
func (s *Store) GetDocumentWriters(ctx context.Context, id, ownerKey string) ([]Writer, error) {
	actualOwnerKey, err := s.ownerKey(ctx, id)
	if err != nil {
		return nil, err
	}
	if actualOwnerKey != ownerKey {
		return nil, ErrForbidden
	}

	rows, err := s.pool.Query(ctx,
		`SELECT token, timestamp, hint FROM shared_document_writers WHERE document_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("storage: get document writers %q: %w", id, err)
	}
	defer rows.Close()

	var writers []Writer
	for rows.Next() {
		var w Writer
		if err := rows.Scan(&w.Token, &w.Timestamp, &w.Hint); err != nil {
			return nil, fmt.Errorf("storage: scan writer row: %w", err)
		}
		writers = append(writers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate writer rows: %w", err)
	}
	return writers, nil
}

// RemoveDocumentWriter revokes a shared-writer grant, after verifying
// ownerKey.
func (s *Store) RemoveDocumentWriter(ctx context.Context, id, token, ownerKey string) error {
	actualOwnerKey, err := s.ownerKey(ctx, id)
	if err != nil {
		return err
	}
	if actualOwnerKey != ownerKey {
		return ErrForbidden
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM shared_document_writers WHERE document_id = $1 AND token = $2`, id, token); err != nil {
		return fmt.Errorf("storage: remove document writer %q: %w", id, err)
	}
	return nil
}

// UpdateDocumentWriterHint updates a shared-writer grant's hint, after
// verifying ownerKey.
func (s *Store) UpdateDocumentWriterHint(ctx context.Context, id, token, ownerKey, hint string) error {
	actualOwnerKey, err := s.ownerKey(ctx, id)
	if err != nil {
		return err
	}
	if actualOwnerKey != ownerKey {
		return ErrForbidden
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE shared_document_writers SET hint = $3 WHERE document_id = $1 AND token = $2`, id, token, hint); err != nil {
		return fmt.Errorf("storage: update document writer hint %q: %w", id, err)
	}
	return nil
}

func (s *Store) ownerKey(ctx context.Context, id string) (string, error) {
	var key string
	err := s.pool.QueryRow(ctx, `SELECT key FROM documents WHERE id = $1`, id).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("storage: get owner key %q: %w", id, err)
	}
	return key, nil
}

// PutFile writes data as the binary side-channel file for id (default
// extension ".wav"). Returns false if the file storage path is disabled or
// the write fails.
func (s *Store) PutFile(id string, data []byte, ext string) bool {
	if s.fileStoragePath == "" {
		return false
	}
	if ext == "" {
		ext = ".wav"
	}
	path := filepath.Join(s.fileStoragePath, id+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false
	}
	return true
}

// GetFile reads the binary side-channel file for id. ok is false if the
// file storage path is disabled or the file does not exist.
func (s *Store) GetFile(id, ext string) (data []byte, ok bool) {
	if s.fileStoragePath == "" {
		return nil, false
	}
	if ext == "" {
		ext = ".wav"
	}
	path := filepath.Join(s.fileStoragePath, id+ext)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return b, true
}

// RemoveFile deletes one side-channel file for id.
func (s *Store) RemoveFile(id, ext string) bool {
	if s.fileStoragePath == "" {
		return false
	}
	if ext == "" {
		ext = ".wav"
	}
	path := filepath.Join(s.fileStoragePath, id+ext)
	return os.Remove(path) == nil
}

// RemoveFiles deletes every side-channel file whose basename (sans
// extension) equals id, regardless of extension. Unlike the reference
// implementation's remove_files (which defaults its success flag to false
// even when zero matching files is the correct, successful outcome), this
// reports success unless the directory scan or one of the deletions fails,
// matching the resolution recorded in DESIGN.md.
func (s *Store) RemoveFiles(id string) bool {
	if s.fileStoragePath == "" {
		return false
	}
	entries, err := os.ReadDir(s.fileStoragePath)
	if err != nil {
		return false
	}
	ok := true
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) != id {
			continue
		}
		if err := os.Remove(filepath.Join(s.fileStoragePath, name)); err != nil {
			ok = false
		}
	}
	return ok
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
