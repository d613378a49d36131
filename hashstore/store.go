// Package hashstore persists per-leaf content hashes between sync runs.
//
// The store is a single SQLite database (pure-Go driver, no cgo) holding
// one row per (document, source language, target language, field path).
// It is the only state that survives between synchronization calls:
// everything else is recomputed from the documents themselves.
//
// Upserts are idempotent and keyed on the full tuple, so concurrent
// writers simply race to the same row and the last writer wins.
package hashstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// DefaultFileName is the database file created next to bidoc.yaml.
const DefaultFileName = "bidoc.db"

// Record is one persisted hash row.
type Record struct {
	DocumentID string
	SourceLang string
	TargetLang string
	FieldPath  string
	Hash       string
	UpdatedAt  time.Time
}

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the hash database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening hash store %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating hash store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns all known (fieldPath → hash) pairs for the document and
// language pair. An empty map means no prior state (full resync).
func (s *Store) Load(ctx context.Context, docID, sourceLang, targetLang string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field_path, hash
		FROM field_hashes
		WHERE document_id = ? AND source_lang = ? AND target_lang = ?
	`, docID, sourceLang, targetLang)
	if err != nil {
		return nil, fmt.Errorf("loading hashes for %s: %w", docID, err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("scanning hash row: %w", err)
		}
		hashes[path] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading hash rows: %w", err)
	}
	return hashes, nil
}

// Save upserts the given (fieldPath → hash) pairs for the document and
// language pair in one transaction. Existing rows are overwritten.
func (s *Store) Save(ctx context.Context, docID, sourceLang, targetLang string, hashes map[string]string) error {
	if len(hashes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO field_hashes (document_id, source_lang, target_lang, field_path, hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (document_id, source_lang, target_lang, field_path)
		DO UPDATE SET hash = excluded.hash, updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for path, hash := range hashes {
		if _, err := stmt.ExecContext(ctx, docID, sourceLang, targetLang, path, hash, now); err != nil {
			return fmt.Errorf("upserting hash for %s: %w", path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Count returns the number of stored rows for a document/language pair.
// Used by the status command.
func (s *Store) Count(ctx context.Context, docID, sourceLang, targetLang string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM field_hashes
		WHERE document_id = ? AND source_lang = ? AND target_lang = ?
	`, docID, sourceLang, targetLang).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting hashes for %s: %w", docID, err)
	}
	return n, nil
}

// Forget removes every row for a document/language pair. Used when the
// caller wants to force a full resync.
func (s *Store) Forget(ctx context.Context, docID, sourceLang, targetLang string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM field_hashes
		WHERE document_id = ? AND source_lang = ? AND target_lang = ?
	`, docID, sourceLang, targetLang)
	if err != nil {
		return fmt.Errorf("forgetting hashes for %s: %w", docID, err)
	}
	return nil
}
