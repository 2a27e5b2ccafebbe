// Package storage implements the durable key-document store backing the
// annotation store.
//
// The contract is deliberately forgiving: Load reports absence rather than
// failing, malformed documents surface as errors the caller recovers from
// (falling back to an empty structure), and Save failures are logged by the
// caller rather than propagated to the user. Documents are whole-collection
// JSON blobs keyed by kind ("notes", "bookmarks", ...), written eagerly on
// every mutation.
package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/FocuswithJustin/Lectern/core/errors"
	"github.com/FocuswithJustin/Lectern/core/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Store is a SQLite-backed key-document store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the store at path. Use ":memory:" for
// an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewStorage("open", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.NewStorage("migrate", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load unmarshals the document stored under key into v. Returns false with a
// nil error if the key is absent; a malformed document returns an error so
// the caller can fall back to an empty structure.
func (s *Store) Load(key string, v any) (bool, error) {
	var raw string
	err := s.db.QueryRow("SELECT value FROM documents WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewStorage("load", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, errors.NewStorage("decode", key, err)
	}
	return true, nil
}

// Save marshals v and writes it under key, replacing any previous document.
func (s *Store) Save(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.NewStorage("encode", key, err)
	}
	_, err = s.db.Exec(
		"INSERT INTO documents (key, value, updated_at) VALUES (?, ?, ?) "+
			"ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		key, string(raw), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.NewStorage("save", key, err)
	}
	return nil
}

// Delete removes the document stored under key. Deleting an absent key is
// not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM documents WHERE key = ?", key); err != nil {
		return errors.NewStorage("delete", key, err)
	}
	return nil
}

// Keys returns all document keys in the store.
func (s *Store) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM documents ORDER BY key")
	if err != nil {
		return nil, errors.NewStorage("keys", "", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.NewStorage("keys", "", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
