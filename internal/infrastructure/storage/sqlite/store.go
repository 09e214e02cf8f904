// Package sqlite implements the key-value persistence layer on a local
// SQLite database. A single table holds one row per storage key, which
// keeps the on-disk format trivial to inspect with the sqlite3 shell.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_store (
    key        TEXT PRIMARY KEY,
    value      BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// Store is a KeyValueStore backed by a SQLite file.
type Store struct {
	db *sqlx.DB
}

// Open opens (and creates if needed) the database at path and applies
// the schema. Pass ":memory:" for an ephemeral database in tests.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, shared.WrapError("storage", "Open", shared.ErrStorage, "open sqlite database", err)
	}
	// SQLite serializes writers; extra connections just contend.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, shared.WrapError("storage", "Open", shared.ErrStorage, "ping sqlite database", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, shared.WrapError("storage", "Open", shared.ErrStorage, "apply sqlite schema", err)
	}
	return &Store{db: db}, nil
}

// Get implements storage.KeyValueStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv_store WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound(key)
	}
	if err != nil {
		return nil, shared.WrapError("storage", "Get", shared.ErrStorage, fmt.Sprintf("read key %q", key), err)
	}
	return value, nil
}

// Set implements storage.KeyValueStore.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return shared.WrapError("storage", "Set", shared.ErrStorage, fmt.Sprintf("write key %q", key), err)
	}
	return nil
}

// Delete implements storage.KeyValueStore. Deleting a missing key is
// not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key)
	if err != nil {
		return shared.WrapError("storage", "Delete", shared.ErrStorage, fmt.Sprintf("delete key %q", key), err)
	}
	return nil
}

// Keys implements storage.KeyValueStore.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.db.SelectContext(ctx, &keys, `SELECT key FROM kv_store ORDER BY key`); err != nil {
		return nil, shared.WrapError("storage", "Keys", shared.ErrStorage, "list keys", err)
	}
	return keys, nil
}

// Close implements storage.KeyValueStore.
func (s *Store) Close() error {
	return s.db.Close()
}
