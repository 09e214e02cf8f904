// Package postgres implements the key-value persistence layer on
// PostgreSQL via a pgx connection pool. One table holds one row per
// storage key, the same layout the SQLite backend uses.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_store (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
`

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Port:              5432,
		Database:          "qiaomu",
		User:              "postgres",
		SSLMode:           "disable",
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
	}
}

// DSN returns the connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode,
		int(c.ConnectTimeout.Seconds()),
	)
}

// Store is a KeyValueStore backed by a PostgreSQL pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a pool, verifies the connection and applies the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, shared.WrapError("storage", "New", shared.ErrConfiguration, "parse postgres config", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod

	return newFromPoolConfig(ctx, poolConfig)
}

// NewFromURL connects using a database URL.
func NewFromURL(ctx context.Context, databaseURL string) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, shared.WrapError("storage", "NewFromURL", shared.ErrConfiguration, "parse database URL", err)
	}
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 10
	}
	return newFromPoolConfig(ctx, poolConfig)
}

func newFromPoolConfig(ctx context.Context, poolConfig *pgxpool.Config) (*Store, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, shared.WrapError("storage", "New", shared.ErrStorage, "create connection pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, shared.WrapError("storage", "New", shared.ErrStorage, "ping database", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, shared.WrapError("storage", "New", shared.ErrStorage, "apply schema", err)
	}
	return &Store{pool: pool}, nil
}

// Get implements storage.KeyValueStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.NotFound(key)
	}
	if err != nil {
		return nil, shared.WrapError("storage", "Get", shared.ErrStorage, fmt.Sprintf("read key %q", key), err)
	}
	return value, nil
}

// Set implements storage.KeyValueStore.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	if err != nil {
		return shared.WrapError("storage", "Set", shared.ErrStorage, fmt.Sprintf("write key %q", key), err)
	}
	return nil
}

// Delete implements storage.KeyValueStore. Deleting a missing key is
// not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, key)
	if err != nil {
		return shared.WrapError("storage", "Delete", shared.ErrStorage, fmt.Sprintf("delete key %q", key), err)
	}
	return nil
}

// Keys implements storage.KeyValueStore.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key FROM kv_store ORDER BY key`)
	if err != nil {
		return nil, shared.WrapError("storage", "Keys", shared.ErrStorage, "list keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, shared.WrapError("storage", "Keys", shared.ErrStorage, "scan key", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("storage", "Keys", shared.ErrStorage, "iterate keys", err)
	}
	return keys, nil
}

// Close implements storage.KeyValueStore.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
