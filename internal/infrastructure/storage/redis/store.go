// Package redis implements the key-value persistence layer on Redis.
// Values live under a configurable key prefix so several deployments
// can share one Redis instance.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Prefix is prepended to every key. Defaults to "qiaomu:kv:".
	Prefix string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns settings for a local Redis instance.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Prefix:       "qiaomu:kv:",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store is a KeyValueStore backed by Redis.
type Store struct {
	client *goredis.Client
	prefix string
	owned  bool
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "qiaomu:kv:"
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, shared.WrapError("storage", "New", shared.ErrStorage, "ping redis", err)
	}
	return &Store{client: client, prefix: cfg.Prefix, owned: true}, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of
// the client; Close is a no-op in that case.
func NewWithClient(client *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "qiaomu:kv:"
	}
	return &Store{client: client, prefix: prefix}
}

// Get implements storage.KeyValueStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.NotFound(key)
	}
	if err != nil {
		return nil, shared.WrapError("storage", "Get", shared.ErrStorage, fmt.Sprintf("read key %q", key), err)
	}
	return value, nil
}

// Set implements storage.KeyValueStore. Entries do not expire.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return shared.WrapError("storage", "Set", shared.ErrStorage, fmt.Sprintf("write key %q", key), err)
	}
	return nil
}

// Delete implements storage.KeyValueStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return shared.WrapError("storage", "Delete", shared.ErrStorage, fmt.Sprintf("delete key %q", key), err)
	}
	return nil
}

// Keys implements storage.KeyValueStore. Uses SCAN rather than KEYS so
// large databases are not blocked.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, shared.WrapError("storage", "Keys", shared.ErrStorage, "scan keys", err)
	}
	return keys, nil
}

// Close implements storage.KeyValueStore.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
