// Package storage defines the key-value persistence layer and its local
// backends. Every piece of learner state (ledger, settings, session,
// navigation audit) is stored as a versioned JSON document under a
// well-known key; backends only see opaque bytes.
package storage

import (
	"context"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
)

// Well-known storage keys.
const (
	KeyUser     = "qiaomu:user"
	KeyLearning = "qiaomu:learning"
	KeySettings = "qiaomu:settings"
	KeySession  = "qiaomu:session"
	KeyNavAudit = "qiaomu:nav-audit"
	KeyFeynman  = "qiaomu:feynman-history"
	KeyNotices  = "qiaomu:notices"
)

// KeyValueStore is the backend contract. Get returns shared.ErrNotFound
// (wrapped) for missing keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// NotFound builds the canonical missing-key error.
func NotFound(key string) error {
	return shared.NewDomainError("storage", "Get", shared.ErrNotFound, "key not found: "+key)
}
