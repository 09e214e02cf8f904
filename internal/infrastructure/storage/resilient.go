package storage

import (
	"context"
	"errors"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/pkg/circuitbreaker"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
	"github.com/qiaomu-learn/qiaomu/pkg/retry"
)

// ResilientStore wraps a remote KeyValueStore with retries and a circuit
// breaker. Local backends (memory, file) don't need it; Redis and
// Postgres do.
type ResilientStore struct {
	inner   KeyValueStore
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	logger  *logger.Logger
}

// NewResilientStore wraps inner. The breaker is named after the backend
// for log correlation.
func NewResilientStore(inner KeyValueStore, name string, log *logger.Logger) *ResilientStore {
	if log == nil {
		log = logger.Default()
	}
	onStateChange := func(name string, from, to circuitbreaker.State) {
		log.Warn("storage circuit state changed",
			logger.Component(name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
	return &ResilientStore{
		inner:   inner,
		retrier: retry.StorageRetrier(),
		breaker: circuitbreaker.StorageBreaker(name, onStateChange),
		logger:  log,
	}
}

func (s *ResilientStore) execute(ctx context.Context, op func(ctx context.Context) error) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			opErr := op(ctx)
			if opErr == nil {
				return nil
			}
			// Missing keys are a result, not a fault.
			if shared.IsNotFound(opErr) {
				return retry.Permanent(opErr)
			}
			return retry.Retryable(opErr)
		})
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return shared.WrapError("storage", "Execute", shared.ErrServiceUnavailable, "storage backend unavailable", err)
	}
	return err
}

// Get implements KeyValueStore.
func (s *ResilientStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.execute(ctx, func(ctx context.Context) error {
		var opErr error
		value, opErr = s.inner.Get(ctx, key)
		return opErr
	})
	return value, err
}

// Set implements KeyValueStore.
func (s *ResilientStore) Set(ctx context.Context, key string, value []byte) error {
	return s.execute(ctx, func(ctx context.Context) error {
		return s.inner.Set(ctx, key, value)
	})
}

// Delete implements KeyValueStore.
func (s *ResilientStore) Delete(ctx context.Context, key string) error {
	return s.execute(ctx, func(ctx context.Context) error {
		return s.inner.Delete(ctx, key)
	})
}

// Keys implements KeyValueStore.
func (s *ResilientStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.execute(ctx, func(ctx context.Context) error {
		var opErr error
		keys, opErr = s.inner.Keys(ctx)
		return opErr
	})
	return keys, err
}

// Close implements KeyValueStore.
func (s *ResilientStore) Close() error {
	return s.inner.Close()
}
