// Package retry reruns failed operations with exponential backoff.
// Callers classify each failure as Retryable or Permanent; anything
// unclassified is returned as-is after the first attempt.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Retryable marks err as worth another attempt.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err}
}

// Permanent marks err as final. Do stops immediately and returns the
// wrapped error so callers can errors.Is against their own sentinels.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Config tunes a Retrier.
type Config struct {
	// MaxAttempts counts the first try as attempt one.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt. Each further
	// wait multiplies by Multiplier, capped at MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Jitter spreads each delay by up to +/- this fraction.
	Jitter float64
}

// Retrier runs operations under one backoff policy.
type Retrier struct {
	cfg Config
}

// New builds a Retrier, filling zero fields with workable values.
func New(cfg Config) *Retrier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2.0
	}
	return &Retrier{cfg: cfg}
}

// StorageRetrier is tuned for key-value store calls. Delays stay short
// enough that a learner waiting on a save never notices a retry.
func StorageRetrier() *Retrier {
	return New(Config{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       0.05,
	})
}

// Do runs op until it succeeds, returns a Permanent error, exhausts
// MaxAttempts, or ctx is cancelled. Marker wrappers are stripped from
// the returned error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	delay := r.cfg.InitialDelay
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt >= r.cfg.MaxAttempts {
			return errors.Unwrap(err)
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(r.jittered(delay)):
		}

		delay = time.Duration(float64(delay) * r.cfg.Multiplier)
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}
}

func (r *Retrier) jittered(d time.Duration) time.Duration {
	if r.cfg.Jitter <= 0 {
		return d
	}
	spread := float64(d) * r.cfg.Jitter * (rand.Float64()*2 - 1)
	if out := time.Duration(float64(d) + spread); out > 0 {
		return out
	}
	return 0
}
