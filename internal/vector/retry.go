package vector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy configures retries of transient failures.
type RetryPolicy struct {
	MaxRetries int           // 0 = no retries
	RetryDelay time.Duration // delay before the first retry
	MaxDelay   time.Duration // cap for exponential backoff
}

// RetryingIndex retries calls that fail with ErrTransient. Other errors and caller
// cancellation are returned immediately; the last failure is surfaced when retries run out.
type RetryingIndex struct {
	Index
	policy RetryPolicy
	logger *zap.Logger
}

// WithRetry wraps idx with policy. A policy with MaxRetries <= 0 returns idx unchanged.
func WithRetry(idx Index, policy RetryPolicy, logger *zap.Logger) Index {
	if policy.MaxRetries <= 0 {
		return idx
	}
	if policy.RetryDelay <= 0 {
		policy.RetryDelay = 500 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingIndex{Index: idx, policy: policy, logger: logger}
}

func (r *RetryingIndex) do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt)
			r.logger.Warn("retrying index call",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return transient(op, ctx.Err())
			case <-time.After(delay):
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !r.isRetryable(ctx, err) {
			return err
		}
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", r.policy.MaxRetries, lastErr)
}

// backoff returns RetryDelay * 2^(attempt-1), capped at MaxDelay.
func (r *RetryingIndex) backoff(attempt int) time.Duration {
	delay := r.policy.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > r.policy.MaxDelay {
			return r.policy.MaxDelay
		}
	}
	return delay
}

func (r *RetryingIndex) isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient)
}

func (r *RetryingIndex) Upsert(ctx context.Context, entries []Entry) error {
	return r.do(ctx, "upsert", func() error { return r.Index.Upsert(ctx, entries) })
}

func (r *RetryingIndex) Query(ctx context.Context, vec []float32, topK int) ([]Match, error) {
	var out []Match
	err := r.do(ctx, "query", func() error {
		var err error
		out, err = r.Index.Query(ctx, vec, topK)
		return err
	})
	return out, err
}

func (r *RetryingIndex) FetchExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	var out map[string]struct{}
	err := r.do(ctx, "fetch", func() error {
		var err error
		out, err = r.Index.FetchExisting(ctx, ids)
		return err
	})
	return out, err
}

func (r *RetryingIndex) Delete(ctx context.Context, ids []string) error {
	return r.do(ctx, "delete", func() error { return r.Index.Delete(ctx, ids) })
}
