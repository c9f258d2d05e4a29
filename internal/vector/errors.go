package vector

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfig marks invalid configuration such as a missing API key or unknown backend.
	ErrConfig = errors.New("vector index misconfigured")
	// ErrUnavailable marks a service that could not be reached while connecting.
	ErrUnavailable = errors.New("vector index unavailable")
	// ErrTransient marks a single failed call: network error, deadline or service error.
	ErrTransient = errors.New("vector index call failed")
	// ErrNotReady is returned when the index does not become ready within the timeout.
	ErrNotReady = errors.New("vector index not ready")
)

func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrTransient, op, err)
}

// withTimeout bounds a single remote call. A zero timeout leaves ctx unchanged.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
