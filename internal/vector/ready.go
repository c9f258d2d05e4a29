package vector

import (
	"context"
	"fmt"
	"time"
)

// ReadyFunc reports whether the index accepts reads and writes.
type ReadyFunc func(ctx context.Context) (bool, error)

// WaitReady polls ready every interval until it reports true or timeout elapses, in which
// case ErrNotReady is returned. Errors from ready are treated as not ready yet; the last one
// is included in the timeout error.
func WaitReady(ctx context.Context, ready ReadyFunc, timeout, interval time.Duration) error {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var lastErr error
	for {
		ok, err := ready(ctx)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("%w after %s: %w", ErrNotReady, timeout, lastErr)
			}
			return fmt.Errorf("%w after %s", ErrNotReady, timeout)
		case <-ticker.C:
		}
	}
}
