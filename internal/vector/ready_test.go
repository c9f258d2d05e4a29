package vector

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitReady(t *testing.T) {
	t.Run("ready after polls", func(t *testing.T) {
		calls := 0
		err := WaitReady(context.Background(), func(context.Context) (bool, error) {
			calls++
			return calls >= 3, nil
		}, time.Second, time.Millisecond)
		if err != nil {
			t.Fatal(err)
		}
		if calls != 3 {
			t.Errorf("calls = %d", calls)
		}
	})

	t.Run("bounded by timeout", func(t *testing.T) {
		statusErr := errors.New("status unknown")
		start := time.Now()
		err := WaitReady(context.Background(), func(context.Context) (bool, error) {
			return false, statusErr
		}, 30*time.Millisecond, 5*time.Millisecond)
		if !errors.Is(err, ErrNotReady) || !errors.Is(err, statusErr) {
			t.Errorf("expected ErrNotReady wrapping the status error, got %v", err)
		}
		if time.Since(start) > time.Second {
			t.Error("WaitReady polled past its timeout")
		}
	})
}
