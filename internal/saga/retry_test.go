package saga

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	t.Run("returns nil on first success", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), func(ctx context.Context) error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("retries transient errors until success", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("connection reset")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		transient := errors.New("connection reset")
		calls := 0
		err := Retry(context.Background(), func(ctx context.Context) error {
			calls++
			return transient
		})
		if !errors.Is(err, transient) {
			t.Fatalf("expected transient error, got %v", err)
		}
		if calls != maxRetries+1 {
			t.Errorf("expected %d calls, got %d", maxRetries+1, calls)
		}
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		rejected := errors.New("insufficient funds")
		calls := 0
		err := Retry(context.Background(), func(ctx context.Context) error {
			calls++
			return rejected
		}, rejected)
		if !errors.Is(err, rejected) {
			t.Fatalf("expected permanent error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := Retry(ctx, func(ctx context.Context) error {
			return errors.New("connection reset")
		})
		if err == nil {
			t.Fatal("expected error after cancellation")
		}
	})
}

func TestSleep(t *testing.T) {
	t.Run("waits the full duration", func(t *testing.T) {
		start := time.Now()
		if err := Sleep(context.Background(), 20*time.Millisecond); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
			t.Errorf("returned after %v", elapsed)
		}
	})

	t.Run("returns early on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		err := Sleep(ctx, 5*time.Second)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("cancellation took %v", elapsed)
		}
	})

	t.Run("zero duration returns immediately", func(t *testing.T) {
		if err := Sleep(context.Background(), 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
