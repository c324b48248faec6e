// Package saga holds the small pieces shared by every step handler: bounded
// retry for transient store faults and a cancellable stand-in for external
// work latency.
package saga

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	retryBase  = 100 * time.Millisecond
	retryCap   = 2 * time.Second
	maxRetries = 3
)

// Retry runs op with capped exponential backoff. Errors matching one of the
// permanent sentinels are business rejections and returned immediately;
// anything else is presumed transient and retried before being escalated to
// the caller, which maps it to UNEXPECTED_FAILURE.
func Retry(ctx context.Context, op func(context.Context) error, permanent ...error) error {
	backoff := retry.WithMaxRetries(maxRetries, retry.WithCappedDuration(retryCap, retry.NewExponential(retryBase)))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		for _, sentinel := range permanent {
			if errors.Is(err, sentinel) {
				return err
			}
		}
		return retry.RetryableError(err)
	})
}

// Sleep waits for d unless the context is cancelled first. Steps use it to
// model fulfillment and transit latency without blocking the consumer loop
// past shutdown.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
