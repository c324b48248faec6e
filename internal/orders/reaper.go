package orders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fulfillment/internal/domain"
)

// StuckLister finds orders whose saga has stalled.
type StuckLister interface {
	Store
	ListStuck(ctx context.Context, olderThan time.Duration) ([]domain.Order, error)
}

// Reaper escalates orders that have been in flight longer than the saga
// timeout to UNEXPECTED_FAILURE and publishes them to order-expired so the
// payment and inventory steps can unwind whatever already committed.
type Reaper struct {
	store    StuckLister
	producer Publisher
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
}

func NewReaper(store StuckLister, producer Publisher, timeout, interval time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:    store,
		producer: producer,
		timeout:  timeout,
		interval: interval,
		logger:   logger,
	}
}

func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

func (r *Reaper) reap(ctx context.Context) {
	stuck, err := r.store.ListStuck(ctx, r.timeout)
	if err != nil {
		r.logger.Error("failed to list stuck orders", "error", err)
		return
	}

	for _, order := range stuck {
		expired, err := r.store.Transition(ctx, order.ID, domain.OrderStatusUnexpectedFailure, "Saga timed out")
		if err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				// The order progressed between the scan and the write.
				continue
			}
			r.logger.Error("failed to expire order", "error", err, "order_id", order.ID)
			continue
		}

		if err := r.producer.Publish(ctx, expired.ID, domain.Snapshot(expired)); err != nil {
			r.logger.Error("failed to publish order expired event", "error", err, "order_id", expired.ID)
			continue
		}

		r.logger.Warn("order expired", "order_id", expired.ID, "stuck_in", order.Status)
	}
}
