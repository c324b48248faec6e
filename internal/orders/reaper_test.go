package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"fulfillment/internal/domain"
)

type fakeStuckStore struct {
	*fakeStore
	stuck   []domain.Order
	listErr error
}

func (s *fakeStuckStore) ListStuck(ctx context.Context, olderThan time.Duration) ([]domain.Order, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.stuck, nil
}

func TestReaper(t *testing.T) {
	t.Run("expires stuck orders and publishes them", func(t *testing.T) {
		store := &fakeStuckStore{fakeStore: newFakeStore()}
		store.orders["order-1"] = &domain.Order{ID: "order-1", Status: domain.OrderStatusPaid}
		store.stuck = []domain.Order{{ID: "order-1", Status: domain.OrderStatusPaid}}

		producer := &fakePublisher{}
		reaper := NewReaper(store, producer, time.Minute, time.Second, testLogger())

		reaper.reap(context.Background())

		if store.orders["order-1"].Status != domain.OrderStatusUnexpectedFailure {
			t.Errorf("expected UNEXPECTED_FAILURE, got %s", store.orders["order-1"].Status)
		}
		if len(producer.events) != 1 {
			t.Fatalf("expected 1 published event, got %d", len(producer.events))
		}
		if producer.events[0].key != "order-1" {
			t.Errorf("expected event keyed by order id, got %s", producer.events[0].key)
		}
		snapshot, ok := producer.events[0].event.(domain.OrderSnapshot)
		if !ok {
			t.Fatalf("expected OrderSnapshot, got %T", producer.events[0].event)
		}
		if snapshot.Status != domain.OrderStatusUnexpectedFailure {
			t.Errorf("expected snapshot status UNEXPECTED_FAILURE, got %s", snapshot.Status)
		}
	})

	t.Run("skips orders that progressed to a terminal status", func(t *testing.T) {
		store := &fakeStuckStore{fakeStore: newFakeStore()}
		store.orders["order-1"] = &domain.Order{ID: "order-1", Status: domain.OrderStatusCompleted}
		store.stuck = []domain.Order{{ID: "order-1", Status: domain.OrderStatusDelivered}}

		producer := &fakePublisher{}
		reaper := NewReaper(store, producer, time.Minute, time.Second, testLogger())

		reaper.reap(context.Background())

		if store.orders["order-1"].Status != domain.OrderStatusCompleted {
			t.Errorf("order status changed to %s", store.orders["order-1"].Status)
		}
		if len(producer.events) != 0 {
			t.Errorf("expected no published events, got %d", len(producer.events))
		}
	})

	t.Run("survives list failures", func(t *testing.T) {
		store := &fakeStuckStore{fakeStore: newFakeStore(), listErr: errors.New("db down")}
		reaper := NewReaper(store, &fakePublisher{}, time.Minute, time.Second, testLogger())

		reaper.reap(context.Background())
	})

	t.Run("Run stops on context cancellation", func(t *testing.T) {
		store := &fakeStuckStore{fakeStore: newFakeStore()}
		reaper := NewReaper(store, &fakePublisher{}, time.Minute, 10*time.Millisecond, testLogger())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- reaper.Run(ctx) }()

		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("reaper did not stop after cancellation")
		}
	})
}
