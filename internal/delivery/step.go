package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"fulfillment/internal/domain"
	"fulfillment/internal/orders"
	"fulfillment/internal/saga"
	"fulfillment/internal/telemetry"
)

const stepName = "delivery"

// Store is the slice of the delivery repository the saga step needs.
type Store interface {
	CreateIfAbsent(ctx context.Context, delivery *domain.Delivery) (bool, error)
	SetStatus(ctx context.Context, orderID string, status domain.DeliveryStatus) error
	GetByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error)
}

type OrderClient interface {
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, comment string) error
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Step consumes inventory-reserved and simulates carrier hand-off. Every
// attempt ends in exactly one delivery-result event, success or not, so the
// downstream compensations always hear about the outcome.
type Step struct {
	store        Store
	orders       OrderClient
	results      Publisher
	transitDelay time.Duration
	successRate  float64
	draw         func() float64
	logger       *slog.Logger
}

func NewStep(store Store, orderClient OrderClient, results Publisher, transitDelay time.Duration, successRate float64, logger *slog.Logger) *Step {
	return &Step{
		store:        store,
		orders:       orderClient,
		results:      results,
		transitDelay: transitDelay,
		successRate:  successRate,
		draw:         rand.Float64,
		logger:       logger,
	}
}

func (s *Step) HandleDelivery(ctx context.Context, payload []byte) error {
	var snapshot domain.OrderSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		s.logger.Error("failed to unmarshal inventory reserved event", "error", err)
		return nil
	}

	if snapshot.Status != domain.OrderStatusInventoryDone {
		s.logger.Warn("skipping order not in INVENTORY_DONE status", "order_id", snapshot.ID, "status", snapshot.Status)
		return nil
	}

	now := time.Now().UTC()
	attempt := &domain.Delivery{
		ID:         uuid.NewString(),
		OrderID:    snapshot.ID,
		Address:    snapshot.DeliveryAddress,
		TrackingID: uuid.NewString(),
		Status:     domain.DeliveryStatusInProgress,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var created bool
	err := saga.Retry(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.store.CreateIfAbsent(ctx, attempt)
		return err
	})
	if err != nil {
		return err
	}

	if !created {
		return s.handleDuplicate(ctx, snapshot)
	}

	s.logger.Info("delivery started", "order_id", snapshot.ID, "tracking_id", attempt.TrackingID)

	// Stand-in for the parcel being in transit.
	if err := saga.Sleep(ctx, s.transitDelay); err != nil {
		return err
	}

	if s.draw() < s.successRate {
		return s.finish(ctx, snapshot, domain.DeliveryStatusDelivered, "Order delivered")
	}
	return s.finish(ctx, snapshot, domain.DeliveryStatusFailed, "Carrier rejected the parcel")
}

// handleDuplicate re-reports the outcome of the attempt that already owns
// the order. An IN_PROGRESS row means the previous attempt died before
// recording its result, so the draw is simply rerun against the same row.
func (s *Step) handleDuplicate(ctx context.Context, snapshot domain.OrderSnapshot) error {
	var existing *domain.Delivery
	err := saga.Retry(ctx, func(ctx context.Context) error {
		var err error
		existing, err = s.store.GetByOrderID(ctx, snapshot.ID)
		return err
	})
	if err != nil {
		return err
	}
	if existing == nil {
		s.logger.Error("delivery row vanished after conflict", "order_id", snapshot.ID)
		return nil
	}

	s.logger.Warn("duplicate delivery attempt", "order_id", snapshot.ID, "existing_status", existing.Status)

	switch existing.Status {
	case domain.DeliveryStatusDelivered:
		return s.finish(ctx, snapshot, domain.DeliveryStatusDelivered, "Order already delivered")
	case domain.DeliveryStatusFailed:
		return s.finish(ctx, snapshot, domain.DeliveryStatusFailed, "Delivery already failed")
	default:
		if s.draw() < s.successRate {
			return s.finish(ctx, snapshot, domain.DeliveryStatusDelivered, "Order delivered")
		}
		return s.finish(ctx, snapshot, domain.DeliveryStatusFailed, "Carrier rejected the parcel")
	}
}

// finish records the outcome on the delivery row, reports the order status
// and publishes the single delivery-result event for this attempt.
func (s *Step) finish(ctx context.Context, snapshot domain.OrderSnapshot, outcome domain.DeliveryStatus, comment string) error {
	if err := saga.Retry(ctx, func(ctx context.Context) error {
		return s.store.SetStatus(ctx, snapshot.ID, outcome)
	}); err != nil {
		return err
	}

	orderStatus := domain.OrderStatusDelivered
	if outcome != domain.DeliveryStatusDelivered {
		orderStatus = domain.OrderStatusDeliveryFailed
	}

	s.logger.Info("delivery finished", "order_id", snapshot.ID, "outcome", outcome)
	telemetry.RecordStepOutcome(ctx, stepName, string(orderStatus))
	return s.report(ctx, snapshot, orderStatus, comment)
}

func (s *Step) report(ctx context.Context, snapshot domain.OrderSnapshot, status domain.OrderStatus, comment string) error {
	if err := s.orders.UpdateStatus(ctx, snapshot.ID, status, comment); err != nil {
		switch {
		case errors.Is(err, orders.ErrInvalidTransition):
			s.logger.Warn("order already past this status", "order_id", snapshot.ID, "status", status)
		case errors.Is(err, orders.ErrOrderNotFound):
			s.logger.Error("order unknown to order service", "order_id", snapshot.ID)
		default:
			return err
		}
	}

	return s.results.Publish(ctx, snapshot.ID, snapshot.WithStatus(status))
}
