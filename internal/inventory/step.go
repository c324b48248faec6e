package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fulfillment/internal/domain"
	"fulfillment/internal/orders"
	"fulfillment/internal/saga"
	"fulfillment/internal/telemetry"
)

const stepName = "inventory"

// Store is the slice of the inventory repository the saga step needs.
type Store interface {
	HasReservation(ctx context.Context, orderID string) (bool, error)
	Reserve(ctx context.Context, orderID string, items []domain.OrderItem) ([]string, error)
	Restore(ctx context.Context, orderID string) (bool, error)
}

type OrderClient interface {
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, comment string) error
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Step consumes payment-success, reserves stock for every line item and
// reports INVENTORY_DONE or INVENTORY_FAILED. It also owns the restock
// compensation for delivery failures.
type Step struct {
	store            Store
	orders           OrderClient
	reserved         Publisher
	failed           Publisher
	fulfillmentDelay time.Duration
	logger           *slog.Logger
}

func NewStep(store Store, orderClient OrderClient, reserved, failed Publisher, fulfillmentDelay time.Duration, logger *slog.Logger) *Step {
	return &Step{
		store:            store,
		orders:           orderClient,
		reserved:         reserved,
		failed:           failed,
		fulfillmentDelay: fulfillmentDelay,
		logger:           logger,
	}
}

func (s *Step) HandleReservation(ctx context.Context, payload []byte) error {
	var snapshot domain.OrderSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		s.logger.Error("failed to unmarshal payment success event", "error", err)
		return nil
	}

	if snapshot.Status != domain.OrderStatusPaid {
		s.logger.Warn("skipping order not in PAID status", "order_id", snapshot.ID, "status", snapshot.Status)
		return nil
	}

	s.logger.Info("processing reservation", "order_id", snapshot.ID, "items", len(snapshot.Items))

	var duplicate bool
	err := saga.Retry(ctx, func(ctx context.Context) error {
		var err error
		duplicate, err = s.store.HasReservation(ctx, snapshot.ID)
		return err
	})
	if err != nil {
		return err
	}

	if duplicate {
		// Redelivered payment-success after the reservation committed.
		s.logger.Warn("duplicate reservation attempt suppressed", "order_id", snapshot.ID)
		return s.report(ctx, snapshot, domain.OrderStatusInventoryDone, "Inventory already reserved", s.reserved)
	}

	var missing []string
	reserveErr := saga.Retry(ctx, func(ctx context.Context) error {
		var err error
		missing, err = s.store.Reserve(ctx, snapshot.ID, snapshot.Items)
		return err
	})

	switch {
	case reserveErr != nil:
		s.logger.Error("reservation failed unexpectedly", "order_id", snapshot.ID, "error", reserveErr)
		telemetry.RecordStepOutcome(ctx, stepName, string(domain.OrderStatusUnexpectedFailure))
		return s.report(ctx, snapshot, domain.OrderStatusUnexpectedFailure, reserveErr.Error(), s.failed)

	case len(missing) > 0:
		comment := fmt.Sprintf("insufficient stock: %s", strings.Join(missing, ", "))
		s.logger.Error("reservation rejected", "order_id", snapshot.ID, "missing", missing)
		telemetry.RecordStepOutcome(ctx, stepName, string(domain.OrderStatusInventoryFailed))
		return s.report(ctx, snapshot, domain.OrderStatusInventoryFailed, comment, s.failed)

	default:
		// Stand-in for picking and packing the order.
		if err := saga.Sleep(ctx, s.fulfillmentDelay); err != nil {
			return err
		}
		s.logger.Info("inventory reserved", "order_id", snapshot.ID)
		telemetry.RecordStepOutcome(ctx, stepName, string(domain.OrderStatusInventoryDone))
		return s.report(ctx, snapshot, domain.OrderStatusInventoryDone, "Inventory reserved", s.reserved)
	}
}

// HandleCompensation restores stock for orders whose delivery failed.
func (s *Step) HandleCompensation(ctx context.Context, payload []byte) error {
	var snapshot domain.OrderSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		s.logger.Error("failed to unmarshal delivery result", "error", err)
		return nil
	}

	if snapshot.Status != domain.OrderStatusDeliveryFailed {
		return nil
	}

	return s.restore(ctx, snapshot)
}

// HandleOrderExpired restores stock for a timed-out order; the released
// flag on the reservations makes this safe whatever the reaper observed.
func (s *Step) HandleOrderExpired(ctx context.Context, payload []byte) error {
	var snapshot domain.OrderSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		s.logger.Error("failed to unmarshal order expired event", "error", err)
		return nil
	}

	return s.restore(ctx, snapshot)
}

func (s *Step) restore(ctx context.Context, snapshot domain.OrderSnapshot) error {
	var restored bool
	err := saga.Retry(ctx, func(ctx context.Context) error {
		var err error
		restored, err = s.store.Restore(ctx, snapshot.ID)
		return err
	})
	if err != nil {
		return err
	}

	if !restored {
		s.logger.Info("no reservation to restore", "order_id", snapshot.ID)
		return nil
	}

	telemetry.RecordCompensation(ctx, stepName)
	s.logger.Info("inventory restored", "order_id", snapshot.ID, "status", snapshot.Status)
	return nil
}

func (s *Step) report(ctx context.Context, snapshot domain.OrderSnapshot, status domain.OrderStatus, comment string, publisher Publisher) error {
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

	return publisher.Publish(ctx, snapshot.ID, snapshot.WithStatus(status))
}
