package payment

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fulfillment/internal/domain"
	"fulfillment/internal/orders"
	"fulfillment/internal/saga"
	"fulfillment/internal/telemetry"
)

const stepName = "payment"

// Store is the slice of the payment repository the saga step needs.
type Store interface {
	HasCompletedPayment(ctx context.Context, orderID string) (bool, error)
	Charge(ctx context.Context, payment *domain.Payment) error
	RecordFailure(ctx context.Context, payment *domain.Payment) error
	Refund(ctx context.Context, orderID string) (bool, error)
}

// OrderClient pushes the step's resulting status to the order aggregate.
type OrderClient interface {
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, comment string) error
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Step consumes order-created, attempts the debit and reports PAID or
// PAYMENT_FAILED. It also owns the refund compensation for failures
// observed downstream.
type Step struct {
	store   Store
	orders  OrderClient
	success Publisher
	failed  Publisher
	logger  *slog.Logger
}

func NewStep(store Store, orderClient OrderClient, success, failed Publisher, logger *slog.Logger) *Step {
	return &Step{
		store:   store,
		orders:  orderClient,
		success: success,
		failed:  failed,
		logger:  logger,
	}
}

// HandleOrderCreated processes one order-created message. It never returns
// business failures to the consumer loop; only infrastructure faults
// propagate so the channel redelivers the message.
func (s *Step) HandleOrderCreated(ctx context.Context, payload []byte) error {
	var snapshot domain.OrderSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		s.logger.Error("failed to unmarshal order created event", "error", err)
		return nil
	}

	if snapshot.Status != domain.OrderStatusRegistered {
		s.logger.Warn("skipping order not in REGISTERED status", "order_id", snapshot.ID, "status", snapshot.Status)
		return nil
	}

	s.logger.Info("processing payment", "order_id", snapshot.ID, "user_id", snapshot.UserID, "amount", snapshot.TotalAmount)

	var duplicate bool
	err := saga.Retry(ctx, func(ctx context.Context) error {
		var err error
		duplicate, err = s.store.HasCompletedPayment(ctx, snapshot.ID)
		return err
	})
	if err != nil {
		return err
	}

	if duplicate {
		// Redelivered order-created after the debit committed. Re-report
		// success instead of charging again; downstream steps deduplicate.
		s.logger.Warn("duplicate payment attempt suppressed", "order_id", snapshot.ID)
		return s.report(ctx, snapshot, domain.OrderStatusPaid, "Payment already completed", s.success)
	}

	payment := &domain.Payment{
		ID:            uuid.New().String(),
		OrderID:       snapshot.ID,
		UserID:        snapshot.UserID,
		Amount:        snapshot.TotalAmount,
		TransactionID: uuid.New().String(),
		CreatedAt:     time.Now().UTC(),
	}

	chargeErr := saga.Retry(ctx, func(ctx context.Context) error {
		return s.store.Charge(ctx, payment)
	}, ErrInsufficientFunds, ErrBalanceNotFound)

	switch {
	case chargeErr == nil:
		s.logger.Info("payment completed", "order_id", snapshot.ID, "transaction_id", payment.TransactionID)
		telemetry.RecordStepOutcome(ctx, stepName, string(domain.OrderStatusPaid))
		return s.report(ctx, snapshot, domain.OrderStatusPaid, "Payment completed", s.success)

	case errors.Is(chargeErr, ErrInsufficientFunds), errors.Is(chargeErr, ErrBalanceNotFound):
		reason := "insufficient funds"
		if errors.Is(chargeErr, ErrBalanceNotFound) {
			reason = "balance not found"
		}
		s.logger.Error("payment rejected", "order_id", snapshot.ID, "reason", reason)
		s.recordFailure(ctx, payment, reason)
		telemetry.RecordStepOutcome(ctx, stepName, string(domain.OrderStatusPaymentFailed))
		return s.report(ctx, snapshot, domain.OrderStatusPaymentFailed, reason, s.failed)

	default:
		s.logger.Error("payment processing failed", "order_id", snapshot.ID, "error", chargeErr)
		s.recordFailure(ctx, payment, chargeErr.Error())
		telemetry.RecordStepOutcome(ctx, stepName, string(domain.OrderStatusUnexpectedFailure))
		return s.report(ctx, snapshot, domain.OrderStatusUnexpectedFailure, chargeErr.Error(), s.failed)
	}
}

// HandleCompensation reacts to inventory-failed and delivery-result. A
// refund is applied only when the snapshot reports a failure downstream of
// the committed debit; DELIVERED snapshots pass through untouched.
func (s *Step) HandleCompensation(ctx context.Context, payload []byte) error {
	var snapshot domain.OrderSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		s.logger.Error("failed to unmarshal compensation event", "error", err)
		return nil
	}

	switch snapshot.Status {
	case domain.OrderStatusPaid,
		domain.OrderStatusInventoryFailed,
		domain.OrderStatusDeliveryFailed,
		domain.OrderStatusUnexpectedFailure:
		return s.refund(ctx, snapshot)
	default:
		return nil
	}
}

// HandleOrderExpired unwinds a timed-out order regardless of the status the
// reaper observed; the refund itself is guarded by the payment record.
func (s *Step) HandleOrderExpired(ctx context.Context, payload []byte) error {
	var snapshot domain.OrderSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		s.logger.Error("failed to unmarshal order expired event", "error", err)
		return nil
	}

	return s.refund(ctx, snapshot)
}

func (s *Step) refund(ctx context.Context, snapshot domain.OrderSnapshot) error {
	var refunded bool
	err := saga.Retry(ctx, func(ctx context.Context) error {
		var err error
		refunded, err = s.store.Refund(ctx, snapshot.ID)
		return err
	})
	if err != nil {
		return err
	}

	if !refunded {
		s.logger.Info("no completed payment to refund", "order_id", snapshot.ID)
		return nil
	}

	telemetry.RecordCompensation(ctx, stepName)
	s.logger.Info("payment refunded", "order_id", snapshot.ID, "status", snapshot.Status)
	return nil
}

func (s *Step) recordFailure(ctx context.Context, payment *domain.Payment, reason string) {
	payment.FailureReason = reason
	if err := saga.Retry(ctx, func(ctx context.Context) error {
		return s.store.RecordFailure(ctx, payment)
	}); err != nil {
		s.logger.Error("failed to record payment failure", "error", err, "order_id", payment.OrderID)
	}
}

// report pushes the resulting status synchronously to the order aggregate
// and then emits the async event. A rejected (stale) transition is benign;
// infrastructure faults propagate to force redelivery.
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
