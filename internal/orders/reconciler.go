package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"fulfillment/internal/domain"
)

// Reconciler closes the saga. It consumes delivery-result and promotes
// successfully delivered orders to COMPLETED; failure results are only
// observed here, since the compensating steps react to them directly.
type Reconciler struct {
	store  Store
	logger *slog.Logger
}

func NewReconciler(store Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger,
	}
}

func (r *Reconciler) HandleDeliveryResult(ctx context.Context, payload []byte) error {
	var snapshot domain.OrderSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		// Poison message; there is nothing to retry.
		r.logger.Error("failed to unmarshal delivery result", "error", err)
		return nil
	}

	if snapshot.Status != domain.OrderStatusDelivered {
		r.logger.Info("order finished without delivery", "order_id", snapshot.ID, "status", snapshot.Status)
		return nil
	}

	_, err := r.store.Transition(ctx, snapshot.ID, domain.OrderStatusCompleted, "Order reconciled")
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Duplicate redelivery after the order was already completed.
			r.logger.Warn("skipping stale reconciliation", "order_id", snapshot.ID, "error", err)
			return nil
		}
		if errors.Is(err, ErrOrderNotFound) {
			r.logger.Error("delivery result for unknown order", "order_id", snapshot.ID)
			return nil
		}
		return fmt.Errorf("complete order %s: %w", snapshot.ID, err)
	}

	r.logger.Info("order completed", "order_id", snapshot.ID)
	return nil
}
