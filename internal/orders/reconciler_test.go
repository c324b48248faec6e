package orders

import (
	"context"
	"encoding/json"
	"testing"

	"fulfillment/internal/domain"
)

func deliveryResult(t *testing.T, status domain.OrderStatus) []byte {
	t.Helper()
	payload, err := json.Marshal(domain.OrderSnapshot{ID: "order-1", UserID: "user-001", Status: status})
	if err != nil {
		t.Fatalf("failed to marshal snapshot: %v", err)
	}
	return payload
}

func TestReconciler_HandleDeliveryResult(t *testing.T) {
	t.Run("promotes delivered order to COMPLETED", func(t *testing.T) {
		store := newFakeStore()
		store.orders["order-1"] = &domain.Order{ID: "order-1", Status: domain.OrderStatusDelivered}
		reconciler := NewReconciler(store, testLogger())

		if err := reconciler.HandleDeliveryResult(context.Background(), deliveryResult(t, domain.OrderStatusDelivered)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if store.orders["order-1"].Status != domain.OrderStatusCompleted {
			t.Errorf("expected COMPLETED, got %s", store.orders["order-1"].Status)
		}
	})

	t.Run("ignores failed delivery results", func(t *testing.T) {
		store := newFakeStore()
		store.orders["order-1"] = &domain.Order{ID: "order-1", Status: domain.OrderStatusDeliveryFailed}
		reconciler := NewReconciler(store, testLogger())

		if err := reconciler.HandleDeliveryResult(context.Background(), deliveryResult(t, domain.OrderStatusDeliveryFailed)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if store.orders["order-1"].Status != domain.OrderStatusDeliveryFailed {
			t.Errorf("order status changed to %s", store.orders["order-1"].Status)
		}
	})

	t.Run("treats duplicate redelivery as benign", func(t *testing.T) {
		store := newFakeStore()
		store.orders["order-1"] = &domain.Order{ID: "order-1", Status: domain.OrderStatusCompleted}
		reconciler := NewReconciler(store, testLogger())

		if err := reconciler.HandleDeliveryResult(context.Background(), deliveryResult(t, domain.OrderStatusDelivered)); err != nil {
			t.Fatalf("expected nil for already completed order, got %v", err)
		}
	})

	t.Run("treats unknown order as benign", func(t *testing.T) {
		reconciler := NewReconciler(newFakeStore(), testLogger())

		if err := reconciler.HandleDeliveryResult(context.Background(), deliveryResult(t, domain.OrderStatusDelivered)); err != nil {
			t.Fatalf("expected nil for unknown order, got %v", err)
		}
	})

	t.Run("swallows malformed payloads", func(t *testing.T) {
		reconciler := NewReconciler(newFakeStore(), testLogger())

		if err := reconciler.HandleDeliveryResult(context.Background(), []byte("not json")); err != nil {
			t.Fatalf("expected nil for poison message, got %v", err)
		}
	})
}
