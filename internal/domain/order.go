package domain

import "time"

type OrderStatus string

const (
	OrderStatusRegistered        OrderStatus = "REGISTERED"
	OrderStatusPaid              OrderStatus = "PAID"
	OrderStatusPaymentFailed     OrderStatus = "PAYMENT_FAILED"
	OrderStatusInventoryDone     OrderStatus = "INVENTORY_DONE"
	OrderStatusInventoryFailed   OrderStatus = "INVENTORY_FAILED"
	OrderStatusDelivered         OrderStatus = "DELIVERED"
	OrderStatusDeliveryFailed    OrderStatus = "DELIVERY_FAILED"
	OrderStatusUnexpectedFailure OrderStatus = "UNEXPECTED_FAILURE"
	OrderStatusCompleted         OrderStatus = "COMPLETED"
)

// transitions is the saga state machine. A timed-out order may be forced to
// UNEXPECTED_FAILURE from any non-terminal status, so every non-terminal
// source lists it as a target.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusRegistered:    {OrderStatusPaid, OrderStatusPaymentFailed, OrderStatusUnexpectedFailure},
	OrderStatusPaid:          {OrderStatusInventoryDone, OrderStatusInventoryFailed, OrderStatusUnexpectedFailure},
	OrderStatusInventoryDone: {OrderStatusDelivered, OrderStatusDeliveryFailed, OrderStatusUnexpectedFailure},
	OrderStatusDelivered:     {OrderStatusCompleted, OrderStatusUnexpectedFailure},
}

// CanTransition reports whether the state machine allows moving an order
// from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further saga step is expected to move the
// order out of the given status.
func IsTerminal(status OrderStatus) bool {
	switch status {
	case OrderStatusPaymentFailed,
		OrderStatusInventoryFailed,
		OrderStatusDeliveryFailed,
		OrderStatusUnexpectedFailure,
		OrderStatusCompleted:
		return true
	}
	return false
}

type OrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

type StatusHistoryEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Comment   string      `json:"comment"`
}

type Order struct {
	ID              string               `json:"id"`
	UserID          string               `json:"userId"`
	TotalAmount     int64                `json:"totalAmount"`
	DeliveryAddress string               `json:"deliveryAddress"`
	Status          OrderStatus          `json:"status"`
	CreatedAt       time.Time            `json:"createdAt"`
	Items           []OrderItem          `json:"items"`
	StatusHistory   []StatusHistoryEntry `json:"statusHistory"`
}

// OrderTotal computes the order total as the sum of price times quantity
// over all line items.
func OrderTotal(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += int64(item.Quantity) * item.Price
	}
	return total
}
