package domain

import "time"

// OrderSnapshot is the message carried by every saga topic. It is a full
// copy of the order as the publishing step last saw it; the Status field
// tells the consumer which outcome the publisher is reporting.
type OrderSnapshot struct {
	ID              string               `json:"id"`
	UserID          string               `json:"userId"`
	TotalAmount     int64                `json:"totalAmount"`
	DeliveryAddress string               `json:"deliveryAddress"`
	Status          OrderStatus          `json:"status"`
	CreatedAt       time.Time            `json:"createdAt"`
	Items           []OrderItem          `json:"items"`
	StatusHistory   []StatusHistoryEntry `json:"statusHistory"`
}

// Snapshot copies an order into its event representation.
func Snapshot(order *Order) OrderSnapshot {
	return OrderSnapshot{
		ID:              order.ID,
		UserID:          order.UserID,
		TotalAmount:     order.TotalAmount,
		DeliveryAddress: order.DeliveryAddress,
		Status:          order.Status,
		CreatedAt:       order.CreatedAt,
		Items:           order.Items,
		StatusHistory:   order.StatusHistory,
	}
}

// WithStatus returns a copy of the snapshot carrying the given status, used
// by a step to report its outcome without mutating the consumed message.
func (s OrderSnapshot) WithStatus(status OrderStatus) OrderSnapshot {
	s.Status = status
	return s
}
