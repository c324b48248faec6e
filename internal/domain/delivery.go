package domain

import "time"

type DeliveryStatus string

const (
	DeliveryStatusInProgress DeliveryStatus = "IN_PROGRESS"
	DeliveryStatusDelivered  DeliveryStatus = "DELIVERED"
	DeliveryStatusFailed     DeliveryStatus = "FAILED"
)

// Delivery is unique per order id; an existing row marks the attempt as
// already taken under redelivery.
type Delivery struct {
	ID         string         `json:"id"`
	OrderID    string         `json:"orderId"`
	Address    string         `json:"address"`
	TrackingID string         `json:"trackingId"`
	Status     DeliveryStatus `json:"status"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}
