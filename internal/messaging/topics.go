// Package messaging wraps kafka-go with the topic contract of the
// fulfillment saga. Every topic carries a domain.OrderSnapshot encoded as
// JSON, and every message is keyed by order id so that all events for one
// order land in the same partition and are observed in order.
package messaging

const (
	TopicOrderCreated      = "order-created"
	TopicPaymentSuccess    = "payment-success"
	TopicPaymentFailed     = "payment-failed"
	TopicInventoryReserved = "inventory-reserved"
	TopicInventoryFailed   = "inventory-failed"
	TopicDeliveryResult    = "delivery-result"

	// TopicOrderExpired is published by the orders reaper when a saga has
	// been in flight longer than the configured deadline. Payment and
	// inventory compensation consume it to unwind the stuck order.
	TopicOrderExpired = "order-expired"
)
