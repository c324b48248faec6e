package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Payment records a single payment attempt. At most one COMPLETED payment
// may exist per order.
type Payment struct {
	ID            string        `json:"id"`
	OrderID       string        `json:"orderId"`
	UserID        string        `json:"userId"`
	Amount        int64         `json:"amount"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transactionId"`
	FailureReason string        `json:"failureReason,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	RefundedAt    *time.Time    `json:"refundedAt,omitempty"`
}

type Balance struct {
	UserID string `json:"userId"`
	Amount int64  `json:"amount"`
}
