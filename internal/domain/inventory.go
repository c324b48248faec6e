package domain

type InventoryItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

// Reservation is the per-item ledger entry written when stock is decremented
// for an order. Restoring stock flips Released, which makes compensation
// idempotent under duplicate redelivery.
type Reservation struct {
	OrderID   string `json:"orderId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Released  bool   `json:"released"`
}
