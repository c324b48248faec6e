package delivery

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fulfillment/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateIfAbsent inserts the delivery unless one already exists for the
// order. The order-id uniqueness doubles as the redelivery guard: a false
// return means another attempt already owns this order.
func (r *Repository) CreateIfAbsent(ctx context.Context, delivery *domain.Delivery) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, order_id, address, tracking_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (order_id) DO NOTHING
	`, delivery.ID, delivery.OrderID, delivery.Address, delivery.TrackingID, delivery.Status, delivery.CreatedAt)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

func (r *Repository) SetStatus(ctx context.Context, orderID string, status domain.DeliveryStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE deliveries SET status = $2, updated_at = $3 WHERE order_id = $1
	`, orderID, status, time.Now().UTC())
	return err
}

func (r *Repository) GetByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error) {
	delivery := &domain.Delivery{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, address, tracking_id, status, created_at, updated_at
		FROM deliveries
		WHERE order_id = $1
	`, orderID).Scan(&delivery.ID, &delivery.OrderID, &delivery.Address, &delivery.TrackingID,
		&delivery.Status, &delivery.CreatedAt, &delivery.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return delivery, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.Delivery, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, address, tracking_id, status, created_at, updated_at
		FROM deliveries
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var deliveries []domain.Delivery
	for rows.Next() {
		var delivery domain.Delivery
		if err := rows.Scan(&delivery.ID, &delivery.OrderID, &delivery.Address, &delivery.TrackingID,
			&delivery.Status, &delivery.CreatedAt, &delivery.UpdatedAt); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, delivery)
	}

	return deliveries, rows.Err()
}
