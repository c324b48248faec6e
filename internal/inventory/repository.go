package inventory

import (
	"context"
	"database/sql"
	"errors"

	"fulfillment/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetItem(ctx context.Context, productID string) (*domain.InventoryItem, error) {
	item := &domain.InventoryItem{}

	err := r.db.QueryRowContext(ctx, `
		SELECT product_id, quantity, price FROM items WHERE product_id = $1
	`, productID).Scan(&item.ProductID, &item.Quantity, &item.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return item, nil
}

func (r *Repository) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity, price FROM items ORDER BY product_id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []domain.InventoryItem
	for rows.Next() {
		var item domain.InventoryItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func (r *Repository) UpsertItem(ctx context.Context, item domain.InventoryItem) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items (product_id, quantity, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id) DO UPDATE SET quantity = EXCLUDED.quantity, price = EXCLUDED.price
	`, item.ProductID, item.Quantity, item.Price)
	return err
}

// HasReservation is the idempotency guard against redelivered
// payment-success messages.
func (r *Repository) HasReservation(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM reservations WHERE order_id = $1)
	`, orderID).Scan(&exists)
	return exists, err
}

// Reserve checks availability of every line item and, only if all are in
// stock, decrements them and writes one reservation row per item inside a
// single transaction, so a shortage never leaves partial decrements behind.
// It returns the product ids that could not be satisfied.
func (r *Repository) Reserve(ctx context.Context, orderID string, items []domain.OrderItem) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var missing []string
	for _, item := range items {
		var available int
		err := tx.QueryRowContext(ctx, `
			SELECT quantity FROM items WHERE product_id = $1 FOR UPDATE
		`, item.ProductID).Scan(&available)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				missing = append(missing, item.ProductID)
				continue
			}
			return nil, err
		}
		if available < item.Quantity {
			missing = append(missing, item.ProductID)
		}
	}

	if len(missing) > 0 {
		return missing, nil
	}

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			UPDATE items SET quantity = quantity - $2 WHERE product_id = $1
		`, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reservations (order_id, product_id, quantity, released)
			VALUES ($1, $2, $3, false)
		`, orderID, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
	}

	return nil, tx.Commit()
}

// Restore puts the order's reserved quantities back and marks the
// reservations released in the same transaction. A second call finds no
// unreleased rows and reports false, so duplicate delivery-result
// redelivery cannot inflate stock.
func (r *Repository) Restore(ctx context.Context, orderID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity FROM reservations
		WHERE order_id = $1 AND NOT released
		FOR UPDATE
	`, orderID)
	if err != nil {
		return false, err
	}

	type reserved struct {
		productID string
		quantity  int
	}
	var reservations []reserved
	for rows.Next() {
		var res reserved
		if err := rows.Scan(&res.productID, &res.quantity); err != nil {
			_ = rows.Close()
			return false, err
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return false, err
	}
	_ = rows.Close()

	if len(reservations) == 0 {
		return false, nil
	}

	for _, res := range reservations {
		if _, err := tx.ExecContext(ctx, `
			UPDATE items SET quantity = quantity + $2 WHERE product_id = $1
		`, res.productID, res.quantity); err != nil {
			return false, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE reservations SET released = true WHERE order_id = $1
	`, orderID); err != nil {
		return false, err
	}

	return true, tx.Commit()
}
