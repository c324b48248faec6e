package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"fulfillment/internal/domain"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidTransition rejects a status write the state machine does not
	// allow from the order's current status. Stale or duplicate writes from
	// redelivered events surface as this error and are discarded by callers.
	ErrInvalidTransition = errors.New("invalid status transition")
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists the order, its line items and the initial history entry in
// one transaction. The order id is assigned here.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total_amount, delivery_address, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, order.ID, order.UserID, order.TotalAmount, order.DeliveryAddress, order.Status, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New().String(), order.ID, item.ProductID, item.Quantity, item.Price)
		if err != nil {
			return err
		}
	}

	for _, entry := range order.StatusHistory {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_status_history (order_id, status, comment, created_at)
			VALUES ($1, $2, $3, $4)
		`, order.ID, entry.Status, entry.Comment, entry.Timestamp)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Transition validates the status change against the state machine while
// holding a row lock, then updates the order and appends the history entry.
func (r *OrderRepository) Transition(ctx context.Context, id string, status domain.OrderStatus, comment string) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.OrderStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
		return nil, err
	}

	if !domain.CanTransition(current, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3
	`, status, now, id); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, status, comment, created_at)
		VALUES ($1, $2, $3, $4)
	`, id, status, comment, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, total_amount, delivery_address, status, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.DeliveryAddress, &order.Status, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity, price
		FROM order_items
		WHERE order_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	historyRows, err := r.db.QueryContext(ctx, `
		SELECT status, comment, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY seq
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = historyRows.Close() }()

	for historyRows.Next() {
		var entry domain.StatusHistoryEntry
		if err := historyRows.Scan(&entry.Status, &entry.Comment, &entry.Timestamp); err != nil {
			return nil, err
		}
		order.StatusHistory = append(order.StatusHistory, entry)
	}

	if err := historyRows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, total_amount, delivery_address, status, created_at
		FROM orders
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.DeliveryAddress, &order.Status, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, price
		FROM order_items
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	historyRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, status, comment, created_at
		FROM order_status_history
		WHERE order_id = ANY($1)
		ORDER BY seq
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = historyRows.Close() }()

	for historyRows.Next() {
		var orderID string
		var entry domain.StatusHistoryEntry
		if err := historyRows.Scan(&orderID, &entry.Status, &entry.Comment, &entry.Timestamp); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.StatusHistory = append(order.StatusHistory, entry)
	}

	if err := historyRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// ListStuck returns orders still in a non-terminal status whose last write is
// older than the given age. The reaper escalates them to UNEXPECTED_FAILURE.
func (r *OrderRepository) ListStuck(ctx context.Context, olderThan time.Duration) ([]domain.Order, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id
		FROM orders
		WHERE updated_at < $1
		  AND status NOT IN ('PAYMENT_FAILED', 'INVENTORY_FAILED', 'DELIVERY_FAILED', 'UNEXPECTED_FAILURE', 'COMPLETED')
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	stuck := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		order, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if order != nil {
			stuck = append(stuck, *order)
		}
	}

	return stuck, nil
}
