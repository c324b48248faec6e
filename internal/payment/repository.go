package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fulfillment/internal/domain"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceNotFound   = errors.New("balance not found")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetBalance(ctx context.Context, userID string) (*domain.Balance, error) {
	balance := &domain.Balance{}

	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, amount FROM balances WHERE user_id = $1
	`, userID).Scan(&balance.UserID, &balance.Amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return balance, nil
}

func (r *Repository) ListBalances(ctx context.Context) ([]domain.Balance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, amount FROM balances ORDER BY user_id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var balances []domain.Balance
	for rows.Next() {
		var balance domain.Balance
		if err := rows.Scan(&balance.UserID, &balance.Amount); err != nil {
			return nil, err
		}
		balances = append(balances, balance)
	}

	return balances, rows.Err()
}

func (r *Repository) UpsertBalance(ctx context.Context, userID string, amount int64) (*domain.Balance, error) {
	if amount < 0 {
		return nil, fmt.Errorf("balance amount must be non-negative, got %d", amount)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO balances (user_id, amount)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET amount = EXCLUDED.amount
	`, userID, amount)
	if err != nil {
		return nil, err
	}

	return &domain.Balance{UserID: userID, Amount: amount}, nil
}

// Charge debits the user's balance and records the COMPLETED payment in one
// transaction. The debit is a single guarded statement, so a concurrent
// charge can never drive the balance negative.
func (r *Repository) Charge(ctx context.Context, payment *domain.Payment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE balances SET amount = amount - $2
		WHERE user_id = $1 AND amount >= $2
	`, payment.UserID, payment.Amount)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM balances WHERE user_id = $1)
		`, payment.UserID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: user %s", ErrBalanceNotFound, payment.UserID)
		}
		return fmt.Errorf("%w: user %s", ErrInsufficientFunds, payment.UserID)
	}

	payment.Status = domain.PaymentStatusCompleted

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, user_id, amount, status, transaction_id, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', $7)
	`, payment.ID, payment.OrderID, payment.UserID, payment.Amount, payment.Status, payment.TransactionID, payment.CreatedAt); err != nil {
		return err
	}

	return tx.Commit()
}

// RecordFailure persists a FAILED payment attempt with its reason.
func (r *Repository) RecordFailure(ctx context.Context, payment *domain.Payment) error {
	payment.Status = domain.PaymentStatusFailed

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, user_id, amount, status, transaction_id, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, payment.ID, payment.OrderID, payment.UserID, payment.Amount, payment.Status, payment.TransactionID, payment.FailureReason, payment.CreatedAt)
	return err
}

// HasCompletedPayment is the idempotency guard: at most one COMPLETED
// payment may exist per order.
func (r *Repository) HasCompletedPayment(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1 AND status = 'COMPLETED')
	`, orderID).Scan(&exists)
	return exists, err
}

// Refund credits the balance back and flips the COMPLETED payment to
// REFUNDED in one transaction. It reports false when there is nothing to
// refund, which makes compensation a no-op under duplicate redelivery.
func (r *Repository) Refund(ctx context.Context, orderID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var userID string
	var amount int64
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, amount FROM payments
		WHERE order_id = $1 AND status = 'COMPLETED'
		FOR UPDATE
	`, orderID).Scan(&userID, &amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE payments SET status = 'REFUNDED', refunded_at = $2
		WHERE order_id = $1 AND status = 'COMPLETED'
	`, orderID, time.Now().UTC()); err != nil {
		return false, err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE balances SET amount = amount + $2 WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rowsAffected == 0 {
		return false, fmt.Errorf("%w: user %s", ErrBalanceNotFound, userID)
	}

	return true, tx.Commit()
}

func (r *Repository) GetPaymentByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	payment := &domain.Payment{}
	var refundedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, user_id, amount, status, transaction_id, failure_reason, created_at, refunded_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, orderID).Scan(&payment.ID, &payment.OrderID, &payment.UserID, &payment.Amount,
		&payment.Status, &payment.TransactionID, &payment.FailureReason, &payment.CreatedAt, &refundedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if refundedAt.Valid {
		payment.RefundedAt = &refundedAt.Time
	}

	return payment, nil
}

func (r *Repository) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, user_id, amount, status, transaction_id, failure_reason, created_at, refunded_at
		FROM payments
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var payments []domain.Payment
	for rows.Next() {
		var payment domain.Payment
		var refundedAt sql.NullTime
		if err := rows.Scan(&payment.ID, &payment.OrderID, &payment.UserID, &payment.Amount,
			&payment.Status, &payment.TransactionID, &payment.FailureReason, &payment.CreatedAt, &refundedAt); err != nil {
			return nil, err
		}
		if refundedAt.Valid {
			payment.RefundedAt = &refundedAt.Time
		}
		payments = append(payments, payment)
	}

	return payments, rows.Err()
}
