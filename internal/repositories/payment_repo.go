package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/meridianinvest/platform/internal/database"
	"github.com/meridianinvest/platform/internal/models"
)

// PaymentRepository handles durable payment bookkeeping: payments,
// investments and transactions. The three-row write performed on a
// successful intent runs inside one transaction via CreatePurchaseRecords.
type PaymentRepository struct {
	db *database.DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// GetByProviderIntentID retrieves a payment row by the provider's intent id
func (r *PaymentRepository) GetByProviderIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	query := `
		SELECT id, user_id, provider_intent_id, amount, currency, status, product_id, metadata, created_at
		FROM payments
		WHERE provider_intent_id = $1
	`

	var p models.Payment
	err := r.db.Pool.QueryRow(ctx, query, intentID).Scan(
		&p.ID, &p.UserID, &p.ProviderIntentID, &p.Amount, &p.Currency,
		&p.Status, &p.ProductID, &p.Metadata, &p.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &p, nil
}

// PurchaseRecords bundles the rows written for one settled purchase.
// Investment is nil for zero-price products.
type PurchaseRecords struct {
	Payment     *models.Payment
	Investment  *models.Investment
	Transaction *models.Transaction
}

// CreatePurchaseRecords writes the payment, investment and transaction
// rows for a settled purchase atomically.
func (r *PaymentRepository) CreatePurchaseRecords(ctx context.Context, records PurchaseRecords) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		p := records.Payment
		_, err := tx.Exec(ctx, `
			INSERT INTO payments (user_id, provider_intent_id, amount, currency, status, product_id, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, p.UserID, p.ProviderIntentID, p.Amount, p.Currency, p.Status, p.ProductID, p.Metadata)
		if err != nil {
			return fmt.Errorf("failed to insert payment: %w", database.MapPostgresError(err))
		}

		if inv := records.Investment; inv != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO investments (user_id, package_name, amount, current_value, status)
				VALUES ($1, $2, $3, $4, $5)
			`, inv.UserID, inv.PackageName, inv.Amount, inv.CurrentValue, inv.Status)
			if err != nil {
				return fmt.Errorf("failed to insert investment: %w", err)
			}
		}

		t := records.Transaction
		_, err = tx.Exec(ctx, `
			INSERT INTO transactions (user_id, type, amount, description, status)
			VALUES ($1, $2, $3, $4, $5)
		`, t.UserID, t.Type, t.Amount, t.Description, t.Status)
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}

		return nil
	})
}

// MarkFailed marks the payment row for an intent as failed. Returns
// ErrNotFound if no payment row exists yet (the intent never settled).
func (r *PaymentRepository) MarkFailed(ctx context.Context, intentID string) error {
	query := `UPDATE payments SET status = $2 WHERE provider_intent_id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, intentID, models.PaymentStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// ListInvestmentsByUser retrieves a user's investments, newest first
func (r *PaymentRepository) ListInvestmentsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Investment, error) {
	query := `
		SELECT id, user_id, package_name, amount, current_value, status, created_at
		FROM investments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query investments: %w", err)
	}
	defer rows.Close()

	investments := make([]*models.Investment, 0)
	for rows.Next() {
		var inv models.Investment
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.PackageName, &inv.Amount,
			&inv.CurrentValue, &inv.Status, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		investments = append(investments, &inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating investment rows: %w", err)
	}

	return investments, nil
}

// ListTransactionsByUser retrieves a user's ledger entries, newest first
func (r *PaymentRepository) ListTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	query := `
		SELECT id, user_id, type, amount, description, status, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*models.Transaction, 0)
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount,
			&t.Description, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return transactions, nil
}
