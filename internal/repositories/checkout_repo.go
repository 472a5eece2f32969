package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianinvest/platform/internal/database"
	"github.com/meridianinvest/platform/internal/models"
)

// CheckoutRepository persists checkout sessions, the server-side record of
// each checkout attempt's state machine.
type CheckoutRepository struct {
	db *database.DB
}

// NewCheckoutRepository creates a new CheckoutRepository
func NewCheckoutRepository(db *database.DB) *CheckoutRepository {
	return &CheckoutRepository{db: db}
}

const checkoutColumns = `id, user_id, product_id, provider_intent_id, amount_cents, currency,
		state, verified, failure_message, created_at, updated_at`

func scanCheckoutSession(row interface {
	Scan(dest ...any) error
}) (*models.CheckoutSession, error) {
	var s models.CheckoutSession
	err := row.Scan(
		&s.ID, &s.UserID, &s.ProductID, &s.ProviderIntentID, &s.AmountCents,
		&s.Currency, &s.State, &s.Verified, &s.FailureMessage, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

// Create inserts a new checkout session
func (r *CheckoutRepository) Create(ctx context.Context, session *models.CheckoutSession) (*models.CheckoutSession, error) {
	query := `
		INSERT INTO checkout_sessions (user_id, product_id, provider_intent_id, amount_cents, currency, state, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + checkoutColumns

	return scanCheckoutSession(r.db.Pool.QueryRow(ctx, query,
		session.UserID, session.ProductID, session.ProviderIntentID,
		session.AmountCents, session.Currency, session.State, session.Verified,
	))
}

// GetByIntentID retrieves the session for a provider intent
func (r *CheckoutRepository) GetByIntentID(ctx context.Context, intentID string) (*models.CheckoutSession, error) {
	query := `SELECT ` + checkoutColumns + ` FROM checkout_sessions WHERE provider_intent_id = $1`
	return scanCheckoutSession(r.db.Pool.QueryRow(ctx, query, intentID))
}

// UpdateState moves a session to a new state, optionally recording a
// failure message. Transition legality is the service's responsibility.
func (r *CheckoutRepository) UpdateState(ctx context.Context, intentID string, state models.CheckoutState, failureMessage *string) error {
	query := `
		UPDATE checkout_sessions
		SET state = $2, failure_message = $3, updated_at = NOW()
		WHERE provider_intent_id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, intentID, state, failureMessage)
	if err != nil {
		return fmt.Errorf("failed to update checkout state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// SetVerified marks a session as having passed out-of-band verification
func (r *CheckoutRepository) SetVerified(ctx context.Context, intentID string) error {
	query := `UPDATE checkout_sessions SET verified = true, updated_at = NOW() WHERE provider_intent_id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, intentID)
	if err != nil {
		return fmt.Errorf("failed to mark session verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// ListStaleProvisional returns sessions stuck in a non-terminal confirming
// state for longer than the cutoff. These are candidates for provider
// reconciliation when the webhook never arrived.
func (r *CheckoutRepository) ListStaleProvisional(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.CheckoutSession, error) {
	query := `
		SELECT ` + checkoutColumns + `
		FROM checkout_sessions
		WHERE state = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, models.StateConfirming, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.CheckoutSession, 0)
	for rows.Next() {
		s, err := scanCheckoutSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkout session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkout rows: %w", err)
	}

	return sessions, nil
}

// DeleteTerminalOlderThan removes finished sessions past the retention
// window and returns the number deleted.
func (r *CheckoutRepository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM checkout_sessions
		WHERE state IN ($1, $2) AND updated_at < $3
	`

	tag, err := r.db.Pool.Exec(ctx, query, models.StateSucceeded, models.StateFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete terminal sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}
