package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/meridianinvest/platform/internal/database"
	"github.com/meridianinvest/platform/internal/models"
)

// VerificationRepository stores hashed out-of-band verification codes for
// high-value checkouts. Only the SHA-256 hash of a code is persisted.
type VerificationRepository struct {
	db *database.DB
}

// NewVerificationRepository creates a new VerificationRepository
func NewVerificationRepository(db *database.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Create stores a code hash for an intent, replacing any previous unused
// code for the same intent.
func (r *VerificationRepository) Create(ctx context.Context, intentID, codeHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO verification_codes (provider_intent_id, code_hash, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider_intent_id)
		DO UPDATE SET code_hash = EXCLUDED.code_hash, expires_at = EXCLUDED.expires_at, used = false
	`

	_, err := r.db.Pool.Exec(ctx, query, intentID, codeHash, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store verification code: %w", err)
	}

	return nil
}

// Consume marks the code for an intent as used if the hash matches and the
// code is unexpired and unused. Returns ErrVerificationInvalid otherwise.
func (r *VerificationRepository) Consume(ctx context.Context, intentID, codeHash string) error {
	query := `
		UPDATE verification_codes
		SET used = true
		WHERE provider_intent_id = $1
		  AND code_hash = $2
		  AND used = false
		  AND expires_at > NOW()
	`

	tag, err := r.db.Pool.Exec(ctx, query, intentID, codeHash)
	if err != nil {
		return fmt.Errorf("failed to consume verification code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrVerificationInvalid
	}

	return nil
}

// DeleteExpired removes expired codes and returns the number deleted
func (r *VerificationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM verification_codes WHERE expires_at <= NOW()`

	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired codes: %w", err)
	}

	return tag.RowsAffected(), nil
}
