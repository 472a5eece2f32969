package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meridianinvest/platform/internal/database"
	"github.com/meridianinvest/platform/internal/models"
)

// SecurityEventRepository handles security event persistence
type SecurityEventRepository struct {
	db *database.DB
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

// Create inserts a security event and returns the stored row
func (r *SecurityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error) {
	query := `
		INSERT INTO security_events (user_id, event_type, severity, details, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, event_type, severity, details, ip_address, user_agent, created_at
	`

	var created models.SecurityEvent
	err := r.db.Pool.QueryRow(ctx, query,
		event.UserID, event.EventType, event.Severity, event.Details,
		event.IPAddress, event.UserAgent,
	).Scan(
		&created.ID, &created.UserID, &created.EventType, &created.Severity,
		&created.Details, &created.IPAddress, &created.UserAgent, &created.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create security event: %w", database.MapPostgresError(err))
	}

	return &created, nil
}

// CountByUserAndType counts a user's events of one type since the given
// time. Drives the escalation decision.
func (r *SecurityEventRepository) CountByUserAndType(ctx context.Context, userID uuid.UUID, eventType string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM security_events
		WHERE user_id = $1 AND event_type = $2 AND created_at >= $3
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, userID, eventType, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count security events: %w", err)
	}

	return count, nil
}

// HasEscalationSince reports whether an escalation event already exists
// for the user and original event type within the window. Keeps repeated
// bursts from producing more than one escalation per window.
func (r *SecurityEventRepository) HasEscalationSince(ctx context.Context, userID uuid.UUID, originalType string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM security_events
			WHERE user_id = $1
			  AND event_type = $2
			  AND details->>'original_event' = $3
			  AND created_at >= $4
		)
	`

	var exists bool
	err := r.db.Pool.QueryRow(ctx, query, userID, models.EventRateLimitExceeded, originalType, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for escalation: %w", err)
	}

	return exists, nil
}

// ListRecent retrieves the most recent events, newest first
func (r *SecurityEventRepository) ListRecent(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT id, user_id, event_type, severity, details, ip_address, user_agent, created_at
		FROM security_events
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)
	for rows.Next() {
		var e models.SecurityEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.Severity,
			&e.Details, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}

// DeleteOlderThan removes events past the retention window and returns the
// number deleted.
func (r *SecurityEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM security_events WHERE created_at < $1`

	tag, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old security events: %w", err)
	}

	return tag.RowsAffected(), nil
}
