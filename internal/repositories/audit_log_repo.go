package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meridianinvest/platform/internal/database"
	"github.com/meridianinvest/platform/internal/models"
)

// AuditLogRepository handles audit log data access
type AuditLogRepository struct {
	db *database.DB
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Create inserts a new audit log entry
func (r *AuditLogRepository) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	query := `
		INSERT INTO audit_logs (user_id, action, resource, details, ip_address, user_agent, risk_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, user_id, action, resource, details, ip_address, user_agent, risk_level, created_at
	`

	var created models.AuditLog
	err := r.db.Pool.QueryRow(ctx, query,
		log.UserID, log.Action, log.Resource, log.Details,
		log.IPAddress, log.UserAgent, log.RiskLevel,
	).Scan(
		&created.ID, &created.UserID, &created.Action, &created.Resource,
		&created.Details, &created.IPAddress, &created.UserAgent,
		&created.RiskLevel, &created.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", database.MapPostgresError(err))
	}

	return &created, nil
}

// ListByUserID retrieves audit logs for a user, newest first
func (r *AuditLogRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, user_id, action, resource, details, ip_address, user_agent, risk_level, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.Resource, &l.Details,
			&l.IPAddress, &l.UserAgent, &l.RiskLevel, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return logs, nil
}

// Cleanup removes audit logs older than the cutoff and returns the number
// deleted.
func (r *AuditLogRepository) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM audit_logs WHERE created_at < $1`

	tag, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	return tag.RowsAffected(), nil
}
