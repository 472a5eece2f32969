package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridianinvest/platform/internal/ratelimit"
	"github.com/meridianinvest/platform/internal/repositories"
)

// Retention windows for durable security data and finished checkouts.
const (
	terminalSessionRetention = 30 * 24 * time.Hour
	limiterIdleAge           = 2 * time.Hour
)

// CleanupManager periodically expires security events, audit logs,
// verification codes, finished checkout sessions and idle session limiters.
type CleanupManager struct {
	events        *repositories.SecurityEventRepository
	audits        *repositories.AuditLogRepository
	verifications *repositories.VerificationRepository
	checkouts     *repositories.CheckoutRepository
	limiters      *ratelimit.Registry
	retentionDays int
	logger        *slog.Logger
	interval      time.Duration
	stopCh        chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	events *repositories.SecurityEventRepository,
	audits *repositories.AuditLogRepository,
	verifications *repositories.VerificationRepository,
	checkouts *repositories.CheckoutRepository,
	limiters *ratelimit.Registry,
	retentionDays int,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		events:        events,
		audits:        audits,
		verifications: verifications,
		checkouts:     checkouts,
		limiters:      limiters,
		retentionDays: retentionDays,
		logger:        logger,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	retentionCutoff := time.Now().AddDate(0, 0, -cm.retentionDays)

	if n, err := cm.events.DeleteOlderThan(cleanupCtx, retentionCutoff); err != nil {
		cm.logger.Error("failed to expire security events", slog.Any("error", err))
	} else if n > 0 {
		cm.logger.Info("expired security events", slog.Int64("rows_deleted", n))
	}

	if n, err := cm.audits.Cleanup(cleanupCtx, retentionCutoff); err != nil {
		cm.logger.Error("failed to expire audit logs", slog.Any("error", err))
	} else if n > 0 {
		cm.logger.Info("expired audit logs", slog.Int64("rows_deleted", n))
	}

	if n, err := cm.verifications.DeleteExpired(cleanupCtx); err != nil {
		cm.logger.Error("failed to expire verification codes", slog.Any("error", err))
	} else if n > 0 {
		cm.logger.Info("expired verification codes", slog.Int64("rows_deleted", n))
	}

	sessionCutoff := time.Now().Add(-terminalSessionRetention)
	if n, err := cm.checkouts.DeleteTerminalOlderThan(cleanupCtx, sessionCutoff); err != nil {
		cm.logger.Error("failed to purge finished checkout sessions", slog.Any("error", err))
	} else if n > 0 {
		cm.logger.Info("purged finished checkout sessions", slog.Int64("rows_deleted", n))
	}

	if evicted := cm.limiters.EvictIdle(limiterIdleAge); evicted > 0 {
		cm.logger.Info("evicted idle session limiters", slog.Int("evicted", evicted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
