package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridianinvest/platform/internal/models"
	"github.com/meridianinvest/platform/internal/payments"
)

const reconcileBatchSize = 50

// StaleSessionLister reads checkout sessions stuck in a provisional state
type StaleSessionLister interface {
	ListStaleProvisional(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.CheckoutSession, error)
}

// EventSettler applies a provider event to durable bookkeeping. The webhook
// service satisfies this, so reconciliation and live deliveries share one
// idempotent settlement path.
type EventSettler interface {
	ProcessEvent(ctx context.Context, event *payments.Event) error
}

// Reconciler closes the gap between provisional checkout success and
// durable bookkeeping. Client-side confirmation can succeed while the
// webhook delivery is lost; sessions stuck in confirming past the cutoff
// are checked against the provider directly and settled through the same
// path the webhook would have taken.
type Reconciler struct {
	checkouts StaleSessionLister
	provider  payments.Provider
	webhooks  EventSettler
	after     time.Duration
	interval  time.Duration
	logger    *slog.Logger
	stopCh    chan struct{}
}

// NewReconciler creates a new Reconciler. provider may be nil when payments
// are not configured; the reconciler then idles.
func NewReconciler(
	checkouts StaleSessionLister,
	provider payments.Provider,
	webhooks EventSettler,
	after, interval time.Duration,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		checkouts: checkouts,
		provider:  provider,
		webhooks:  webhooks,
		after:     after,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic reconciliation task
func (rc *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.ReconcileOnce(ctx)
		case <-rc.stopCh:
			rc.logger.Info("reconciler stopped")
			return
		case <-ctx.Done():
			rc.logger.Info("reconciler context cancelled")
			return
		}
	}
}

// Stop signals the reconciler to stop
func (rc *Reconciler) Stop() {
	close(rc.stopCh)
}

// ReconcileOnce runs a single reconciliation sweep: every session stuck in
// confirming past the cutoff is checked against the provider and, if the
// provider reports a terminal state, settled.
func (rc *Reconciler) ReconcileOnce(ctx context.Context) {
	if rc.provider == nil {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-rc.after)
	sessions, err := rc.checkouts.ListStaleProvisional(runCtx, cutoff, reconcileBatchSize)
	if err != nil {
		rc.logger.Error("failed to list stale checkout sessions", slog.Any("error", err))
		return
	}

	for _, session := range sessions {
		rc.reconcileSession(runCtx, session)
	}
}

func (rc *Reconciler) reconcileSession(ctx context.Context, session *models.CheckoutSession) {
	intent, err := rc.provider.GetIntent(ctx, session.ProviderIntentID)
	if err != nil {
		rc.logger.Error("failed to fetch intent for reconciliation",
			slog.String("intent_id", session.ProviderIntentID),
			slog.Any("error", err))
		return
	}

	switch intent.Status {
	case payments.IntentStatusSucceeded:
		// Replay the delivery the webhook should have made. ProcessEvent is
		// idempotent, so racing a late webhook is harmless.
		event := &payments.Event{
			Type:     payments.EventIntentSucceeded,
			IntentID: intent.ID,
			Amount:   intent.Amount,
			Currency: intent.Currency,
			Status:   intent.Status,
		}
		if err := rc.webhooks.ProcessEvent(ctx, event); err != nil {
			rc.logger.Error("failed to settle reconciled intent",
				slog.String("intent_id", intent.ID),
				slog.Any("error", err))
			return
		}
		rc.logger.Info("reconciled settled intent",
			slog.String("intent_id", intent.ID))

	case "canceled":
		event := &payments.Event{
			Type:     payments.EventIntentFailed,
			IntentID: intent.ID,
			Amount:   intent.Amount,
			Currency: intent.Currency,
			Status:   intent.Status,
		}
		if err := rc.webhooks.ProcessEvent(ctx, event); err != nil {
			rc.logger.Error("failed to record reconciled failure",
				slog.String("intent_id", intent.ID),
				slog.Any("error", err))
			return
		}
		rc.logger.Info("reconciled canceled intent",
			slog.String("intent_id", intent.ID))

	default:
		// Still in flight at the provider; check again next pass.
		rc.logger.Debug("intent still pending at provider",
			slog.String("intent_id", intent.ID),
			slog.String("status", intent.Status))
	}
}
