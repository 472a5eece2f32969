package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meridianinvest/platform/internal/models"
	"github.com/meridianinvest/platform/internal/payments"
	"github.com/meridianinvest/platform/internal/repositories"
	"github.com/meridianinvest/platform/pkg/logger"
)

// PurchaseStore writes durable purchase bookkeeping
type PurchaseStore interface {
	GetByProviderIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	CreatePurchaseRecords(ctx context.Context, records repositories.PurchaseRecords) error
	MarkFailed(ctx context.Context, intentID string) error
}

// SecurityLogger records security events from other services
type SecurityLogger interface {
	LogEvent(ctx context.Context, input EventInput) *models.SecurityEvent
}

// WebhookService turns verified provider webhook deliveries into durable
// bookkeeping. Deliveries are at-least-once, so every handler here must be
// idempotent.
type WebhookService struct {
	verifier  payments.WebhookVerifier
	purchases PurchaseStore
	checkouts CheckoutStore
	products  ProductStore
	security  SecurityLogger
	audit     *logger.AuditLogger
	logger    *slog.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(
	verifier payments.WebhookVerifier,
	purchases PurchaseStore,
	checkouts CheckoutStore,
	products ProductStore,
	security SecurityLogger,
	audit *logger.AuditLogger,
	log *slog.Logger,
) *WebhookService {
	return &WebhookService{
		verifier:  verifier,
		purchases: purchases,
		checkouts: checkouts,
		products:  products,
		security:  security,
		audit:     audit,
		logger:    log,
	}
}

// ErrBadSignature is returned when a webhook delivery fails signature
// verification. The payload must not be processed.
var ErrBadSignature = errors.New("webhook signature verification failed")

// HandleDelivery verifies and processes one raw webhook delivery.
func (s *WebhookService) HandleDelivery(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := s.verifier.ParseEvent(payload, signatureHeader)
	if err != nil {
		s.logger.Warn("rejected webhook delivery", slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	return s.ProcessEvent(ctx, event)
}

// ProcessEvent routes a verified provider event. Unknown event types are
// logged and acknowledged so the provider stops retrying them.
func (s *WebhookService) ProcessEvent(ctx context.Context, event *payments.Event) error {
	switch event.Type {
	case payments.EventIntentSucceeded:
		return s.handleIntentSucceeded(ctx, event)
	case payments.EventIntentFailed:
		return s.handleIntentFailed(ctx, event)
	default:
		s.logger.Info("ignoring unhandled webhook event",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type))
		return nil
	}
}

// handleIntentSucceeded writes the payment, investment and transaction rows
// for a settled charge. A redelivery for an intent that already has a
// payment row is a no-op.
func (s *WebhookService) handleIntentSucceeded(ctx context.Context, event *payments.Event) error {
	if _, err := s.purchases.GetByProviderIntentID(ctx, event.IntentID); err == nil {
		s.logger.Info("skipping already-processed intent",
			slog.String("intent_id", event.IntentID))
		return nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check for existing payment: %w", err)
	}

	session, err := s.checkouts.GetByIntentID(ctx, event.IntentID)
	if err != nil {
		// The session may have been created by another deployment or
		// expired. The provider charged real money either way, so the
		// failure has to surface for retry rather than being dropped.
		return fmt.Errorf("no checkout session for settled intent %s: %w", event.IntentID, err)
	}

	product, err := s.products.GetByID(ctx, session.ProductID)
	if err != nil {
		return fmt.Errorf("failed to load product %q: %w", session.ProductID, err)
	}

	amount := float64(event.Amount) / 100

	records := repositories.PurchaseRecords{
		Payment: &models.Payment{
			UserID:           session.UserID,
			ProviderIntentID: event.IntentID,
			Amount:           amount,
			Currency:         event.Currency,
			Status:           models.PaymentStatusSucceeded,
			ProductID:        product.ID,
			Metadata:         eventMetadata(event),
		},
		Transaction: &models.Transaction{
			UserID:      session.UserID,
			Type:        "investment",
			Amount:      -amount,
			Description: fmt.Sprintf("Investment in %s", product.Name),
			Status:      "completed",
		},
	}

	// Free products settle a payment but do not open a holding.
	if product.Price > 0 {
		records.Investment = &models.Investment{
			UserID:       session.UserID,
			PackageName:  product.Name,
			Amount:       product.Price,
			CurrentValue: product.Price,
			Status:       "active",
		}
	}

	if err := s.purchases.CreatePurchaseRecords(ctx, records); err != nil {
		return fmt.Errorf("failed to write purchase records: %w", err)
	}

	if err := s.settleSession(ctx, session, models.StateSucceeded, nil); err != nil {
		s.logger.Error("failed to settle checkout session",
			slog.String("intent_id", event.IntentID),
			slog.Any("error", err))
	}

	userID := session.UserID
	s.security.LogEvent(ctx, EventInput{
		UserID:    &userID,
		EventType: models.EventPaymentAttempt,
		Severity:  models.SeverityLow,
		Details: models.EventDetails{
			"intent_id":  event.IntentID,
			"product_id": product.ID,
			"outcome":    "succeeded",
		},
	})
	s.audit.LogPaymentEvent("webhook_settled", event.IntentID, session.UserID.String(), true)

	return nil
}

// handleIntentFailed records the failure on the session and any existing
// payment row.
func (s *WebhookService) handleIntentFailed(ctx context.Context, event *payments.Event) error {
	if err := s.purchases.MarkFailed(ctx, event.IntentID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}

	session, err := s.checkouts.GetByIntentID(ctx, event.IntentID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("failure webhook for unknown intent",
				slog.String("intent_id", event.IntentID))
			return nil
		}
		return fmt.Errorf("failed to load checkout session: %w", err)
	}

	msg := "payment failed at provider"
	if err := s.settleSession(ctx, session, models.StateFailed, &msg); err != nil {
		s.logger.Error("failed to record session failure",
			slog.String("intent_id", event.IntentID),
			slog.Any("error", err))
	}

	userID := session.UserID
	s.security.LogEvent(ctx, EventInput{
		UserID:    &userID,
		EventType: models.EventPaymentAttempt,
		Severity:  models.SeverityMedium,
		Details: models.EventDetails{
			"intent_id": event.IntentID,
			"outcome":   "failed",
		},
	})
	s.audit.LogPaymentEvent("webhook_failed", event.IntentID, session.UserID.String(), false)

	return nil
}

// settleSession moves the session to a terminal state. A session already in
// that state (a webhook redelivery) is left alone.
func (s *WebhookService) settleSession(ctx context.Context, session *models.CheckoutSession, to models.CheckoutState, failureMessage *string) error {
	if session.State == to {
		return nil
	}
	if !models.CanTransition(session.State, to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, session.State, to)
	}

	return s.checkouts.UpdateState(ctx, session.ProviderIntentID, to, failureMessage)
}

func eventMetadata(event *payments.Event) models.EventDetails {
	md := models.EventDetails{}
	for k, v := range event.Metadata {
		md[k] = v
	}
	return md
}
