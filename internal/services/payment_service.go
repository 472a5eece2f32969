package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/meridianinvest/platform/internal/config"
	"github.com/meridianinvest/platform/internal/models"
	"github.com/meridianinvest/platform/internal/payments"
	"github.com/meridianinvest/platform/internal/ratelimit"
	"github.com/meridianinvest/platform/pkg/logger"
	"github.com/meridianinvest/platform/pkg/security"
)

// CheckoutStore persists checkout session state
type CheckoutStore interface {
	Create(ctx context.Context, session *models.CheckoutSession) (*models.CheckoutSession, error)
	GetByIntentID(ctx context.Context, intentID string) (*models.CheckoutSession, error)
	UpdateState(ctx context.Context, intentID string, state models.CheckoutState, failureMessage *string) error
	SetVerified(ctx context.Context, intentID string) error
}

// VerificationStore persists hashed one-time verification codes
type VerificationStore interface {
	Create(ctx context.Context, intentID, codeHash string, expiresAt time.Time) error
	Consume(ctx context.Context, intentID, codeHash string) error
}

// ProductStore reads the product catalog
type ProductStore interface {
	GetByID(ctx context.Context, id string) (*models.Product, error)
}

// CustomerStore reads users and records their provider customer id
type CustomerStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error
}

// PaymentService orchestrates the checkout flow: intent creation, the
// high-value verification gate, and confirmation. Durable bookkeeping is
// written by the webhook service once the provider settles the charge, so
// everything here is provisional.
type PaymentService struct {
	provider      payments.Provider
	checkouts     CheckoutStore
	verifications VerificationStore
	products      ProductStore
	users         CustomerStore
	limiters      *ratelimit.Registry
	security      SecurityLogger
	email         EmailService
	audit         *logger.AuditLogger
	config        config.PaymentsConfig
	logger        *slog.Logger

	now func() time.Time
}

// NewPaymentService creates a new PaymentService. provider may be nil when
// the payment backend is not configured; operations then fail with
// ErrProviderConfig.
func NewPaymentService(
	provider payments.Provider,
	checkouts CheckoutStore,
	verifications VerificationStore,
	products ProductStore,
	users CustomerStore,
	limiters *ratelimit.Registry,
	sec SecurityLogger,
	email EmailService,
	audit *logger.AuditLogger,
	cfg config.PaymentsConfig,
	log *slog.Logger,
) *PaymentService {
	return &PaymentService{
		provider:      provider,
		checkouts:     checkouts,
		verifications: verifications,
		products:      products,
		users:         users,
		limiters:      limiters,
		security:      sec,
		email:         email,
		audit:         audit,
		config:        cfg,
		logger:        log,
		now:           time.Now,
	}
}

// IntentResponse is returned to the client after an intent is opened.
type IntentResponse struct {
	IntentID             string `json:"intent_id"`
	ClientSecret         string `json:"client_secret"`
	Amount               int64  `json:"amount"`
	Currency             string `json:"currency"`
	RequiresVerification bool   `json:"requires_verification"`
}

// CreateIntent opens a payment intent for a product purchase and records the
// checkout session. Amounts above the verification threshold additionally
// get a one-time code emailed to the user; the session stays unverified
// until the code is submitted.
func (s *PaymentService) CreateIntent(ctx context.Context, userID uuid.UUID, productID, ipAddress string) (*IntentResponse, error) {
	if s.provider == nil || !s.config.ProviderConfigured() {
		return nil, models.ErrProviderConfig
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown product %q", models.ErrBadRequest, productID)
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if !product.Active {
		return nil, fmt.Errorf("%w: product %q is not available", models.ErrBadRequest, productID)
	}

	amountCents := int64(math.Round(product.Price * 100))
	if amountCents <= 0 {
		return nil, fmt.Errorf("%w: product %q has no charge amount", models.ErrBadRequest, productID)
	}

	customerID, err := s.ensureCustomer(ctx, user, product)
	if err != nil {
		return nil, err
	}

	intent, err := s.provider.CreateIntent(ctx, payments.CreateIntentParams{
		Amount:       amountCents,
		Currency:     s.currency(product),
		CustomerID:   customerID,
		Description:  product.Name,
		ReceiptEmail: user.Email,
		Metadata: map[string]string{
			"product_id":     product.ID,
			"customer_email": user.Email,
			"user_id":        user.ID.String(),
		},
	})
	if err != nil {
		s.audit.LogPaymentEvent("intent_create", "", userID.String(), false)
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	session := &models.CheckoutSession{
		UserID:           userID,
		ProductID:        product.ID,
		ProviderIntentID: intent.ID,
		AmountCents:      amountCents,
		Currency:         intent.Currency,
		State:            models.StateIntentCreated,
	}
	if _, err := s.checkouts.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to record checkout session: %w", err)
	}

	requiresVerification := amountCents > s.config.VerificationThreshold
	if requiresVerification {
		if err := s.issueVerificationCode(ctx, intent.ID, user.Email); err != nil {
			return nil, err
		}
	}

	s.audit.LogPaymentEvent("intent_create", intent.ID, userID.String(), true)
	s.logger.Info("payment intent created",
		slog.String("intent_id", intent.ID),
		slog.String("product_id", product.ID),
		slog.Int64("amount_cents", amountCents),
		slog.Bool("requires_verification", requiresVerification),
		slog.String("ip_address", ipAddress))

	return &IntentResponse{
		IntentID:             intent.ID,
		ClientSecret:         intent.ClientSecret,
		Amount:               intent.Amount,
		Currency:             intent.Currency,
		RequiresVerification: requiresVerification,
	}, nil
}

// RecordCardEntered marks the session as having a payment method attached.
func (s *PaymentService) RecordCardEntered(ctx context.Context, userID uuid.UUID, intentID string) error {
	session, err := s.ownedSession(ctx, userID, intentID)
	if err != nil {
		return err
	}

	return s.transition(ctx, session, models.StateCardEntered, nil)
}

// VerifyCheckout consumes a one-time verification code for a high-value
// checkout. A wrong, expired, or reused code returns
// ErrVerificationInvalid without revealing which.
func (s *PaymentService) VerifyCheckout(ctx context.Context, userID uuid.UUID, intentID, code string) error {
	session, err := s.ownedSession(ctx, userID, intentID)
	if err != nil {
		return err
	}

	if err := s.verifications.Consume(ctx, intentID, hashCode(code)); err != nil {
		s.audit.LogPaymentEvent("verification", intentID, userID.String(), false)
		return err
	}

	if err := s.checkouts.SetVerified(ctx, intentID); err != nil {
		return fmt.Errorf("failed to mark session verified: %w", err)
	}

	s.audit.LogPaymentEvent("verification", session.ProviderIntentID, userID.String(), true)
	return nil
}

// Confirm submits the payment method against the intent. Attempts run
// through the per-user payment limiter before any work is done, and every
// attempt burns the window whether or not it succeeds. High-value sessions
// must have passed verification first. Success here is provisional: durable
// bookkeeping waits for the provider webhook.
func (s *PaymentService) Confirm(ctx context.Context, userID uuid.UUID, intentID, paymentMethodID string) (*models.PaymentIntent, error) {
	limiter := s.limiters.For(userID.String())
	if !limiter.CanProceed(ratelimit.CategoryPayment) {
		retryAfter := limiter.RemainingTime(ratelimit.CategoryPayment)
		s.security.LogEvent(ctx, EventInput{
			UserID:    &userID,
			EventType: models.EventSuspiciousActivity,
			Severity:  models.SeverityMedium,
			Details: models.EventDetails{
				"reason":    "payment_rate_limited",
				"intent_id": intentID,
			},
		})
		return nil, &RateLimitedError{RetryAfter: retryAfter}
	}
	limiter.RecordAttempt(ratelimit.CategoryPayment)

	session, err := s.ownedSession(ctx, userID, intentID)
	if err != nil {
		return nil, err
	}

	if session.AmountCents > s.config.VerificationThreshold && !session.Verified {
		return nil, models.ErrVerificationRequired
	}

	if err := s.transition(ctx, session, models.StateConfirming, nil); err != nil {
		return nil, err
	}

	intent, err := s.provider.ConfirmIntent(ctx, intentID, paymentMethodID)
	if err != nil {
		msg := "payment confirmation failed"
		if updateErr := s.checkouts.UpdateState(ctx, intentID, models.StateFailed, &msg); updateErr != nil {
			s.logger.Error("failed to record confirmation failure",
				slog.String("intent_id", intentID),
				slog.Any("error", updateErr))
		}
		s.security.LogEvent(ctx, EventInput{
			UserID:    &userID,
			EventType: models.EventPaymentAttempt,
			Severity:  models.SeverityHigh,
			Details: models.EventDetails{
				"intent_id": intentID,
				"outcome":   "provider_declined",
				"error":     err.Error(),
			},
		})
		s.audit.LogPaymentEvent("confirm", intentID, userID.String(), false)
		return nil, fmt.Errorf("failed to confirm payment intent: %w", err)
	}

	s.audit.LogPaymentEvent("confirm", intentID, userID.String(), true)
	return intent, nil
}

// CreateCustomer ensures the user has a provider customer record and
// returns it.
func (s *PaymentService) CreateCustomer(ctx context.Context, userID uuid.UUID) (*models.Customer, error) {
	if s.provider == nil || !s.config.ProviderConfigured() {
		return nil, models.ErrProviderConfig
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	customer, err := s.provider.FindOrCreateCustomer(ctx, user.Email, user.Name, map[string]string{
		"user_id": user.ID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	if user.CustomerID == nil || *user.CustomerID != customer.ID {
		if err := s.users.SetCustomerID(ctx, userID, customer.ID); err != nil {
			return nil, fmt.Errorf("failed to record customer id: %w", err)
		}
	}

	return customer, nil
}

// ListPaymentMethods returns the user's stored card payment methods. A user
// with no provider customer record has none.
func (s *PaymentService) ListPaymentMethods(ctx context.Context, userID uuid.UUID) ([]models.PaymentMethod, error) {
	if s.provider == nil || !s.config.ProviderConfigured() {
		return nil, models.ErrProviderConfig
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.CustomerID == nil {
		return []models.PaymentMethod{}, nil
	}

	methods, err := s.provider.ListCardPaymentMethods(ctx, *user.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}

	return methods, nil
}

func (s *PaymentService) ensureCustomer(ctx context.Context, user *models.User, product *models.Product) (string, error) {
	if user.CustomerID != nil {
		return *user.CustomerID, nil
	}

	customer, err := s.provider.FindOrCreateCustomer(ctx, user.Email, user.Name, map[string]string{
		"product_id":     product.ID,
		"customer_email": user.Email,
		"user_id":        user.ID.String(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to find or create customer: %w", err)
	}

	if err := s.users.SetCustomerID(ctx, user.ID, customer.ID); err != nil {
		return "", fmt.Errorf("failed to record customer id: %w", err)
	}

	return customer.ID, nil
}

func (s *PaymentService) issueVerificationCode(ctx context.Context, intentID, email string) error {
	code, err := security.GenerateNumericCode(6)
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}

	expiresAt := s.now().Add(s.config.VerificationCodeTTL)
	if err := s.verifications.Create(ctx, intentID, hashCode(code), expiresAt); err != nil {
		return fmt.Errorf("failed to store verification code: %w", err)
	}

	if err := s.email.SendVerificationCode(ctx, email, code, expiresAt); err != nil {
		return fmt.Errorf("failed to send verification code: %w", err)
	}

	return nil
}

// ownedSession loads a checkout session and checks that it belongs to the
// caller. A session owned by someone else reads as not found.
func (s *PaymentService) ownedSession(ctx context.Context, userID uuid.UUID, intentID string) (*models.CheckoutSession, error) {
	session, err := s.checkouts.GetByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrIntentNotFound
		}
		return nil, fmt.Errorf("failed to load checkout session: %w", err)
	}
	if session.UserID != userID {
		return nil, models.ErrIntentNotFound
	}

	return session, nil
}

func (s *PaymentService) transition(ctx context.Context, session *models.CheckoutSession, to models.CheckoutState, failureMessage *string) error {
	if !models.CanTransition(session.State, to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, session.State, to)
	}

	if err := s.checkouts.UpdateState(ctx, session.ProviderIntentID, to, failureMessage); err != nil {
		return fmt.Errorf("failed to update checkout state: %w", err)
	}
	session.State = to

	return nil
}

func (s *PaymentService) currency(product *models.Product) string {
	if product.Currency != "" {
		return product.Currency
	}
	return s.config.DefaultCurrency
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
