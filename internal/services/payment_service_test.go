package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianinvest/platform/internal/config"
	"github.com/meridianinvest/platform/internal/models"
	"github.com/meridianinvest/platform/internal/ratelimit"
	"github.com/meridianinvest/platform/internal/services"
)

type paymentFixture struct {
	svc           *services.PaymentService
	provider      *mockProvider
	checkouts     *mockCheckoutStore
	verifications *mockVerificationStore
	email         *mockEmailService
	limiters      *ratelimit.Registry
	security      *mockSecurityLog
	users         *mockCustomerStore
	userID        uuid.UUID
	userEmail     string
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	userID := uuid.New()
	users := &mockCustomerStore{users: map[uuid.UUID]*models.User{
		userID: {ID: userID, Email: "investor@example.com", Name: "Test Investor"},
	}}
	products := &mockProductStore{products: map[string]*models.Product{
		"starter": {ID: "starter", Name: "Starter Package", Price: 500, Currency: "usd", Active: true},
		"premium": {ID: "premium", Name: "Premium Package", Price: 2500, Currency: "usd", Active: true},
		"retired": {ID: "retired", Name: "Retired Package", Price: 100, Currency: "usd", Active: false},
	}}

	cfg := config.PaymentsConfig{
		SecretKey:             "sk_test_secret",
		DefaultCurrency:       "usd",
		VerificationThreshold: 100000, // 1000.00 in minor units
		VerificationCodeTTL:   10 * time.Minute,
	}

	f := &paymentFixture{
		provider:      newMockProvider(),
		checkouts:     newMockCheckoutStore(),
		verifications: newMockVerificationStore(),
		email:         newMockEmailService(),
		limiters:      ratelimit.NewRegistry(ratelimit.DefaultRules()),
		security:      &mockSecurityLog{},
		users:         users,
		userID:        userID,
		userEmail:     "investor@example.com",
	}
	f.svc = services.NewPaymentService(
		f.provider, f.checkouts, f.verifications, products, users,
		f.limiters, f.security, f.email, newTestAudit(), cfg, newTestLogger(),
	)
	return f
}

func TestPaymentServiceCreateIntent_ProviderNotConfigured(t *testing.T) {
	f := newPaymentFixture(t)
	cfg := config.PaymentsConfig{} // no secret key
	svc := services.NewPaymentService(nil, f.checkouts, f.verifications,
		&mockProductStore{}, &mockCustomerStore{}, f.limiters, f.security,
		f.email, newTestAudit(), cfg, newTestLogger())

	_, err := svc.CreateIntent(context.Background(), f.userID, "starter", "203.0.113.7")

	assert.ErrorIs(t, err, models.ErrProviderConfig)
}

func TestPaymentServiceCreateIntent_BelowThreshold(t *testing.T) {
	f := newPaymentFixture(t)

	resp, err := f.svc.CreateIntent(context.Background(), f.userID, "starter", "203.0.113.7")

	require.NoError(t, err)
	assert.False(t, resp.RequiresVerification)
	assert.Equal(t, int64(50000), resp.Amount)
	assert.NotEmpty(t, resp.ClientSecret)

	session, err := f.checkouts.GetByIntentID(context.Background(), resp.IntentID)
	require.NoError(t, err)
	assert.Equal(t, models.StateIntentCreated, session.State)
	assert.False(t, session.Verified)

	// No code was issued for a below-threshold amount.
	assert.Empty(t, f.email.codes)
}

func TestPaymentServiceCreateIntent_AboveThresholdIssuesCode(t *testing.T) {
	f := newPaymentFixture(t)

	resp, err := f.svc.CreateIntent(context.Background(), f.userID, "premium", "203.0.113.7")

	require.NoError(t, err)
	assert.True(t, resp.RequiresVerification)
	assert.Equal(t, int64(250000), resp.Amount)

	code, ok := f.email.codes[f.userEmail]
	require.True(t, ok, "verification code should have been emailed")
	assert.Len(t, code, 6)
}

func TestPaymentServiceCreateIntent_RejectsUnknownAndInactiveProducts(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateIntent(ctx, f.userID, "no-such-product", "")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = f.svc.CreateIntent(ctx, f.userID, "retired", "")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestPaymentServiceConfirm_HappyPath(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateIntent(ctx, f.userID, "starter", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.RecordCardEntered(ctx, f.userID, resp.IntentID))

	intent, err := f.svc.Confirm(ctx, f.userID, resp.IntentID, "pm_test_visa")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", intent.Status)

	// The session stays in confirming until the webhook settles it.
	session, err := f.checkouts.GetByIntentID(ctx, resp.IntentID)
	require.NoError(t, err)
	assert.Equal(t, models.StateConfirming, session.State)
}

func TestPaymentServiceConfirm_RequiresCardEnteredFirst(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateIntent(ctx, f.userID, "starter", "")
	require.NoError(t, err)

	// Skipping the card_entered step is an illegal transition.
	_, err = f.svc.Confirm(ctx, f.userID, resp.IntentID, "pm_test_visa")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestPaymentServiceConfirm_HighValueRequiresVerification(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateIntent(ctx, f.userID, "premium", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.RecordCardEntered(ctx, f.userID, resp.IntentID))

	_, err = f.svc.Confirm(ctx, f.userID, resp.IntentID, "pm_test_visa")
	assert.ErrorIs(t, err, models.ErrVerificationRequired)

	// Submit the emailed code, then confirmation goes through.
	code := f.email.codes[f.userEmail]
	require.NoError(t, f.svc.VerifyCheckout(ctx, f.userID, resp.IntentID, code))

	_, err = f.svc.Confirm(ctx, f.userID, resp.IntentID, "pm_test_visa")
	assert.NoError(t, err)
}

func TestPaymentServiceVerifyCheckout_WrongCode(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateIntent(ctx, f.userID, "premium", "")
	require.NoError(t, err)

	err = f.svc.VerifyCheckout(ctx, f.userID, resp.IntentID, "000000")
	assert.ErrorIs(t, err, models.ErrVerificationInvalid)

	session, err := f.checkouts.GetByIntentID(ctx, resp.IntentID)
	require.NoError(t, err)
	assert.False(t, session.Verified)
}

func TestPaymentServiceVerifyCheckout_CodeIsSingleUse(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateIntent(ctx, f.userID, "premium", "")
	require.NoError(t, err)

	code := f.email.codes[f.userEmail]
	require.NoError(t, f.svc.VerifyCheckout(ctx, f.userID, resp.IntentID, code))

	err = f.svc.VerifyCheckout(ctx, f.userID, resp.IntentID, code)
	assert.ErrorIs(t, err, models.ErrVerificationInvalid)
}

func TestPaymentServiceConfirm_ProviderDeclineMarksSessionFailed(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateIntent(ctx, f.userID, "starter", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.RecordCardEntered(ctx, f.userID, resp.IntentID))

	f.provider.confirmErr = assert.AnError
	_, err = f.svc.Confirm(ctx, f.userID, resp.IntentID, "pm_test_declined")
	require.Error(t, err)

	session, err := f.checkouts.GetByIntentID(ctx, resp.IntentID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, session.State)
	require.NotNil(t, session.FailureMessage)
}

func TestPaymentServiceConfirm_RateLimitedAfterRepeatedAttempts(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	// The payment window allows three confirmation attempts per hour, so
	// three complete checkout cycles go through back to back.
	for i := 0; i < 3; i++ {
		resp, err := f.svc.CreateIntent(ctx, f.userID, "starter", "")
		require.NoError(t, err)
		require.NoError(t, f.svc.RecordCardEntered(ctx, f.userID, resp.IntentID))

		_, err = f.svc.Confirm(ctx, f.userID, resp.IntentID, "pm_test_visa")
		require.NoError(t, err)
	}

	// The fourth attempt inside the window is denied before any provider
	// call, with a retry hint bounded by the window length.
	resp, err := f.svc.CreateIntent(ctx, f.userID, "starter", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.RecordCardEntered(ctx, f.userID, resp.IntentID))

	_, err = f.svc.Confirm(ctx, f.userID, resp.IntentID, "pm_test_visa")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRateLimitExceeded)

	var rateErr *services.RateLimitedError
	require.ErrorAs(t, err, &rateErr)
	assert.Greater(t, rateErr.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, rateErr.RetryAfter, time.Hour)

	// The denial itself is fed to the security pipeline.
	var limited bool
	for _, input := range f.security.inputs {
		if input.Details["reason"] == "payment_rate_limited" {
			limited = true
		}
	}
	assert.True(t, limited, "rate limited confirm should log a security event")

	// Another user's window is independent.
	otherID := uuid.New()
	f.users.users[otherID] = &models.User{ID: otherID, Email: "other@example.com", Name: "Other Investor"}

	otherResp, err := f.svc.CreateIntent(ctx, otherID, "starter", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.RecordCardEntered(ctx, otherID, otherResp.IntentID))

	_, err = f.svc.Confirm(ctx, otherID, otherResp.IntentID, "pm_test_visa")
	assert.NoError(t, err)
}

func TestPaymentServiceConfirm_DeclineLogsHighSeverityEvent(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateIntent(ctx, f.userID, "starter", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.RecordCardEntered(ctx, f.userID, resp.IntentID))

	f.provider.confirmErr = assert.AnError
	_, err = f.svc.Confirm(ctx, f.userID, resp.IntentID, "pm_test_declined")
	require.Error(t, err)

	var logged *services.EventInput
	for i := range f.security.inputs {
		if f.security.inputs[i].EventType == models.EventPaymentAttempt {
			logged = &f.security.inputs[i]
		}
	}
	require.NotNil(t, logged, "provider decline should log a security event")
	assert.Equal(t, models.SeverityHigh, logged.Severity)
	require.NotNil(t, logged.UserID)
	assert.Equal(t, f.userID, *logged.UserID)
	assert.Equal(t, "provider_declined", logged.Details["outcome"])
}

func TestPaymentServiceSessionOwnership(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateIntent(ctx, f.userID, "starter", "")
	require.NoError(t, err)

	otherUser := uuid.New()
	err = f.svc.RecordCardEntered(ctx, otherUser, resp.IntentID)
	assert.ErrorIs(t, err, models.ErrIntentNotFound)

	err = f.svc.VerifyCheckout(ctx, otherUser, resp.IntentID, "123456")
	assert.ErrorIs(t, err, models.ErrIntentNotFound)
}

func TestPaymentServiceCreateIntent_RecordsCustomerID(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateIntent(ctx, f.userID, "starter", "")
	require.NoError(t, err)

	methods, err := f.svc.ListPaymentMethods(ctx, f.userID)
	require.NoError(t, err)
	assert.NotNil(t, methods)
}
