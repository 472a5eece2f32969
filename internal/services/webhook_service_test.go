package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianinvest/platform/internal/models"
	"github.com/meridianinvest/platform/internal/payments"
	"github.com/meridianinvest/platform/internal/services"
)

type webhookFixture struct {
	svc       *services.WebhookService
	verifier  *mockVerifier
	purchases *mockPurchaseStore
	checkouts *mockCheckoutStore
	security  *mockSecurityLog
	userID    uuid.UUID
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	products := &mockProductStore{products: map[string]*models.Product{
		"starter": {ID: "starter", Name: "Starter Package", Price: 500, Currency: "usd", Active: true},
		"intro":   {ID: "intro", Name: "Intro Package", Price: 0, Currency: "usd", Active: true},
	}}

	f := &webhookFixture{
		verifier:  &mockVerifier{},
		purchases: newMockPurchaseStore(),
		checkouts: newMockCheckoutStore(),
		security:  &mockSecurityLog{},
		userID:    uuid.New(),
	}
	f.svc = services.NewWebhookService(
		f.verifier, f.purchases, f.checkouts, products, f.security,
		newTestAudit(), newTestLogger(),
	)
	return f
}

func (f *webhookFixture) seedSession(t *testing.T, intentID, productID string, amountCents int64, state models.CheckoutState) {
	t.Helper()
	_, err := f.checkouts.Create(context.Background(), &models.CheckoutSession{
		UserID:           f.userID,
		ProductID:        productID,
		ProviderIntentID: intentID,
		AmountCents:      amountCents,
		Currency:         "usd",
		State:            state,
	})
	require.NoError(t, err)
}

func TestWebhookServiceIntentSucceeded_WritesPurchaseRecords(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedSession(t, "pi_1", "starter", 50000, models.StateConfirming)

	err := f.svc.ProcessEvent(context.Background(), &payments.Event{
		ID:       "evt_1",
		Type:     payments.EventIntentSucceeded,
		IntentID: "pi_1",
		Amount:   50000,
		Currency: "usd",
		Status:   payments.IntentStatusSucceeded,
	})
	require.NoError(t, err)

	require.Len(t, f.purchases.records, 1)
	records := f.purchases.records[0]

	assert.Equal(t, f.userID, records.Payment.UserID)
	assert.Equal(t, 500.0, records.Payment.Amount)
	assert.Equal(t, models.PaymentStatusSucceeded, records.Payment.Status)

	require.NotNil(t, records.Investment)
	assert.Equal(t, "Starter Package", records.Investment.PackageName)
	assert.Equal(t, 500.0, records.Investment.Amount)
	assert.Equal(t, 500.0, records.Investment.CurrentValue)
	assert.Equal(t, "active", records.Investment.Status)

	// The ledger entry is the negated settled amount in major units.
	assert.Equal(t, -500.0, records.Transaction.Amount)
	assert.Equal(t, "investment", records.Transaction.Type)
	assert.Equal(t, "Investment in Starter Package", records.Transaction.Description)

	session, err := f.checkouts.GetByIntentID(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, models.StateSucceeded, session.State)
}

func TestWebhookServiceIntentSucceeded_FreeProductSkipsInvestment(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedSession(t, "pi_2", "intro", 0, models.StateConfirming)

	err := f.svc.ProcessEvent(context.Background(), &payments.Event{
		Type:     payments.EventIntentSucceeded,
		IntentID: "pi_2",
		Amount:   0,
		Currency: "usd",
	})
	require.NoError(t, err)

	require.Len(t, f.purchases.records, 1)
	assert.Nil(t, f.purchases.records[0].Investment)
	assert.NotNil(t, f.purchases.records[0].Transaction)
}

func TestWebhookServiceIntentSucceeded_RedeliveryIsIdempotent(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedSession(t, "pi_3", "starter", 50000, models.StateConfirming)

	event := &payments.Event{
		Type:     payments.EventIntentSucceeded,
		IntentID: "pi_3",
		Amount:   50000,
		Currency: "usd",
	}

	require.NoError(t, f.svc.ProcessEvent(context.Background(), event))
	require.NoError(t, f.svc.ProcessEvent(context.Background(), event))

	assert.Len(t, f.purchases.records, 1)
}

func TestWebhookServiceIntentSucceeded_MissingSessionSurfaces(t *testing.T) {
	f := newWebhookFixture(t)

	err := f.svc.ProcessEvent(context.Background(), &payments.Event{
		Type:     payments.EventIntentSucceeded,
		IntentID: "pi_unknown",
		Amount:   50000,
	})

	// The provider charged money we have no session for; this must error so
	// the delivery is retried rather than silently acknowledged.
	assert.Error(t, err)
	assert.Empty(t, f.purchases.records)
}

func TestWebhookServiceIntentFailed_MarksSessionFailed(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedSession(t, "pi_4", "starter", 50000, models.StateConfirming)

	err := f.svc.ProcessEvent(context.Background(), &payments.Event{
		Type:     payments.EventIntentFailed,
		IntentID: "pi_4",
	})
	require.NoError(t, err)

	session, err := f.checkouts.GetByIntentID(context.Background(), "pi_4")
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, session.State)
	require.NotNil(t, session.FailureMessage)

	// A medium severity payment event was fed to the pipeline.
	require.NotEmpty(t, f.security.inputs)
	last := f.security.inputs[len(f.security.inputs)-1]
	assert.Equal(t, models.EventPaymentAttempt, last.EventType)
	assert.Equal(t, models.SeverityMedium, last.Severity)
}

func TestWebhookServiceIntentFailed_UnknownIntentIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	err := f.svc.ProcessEvent(context.Background(), &payments.Event{
		Type:     payments.EventIntentFailed,
		IntentID: "pi_unknown",
	})

	// Nothing to do, but failure deliveries for unknown intents are not
	// worth a provider retry loop.
	assert.NoError(t, err)
}

func TestWebhookServiceProcessEvent_UnknownTypeIgnored(t *testing.T) {
	f := newWebhookFixture(t)

	err := f.svc.ProcessEvent(context.Background(), &payments.Event{
		ID:   "evt_x",
		Type: "charge.refund.updated",
	})

	assert.NoError(t, err)
	assert.Empty(t, f.purchases.records)
}

func TestWebhookServiceHandleDelivery_BadSignature(t *testing.T) {
	f := newWebhookFixture(t)
	f.verifier.sigErr = errors.New("signature mismatch")

	err := f.svc.HandleDelivery(context.Background(), []byte(`{}`), "t=1,v1=bad")

	assert.ErrorIs(t, err, services.ErrBadSignature)
}

func TestWebhookServiceHandleDelivery_VerifiedEventIsProcessed(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedSession(t, "pi_5", "starter", 50000, models.StateConfirming)
	f.verifier.event = &payments.Event{
		Type:     payments.EventIntentSucceeded,
		IntentID: "pi_5",
		Amount:   50000,
		Currency: "usd",
	}

	err := f.svc.HandleDelivery(context.Background(), []byte(`{}`), "t=1,v1=good")

	require.NoError(t, err)
	assert.Len(t, f.purchases.records, 1)
}
