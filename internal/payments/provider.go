// Package payments wraps the hosted payment provider behind an injected
// interface so request handlers and services never touch a package-level
// client singleton.
package payments

import (
	"context"

	"github.com/meridianinvest/platform/internal/models"
)

// Provider event types, matching the provider's webhook vocabulary.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventCustomerCreated = "customer.created"
)

// Intent statuses surfaced by the provider.
const (
	IntentStatusRequiresPaymentMethod = "requires_payment_method"
	IntentStatusSucceeded             = "succeeded"
)

// CreateIntentParams carries everything needed to open a payment intent.
// Amount is in minor units.
type CreateIntentParams struct {
	Amount        int64
	Currency      string
	CustomerID    string
	Description   string
	ReceiptEmail  string
	Metadata      map[string]string
}

// Provider is the hosted payment backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	// FindOrCreateCustomer returns the existing customer for the email,
	// creating one when none exists.
	FindOrCreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*models.Customer, error)

	// CreateIntent opens a new payment intent in requires_payment_method
	// status.
	CreateIntent(ctx context.Context, params CreateIntentParams) (*models.PaymentIntent, error)

	// ConfirmIntent submits a payment method against an intent. A declined
	// charge returns an error; the caller decides terminal state.
	ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*models.PaymentIntent, error)

	// GetIntent fetches the current provider-side state of an intent.
	GetIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error)

	// ListCardPaymentMethods returns stored card summaries for a customer.
	ListCardPaymentMethods(ctx context.Context, customerID string) ([]models.PaymentMethod, error)
}

// Event is a provider webhook delivery after signature verification.
type Event struct {
	ID       string
	Type     string
	IntentID string
	Amount   int64 // minor units
	Currency string
	Status   string
	Metadata map[string]string
}

// WebhookVerifier authenticates and decodes raw webhook deliveries.
type WebhookVerifier interface {
	// ParseEvent verifies the provider signature over the payload and
	// decodes the event. A bad signature returns an error and the payload
	// must not be processed.
	ParseEvent(payload []byte, signatureHeader string) (*Event, error)
}
