package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meridianinvest/platform/internal/models"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

// StripeProvider implements Provider against the Stripe API using an
// explicit client instance.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider creates a provider bound to the given secret key.
func NewStripeProvider(secretKey string) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{api: api}
}

func (p *StripeProvider) FindOrCreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*models.Customer, error) {
	listParams := &stripe.CustomerListParams{Email: stripe.String(email)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)

	iter := p.api.Customers.List(listParams)
	for iter.Next() {
		c := iter.Customer()
		return &models.Customer{
			ID:       c.ID,
			Email:    c.Email,
			Name:     c.Name,
			Created:  c.Created,
			Existing: true,
		}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}

	createParams := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	createParams.Context = ctx
	for k, v := range metadata {
		createParams.AddMetadata(k, v)
	}

	c, err := p.api.Customers.New(createParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	return &models.Customer{
		ID:       c.ID,
		Email:    c.Email,
		Name:     c.Name,
		Created:  c.Created,
		Existing: false,
	}, nil
}

func (p *StripeProvider) CreateIntent(ctx context.Context, params CreateIntentParams) (*models.PaymentIntent, error) {
	intentParams := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(params.Amount),
		Currency: stripe.String(params.Currency),
		Customer: stripe.String(params.CustomerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	intentParams.Context = ctx
	if params.Description != "" {
		intentParams.Description = stripe.String(params.Description)
	}
	if params.ReceiptEmail != "" {
		intentParams.ReceiptEmail = stripe.String(params.ReceiptEmail)
	}
	for k, v := range params.Metadata {
		intentParams.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(intentParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return intentToModel(pi), nil
}

func (p *StripeProvider) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*models.PaymentIntent, error) {
	confirmParams := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
	}
	confirmParams.Context = ctx

	pi, err := p.api.PaymentIntents.Confirm(intentID, confirmParams)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm payment intent: %w", err)
	}

	return intentToModel(pi), nil
}

func (p *StripeProvider) GetIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx

	pi, err := p.api.PaymentIntents.Get(intentID, getParams)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}

	return intentToModel(pi), nil
}

func (p *StripeProvider) ListCardPaymentMethods(ctx context.Context, customerID string) ([]models.PaymentMethod, error) {
	listParams := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	listParams.Context = ctx

	methods := make([]models.PaymentMethod, 0)
	iter := p.api.PaymentMethods.List(listParams)
	for iter.Next() {
		pm := iter.PaymentMethod()
		method := models.PaymentMethod{
			ID:      pm.ID,
			Type:    string(pm.Type),
			Created: pm.Created,
		}
		if pm.Card != nil {
			method.Card = &models.CardSummary{
				Brand:    string(pm.Card.Brand),
				Last4:    pm.Card.Last4,
				ExpMonth: pm.Card.ExpMonth,
				ExpYear:  pm.Card.ExpYear,
			}
		}
		methods = append(methods, method)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}

	return methods, nil
}

func intentToModel(pi *stripe.PaymentIntent) *models.PaymentIntent {
	intent := &models.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
	}
	if pi.Customer != nil {
		intent.CustomerID = pi.Customer.ID
	}
	return intent
}

// StripeWebhookVerifier verifies webhook signatures against the shared
// endpoint secret.
type StripeWebhookVerifier struct {
	secret string
}

// NewStripeWebhookVerifier creates a verifier for the given signing secret.
func NewStripeWebhookVerifier(secret string) *StripeWebhookVerifier {
	return &StripeWebhookVerifier{secret: secret}
}

// ParseEvent verifies the Stripe-Signature header and decodes the event
// payload. Payment intent events carry the intent state and metadata.
func (v *StripeWebhookVerifier) ParseEvent(payload []byte, signatureHeader string) (*Event, error) {
	stripeEvent, err := webhook.ConstructEvent(payload, signatureHeader, v.secret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	event := &Event{
		ID:   stripeEvent.ID,
		Type: string(stripeEvent.Type),
	}

	switch event.Type {
	case EventIntentSucceeded, EventIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(stripeEvent.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to decode payment intent payload: %w", err)
		}
		event.IntentID = pi.ID
		event.Amount = pi.Amount
		event.Currency = string(pi.Currency)
		event.Status = string(pi.Status)
		event.Metadata = pi.Metadata
	}

	return event, nil
}
