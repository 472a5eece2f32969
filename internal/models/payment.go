package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutState tracks a single checkout attempt through the payment
// intent lifecycle.
type CheckoutState string

const (
	StateIdle            CheckoutState = "idle"
	StateIntentRequested CheckoutState = "intent_requested"
	StateIntentCreated   CheckoutState = "intent_created"
	StateCardEntered     CheckoutState = "card_entered"
	StateConfirming      CheckoutState = "confirming"
	StateSucceeded       CheckoutState = "succeeded"
	StateFailed          CheckoutState = "failed"
)

// checkoutTransitions enumerates the legal forward edges of the checkout
// state machine. Succeeded and failed are terminal.
var checkoutTransitions = map[CheckoutState][]CheckoutState{
	StateIdle:            {StateIntentRequested},
	StateIntentRequested: {StateIntentCreated, StateFailed},
	StateIntentCreated:   {StateCardEntered, StateFailed},
	StateCardEntered:     {StateConfirming, StateFailed},
	StateConfirming:      {StateSucceeded, StateFailed},
}

// CanTransition reports whether moving from one checkout state to another
// is legal.
func CanTransition(from, to CheckoutState) bool {
	for _, next := range checkoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a checkout state is terminal.
func (s CheckoutState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// PaymentIntent mirrors the provider-side object representing an attempted
// charge. Amount is in minor units (cents).
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	CustomerID   string `json:"customer_id"`
}

// CheckoutSession is the server-side record of one checkout attempt. The
// session state is provisional until the provider webhook (or the
// reconciliation job) confirms durable bookkeeping.
type CheckoutSession struct {
	ID               uuid.UUID     `db:"id"`
	UserID           uuid.UUID     `db:"user_id"`
	ProductID        string        `db:"product_id"`
	ProviderIntentID string        `db:"provider_intent_id"`
	AmountCents      int64         `db:"amount_cents"`
	Currency         string        `db:"currency"`
	State            CheckoutState `db:"state"`
	Verified         bool          `db:"verified"`
	FailureMessage   *string       `db:"failure_message"`
	CreatedAt        time.Time     `db:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at"`
}

// Payment statuses for durable payment rows
const (
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// Payment is the durable record of a settled (or failed) charge. Amount is
// in major units, converted from the intent's minor units.
type Payment struct {
	ID               uuid.UUID    `db:"id"`
	UserID           uuid.UUID    `db:"user_id"`
	ProviderIntentID string       `db:"provider_intent_id"`
	Amount           float64      `db:"amount"`
	Currency         string       `db:"currency"`
	Status           string       `db:"status"`
	ProductID        string       `db:"product_id"`
	Metadata         EventDetails `db:"metadata"`
	CreatedAt        time.Time    `db:"created_at"`
}

// Investment is an active holding created when a paid product is purchased.
type Investment struct {
	ID           uuid.UUID `db:"id"`
	UserID       uuid.UUID `db:"user_id"`
	PackageName  string    `db:"package_name"`
	Amount       float64   `db:"amount"`
	CurrentValue float64   `db:"current_value"`
	Status       string    `db:"status"`
	CreatedAt    time.Time `db:"created_at"`
}

// Transaction is a ledger entry on the user's account. Outgoing payments
// carry a negative amount.
type Transaction struct {
	ID          uuid.UUID `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	Type        string    `db:"type"`
	Amount      float64   `db:"amount"`
	Description string    `db:"description"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
}

// Customer is the provider-side customer record surfaced to clients.
type Customer struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Created  int64  `json:"created"`
	Existing bool   `json:"existing"`
}

// CardSummary describes a stored card payment method without exposing the
// full card number.
type CardSummary struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

// PaymentMethod is a stored payment instrument on a provider customer.
type PaymentMethod struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Card    *CardSummary `json:"card"`
	Created int64        `json:"created"`
}
