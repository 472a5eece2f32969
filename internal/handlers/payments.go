package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/meridianinvest/platform/internal/models"
	"github.com/meridianinvest/platform/internal/services"
	pkghttp "github.com/meridianinvest/platform/pkg/http"
)

// PaymentServiceInterface defines the checkout operations the handler needs
type PaymentServiceInterface interface {
	CreateIntent(ctx context.Context, userID uuid.UUID, productID, ipAddress string) (*services.IntentResponse, error)
	RecordCardEntered(ctx context.Context, userID uuid.UUID, intentID string) error
	VerifyCheckout(ctx context.Context, userID uuid.UUID, intentID, code string) error
	Confirm(ctx context.Context, userID uuid.UUID, intentID, paymentMethodID string) (*models.PaymentIntent, error)
	CreateCustomer(ctx context.Context, userID uuid.UUID) (*models.Customer, error)
	ListPaymentMethods(ctx context.Context, userID uuid.UUID) ([]models.PaymentMethod, error)
}

// PaymentHandler handles checkout HTTP requests
type PaymentHandler struct {
	service  PaymentServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(service PaymentServiceInterface, ipConfig *pkghttp.IPConfig) *PaymentHandler {
	return &PaymentHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// CreateIntentRequest represents the request body for opening an intent
type CreateIntentRequest struct {
	ProductID string `json:"product_id" validate:"required,min=1,max=100"`
}

// CardEnteredRequest marks a payment method as attached client-side
type CardEnteredRequest struct {
	IntentID string `json:"intent_id" validate:"required"`
}

// VerifyRequest represents the request body for submitting a verification code
type VerifyRequest struct {
	IntentID string `json:"intent_id" validate:"required"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
}

// ConfirmRequest represents the request body for confirming an intent
type ConfirmRequest struct {
	IntentID        string `json:"intent_id" validate:"required"`
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
}

// CreateIntent opens a payment intent for the authenticated user.
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r)
	if !ok {
		return
	}

	var req CreateIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	resp, err := h.service.CreateIntent(r.Context(), userID, req.ProductID, ipAddress)
	if err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, resp)
}

// CardEntered records the client-side card attachment step.
func (h *PaymentHandler) CardEntered(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r)
	if !ok {
		return
	}

	var req CardEnteredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.RecordCardEntered(r.Context(), userID, req.IntentID); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Verify submits the emailed verification code for a high-value checkout.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r)
	if !ok {
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.VerifyCheckout(r.Context(), userID, req.IntentID, req.Code); err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// Confirm submits the payment method against the intent.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r)
	if !ok {
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	intent, err := h.service.Confirm(r.Context(), userID, req.IntentID, req.PaymentMethodID)
	if err != nil {
		var rateErr *services.RateLimitedError
		switch {
		case errors.As(err, &rateErr):
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSeconds(rateErr.RetryAfter)))
			pkghttp.WriteTooManyRequests(w, "Too many payment attempts. Please try again later.")
		case isCheckoutSentinel(err):
			h.writeError(w, err)
		default:
			// A non-sentinel error here is the provider declining the charge.
			pkghttp.WritePaymentRequired(w, "Payment could not be processed")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"intent_id": intent.ID,
		"status":    intent.Status,
	})
}

// CreateCustomer ensures the user has a provider customer record.
func (h *PaymentHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r)
	if !ok {
		return
	}

	customer, err := h.service.CreateCustomer(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if customer.Existing {
		status = http.StatusOK
	}
	pkghttp.WriteJSON(w, status, customer)
}

// ListPaymentMethods returns the user's stored card payment methods.
func (h *PaymentHandler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r)
	if !ok {
		return
	}

	methods, err := h.service.ListPaymentMethods(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payment_methods": methods,
	})
}

func (h *PaymentHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrProviderConfig):
		pkghttp.WriteError(w, http.StatusServiceUnavailable, "provider_unavailable",
			"Payment processing is not available right now")
	case errors.Is(err, models.ErrIntentNotFound):
		pkghttp.WriteNotFound(w, "Payment intent not found")
	case errors.Is(err, models.ErrVerificationRequired):
		pkghttp.WriteForbidden(w, "This payment requires verification. Check your email for the code.")
	case errors.Is(err, models.ErrVerificationInvalid):
		pkghttp.WriteBadRequest(w, "Verification code is invalid or expired")
	case errors.Is(err, models.ErrInvalidTransition):
		pkghttp.WriteConflict(w, "Checkout is not in a state that allows this action")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func isCheckoutSentinel(err error) bool {
	return errors.Is(err, models.ErrProviderConfig) ||
		errors.Is(err, models.ErrIntentNotFound) ||
		errors.Is(err, models.ErrVerificationRequired) ||
		errors.Is(err, models.ErrVerificationInvalid) ||
		errors.Is(err, models.ErrInvalidTransition) ||
		errors.Is(err, models.ErrBadRequest)
}
