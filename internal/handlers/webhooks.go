package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/meridianinvest/platform/internal/services"
	pkghttp "github.com/meridianinvest/platform/pkg/http"
)

// Providers sign payloads, not headers, so the body must be read raw and
// kept bounded.
const maxWebhookBodyBytes = 64 * 1024

// WebhookProcessor consumes raw provider webhook deliveries
type WebhookProcessor interface {
	HandleDelivery(ctx context.Context, payload []byte, signatureHeader string) error
}

// WebhookHandler receives payment provider webhook deliveries
type WebhookHandler struct {
	processor WebhookProcessor
	logger    *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(processor WebhookProcessor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		logger:    logger,
	}
}

// HandlePaymentWebhook verifies and processes one provider delivery. A bad
// signature is a 400 and the payload is never processed; a processing error
// is a 500 so the provider redelivers.
func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Unable to read request body")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		pkghttp.WriteBadRequest(w, "Missing signature header")
		return
	}

	if err := h.processor.HandleDelivery(r.Context(), payload, signature); err != nil {
		if errors.Is(err, services.ErrBadSignature) {
			pkghttp.WriteBadRequest(w, "Webhook signature verification failed")
			return
		}
		h.logger.Error("webhook processing failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Webhook processing failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
