package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/meridianinvest/platform/internal/auth"
	"github.com/meridianinvest/platform/internal/models"
	"github.com/meridianinvest/platform/internal/services"
	pkghttp "github.com/meridianinvest/platform/pkg/http"
)

// SecurityPipeline ingests events and exposes the recent buffer
type SecurityPipeline interface {
	LogEvent(ctx context.Context, input services.EventInput) *models.SecurityEvent
	RecentEvents() []*models.SecurityEvent
}

// SecurityHandler handles security event ingestion and review
type SecurityHandler struct {
	pipeline SecurityPipeline
	ipConfig *pkghttp.IPConfig
}

// NewSecurityHandler creates a new SecurityHandler
func NewSecurityHandler(pipeline SecurityPipeline, ipConfig *pkghttp.IPConfig) *SecurityHandler {
	return &SecurityHandler{
		pipeline: pipeline,
		ipConfig: ipConfig,
	}
}

// IngestEventRequest represents a client-reported security event
type IngestEventRequest struct {
	EventType string                 `json:"event_type" validate:"required"`
	Severity  string                 `json:"severity" validate:"required"`
	Details   map[string]interface{} `json:"details"`
}

// IngestEvent accepts a client-reported security event. The event type and
// severity must be from the known vocabularies; rate_limit_exceeded is
// synthesized server-side and may not be reported by clients.
func (h *SecurityHandler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var req IngestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if !models.ValidEventType(req.EventType) || req.EventType == models.EventRateLimitExceeded {
		pkghttp.WriteBadRequest(w, "Unknown event type")
		return
	}
	if !models.ValidSeverity(req.Severity) {
		pkghttp.WriteBadRequest(w, "Unknown severity")
		return
	}

	input := services.EventInput{
		EventType: req.EventType,
		Severity:  req.Severity,
		Details:   req.Details,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}

	if claims := auth.GetUserFromContext(r); claims != nil {
		if userID, err := uuid.Parse(claims.UserID); err == nil {
			input.UserID = &userID
		}
	}

	event := h.pipeline.LogEvent(r.Context(), input)

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{
		"event_id": event.ID.String(),
	})
}

// RecentEvents returns the in-memory buffer of recent events, newest first.
func (h *SecurityHandler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	events := h.pipeline.RecentEvents()

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}
