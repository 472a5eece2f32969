package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianinvest/platform/internal/config"
	"github.com/meridianinvest/platform/internal/models"
	"github.com/meridianinvest/platform/pkg/logger"
)

// SecurityEventStore defines the persistence operations the security
// pipeline needs.
type SecurityEventStore interface {
	Create(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error)
	CountByUserAndType(ctx context.Context, userID uuid.UUID, eventType string, since time.Time) (int, error)
	HasEscalationSince(ctx context.Context, userID uuid.UUID, originalType string, since time.Time) (bool, error)
}

// AuditStore persists durable audit rows
type AuditStore interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
}

// AlertSender dispatches notifications for high-severity events
type AlertSender interface {
	SendSecurityAlert(ctx context.Context, recipient string, event *models.SecurityEvent) error
}

// SecurityService is the security event pipeline: it keeps a bounded
// in-memory buffer of recent events, persists them, mirrors them to the
// audit trail, alerts on high severity, and escalates repeated bursts.
//
// LogEvent never returns an error. A monitoring pipeline that can take down
// the operation it observes is worse than no monitoring, so sink failures
// are logged and swallowed.
type SecurityService struct {
	events SecurityEventStore
	audits AuditStore
	alerts AlertSender
	audit  *logger.AuditLogger
	config config.SecurityConfig
	logger *slog.Logger

	mu     sync.Mutex
	recent []*models.SecurityEvent

	now func() time.Time
}

// NewSecurityService creates a new SecurityService. alerts may be nil when
// no alert channel is configured.
func NewSecurityService(
	events SecurityEventStore,
	audits AuditStore,
	alerts AlertSender,
	audit *logger.AuditLogger,
	cfg config.SecurityConfig,
	log *slog.Logger,
) *SecurityService {
	return &SecurityService{
		events: events,
		audits: audits,
		alerts: alerts,
		audit:  audit,
		config: cfg,
		logger: log,
		recent: make([]*models.SecurityEvent, 0, cfg.EventBufferSize),
		now:    time.Now,
	}
}

// EventInput describes one security event to record.
type EventInput struct {
	UserID    *uuid.UUID
	EventType string
	Severity  string
	Details   models.EventDetails
	IPAddress string
	UserAgent string
}

// LogEvent records a security event through every channel: the in-memory
// buffer, the database, the audit trail, and the alert dispatcher for high
// severities. It never returns an error.
func (s *SecurityService) LogEvent(ctx context.Context, input EventInput) *models.SecurityEvent {
	event := s.buildEvent(input)

	s.push(event)
	s.persist(ctx, event)
	s.writeAudit(ctx, event)

	if models.SeverityAtLeast(event.Severity, models.SeverityHigh) {
		s.dispatchAlert(ctx, event)
	}

	// Escalation events never feed back into escalation.
	if event.UserID != nil && event.EventType != models.EventRateLimitExceeded {
		s.maybeEscalate(ctx, event)
	}

	return event
}

// RecentEvents returns a copy of the in-memory buffer, newest first.
func (s *SecurityService) RecentEvents() []*models.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.SecurityEvent, len(s.recent))
	copy(out, s.recent)
	return out
}

func (s *SecurityService) buildEvent(input EventInput) *models.SecurityEvent {
	severity := input.Severity
	if !models.ValidSeverity(severity) {
		severity = models.SeverityMedium
	}

	details := input.Details
	if details == nil {
		details = models.EventDetails{}
	}

	event := &models.SecurityEvent{
		ID:        uuid.New(),
		UserID:    input.UserID,
		EventType: input.EventType,
		Severity:  severity,
		Details:   details,
		CreatedAt: s.now().UTC(),
	}
	if input.IPAddress != "" {
		event.IPAddress = &input.IPAddress
	}
	if input.UserAgent != "" {
		event.UserAgent = &input.UserAgent
	}

	return event
}

// push prepends the event to the buffer, dropping the oldest entry once the
// buffer is full.
func (s *SecurityService) push(event *models.SecurityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.recent) >= s.config.EventBufferSize {
		s.recent = s.recent[:s.config.EventBufferSize-1]
	}
	s.recent = append([]*models.SecurityEvent{event}, s.recent...)
}

func (s *SecurityService) persist(ctx context.Context, event *models.SecurityEvent) {
	if _, err := s.events.Create(ctx, event); err != nil {
		s.logger.Error("failed to persist security event",
			slog.String("event_type", event.EventType),
			slog.Any("error", err))
	}
}

func (s *SecurityService) writeAudit(ctx context.Context, event *models.SecurityEvent) {
	auditEvent := logger.AuditEvent{
		Action:    "security_event_logged",
		Resource:  models.AuditResourceSecurity,
		RiskLevel: event.Severity,
		Metadata: map[string]string{
			"event_type": event.EventType,
		},
	}
	if event.UserID != nil {
		auditEvent.UserID = event.UserID.String()
	}
	if event.IPAddress != nil {
		auditEvent.IPAddress = *event.IPAddress
	}
	if event.UserAgent != nil {
		auditEvent.UserAgent = *event.UserAgent
	}
	s.audit.LogSecurityEvent(auditEvent)

	row := &models.AuditLog{
		UserID:    event.UserID,
		Action:    "security_event:" + event.EventType,
		Resource:  models.AuditResourceSecurity,
		Details:   event.Details,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		RiskLevel: event.Severity,
	}
	if _, err := s.audits.Create(ctx, row); err != nil {
		s.logger.Error("failed to write audit row",
			slog.String("event_type", event.EventType),
			slog.Any("error", err))
	}
}

func (s *SecurityService) dispatchAlert(ctx context.Context, event *models.SecurityEvent) {
	if s.alerts == nil || s.config.AlertRecipient == "" {
		s.logger.Warn("high severity event with no alert channel configured",
			slog.String("event_type", event.EventType),
			slog.String("severity", event.Severity))
		return
	}

	if err := s.alerts.SendSecurityAlert(ctx, s.config.AlertRecipient, event); err != nil {
		s.logger.Error("failed to dispatch security alert",
			slog.String("event_type", event.EventType),
			slog.Any("error", err))
	}
}

// maybeEscalate synthesizes a single rate_limit_exceeded event when a user
// produces more than the threshold of same-type events inside the window.
// The duplicate check keeps a sustained burst from producing an escalation
// per event.
func (s *SecurityService) maybeEscalate(ctx context.Context, event *models.SecurityEvent) {
	since := s.now().UTC().Add(-s.config.EscalationWindow)

	count, err := s.events.CountByUserAndType(ctx, *event.UserID, event.EventType, since)
	if err != nil {
		s.logger.Error("failed to count events for escalation",
			slog.String("event_type", event.EventType),
			slog.Any("error", err))
		return
	}
	if count <= s.config.EscalationThreshold {
		return
	}

	exists, err := s.events.HasEscalationSince(ctx, *event.UserID, event.EventType, since)
	if err != nil {
		s.logger.Error("failed to check existing escalation",
			slog.String("event_type", event.EventType),
			slog.Any("error", err))
		return
	}
	if exists {
		return
	}

	s.logger.Warn("escalating repeated security events",
		slog.String("user_id", event.UserID.String()),
		slog.String("original_event", event.EventType),
		slog.Int("count", count))

	s.LogEvent(ctx, EventInput{
		UserID:    event.UserID,
		EventType: models.EventRateLimitExceeded,
		Severity:  models.SeverityHigh,
		Details: models.EventDetails{
			"original_event": event.EventType,
			"event_count":    count,
			"window_minutes": int(s.config.EscalationWindow.Minutes()),
		},
	})
}
