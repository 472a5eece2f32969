package models

import (
	"time"

	"github.com/google/uuid"
)

// Security event types
const (
	EventLoginAttempt       = "login_attempt"
	EventFailedLogin        = "failed_login"
	EventSuspiciousActivity = "suspicious_activity"
	EventDataAccess         = "data_access"
	EventPaymentAttempt     = "payment_attempt"

	// Synthesized server-side when a user produces too many events of the
	// same type within the escalation window.
	EventRateLimitExceeded = "rate_limit_exceeded"
)

// Severity levels, ordered from least to most severe
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// ValidEventType reports whether t is a recognized security event type.
func ValidEventType(t string) bool {
	switch t {
	case EventLoginAttempt, EventFailedLogin, EventSuspiciousActivity,
		EventDataAccess, EventPaymentAttempt, EventRateLimitExceeded:
		return true
	}
	return false
}

// ValidSeverity reports whether s is a recognized severity level.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SeverityAtLeast reports whether severity s is at or above the threshold.
func SeverityAtLeast(s, threshold string) bool {
	return severityRank(s) >= severityRank(threshold)
}

func severityRank(s string) int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// SecurityEvent is a single security-relevant occurrence, either reported
// by a client or synthesized server-side.
type SecurityEvent struct {
	ID        uuid.UUID     `db:"id" json:"id"`
	UserID    *uuid.UUID    `db:"user_id" json:"user_id,omitempty"`
	EventType string        `db:"event_type" json:"event_type"`
	Severity  string        `db:"severity" json:"severity"`
	Details   EventDetails  `db:"details" json:"details"`
	IPAddress *string       `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent *string       `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}
