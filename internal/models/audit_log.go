package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit resource identifiers
const (
	AuditResourceSecurity = "security_monitoring"
	AuditResourcePayment  = "payment"
	AuditResourceAccount  = "account"
)

// AuditLog is the durable side-channel record written for every security
// event and sensitive action.
type AuditLog struct {
	ID        uuid.UUID    `db:"id"`
	UserID    *uuid.UUID   `db:"user_id"`
	Action    string       `db:"action"`
	Resource  string       `db:"resource"`
	Details   EventDetails `db:"details"`
	IPAddress *string      `db:"ip_address"`
	UserAgent *string      `db:"user_agent"`
	RiskLevel string       `db:"risk_level"`
	CreatedAt time.Time    `db:"created_at"`
}

// EventDetails holds free-form key/value context, stored as JSONB.
type EventDetails map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (d *EventDetails) Scan(value interface{}) error {
	if value == nil {
		*d = make(EventDetails)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*d = EventDetails(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (d EventDetails) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// MarshalJSON implements json.Marshaler
func (d EventDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(d))
}

// UnmarshalJSON implements json.Unmarshaler
func (d *EventDetails) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*d = EventDetails(m)
	return nil
}
