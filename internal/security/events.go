// Package security implements the security event monitor: structured event
// recording with bounded retention, and pattern detectors that escalate raw
// events into higher-severity synthesized events.
package security

import (
	"encoding/json"
	"time"
)

// EventType is the closed set of security event kinds. Branching on event
// kind goes through this type, never raw strings.
type EventType string

const (
	EventFailedLogin         EventType = "failed_login"
	EventRateLimitExceeded   EventType = "rate_limit_exceeded"
	EventIPBlocked           EventType = "ip_blocked"
	EventIPUnblocked         EventType = "ip_unblocked"
	EventSuspiciousRequest   EventType = "suspicious_request"
	EventUnauthorizedAccess  EventType = "unauthorized_access"
	EventBruteForceAttempt   EventType = "brute_force_attempt"
	EventSQLInjectionAttempt EventType = "sql_injection_attempt"
	EventXSSAttempt          EventType = "xss_attempt"
	EventFileUploadViolation EventType = "file_upload_violation"
	EventAdminAction         EventType = "admin_action"
	EventPasswordChange      EventType = "password_change"
	EventAccountLockout      EventType = "account_lockout"
)

// EventTypes lists every event type, for dashboards and stats.
var EventTypes = []EventType{
	EventFailedLogin,
	EventRateLimitExceeded,
	EventIPBlocked,
	EventIPUnblocked,
	EventSuspiciousRequest,
	EventUnauthorizedAccess,
	EventBruteForceAttempt,
	EventSQLInjectionAttempt,
	EventXSSAttempt,
	EventFileUploadViolation,
	EventAdminAction,
	EventPasswordChange,
	EventAccountLockout,
}

// Severity grades an event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// baseSeverity is the static severity per event type. rate_limit_exceeded is
// the one exception: its recorder upgrades it to high for auth-category
// endpoints.
var baseSeverity = map[EventType]Severity{
	EventFailedLogin:         SeverityMedium,
	EventRateLimitExceeded:   SeverityMedium,
	EventIPBlocked:           SeverityHigh,
	EventIPUnblocked:         SeverityLow,
	EventSuspiciousRequest:   SeverityMedium,
	EventUnauthorizedAccess:  SeverityHigh,
	EventBruteForceAttempt:   SeverityCritical,
	EventSQLInjectionAttempt: SeverityHigh,
	EventXSSAttempt:          SeverityHigh,
	EventFileUploadViolation: SeverityMedium,
	EventAdminAction:         SeverityMedium,
	EventPasswordChange:      SeverityLow,
	EventAccountLockout:      SeverityHigh,
}

// Event is one immutable security event.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	IP        string                 `json:"ip_address"`
	UserID    string                 `json:"user_id,omitempty"`
	Username  string                 `json:"username,omitempty"`
	Severity  Severity               `json:"severity"`
	Details   map[string]interface{} `json:"details,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Endpoint  string                 `json:"endpoint,omitempty"`
	Method    string                 `json:"request_method,omitempty"`
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

func decodeEvent(raw string) (Event, error) {
	var e Event
	err := json.Unmarshal([]byte(raw), &e)
	return e, err
}
