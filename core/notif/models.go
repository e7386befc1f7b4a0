package notif

import (
	"time"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is one user-facing message that survived filtering.
// Errors do not auto-hide; they persist until explicitly dismissed.
type Notification struct {
	ID        string        `json:"id"`
	Category  string        `json:"category"`
	Severity  Severity      `json:"severity"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"created_at"` // UTC
	AutoHide  bool          `json:"auto_hide"`
	Duration  time.Duration `json:"duration"`
}

// ConnEvent is a connection-status change candidate for surfacing.
type ConnEvent string

const (
	ConnEventConnected    ConnEvent = "connected"
	ConnEventDisconnected ConnEvent = "disconnected"
	ConnEventError        ConnEvent = "error"
)
