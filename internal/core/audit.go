package core

import "time"

type AuditEntry struct {
	// ID is the unique request ID (X-Correlation-ID)
	ID string `json:"id"`

	// Time is the timestamp of the event
	Time time.Time `json:"time"`

	// Action describing what happened (e.g. "webid.verify", "auth.login")
	Action string `json:"action"`

	// WebID the decision was about, when one could be derived
	WebID string `json:"webid,omitempty"`
	// Issuer of the presented token
	Issuer string `json:"issuer,omitempty"`
	// Username of the local account involved, if any
	Username string `json:"username,omitempty"`

	Granted bool   `json:"granted"`
	Error   string `json:"error,omitempty"`

	// Metadata contains request details (token fingerprints, audiences)
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Auditor interface {
	Log(entry AuditEntry) error
	Close() error
}

// AuditQuerier reads back recorded entries, oldest first.
type AuditQuerier interface {
	GetRecent(limit int) ([]AuditEntry, error)
	Find(filter func(entry AuditEntry) bool, limit int) ([]AuditEntry, error)
}
