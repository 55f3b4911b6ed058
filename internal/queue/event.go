// Package queue defines the audit events exchanged over the message broker
// and the background consumer that turns them into the audit log.
package queue

// Audit event types published by the auth endpoint layer.
const (
	EventLogin           = "login"
	EventLoginFailed     = "login_failed"
	EventAccountLocked   = "account_locked"
	EventLogout          = "logout"
	EventPasswordChanged = "password_changed"
	EventUserRegistered  = "user_registered"
	EventUserDeactivated = "user_deactivated"
)

// AuthEvent is published to the auth.events queue after security-relevant
// operations.  It carries enough for audit and alerting consumers without a
// database round trip.  Identity may be an email or mobile as typed by the
// caller; UserID is zero when the identity did not resolve to an account.
type AuthEvent struct {
	Type     string `json:"type"`
	UserID   uint64 `json:"user_id,omitempty"`
	Identity string `json:"identity,omitempty"`
	Role     string `json:"role,omitempty"`
	RemoteIP string `json:"remote_ip,omitempty"`
	At       string `json:"at"` // RFC3339 UTC
}
