// Package queue defines the auth event payloads exchanged over RabbitMQ,
// the publisher used by the auth flows and the audit-log consumer.
package queue

import "time"

// Event types published on the auth.events queue.
const (
    UserRegistered     = "user.registered"
    UserLoggedIn       = "user.logged_in"
    UserTokenRefreshed = "user.token_refreshed"
    UserLoggedOut      = "user.logged_out"
)

// AuthEvent is published after a successful auth flow.  It carries enough
// to write an audit trail without querying the users table.
type AuthEvent struct {
    Type       string    `json:"type"`
    UserID     uint64    `json:"user_id"`
    Username   string    `json:"username"`
    RemoteIP   string    `json:"remote_ip,omitempty"`
    OccurredAt time.Time `json:"occurred_at"`
}

// NewAuthEvent stamps an event with the current UTC time.
func NewAuthEvent(typ string, userID uint64, username string) AuthEvent {
    return AuthEvent{Type: typ, UserID: userID, Username: username, OccurredAt: time.Now().UTC()}
}
