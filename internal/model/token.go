// Package model defines domain entities for the application.
package model

import "time"

// Token kinds for persisted auth tokens.
const (
	TokenKindRefresh       = "refresh"
	TokenKindPasswordReset = "password_reset"
)

// AuthToken is a persisted, revocable token (refresh or password reset).
// Expired rows are removed by the periodic token cleanup job.
type AuthToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	Kind      string    `json:"kind"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired returns true once the token has passed its expiry.
func (t *AuthToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// Session is a web session record. Stale rows (not seen for the configured
// retention window) are removed by the periodic session cleanup job.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	IPHash     string    `json:"-"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
