// Package auth provides credential hashing and token utilities.
package auth

import (
	"context"

	"github.com/geollm/geollm/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// authContextKey is the context key for storing AuthContext.
	authContextKey contextKey = "auth_context"
	// sessionUserKey is the context key for the session-authenticated user ID.
	sessionUserKey contextKey = "session_user"
	// sessionIDKey is the context key for the web session row ID.
	sessionIDKey contextKey = "session_id"
)

// ContextWithAuth adds AuthContext to the context.
func ContextWithAuth(ctx context.Context, auth *model.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}

// AuthFromContext retrieves AuthContext from the context.
// Returns nil if not present.
func AuthFromContext(ctx context.Context) *model.AuthContext {
	auth, ok := ctx.Value(authContextKey).(*model.AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// UserIDFromContext is a convenience function to get user ID from context.
// Checks API-key auth first, then session auth. Returns empty string if
// not authenticated.
func UserIDFromContext(ctx context.Context) string {
	if auth := AuthFromContext(ctx); auth != nil {
		return auth.UserID
	}
	if id, ok := ctx.Value(sessionUserKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithSessionUser marks the context as session-authenticated.
func ContextWithSessionUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, sessionUserKey, userID)
}

// SessionUserFromContext retrieves the session-authenticated user ID.
func SessionUserFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionUserKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithSessionID records the web session row ID.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext retrieves the web session row ID, if any.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}
