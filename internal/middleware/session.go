package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/geollm/geollm/internal/auth"
)

// SessionCookieName is the cookie carrying the web session token.
const SessionCookieName = "geollm_session"

// sessionTouchTimeout bounds the background last-seen update.
const sessionTouchTimeout = 2 * time.Second

// SessionStore updates the last-seen timestamp of a session row.
// *repository.Repository satisfies it.
type SessionStore interface {
	TouchSession(ctx context.Context, sessionID string) error
}

// Session returns a middleware that resolves the browser session cookie.
// A valid token attaches the user ID to the request context; an absent or
// invalid cookie leaves the request anonymous. Tokens minted at login carry
// the session row ID, which is recorded in the context and touched in the
// store off the request path. Page handlers that require a signed-in user
// stack RequireSession on top.
func Session(tokens *auth.TokenManager, store SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.VerifyAccessToken(cookie.Value)
			if err != nil {
				// Expired or tampered cookie: clear it and continue anonymous
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    "",
					Path:     "/",
					MaxAge:   -1,
					HttpOnly: true,
				})
				next.ServeHTTP(w, r)
				return
			}

			ctx := auth.ContextWithSessionUser(r.Context(), claims.UserID)
			if claims.SessionID != "" {
				ctx = auth.ContextWithSessionID(ctx, claims.SessionID)
				if store != nil {
					touchCtx := context.WithoutCancel(r.Context())
					go func() {
						touchCtx, cancel := context.WithTimeout(touchCtx, sessionTouchTimeout)
						defer cancel()
						_ = store.TouchSession(touchCtx, claims.SessionID)
					}()
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession redirects anonymous requests to the login page.
// Must be applied after Session.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.SessionUserFromContext(r.Context()) == "" {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
