package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geollm/geollm/internal/auth"
)

func newPageHandler(t *testing.T) *PageHandler {
	t.Helper()
	tokens, err := auth.NewTokenManager("test-secret", 0)
	if err != nil {
		t.Fatalf("NewTokenManager failed: %v", err)
	}
	return NewPageHandler(nil, nil, tokens, discardLogger(), false)
}

func TestHome_Anonymous(t *testing.T) {
	h := newPageHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.Home(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Sign in") {
		t.Error("anonymous home page should link to sign in")
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
}

func TestHome_LoggedIn(t *testing.T) {
	h := newPageHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.ContextWithSessionUser(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	h.Home(rec, req)

	if !strings.Contains(rec.Body.String(), "Sign out") {
		t.Error("logged-in home page should offer sign out")
	}
}

func TestLoginForm_RedirectsWhenLoggedIn(t *testing.T) {
	h := newPageHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req = req.WithContext(auth.ContextWithSessionUser(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	h.LoginForm(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want redirect", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/history" {
		t.Errorf("redirect location = %q, want /history", loc)
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	h := newPageHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want redirect", rec.Code)
	}

	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "geollm_session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("logout should clear the session cookie")
	}
}

func TestNotFound_JSONForAPI(t *testing.T) {
	h := newPageHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	rec := httptest.NewRecorder()
	h.NotFound(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if !strings.Contains(rec.Body.String(), `"NOT_FOUND"`) {
		t.Errorf("body = %s, want NOT_FOUND error code", rec.Body.String())
	}
}

func TestNotFound_HTMLForPages(t *testing.T) {
	h := newPageHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	h.NotFound(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
}

func TestMethodNotAllowed_JSONForAPI(t *testing.T) {
	h := newPageHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/query", nil)
	rec := httptest.NewRecorder()
	h.MethodNotAllowed(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"METHOD_NOT_ALLOWED"`) {
		t.Errorf("body = %s, want METHOD_NOT_ALLOWED error code", rec.Body.String())
	}
}
