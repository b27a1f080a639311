package handler

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"

	"github.com/geollm/geollm/internal/auth"
	"github.com/geollm/geollm/internal/middleware"
	"github.com/geollm/geollm/internal/model"
	"github.com/geollm/geollm/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageHandler serves the HTML pages: marketing, auth forms, and the
// session-authenticated history view.
type PageHandler struct {
	users     *service.UserService
	history   *service.HistoryService
	tokens    *auth.TokenManager
	logger    *slog.Logger
	templates *template.Template
	secure    bool
}

// NewPageHandler creates a PageHandler. Templates are embedded; parse
// failures are a build defect, so this panics on error.
func NewPageHandler(users *service.UserService, history *service.HistoryService, tokens *auth.TokenManager, logger *slog.Logger, secureCookies bool) *PageHandler {
	return &PageHandler{
		users:     users,
		history:   history,
		tokens:    tokens,
		logger:    logger,
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
		secure:    secureCookies,
	}
}

// pageData is the model passed to every page template.
type pageData struct {
	Title    string
	LoggedIn bool
	Error    string
	Message  string
	Token    string
	Records  []*model.QueryHistory
	Profile  *model.UserProfile
}

// Home handles GET /.
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "home.html", pageData{
		Title:    "GeoLLM",
		LoggedIn: auth.SessionUserFromContext(r.Context()) != "",
	})
}

// LoginForm handles GET /auth/login.
func (h *PageHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if auth.SessionUserFromContext(r.Context()) != "" {
		http.Redirect(w, r, "/history", http.StatusSeeOther)
		return
	}
	h.render(w, http.StatusOK, "login.html", pageData{Title: "Sign in"})
}

// Login handles POST /auth/login.
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "login.html", pageData{Title: "Sign in", Error: "Invalid form submission"})
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	user, err := h.users.Authenticate(r.Context(), username, password)
	if err != nil {
		status := http.StatusUnauthorized
		message := "Invalid username or password"
		if errors.Is(err, service.ErrAccountDisabled) {
			status = http.StatusForbidden
			message = "This account is disabled"
		} else if !errors.Is(err, service.ErrInvalidCredentials) {
			h.logger.Error("login failed", slog.String("error", err.Error()))
			status = http.StatusInternalServerError
			message = "Something went wrong, try again"
		}
		h.render(w, status, "login.html", pageData{Title: "Sign in", Error: message})
		return
	}

	sess, err := h.users.StartSession(r.Context(), user, clientIP(r), r.UserAgent())
	if err != nil {
		h.logger.Error("failed to start session", slog.String("error", err.Error()))
		h.render(w, http.StatusInternalServerError, "login.html", pageData{Title: "Sign in", Error: "Something went wrong, try again"})
		return
	}

	token, err := h.tokens.IssueSessionToken(user.ID, user.IsAdmin, sess.ID)
	if err != nil {
		h.logger.Error("failed to issue session token", slog.String("error", err.Error()))
		h.render(w, http.StatusInternalServerError, "login.html", pageData{Title: "Sign in", Error: "Something went wrong, try again"})
		return
	}

	h.setSessionCookie(w, token, int(h.tokens.AccessTTL().Seconds()))

	h.logger.Info("web_login", slog.String("user_id", user.ID))

	http.Redirect(w, r, "/history", http.StatusSeeOther)
}

// RegisterForm handles GET /auth/register.
func (h *PageHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	if auth.SessionUserFromContext(r.Context()) != "" {
		http.Redirect(w, r, "/history", http.StatusSeeOther)
		return
	}
	h.render(w, http.StatusOK, "register.html", pageData{Title: "Create account"})
}

// Register handles POST /auth/register.
func (h *PageHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "register.html", pageData{Title: "Create account", Error: "Invalid form submission"})
		return
	}

	input := service.RegisterInput{
		Username: r.PostFormValue("username"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}

	user, err := h.users.Register(r.Context(), input)
	if err != nil {
		status := http.StatusBadRequest
		var message string
		switch {
		case errors.Is(err, service.ErrUsernameExists):
			message = "That username is already taken"
		case errors.Is(err, service.ErrEmailExists):
			message = "That email is already registered"
		case errors.Is(err, service.ErrWeakPassword):
			message = "Password must be at least 8 characters"
		default:
			h.logger.Error("registration failed", slog.String("error", err.Error()))
			status = http.StatusInternalServerError
			message = "Something went wrong, try again"
		}
		h.render(w, status, "register.html", pageData{Title: "Create account", Error: message})
		return
	}

	h.logger.Info("web_registration", slog.String("user_id", user.ID))

	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

// Logout handles POST /auth/logout.
func (h *PageHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := auth.SessionIDFromContext(r.Context()); sessionID != "" {
		if err := h.users.EndSession(r.Context(), sessionID); err != nil {
			h.logger.Warn("failed to end session", slog.String("session_id", sessionID), slog.String("error", err.Error()))
		}
	}
	h.setSessionCookie(w, "", -1)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ForgotForm handles GET /auth/forgot.
func (h *PageHandler) ForgotForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "forgot.html", pageData{Title: "Reset password"})
}

// Forgot handles POST /auth/forgot. The response is the same whether or
// not the email is registered.
func (h *PageHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "forgot.html", pageData{Title: "Reset password", Error: "Invalid form submission"})
		return
	}

	email := r.PostFormValue("email")
	if err := h.users.RequestPasswordReset(r.Context(), email); err != nil {
		h.logger.Error("password reset request failed", slog.String("error", err.Error()))
		h.render(w, http.StatusInternalServerError, "forgot.html", pageData{Title: "Reset password", Error: "Something went wrong, try again"})
		return
	}

	h.render(w, http.StatusOK, "forgot.html", pageData{
		Title:   "Reset password",
		Message: "If that email is registered, a reset link is on its way.",
	})
}

// ResetForm handles GET /auth/reset?token=...
func (h *PageHandler) ResetForm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Redirect(w, r, "/auth/forgot", http.StatusSeeOther)
		return
	}
	h.render(w, http.StatusOK, "reset.html", pageData{Title: "Choose a new password", Token: token})
}

// Reset handles POST /auth/reset.
func (h *PageHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "reset.html", pageData{Title: "Choose a new password", Error: "Invalid form submission"})
		return
	}

	token := r.PostFormValue("token")
	password := r.PostFormValue("password")

	err := h.users.ResetPasswordWithToken(r.Context(), token, password)
	if err != nil {
		status := http.StatusBadRequest
		var message string
		switch {
		case errors.Is(err, service.ErrWeakPassword):
			message = "Password must be at least 8 characters"
		case errors.Is(err, service.ErrInvalidToken):
			message = "This reset link is invalid or has expired"
		default:
			h.logger.Error("password reset failed", slog.String("error", err.Error()))
			status = http.StatusInternalServerError
			message = "Something went wrong, try again"
		}
		h.render(w, status, "reset.html", pageData{Title: "Choose a new password", Token: token, Error: message})
		return
	}

	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

// HistoryPage handles GET /history. Requires a session; the middleware
// redirects anonymous visitors to the login form.
func (h *PageHandler) HistoryPage(w http.ResponseWriter, r *http.Request) {
	userID := auth.SessionUserFromContext(r.Context())

	result, err := h.history.ListHistory(r.Context(), service.ListHistoryInput{
		UserID: userID,
		Limit:  20,
	})
	if err != nil {
		h.logger.Error("failed to load history page", slog.String("error", err.Error()))
		h.renderError(w, http.StatusInternalServerError, "Could not load your history")
		return
	}

	h.render(w, http.StatusOK, "history.html", pageData{
		Title:    "Your queries",
		LoggedIn: true,
		Records:  result.Records,
	})
}

// ProfilePage handles GET /profile. Requires a session.
func (h *PageHandler) ProfilePage(w http.ResponseWriter, r *http.Request) {
	userID := auth.SessionUserFromContext(r.Context())

	profile, err := h.users.Profile(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load profile", slog.String("error", err.Error()))
		h.renderError(w, http.StatusInternalServerError, "Could not load your profile")
		return
	}
	if profile == nil {
		profile = &model.UserProfile{UserID: userID}
	}

	h.render(w, http.StatusOK, "profile.html", pageData{
		Title:    "Your profile",
		LoggedIn: true,
		Profile:  profile,
	})
}

// ProfileUpdate handles POST /profile.
func (h *PageHandler) ProfileUpdate(w http.ResponseWriter, r *http.Request) {
	userID := auth.SessionUserFromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "profile.html", pageData{
			Title:    "Your profile",
			LoggedIn: true,
			Error:    "Invalid form submission",
			Profile:  &model.UserProfile{UserID: userID},
		})
		return
	}

	profile := &model.UserProfile{
		UserID:        userID,
		FullName:      r.PostFormValue("full_name"),
		Organization:  r.PostFormValue("organization"),
		DefaultRegion: r.PostFormValue("default_region"),
		MapStyle:      r.PostFormValue("map_style"),
	}

	if err := h.users.UpdateProfile(r.Context(), profile); err != nil {
		h.logger.Error("failed to update profile", slog.String("error", err.Error()))
		h.render(w, http.StatusInternalServerError, "profile.html", pageData{
			Title:    "Your profile",
			LoggedIn: true,
			Error:    "Something went wrong, try again",
			Profile:  profile,
		})
		return
	}

	h.render(w, http.StatusOK, "profile.html", pageData{
		Title:    "Your profile",
		LoggedIn: true,
		Message:  "Profile saved",
		Profile:  profile,
	})
}

// clientIP extracts the peer address without the port. RealIP middleware
// has already rewritten RemoteAddr when a proxy header is present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (h *PageHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// renderError renders the HTML error page.
func (h *PageHandler) renderError(w http.ResponseWriter, status int, message string) {
	h.render(w, status, "error.html", pageData{Title: "Error", Error: message})
}

func (h *PageHandler) render(w http.ResponseWriter, status int, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("template render failed", slog.String("template", name), slog.String("error", err.Error()))
	}
}
