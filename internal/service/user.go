package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/geollm/geollm/internal/auth"
	"github.com/geollm/geollm/internal/model"
	"github.com/geollm/geollm/internal/repository"
	"github.com/geollm/geollm/internal/tasks"
)

// User service errors.
var (
	ErrUsernameExists     = errors.New("username already exists")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// minAuthDuration pads failed logins so missing users and wrong passwords
// take comparable time.
const minAuthDuration = 100 * time.Millisecond

// TaskPublisher enqueues background tasks. Satisfied by *tasks.Publisher;
// nil disables task publication.
type TaskPublisher interface {
	Publish(ctx context.Context, queue, taskType string, payload map[string]any) error
}

// TokenPair is the JWT pair issued to web and app clients.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// UserService handles account lifecycle and credential flows.
type UserService struct {
	repo       *repository.Repository
	tokens     *auth.TokenManager
	publisher  TaskPublisher
	refreshTTL time.Duration
	logger     *slog.Logger
}

// NewUserService creates a UserService. publisher may be nil.
func NewUserService(repo *repository.Repository, tokens *auth.TokenManager, publisher TaskPublisher, refreshTTL time.Duration, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		repo:       repo,
		tokens:     tokens,
		publisher:  publisher,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

// RegisterInput defines input for account registration.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates a user account and queues the welcome email.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	if len(input.Password) < 8 {
		return nil, ErrWeakPassword
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Username:     strings.TrimSpace(input.Username),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameExists):
			return nil, ErrUsernameExists
		case errors.Is(err, repository.ErrEmailExists):
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if s.publisher != nil {
		err := s.publisher.Publish(ctx, tasks.QueueAuth, tasks.TypeSendWelcomeEmail,
			tasks.WelcomeEmailPayload(user.ID, user.Email, user.Username))
		if err != nil {
			// Registration already succeeded; the email is best effort
			s.logger.Warn("failed to queue welcome email", "user_id", user.ID, "error", err)
		}
	}

	return user, nil
}

// Authenticate verifies username and password.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	start := time.Now()
	defer func() {
		if remaining := minAuthDuration - time.Since(start); remaining > 0 {
			time.Sleep(remaining)
		}
	}()

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Burn a comparable amount of work before failing
			_, _ = auth.VerifyPassword(password, dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	match, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil || !match {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	return user, nil
}

// IssueTokenPair creates an access token and a persisted refresh token.
func (s *UserService) IssueTokenPair(ctx context.Context, user *model.User) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user.ID, user.IsAdmin)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := auth.GenerateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	record := &model.AuthToken{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		TokenHash: auth.QuickHash(refresh),
		Kind:      model.TokenKindRefresh,
		ExpiresAt: time.Now().UTC().Add(s.refreshTTL),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateAuthToken(ctx, record); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Refresh rotates a refresh token and issues a new pair.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	record, err := s.repo.GetAuthTokenByHash(ctx, auth.QuickHash(refreshToken), model.TokenKindRefresh)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if record.IsExpired() {
		_ = s.repo.DeleteAuthToken(ctx, record.ID)
		return nil, ErrInvalidToken
	}

	user, err := s.repo.GetUserByID(ctx, record.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	// Rotate: the old token is single use
	if err := s.repo.DeleteAuthToken(ctx, record.ID); err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	return s.IssueTokenPair(ctx, user)
}

// CreateAdmin creates an administrator account. Existing username or email
// is rejected without creating a row.
func (s *UserService) CreateAdmin(ctx context.Context, username, email, password string) (*model.User, error) {
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Username:     strings.TrimSpace(username),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameExists):
			return nil, ErrUsernameExists
		case errors.Is(err, repository.ErrEmailExists):
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create admin: %w", err)
	}

	return user, nil
}

// ResetPassword replaces a user's password and revokes their refresh tokens.
func (s *UserService) ResetPassword(ctx context.Context, username, newPassword string) error {
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.repo.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return err
	}

	// Old refresh tokens must stop working after a reset
	if err := s.repo.DeleteAuthTokensForUser(ctx, user.ID, model.TokenKindRefresh); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after reset", "user_id", user.ID, "error", err)
	}

	return nil
}

// ListUsers returns all accounts, oldest first.
func (s *UserService) ListUsers(ctx context.Context) ([]*model.User, error) {
	return s.repo.ListUsers(ctx)
}

// SetActive enables or disables an account. Disabled accounts fail
// authentication and token refresh.
func (s *UserService) SetActive(ctx context.Context, username string, active bool) error {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return s.repo.SetUserActive(ctx, user.ID, active)
}

// Profile returns a user's profile row.
func (s *UserService) Profile(ctx context.Context, userID string) (*model.UserProfile, error) {
	return s.repo.GetUserProfile(ctx, userID)
}

// UpdateProfile saves profile edits from the profile page.
func (s *UserService) UpdateProfile(ctx context.Context, profile *model.UserProfile) error {
	return s.repo.UpdateUserProfile(ctx, profile)
}

// StartSession records a web session row for a browser login.
func (s *UserService) StartSession(ctx context.Context, user *model.User, clientIP, userAgent string) (*model.Session, error) {
	now := time.Now().UTC()
	sess := &model.Session{
		ID:         ulid.Make().String(),
		UserID:     user.ID,
		IPHash:     auth.QuickHash(clientIP),
		UserAgent:  userAgent,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// TouchSession bumps last_seen_at so the cleanup job keeps live sessions.
func (s *UserService) TouchSession(ctx context.Context, sessionID string) error {
	return s.repo.TouchSession(ctx, sessionID)
}

// EndSession removes the session row on logout. A missing row is fine:
// the cleanup job may have beaten us to it.
func (s *UserService) EndSession(ctx context.Context, sessionID string) error {
	err := s.repo.DeleteSession(ctx, sessionID)
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return err
	}
	return nil
}

// resetTokenTTL bounds how long a password reset token stays valid.
const resetTokenTTL = time.Hour

// RequestPasswordReset mints a reset token and queues the reset email.
// Unknown or disabled accounts return nil so the form cannot be used to
// confirm whether an email is registered.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if !user.IsActive {
		return nil
	}

	token, err := auth.GenerateOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	now := time.Now().UTC()
	record := &model.AuthToken{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		TokenHash: auth.QuickHash(token),
		Kind:      model.TokenKindPasswordReset,
		ExpiresAt: now.Add(resetTokenTTL),
		CreatedAt: now,
	}
	if err := s.repo.CreateAuthToken(ctx, record); err != nil {
		return fmt.Errorf("persist reset token: %w", err)
	}

	if s.publisher != nil {
		err := s.publisher.Publish(ctx, tasks.QueueAuth, tasks.TypeSendPasswordReset,
			tasks.PasswordResetPayload(user.ID, user.Email, user.Username, token))
		if err != nil {
			s.logger.Warn("failed to queue password reset email", "user_id", user.ID, "error", err)
		}
	}

	return nil
}

// ResetPasswordWithToken consumes a reset token and sets the new password.
func (s *UserService) ResetPasswordWithToken(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}

	record, err := s.repo.GetAuthTokenByHash(ctx, auth.QuickHash(token), model.TokenKindPasswordReset)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if record.IsExpired() {
		_ = s.repo.DeleteAuthToken(ctx, record.ID)
		return ErrInvalidToken
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdateUserPassword(ctx, record.UserID, hash); err != nil {
		return err
	}

	// The token is single use, and old refresh tokens die with the password
	_ = s.repo.DeleteAuthToken(ctx, record.ID)
	if err := s.repo.DeleteAuthTokensForUser(ctx, record.UserID, model.TokenKindRefresh); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after reset", "user_id", record.UserID, "error", err)
	}

	return nil
}

// dummyHash is a valid argon2id hash of an unguessable value, used to
// equalize verification work when the username does not exist.
var dummyHash = func() string {
	token, err := auth.GenerateOpaqueToken()
	if err != nil {
		token = "fallback-dummy-credential"
	}
	hash, err := auth.HashPassword(token)
	if err != nil {
		return ""
	}
	return hash
}()
