//go:build integration

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geollm/geollm/internal/repository"
	"github.com/geollm/geollm/internal/testutil"
)

// ============================================================================
// User Service Integration Tests
// ============================================================================

func TestIntegrationUserService_CreateAdmin(t *testing.T) {
	ctx, repo := newServiceTestEnv(t)
	users := NewUserService(repo, nil, nil, time.Hour, nil)

	admin, err := users.CreateAdmin(ctx, "admin", "admin@example.com", "super-secret-1")
	if err != nil {
		t.Fatalf("CreateAdmin failed: %v", err)
	}
	if !admin.IsAdmin {
		t.Error("created account should be an admin")
	}

	stored, err := repo.GetUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if stored.ID != admin.ID {
		t.Errorf("stored ID mismatch: got %q, want %q", stored.ID, admin.ID)
	}
}

func TestIntegrationUserService_CreateAdmin_DuplicateRejected(t *testing.T) {
	ctx, repo := newServiceTestEnv(t)
	users := NewUserService(repo, nil, nil, time.Hour, nil)

	if _, err := users.CreateAdmin(ctx, "admin", "admin@example.com", "super-secret-1"); err != nil {
		t.Fatalf("first CreateAdmin failed: %v", err)
	}

	// Duplicate username
	_, err := users.CreateAdmin(ctx, "admin", "other@example.com", "super-secret-1")
	if !errors.Is(err, ErrUsernameExists) {
		t.Errorf("expected ErrUsernameExists, got: %v", err)
	}

	// Duplicate email
	_, err = users.CreateAdmin(ctx, "admin2", "admin@example.com", "super-secret-1")
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("expected ErrEmailExists, got: %v", err)
	}

	// No duplicate row was created
	all, err := users.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("user count = %d, want 1", len(all))
	}
}

func TestIntegrationUserService_ResetPassword(t *testing.T) {
	ctx, repo := newServiceTestEnv(t)
	users := NewUserService(repo, nil, nil, time.Hour, nil)

	if _, err := users.Register(ctx, RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "original-pass",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := users.ResetPassword(ctx, "alice", "rotated-pass-9"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := users.Authenticate(ctx, "alice", "original-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password should be rejected, got: %v", err)
	}
	if _, err := users.Authenticate(ctx, "alice", "rotated-pass-9"); err != nil {
		t.Errorf("new password should authenticate, got: %v", err)
	}
}

func TestIntegrationUserService_PasswordResetFlow(t *testing.T) {
	ctx, repo := newServiceTestEnv(t)
	pub := &fakePublisher{}
	users := NewUserService(repo, nil, pub, time.Hour, nil)

	if _, err := users.Register(ctx, RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "original-pass",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	pub.queues, pub.types, pub.payloads = nil, nil, nil

	if err := users.RequestPasswordReset(ctx, "Alice@Example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if len(pub.types) != 1 || pub.types[0] != "auth.send_password_reset" {
		t.Fatalf("published types = %v", pub.types)
	}
	token, _ := pub.payloads[0]["token"].(string)
	if token == "" {
		t.Fatal("reset payload is missing the token")
	}

	if err := users.ResetPasswordWithToken(ctx, token, "rotated-pass-9"); err != nil {
		t.Fatalf("ResetPasswordWithToken failed: %v", err)
	}
	if _, err := users.Authenticate(ctx, "alice", "original-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password should be rejected, got: %v", err)
	}
	if _, err := users.Authenticate(ctx, "alice", "rotated-pass-9"); err != nil {
		t.Errorf("new password should authenticate, got: %v", err)
	}

	// The token is single use
	if err := users.ResetPasswordWithToken(ctx, token, "another-pass-1"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("reused token should be rejected, got: %v", err)
	}
}

func TestIntegrationUserService_ResetRequestHidesUnknownEmail(t *testing.T) {
	ctx, repo := newServiceTestEnv(t)
	pub := &fakePublisher{}
	users := NewUserService(repo, nil, pub, time.Hour, nil)

	if err := users.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email should not error, got: %v", err)
	}
	if len(pub.types) != 0 {
		t.Errorf("no task should be published for unknown email, got %v", pub.types)
	}
}

func TestIntegrationUserService_SessionLifecycle(t *testing.T) {
	ctx, repo := newServiceTestEnv(t)
	users := NewUserService(repo, nil, nil, time.Hour, nil)

	alice, err := users.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password-1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	sess, err := users.StartSession(ctx, alice, "203.0.113.9", "integration-test")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if sess.ID == "" || sess.UserID != alice.ID {
		t.Fatalf("session = %+v", sess)
	}

	if err := users.TouchSession(ctx, sess.ID); err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}
	stored, err := repo.GetSessionByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSessionByID failed: %v", err)
	}
	if stored.LastSeenAt.Before(sess.LastSeenAt) {
		t.Errorf("last_seen_at went backwards: %v < %v", stored.LastSeenAt, sess.LastSeenAt)
	}

	if err := users.EndSession(ctx, sess.ID); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if _, err := repo.GetSessionByID(ctx, sess.ID); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Errorf("session should be gone, got: %v", err)
	}

	// Ending an already-removed session is not an error
	if err := users.EndSession(ctx, sess.ID); err != nil {
		t.Errorf("second EndSession should be a no-op, got: %v", err)
	}
}

// ============================================================================
// History Retention Integration Tests
// ============================================================================

func TestIntegrationHistoryService_CleanHistory(t *testing.T) {
	ctx, repo := newServiceTestEnv(t)
	users := NewUserService(repo, nil, nil, time.Hour, nil)
	history := NewHistoryService(repo)

	alice, err := users.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password-1"})
	if err != nil {
		t.Fatalf("Register alice failed: %v", err)
	}
	bob, err := users.Register(ctx, RegisterInput{Username: "bob", Email: "bob@example.com", Password: "password-2"})
	if err != nil {
		t.Fatalf("Register bob failed: %v", err)
	}

	now := time.Now().UTC()
	old := now.AddDate(0, 0, -40)
	recent := now.AddDate(0, 0, -5)

	// 2 old + 1 recent for alice, 1 old for bob
	for _, rec := range []struct {
		userID string
		at     time.Time
	}{
		{alice.ID, old},
		{alice.ID, old.Add(time.Hour)},
		{alice.ID, recent},
		{bob.ID, old},
	} {
		record := testutil.NewTestHistory(t, rec.userID, rec.at)
		if err := repo.CreateQueryHistory(ctx, record); err != nil {
			t.Fatalf("CreateQueryHistory failed: %v", err)
		}
	}

	// Dry run deletes nothing
	result, err := history.CleanHistory(ctx, CleanHistoryInput{Days: 30, DryRun: true})
	if err != nil {
		t.Fatalf("CleanHistory dry run failed: %v", err)
	}
	if result.Matched != 3 {
		t.Errorf("dry run matched = %d, want 3", result.Matched)
	}
	if result.Deleted != 0 {
		t.Errorf("dry run deleted = %d, want 0", result.Deleted)
	}
	total, err := repo.CountQueryHistory(ctx)
	if err != nil {
		t.Fatalf("CountQueryHistory failed: %v", err)
	}
	if total != 4 {
		t.Errorf("row count after dry run = %d, want 4", total)
	}

	// User-filtered deletion removes only alice's old rows
	result, err = history.CleanHistory(ctx, CleanHistoryInput{Days: 30, Username: "alice"})
	if err != nil {
		t.Fatalf("CleanHistory for alice failed: %v", err)
	}
	if result.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", result.Deleted)
	}

	// Unfiltered deletion removes bob's old row, keeps the recent one
	result, err = history.CleanHistory(ctx, CleanHistoryInput{Days: 30})
	if err != nil {
		t.Fatalf("CleanHistory failed: %v", err)
	}
	if result.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", result.Deleted)
	}

	total, err = repo.CountQueryHistory(ctx)
	if err != nil {
		t.Fatalf("CountQueryHistory failed: %v", err)
	}
	if total != 1 {
		t.Errorf("remaining rows = %d, want 1 (the recent record)", total)
	}
}

func TestIntegrationHistoryService_CleanHistory_UnknownUser(t *testing.T) {
	ctx, repo := newServiceTestEnv(t)
	history := NewHistoryService(repo)

	_, err := history.CleanHistory(ctx, CleanHistoryInput{Days: 30, Username: "ghost"})
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got: %v", err)
	}
}

func TestIntegrationHistoryService_ToggleFavorite(t *testing.T) {
	ctx, repo := newServiceTestEnv(t)
	users := NewUserService(repo, nil, nil, time.Hour, nil)
	history := NewHistoryService(repo)

	alice, err := users.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password-1"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	record := testutil.NewTestHistory(t, alice.ID, time.Now().UTC())
	if err := repo.CreateQueryHistory(ctx, record); err != nil {
		t.Fatalf("CreateQueryHistory failed: %v", err)
	}

	state, err := history.ToggleFavorite(ctx, record.ID, alice.ID)
	if err != nil {
		t.Fatalf("ToggleFavorite failed: %v", err)
	}
	if !state {
		t.Error("first toggle should favorite the record")
	}

	state, err = history.ToggleFavorite(ctx, record.ID, alice.ID)
	if err != nil {
		t.Fatalf("second ToggleFavorite failed: %v", err)
	}
	if state {
		t.Error("second toggle should unfavorite the record")
	}

	// Other users cannot touch the record
	if _, err := history.ToggleFavorite(ctx, record.ID, "someone-else"); !errors.Is(err, ErrHistoryNotFound) {
		t.Errorf("expected ErrHistoryNotFound for foreign user, got: %v", err)
	}
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newServiceTestEnv(t *testing.T) (context.Context, *repository.Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "TEST_DATABASE_URL")

	repo, err := repository.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, repo
}
