package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/geollm/geollm/internal/model"
)

// ErrSessionNotFound indicates no matching session row.
var ErrSessionNotFound = errors.New("session not found")

// CreateSession inserts a web session record.
func (r *Repository) CreateSession(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, ip_hash, user_agent, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.IPHash,
		session.UserAgent,
		session.CreatedAt,
		session.LastSeenAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSessionByID retrieves a session by its ID.
func (r *Repository) GetSessionByID(ctx context.Context, id string) (*model.Session, error) {
	query := `
		SELECT id, user_id, ip_hash, user_agent, created_at, last_seen_at
		FROM sessions
		WHERE id = $1
	`

	var session model.Session
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.IPHash,
		&session.UserAgent,
		&session.CreatedAt,
		&session.LastSeenAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

// TouchSession updates last_seen_at. Called on authenticated page loads.
func (r *Repository) TouchSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET last_seen_at = $2 WHERE id = $1`, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// DeleteSession removes a session on logout.
func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// DeleteStaleSessions removes sessions not seen since the cutoff.
// Called by the periodic session cleanup job.
func (r *Repository) DeleteStaleSessions(ctx context.Context, lastSeenBefore time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE last_seen_at < $1`, lastSeenBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale sessions: %w", err)
	}

	return result.RowsAffected(), nil
}
