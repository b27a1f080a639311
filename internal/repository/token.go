package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/geollm/geollm/internal/model"
)

// ErrTokenNotFound indicates no matching auth token row.
var ErrTokenNotFound = errors.New("auth token not found")

// CreateAuthToken inserts a refresh or password-reset token.
func (r *Repository) CreateAuthToken(ctx context.Context, token *model.AuthToken) error {
	query := `
		INSERT INTO auth_tokens (id, user_id, token_hash, kind, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.Kind,
		token.ExpiresAt,
		token.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create auth token: %w", err)
	}

	return nil
}

// GetAuthTokenByHash retrieves a token of the given kind by its hash.
func (r *Repository) GetAuthTokenByHash(ctx context.Context, tokenHash, kind string) (*model.AuthToken, error) {
	query := `
		SELECT id, user_id, token_hash, kind, expires_at, created_at
		FROM auth_tokens
		WHERE token_hash = $1 AND kind = $2
	`

	var token model.AuthToken
	err := r.pool.QueryRow(ctx, query, tokenHash, kind).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.Kind,
		&token.ExpiresAt,
		&token.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get auth token: %w", err)
	}

	return &token, nil
}

// DeleteAuthToken removes a token by ID. Used for rotation on refresh.
func (r *Repository) DeleteAuthToken(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete auth token: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrTokenNotFound
	}

	return nil
}

// DeleteAuthTokensForUser removes all tokens of a kind for one user.
// Called on password reset so old refresh tokens stop working.
func (r *Repository) DeleteAuthTokensForUser(ctx context.Context, userID, kind string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE user_id = $1 AND kind = $2`, userID, kind)
	if err != nil {
		return fmt.Errorf("failed to delete auth tokens for user: %w", err)
	}
	return nil
}

// DeleteExpiredAuthTokens removes tokens past their expiry.
// Called by the periodic token cleanup job.
func (r *Repository) DeleteExpiredAuthTokens(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired auth tokens: %w", err)
	}

	return result.RowsAffected(), nil
}
