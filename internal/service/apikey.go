package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/geollm/geollm/internal/auth"
	"github.com/geollm/geollm/internal/model"
	"github.com/geollm/geollm/internal/repository"
)

// API key service errors.
var (
	ErrAPIKeyNotFound = errors.New("API key not found")
	ErrInvalidScope   = errors.New("invalid scope")
	ErrNoScopes       = errors.New("at least one scope is required")
)

// APIKeyService handles API key lifecycle.
type APIKeyService struct {
	repo *repository.Repository
	env  string // "live" or "test", baked into generated keys
}

// NewAPIKeyService creates an APIKeyService. Production issues live keys,
// every other profile issues test keys.
func NewAPIKeyService(repo *repository.Repository, production bool) *APIKeyService {
	env := auth.EnvTest
	if production {
		env = auth.EnvLive
	}
	return &APIKeyService{repo: repo, env: env}
}

// CreateAPIKey generates and stores a key for a user. The plaintext key is
// returned once and never recoverable afterwards.
func (s *APIKeyService) CreateAPIKey(ctx context.Context, userID string, req model.APIKeyCreateRequest) (*model.APIKeyCreateResponse, error) {
	if len(req.Scopes) == 0 {
		return nil, ErrNoScopes
	}
	for _, scope := range req.Scopes {
		if !slices.Contains(model.ValidScopes, scope) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
		}
	}

	generated, err := auth.GenerateAPIKey(s.env)
	if err != nil {
		return nil, fmt.Errorf("generate API key: %w", err)
	}

	var expiresAt *time.Time
	if req.ExpiresDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, req.ExpiresDays)
		expiresAt = &t
	}

	key := &model.APIKey{
		ID:            ulid.Make().String(),
		UserID:        userID,
		KeyHash:       generated.Hash,
		KeyPrefix:     generated.Prefix,
		Scopes:        req.Scopes,
		RateLimitTier: model.TierFree,
		Name:          req.Name,
		ExpiresAt:     expiresAt,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.repo.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("store API key: %w", err)
	}

	return &model.APIKeyCreateResponse{
		ID:            key.ID,
		Key:           generated.Plaintext,
		Name:          key.Name,
		KeyPrefix:     key.KeyPrefix,
		Scopes:        key.Scopes,
		RateLimitTier: key.RateLimitTier,
		ExpiresAt:     key.ExpiresAt,
		CreatedAt:     key.CreatedAt,
	}, nil
}

// ListAPIKeys returns all of a user's keys, newest first.
func (s *APIKeyService) ListAPIKeys(ctx context.Context, userID string) ([]model.APIKeyResponse, error) {
	keys, err := s.repo.ListAPIKeysByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	responses := make([]model.APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		responses = append(responses, key.ToResponse())
	}
	return responses, nil
}

// RevokeAPIKey revokes a key the user owns. The auth-context cache entry
// expires on its own TTL, so revocation takes effect within five minutes on
// hot paths and immediately on cold ones.
func (s *APIKeyService) RevokeAPIKey(ctx context.Context, keyID, userID string) error {
	key, err := s.repo.GetAPIKeyByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return ErrAPIKeyNotFound
		}
		return err
	}
	if key.UserID != userID {
		// Do not reveal other users' key IDs
		return ErrAPIKeyNotFound
	}

	err = s.repo.RevokeAPIKey(ctx, keyID)
	if errors.Is(err, repository.ErrAPIKeyNotFound) {
		return ErrAPIKeyNotFound
	}
	return err
}
