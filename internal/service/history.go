package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geollm/geollm/internal/model"
	"github.com/geollm/geollm/internal/repository"
)

// ErrUserNotFound indicates the referenced user does not exist.
var ErrUserNotFound = errors.New("user not found")

// HistoryService handles query history listing and retention.
type HistoryService struct {
	repo *repository.Repository
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(repo *repository.Repository) *HistoryService {
	return &HistoryService{repo: repo}
}

// ListHistoryInput defines input for listing history.
type ListHistoryInput struct {
	UserID        string
	Cursor        string
	Limit         int
	FavoritesOnly bool
}

// ListHistory retrieves a paginated page of a user's query history.
func (s *HistoryService) ListHistory(ctx context.Context, input ListHistoryInput) (*model.HistoryListResult, error) {
	if input.Limit <= 0 || input.Limit > 100 {
		input.Limit = 20
	}

	filter := repository.HistoryFilter{
		UserID:        input.UserID,
		FavoritesOnly: input.FavoritesOnly,
	}

	result, err := s.repo.ListQueryHistory(ctx, filter, input.Cursor, input.Limit)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			return nil, repository.ErrInvalidCursor
		}
		return nil, err
	}

	return result, nil
}

// GetHistory retrieves a single record scoped to its owner.
func (s *HistoryService) GetHistory(ctx context.Context, id, userID string) (*model.QueryHistory, error) {
	record, err := s.repo.GetQueryHistoryByID(ctx, id, userID)
	if err != nil {
		if errors.Is(err, repository.ErrHistoryNotFound) {
			return nil, ErrHistoryNotFound
		}
		return nil, err
	}
	return record, nil
}

// ToggleFavorite flips the favorite flag and returns the new state.
func (s *HistoryService) ToggleFavorite(ctx context.Context, id, userID string) (bool, error) {
	record, err := s.repo.GetQueryHistoryByID(ctx, id, userID)
	if err != nil {
		if errors.Is(err, repository.ErrHistoryNotFound) {
			return false, ErrHistoryNotFound
		}
		return false, err
	}

	newState := !record.IsFavorited
	if err := s.repo.SetFavorite(ctx, id, userID, newState); err != nil {
		if errors.Is(err, repository.ErrHistoryNotFound) {
			return false, ErrHistoryNotFound
		}
		return false, err
	}

	return newState, nil
}

// DeleteHistory removes a single record the user owns.
func (s *HistoryService) DeleteHistory(ctx context.Context, id, userID string) error {
	err := s.repo.DeleteQueryHistory(ctx, id, userID)
	if errors.Is(err, repository.ErrHistoryNotFound) {
		return ErrHistoryNotFound
	}
	return err
}

// CleanHistoryInput defines input for the retention operation.
type CleanHistoryInput struct {
	Days     int
	DryRun   bool
	Username string // Optional; empty means all users
}

// CleanHistoryResult reports what the retention operation did or would do.
type CleanHistoryResult struct {
	Cutoff  time.Time
	Matched int64
	Deleted int64
	DryRun  bool
}

// CleanHistory deletes records older than the cutoff, optionally filtered by
// user. A dry run counts matching rows and deletes nothing.
func (s *HistoryService) CleanHistory(ctx context.Context, input CleanHistoryInput) (*CleanHistoryResult, error) {
	if input.Days <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", input.Days)
	}

	userID := ""
	if input.Username != "" {
		user, err := s.repo.GetUserByUsername(ctx, input.Username)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, err
		}
		userID = user.ID
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -input.Days)

	matched, err := s.repo.CountHistoryOlderThan(ctx, cutoff, userID)
	if err != nil {
		return nil, err
	}

	result := &CleanHistoryResult{
		Cutoff:  cutoff,
		Matched: matched,
		DryRun:  input.DryRun,
	}

	if input.DryRun {
		return result, nil
	}

	deleted, err := s.repo.DeleteHistoryOlderThan(ctx, cutoff, userID)
	if err != nil {
		return nil, err
	}
	result.Deleted = deleted

	return result, nil
}

// ExportHistory returns every record, oldest first, optionally filtered by
// username. Used by the export command.
func (s *HistoryService) ExportHistory(ctx context.Context, username string) ([]*model.QueryHistory, error) {
	userID := ""
	if username != "" {
		user, err := s.repo.GetUserByUsername(ctx, username)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, err
		}
		userID = user.ID
	}

	return s.repo.ListAllQueryHistory(ctx, userID)
}
