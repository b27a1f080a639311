package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/geollm/geollm/internal/model"
)

// Common errors for query history repository operations.
var (
	ErrHistoryNotFound = errors.New("query history record not found")
)

const historyColumns = "id, user_id, prompt, intent, result_summary, result_count, duration_ms, is_favorited, created_at"

// HistoryFilter narrows history listings.
type HistoryFilter struct {
	UserID        string
	FavoritesOnly bool
	CreatedBefore *time.Time
}

// CreateQueryHistory inserts a completed query record.
func (r *Repository) CreateQueryHistory(ctx context.Context, record *model.QueryHistory) error {
	intentJSON, err := json.Marshal(record.Intent)
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}

	query := `
		INSERT INTO query_history (id, user_id, prompt, intent, result_summary, result_count, duration_ms, is_favorited, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.pool.Exec(ctx, query,
		record.ID,
		record.UserID,
		record.Prompt,
		intentJSON,
		record.ResultSummary,
		record.ResultCount,
		record.DurationMs,
		record.IsFavorited,
		record.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create query history: %w", err)
	}

	return nil
}

// GetQueryHistoryByID retrieves a history record scoped to its owner.
func (r *Repository) GetQueryHistoryByID(ctx context.Context, id, userID string) (*model.QueryHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM query_history WHERE id = $1 AND user_id = $2`

	record, err := r.scanHistory(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHistoryNotFound
		}
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}

	return record, nil
}

// ListQueryHistory retrieves a paginated page of a user's query history,
// newest first.
func (r *Repository) ListQueryHistory(ctx context.Context, filter HistoryFilter, cursor string, limit int) (*model.HistoryListResult, error) {
	var cursorData *PaginationCursor
	if cursor != "" {
		var err error
		cursorData, err = decodeCursor(cursor)
		if err != nil {
			return nil, ErrInvalidCursor
		}
	}

	query := `SELECT ` + historyColumns + ` FROM query_history WHERE user_id = $1`
	args := []any{filter.UserID}
	argIndex := 2

	if cursorData != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIndex, argIndex+1)
		args = append(args, cursorData.CreatedAt, cursorData.ID)
		argIndex += 2
	}

	if filter.FavoritesOnly {
		query += " AND is_favorited = TRUE"
	}

	if filter.CreatedBefore != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argIndex)
		args = append(args, *filter.CreatedBefore)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIndex)
	args = append(args, limit+1) // Fetch one extra to determine hasMore

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list query history: %w", err)
	}
	defer rows.Close()

	var records []*model.QueryHistory
	for rows.Next() {
		record, err := r.scanHistoryFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query history: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query history: %w", err)
	}

	result := &model.HistoryListResult{Records: records}
	if len(records) > limit {
		result.Records = records[:limit]
		last := result.Records[len(result.Records)-1]
		result.NextCursor = encodeCursor(&PaginationCursor{
			ID:        last.ID,
			CreatedAt: last.CreatedAt,
		})
		result.HasMore = true
	}

	return result, nil
}

// SetFavorite updates the favorite flag on a record the user owns.
func (r *Repository) SetFavorite(ctx context.Context, id, userID string, favorited bool) error {
	query := `
		UPDATE query_history
		SET is_favorited = $3
		WHERE id = $1 AND user_id = $2
	`

	result, err := r.pool.Exec(ctx, query, id, userID, favorited)
	if err != nil {
		return fmt.Errorf("failed to update favorite flag: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrHistoryNotFound
	}

	return nil
}

// DeleteQueryHistory removes a single record the user owns.
func (r *Repository) DeleteQueryHistory(ctx context.Context, id, userID string) error {
	query := `DELETE FROM query_history WHERE id = $1 AND user_id = $2`

	result, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete query history: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrHistoryNotFound
	}

	return nil
}

// CountHistoryOlderThan counts records created before the given time,
// optionally for a single user. Used for retention dry runs.
func (r *Repository) CountHistoryOlderThan(ctx context.Context, before time.Time, userID string) (int64, error) {
	query := `SELECT COUNT(*) FROM query_history WHERE created_at < $1`
	args := []any{before}

	if userID != "" {
		query += " AND user_id = $2"
		args = append(args, userID)
	}

	var count int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count old query history: %w", err)
	}

	return count, nil
}

// DeleteHistoryOlderThan removes records created before the given time,
// optionally for a single user.
func (r *Repository) DeleteHistoryOlderThan(ctx context.Context, before time.Time, userID string) (int64, error) {
	query := `DELETE FROM query_history WHERE created_at < $1`
	args := []any{before}

	if userID != "" {
		query += " AND user_id = $2"
		args = append(args, userID)
	}

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old query history: %w", err)
	}

	return result.RowsAffected(), nil
}

// ListAllQueryHistory streams every record, oldest first, optionally for a
// single user. Used by the export command.
func (r *Repository) ListAllQueryHistory(ctx context.Context, userID string) ([]*model.QueryHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM query_history`
	var args []any

	if userID != "" {
		query += " WHERE user_id = $1"
		args = append(args, userID)
	}

	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list all query history: %w", err)
	}
	defer rows.Close()

	var records []*model.QueryHistory
	for rows.Next() {
		record, err := r.scanHistoryFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query history: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query history: %w", err)
	}

	return records, nil
}

// CountQueryHistory returns the total number of history records.
func (r *Repository) CountQueryHistory(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM query_history`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count query history: %w", err)
	}
	return count, nil
}

// scanHistory scans a single row into a QueryHistory model.
func (r *Repository) scanHistory(row pgx.Row) (*model.QueryHistory, error) {
	var record model.QueryHistory
	var intentJSON []byte

	err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.Prompt,
		&intentJSON,
		&record.ResultSummary,
		&record.ResultCount,
		&record.DurationMs,
		&record.IsFavorited,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(intentJSON) > 0 {
		if err := json.Unmarshal(intentJSON, &record.Intent); err != nil {
			return nil, fmt.Errorf("failed to unmarshal intent: %w", err)
		}
	}

	return &record, nil
}

// scanHistoryFromRows scans a row from pgx.Rows into a QueryHistory model.
func (r *Repository) scanHistoryFromRows(rows pgx.Rows) (*model.QueryHistory, error) {
	return r.scanHistory(rows)
}
