// Package model defines domain entities for the application.
package model

import "time"

// QueryHistory records a completed geospatial query.
// Rows are created at request completion and never mutated afterwards
// except favorite toggling. Retention commands may delete them.
type QueryHistory struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Prompt        string     `json:"prompt"`
	Intent        IntentJSON `json:"intent"`
	ResultSummary string     `json:"result_summary,omitempty"`
	ResultCount   int        `json:"result_count"`
	DurationMs    int64      `json:"duration_ms"`
	IsFavorited   bool       `json:"is_favorited"`
	CreatedAt     time.Time  `json:"created_at"`
}

// IntentJSON is the structured intent as persisted (jsonb column).
// Nullable fields stay null when the language model could not extract them.
type IntentJSON struct {
	Location   *string        `json:"location"`
	TimePeriod *string        `json:"time_period"`
	DataType   *string        `json:"data_type"`
	Parameters map[string]any `json:"parameters"`
}

// HistoryListResult is a page of query history records.
type HistoryListResult struct {
	Records    []*QueryHistory
	NextCursor string
	HasMore    bool
}
