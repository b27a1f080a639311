// Package service provides business logic for the application.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/geollm/geollm/internal/geo"
	"github.com/geollm/geollm/internal/llm"
	"github.com/geollm/geollm/internal/metrics"
	"github.com/geollm/geollm/internal/model"
	"github.com/geollm/geollm/internal/repository"
	"github.com/geollm/geollm/internal/tasks"
)

// Service errors.
var (
	ErrEmptyPrompt        = errors.New("query prompt is empty")
	ErrPromptTooLong      = errors.New("query prompt too long")
	ErrHistoryNotFound    = errors.New("query history record not found")
	ErrProviderUnavailable = llm.ErrProviderUnavailable
)

const maxPromptLength = 2000

// QueryResult is the outcome of one full query pipeline run.
type QueryResult struct {
	HistoryID         string                 `json:"history_id"`
	Intent            *llm.Intent            `json:"intent"`
	FeatureCollection *geo.FeatureCollection `json:"feature_collection"`
	DurationMs        int64                  `json:"duration_ms"`
	Degraded          bool                   `json:"degraded,omitempty"`
}

// QueryStore is the slice of the repository the pipeline needs.
// *repository.Repository satisfies this; tests supply fakes.
type QueryStore interface {
	CreateQueryHistory(ctx context.Context, record *model.QueryHistory) error
	GetQueryHistoryByID(ctx context.Context, id, userID string) (*model.QueryHistory, error)
}

// QueryService runs the query pipeline: intent extraction, feature fetch,
// history persistence.
type QueryService struct {
	repo      QueryStore
	llm       llm.Client
	source    geo.Source
	publisher TaskPublisher
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewQueryService creates a QueryService. publisher may be nil; without it
// no background tasks are enqueued.
func NewQueryService(repo QueryStore, client llm.Client, source geo.Source, publisher TaskPublisher, recorder metrics.Recorder, logger *slog.Logger) *QueryService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{
		repo:      repo,
		llm:       client,
		source:    source,
		publisher: publisher,
		metrics:   recorder,
		logger:    logger,
	}
}

// ExecuteQuery runs the full pipeline for a user's natural-language query.
// Provider outages surface as ErrProviderUnavailable; a failing geo fetch
// degrades to an empty collection rather than failing the request.
func (s *QueryService) ExecuteQuery(ctx context.Context, userID, prompt string) (*QueryResult, error) {
	if err := validatePrompt(prompt); err != nil {
		return nil, err
	}

	start := time.Now()

	intent, err := s.llm.AnalyzeQuery(ctx, prompt)
	if err != nil {
		s.metrics.IncLLMProviderCall("unavailable")
		s.metrics.IncQueryProcessed("failed")
		return nil, fmt.Errorf("analyze query: %w", err)
	}
	s.metrics.IncLLMProviderCall("success")

	degraded := false
	fc, err := s.source.FetchFeatures(ctx, intent)
	if err != nil {
		s.logger.Warn("feature fetch failed, degrading to empty collection",
			"user_id", userID,
			"error", err,
		)
		fc = geo.NewFeatureCollection()
		degraded = true
	}

	duration := time.Since(start)

	record := &model.QueryHistory{
		ID:            ulid.Make().String(),
		UserID:        userID,
		Prompt:        prompt,
		Intent:        intentToModel(intent),
		ResultSummary: summarize(intent, len(fc.Features)),
		ResultCount:   len(fc.Features),
		DurationMs:    duration.Milliseconds(),
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.repo.CreateQueryHistory(ctx, record); err != nil {
		s.metrics.IncQueryProcessed("failed")
		return nil, fmt.Errorf("persist query history: %w", err)
	}

	if degraded {
		s.metrics.IncQueryProcessed("degraded")
		// Warm the cache in the background so a later retry can be served
		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, tasks.QueueGeo, tasks.TypeWarmGeoCache, tasks.WarmGeoCachePayload(intent)); err != nil {
				s.logger.Warn("failed to enqueue cache warm task", "error", err)
			}
		}
	} else {
		s.metrics.IncQueryProcessed("success")
	}
	s.metrics.ObserveQueryDuration(duration)

	return &QueryResult{
		HistoryID:         record.ID,
		Intent:            intent,
		FeatureCollection: fc,
		DurationMs:        record.DurationMs,
		Degraded:          degraded,
	}, nil
}

// ExtractIntent runs intent extraction only, without fetching features or
// recording history.
func (s *QueryService) ExtractIntent(ctx context.Context, prompt string) (*llm.Intent, error) {
	if err := validatePrompt(prompt); err != nil {
		return nil, err
	}

	intent, err := s.llm.AnalyzeQuery(ctx, prompt)
	if err != nil {
		s.metrics.IncLLMProviderCall("unavailable")
		return nil, fmt.Errorf("analyze query: %w", err)
	}
	s.metrics.IncLLMProviderCall("success")

	return intent, nil
}

// GenerateReport produces a markdown analysis for an existing history record.
// Invoked by the llm.generate_report background task.
func (s *QueryService) GenerateReport(ctx context.Context, historyID, userID string) (string, error) {
	record, err := s.repo.GetQueryHistoryByID(ctx, historyID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrHistoryNotFound) {
			return "", ErrHistoryNotFound
		}
		return "", err
	}

	intent := modelToIntent(record.Intent)
	fc, err := s.source.FetchFeatures(ctx, intent)
	if err != nil {
		fc = geo.NewFeatureCollection()
	}

	featureJSON, err := json.Marshal(fc)
	if err != nil {
		return "", fmt.Errorf("marshal feature collection: %w", err)
	}

	report, err := s.llm.GenerateReport(ctx, record.Prompt, featureJSON)
	if err != nil {
		return "", fmt.Errorf("generate report: %w", err)
	}

	return report, nil
}

// RequestReport queues report generation for an existing history record.
// The record must belong to the user; missing records surface as
// ErrHistoryNotFound.
func (s *QueryService) RequestReport(ctx context.Context, historyID, userID string) error {
	if s.publisher == nil {
		return errors.New("task publishing is not configured")
	}

	if _, err := s.repo.GetQueryHistoryByID(ctx, historyID, userID); err != nil {
		if errors.Is(err, repository.ErrHistoryNotFound) {
			return ErrHistoryNotFound
		}
		return err
	}

	if err := s.publisher.Publish(ctx, tasks.QueueLLM, tasks.TypeGenerateReport, tasks.ReportPayload(historyID, userID)); err != nil {
		return fmt.Errorf("enqueue report task: %w", err)
	}
	return nil
}

// WarmGeoCache re-fetches features for an intent so the cached entry is
// fresh. Invoked by the geo.warm_cache background task.
func (s *QueryService) WarmGeoCache(ctx context.Context, intent *llm.Intent) error {
	_, err := s.source.FetchFeatures(ctx, intent)
	return err
}

func validatePrompt(prompt string) error {
	if prompt == "" {
		return ErrEmptyPrompt
	}
	if len(prompt) > maxPromptLength {
		return ErrPromptTooLong
	}
	return nil
}

// summarize builds the one-line result summary stored with the record.
func summarize(intent *llm.Intent, count int) string {
	location := "unspecified location"
	if intent != nil && intent.Location != nil {
		location = *intent.Location
	}
	return fmt.Sprintf("%d features for %s", count, location)
}

// intentToModel converts the client intent to its persisted form.
func intentToModel(intent *llm.Intent) model.IntentJSON {
	if intent == nil {
		return model.IntentJSON{Parameters: map[string]any{}}
	}
	params := intent.Parameters
	if params == nil {
		params = map[string]any{}
	}
	return model.IntentJSON{
		Location:   intent.Location,
		TimePeriod: intent.TimePeriod,
		DataType:   intent.DataType,
		Parameters: params,
	}
}

// modelToIntent converts a persisted intent back to the client form.
func modelToIntent(m model.IntentJSON) *llm.Intent {
	params := m.Parameters
	if params == nil {
		params = map[string]any{}
	}
	return &llm.Intent{
		Location:   m.Location,
		TimePeriod: m.TimePeriod,
		DataType:   m.DataType,
		Parameters: params,
	}
}
