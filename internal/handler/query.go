package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/geollm/geollm/internal/auth"
	"github.com/geollm/geollm/internal/service"
)

// QueryHandler handles the query pipeline endpoints.
type QueryHandler struct {
	svc      *service.QueryService
	logger   *slog.Logger
	validate *validator.Validate
}

// NewQueryHandler creates a QueryHandler.
func NewQueryHandler(svc *service.QueryService, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{
		svc:      svc,
		logger:   logger,
		validate: validator.New(),
	}
}

// QueryRequest is the body for query and intent endpoints.
type QueryRequest struct {
	Query string `json:"query" validate:"required,max=2000"`
}

// Query handles POST /api/v1/query: the full pipeline from prompt to
// persisted history record.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "Query is required and must be at most 2000 characters")
		return
	}

	result, err := h.svc.ExecuteQuery(r.Context(), userID, req.Query)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("query_processed",
		"history_id", result.HistoryID,
		"user_id", userID,
		"result_count", len(result.FeatureCollection.Features),
		"duration_ms", result.DurationMs,
		"degraded", result.Degraded,
	)

	writeJSON(w, http.StatusOK, result)
}

// Intent handles POST /api/v1/intent: intent extraction without feature
// fetch or history persistence.
func (h *QueryHandler) Intent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "Query is required and must be at most 2000 characters")
		return
	}

	intent, err := h.svc.ExtractIntent(r.Context(), req.Query)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"intent": intent})
}

// Report handles POST /api/v1/history/{id}/report: queues background
// report generation for a history record.
func (h *QueryHandler) Report(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	historyID := chi.URLParam(r, "id")
	if err := h.svc.RequestReport(r.Context(), historyID, userID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("report_queued", "history_id", historyID, "user_id", userID)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// handleServiceError maps query service errors to HTTP responses.
func (h *QueryHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, "EMPTY_QUERY", "Query must not be empty")
	case errors.Is(err, service.ErrPromptTooLong):
		writeError(w, http.StatusBadRequest, "QUERY_TOO_LONG", "Query exceeds maximum length")
	case errors.Is(err, service.ErrProviderUnavailable):
		writeError(w, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE", "Language model provider is unavailable, try again later")
	case errors.Is(err, service.ErrHistoryNotFound):
		writeError(w, http.StatusNotFound, "HISTORY_NOT_FOUND", "Query history record not found")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
