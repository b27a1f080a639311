package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/geollm/geollm/internal/auth"
	"github.com/geollm/geollm/internal/repository"
	"github.com/geollm/geollm/internal/service"
)

// HistoryHandler handles query history endpoints.
type HistoryHandler struct {
	svc    *service.HistoryService
	logger *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(svc *service.HistoryService, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{svc: svc, logger: logger}
}

// List handles GET /api/v1/history.
// Supports cursor pagination and a favorites_only filter.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	query := r.URL.Query()

	limit := 20
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	input := service.ListHistoryInput{
		UserID:        userID,
		Cursor:        query.Get("cursor"),
		Limit:         limit,
		FavoritesOnly: query.Get("favorites_only") == "true",
	}

	result, err := h.svc.ListHistory(r.Context(), input)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Pagination cursor is malformed")
			return
		}
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records":     result.Records,
		"next_cursor": result.NextCursor,
		"has_more":    result.HasMore,
	})
}

// Get handles GET /api/v1/history/{id}.
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "History ID is required")
		return
	}

	record, err := h.svc.GetHistory(r.Context(), id, userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// ToggleFavorite handles POST /api/v1/history/{id}/favorite.
// Flips the flag and returns the new state.
func (h *HistoryHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "History ID is required")
		return
	}

	favorited, err := h.svc.ToggleFavorite(r.Context(), id, userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("history_favorite_toggled",
		"history_id", id,
		"user_id", userID,
		"favorited", favorited,
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"id":           id,
		"is_favorited": favorited,
	})
}

// Delete handles DELETE /api/v1/history/{id}.
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "History ID is required")
		return
	}

	if err := h.svc.DeleteHistory(r.Context(), id, userID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("history_deleted", "history_id", id, "user_id", userID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *HistoryHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrHistoryNotFound):
		writeError(w, http.StatusNotFound, "HISTORY_NOT_FOUND", "Query history record not found")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
