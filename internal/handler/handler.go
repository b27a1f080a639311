// Package handler provides HTTP request handlers for the JSON API and the
// HTML pages.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ErrorBody is the uniform JSON error envelope for API responses.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code and a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// isAPIRequest reports whether the request targets the JSON API.
func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// NotFound handles 404 responses: JSON for API routes, HTML otherwise.
func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	if isAPIRequest(r) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
		return
	}
	h.renderError(w, http.StatusNotFound, "Page not found")
}

// MethodNotAllowed handles 405 responses: JSON for API routes, HTML otherwise.
func (h *PageHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	if isAPIRequest(r) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
		return
	}
	h.renderError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
