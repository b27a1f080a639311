package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geollm/geollm/internal/auth"
	"github.com/geollm/geollm/internal/geo"
	"github.com/geollm/geollm/internal/llm"
	"github.com/geollm/geollm/internal/model"
	"github.com/geollm/geollm/internal/repository"
	"github.com/geollm/geollm/internal/service"
)

type stubLLM struct {
	intent *llm.Intent
	err    error
}

func (s *stubLLM) AnalyzeQuery(context.Context, string) (*llm.Intent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.intent, nil
}

func (s *stubLLM) Complete(context.Context, llm.CompletionRequest) (string, error) {
	return "", nil
}

func (s *stubLLM) GenerateReport(context.Context, string, []byte) (string, error) {
	return "# Report", nil
}

type stubStore struct {
	records []*model.QueryHistory
}

func (s *stubStore) CreateQueryHistory(_ context.Context, record *model.QueryHistory) error {
	s.records = append(s.records, record)
	return nil
}

func (s *stubStore) GetQueryHistoryByID(_ context.Context, id, userID string) (*model.QueryHistory, error) {
	for _, r := range s.records {
		if r.ID == id && r.UserID == userID {
			return r, nil
		}
	}
	return nil, repository.ErrHistoryNotFound
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

type stubPublisher struct {
	types []string
}

func (s *stubPublisher) Publish(_ context.Context, _, taskType string, _ map[string]any) error {
	s.types = append(s.types, taskType)
	return nil
}

func newQueryHandler(client llm.Client, store *stubStore) *QueryHandler {
	svc := service.NewQueryService(store, client, geo.NewMockSource(), nil, nil, discardLogger())
	return NewQueryHandler(svc, discardLogger())
}

func authenticatedRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	authCtx := &model.AuthContext{
		KeyID:  "key-1",
		UserID: "user-1",
		Scopes: []string{model.ScopeQuery},
	}
	return req.WithContext(auth.ContextWithAuth(req.Context(), authCtx))
}

func TestQuery_Success(t *testing.T) {
	location := "Hanoi"
	store := &stubStore{}
	h := newQueryHandler(&stubLLM{intent: &llm.Intent{Location: &location, Parameters: map[string]any{}}}, store)

	req := authenticatedRequest(http.MethodPost, "/api/v1/query", `{"query":"population of Hanoi"}`)
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result service.QueryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.HistoryID)
	require.NotNil(t, result.Intent.Location)
	assert.Equal(t, "Hanoi", *result.Intent.Location)
	assert.NotNil(t, result.FeatureCollection)
	assert.Len(t, store.records, 1)
}

func TestQuery_Unauthorized(t *testing.T) {
	h := newQueryHandler(&stubLLM{intent: llm.DefaultIntent()}, &stubStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"query":"x"}`))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestQuery_InvalidBody(t *testing.T) {
	h := newQueryHandler(&stubLLM{intent: llm.DefaultIntent()}, &stubStore{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"query":`},
		{"missing query", `{}`},
		{"empty query", `{"query":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authenticatedRequest(http.MethodPost, "/api/v1/query", tt.body)
			rec := httptest.NewRecorder()
			h.Query(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestQuery_ProviderUnavailable(t *testing.T) {
	store := &stubStore{}
	h := newQueryHandler(&stubLLM{err: llm.ErrProviderUnavailable}, store)

	req := authenticatedRequest(http.MethodPost, "/api/v1/query", `{"query":"anything"}`)
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "PROVIDER_UNAVAILABLE", body.Error.Code)
	assert.Empty(t, store.records)
}

func TestReport_QueuesTask(t *testing.T) {
	store := &stubStore{records: []*model.QueryHistory{{
		ID:     "01HIST",
		UserID: "user-1",
		Intent: model.IntentJSON{Parameters: map[string]any{}},
	}}}
	pub := &stubPublisher{}
	svc := service.NewQueryService(store, &stubLLM{intent: llm.DefaultIntent()}, geo.NewMockSource(), pub, nil, discardLogger())
	h := NewQueryHandler(svc, discardLogger())

	r := chi.NewRouter()
	r.Post("/api/v1/history/{id}/report", h.Report)

	req := authenticatedRequest(http.MethodPost, "/api/v1/history/01HIST/report", "")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"llm.generate_report"}, pub.types)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])
}

func TestReport_UnknownRecord(t *testing.T) {
	pub := &stubPublisher{}
	svc := service.NewQueryService(&stubStore{}, &stubLLM{intent: llm.DefaultIntent()}, geo.NewMockSource(), pub, nil, discardLogger())
	h := NewQueryHandler(svc, discardLogger())

	r := chi.NewRouter()
	r.Post("/api/v1/history/{id}/report", h.Report)

	req := authenticatedRequest(http.MethodPost, "/api/v1/history/nope/report", "")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, pub.types)
}

func TestIntent_DoesNotPersist(t *testing.T) {
	dataType := "weather"
	store := &stubStore{}
	h := newQueryHandler(&stubLLM{intent: &llm.Intent{DataType: &dataType, Parameters: map[string]any{}}}, store)

	req := authenticatedRequest(http.MethodPost, "/api/v1/intent", `{"query":"weather tomorrow"}`)
	rec := httptest.NewRecorder()
	h.Intent(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Intent llm.Intent `json:"intent"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Intent.DataType)
	assert.Equal(t, "weather", *resp.Intent.DataType)
	assert.Empty(t, store.records)
}
