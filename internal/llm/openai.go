package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	apiKey      string
	model       string
	baseURL     string
	http        Doer
	cache       ResponseCache
	cacheTTL    time.Duration
	maxAttempts int
	baseDelay   time.Duration
}

// NewOpenAIClient creates a client for an OpenAI-compatible API.
// Fails when the API key is missing; a client that cannot authenticate
// should never be constructed.
func NewOpenAIClient(apiKey, model, baseURL string, opts *Options) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingAPIKey)
	}

	o := opts.withDefaults(30 * time.Second)

	return &OpenAIClient{
		apiKey:      apiKey,
		model:       model,
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        o.HTTPClient,
		cache:       o.Cache,
		cacheTTL:    o.CacheTTL,
		maxAttempts: o.MaxAttempts,
		baseDelay:   o.RetryBaseDelay,
	}, nil
}

// chatResponse is the subset of the chat-completions response we read.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// AnalyzeQuery extracts a structured intent from a natural-language query.
func (c *OpenAIClient) AnalyzeQuery(ctx context.Context, query string) (*Intent, error) {
	raw, err := c.Complete(ctx, CompletionRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: intentSystemPrompt},
			{Role: "user", Content: query},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	return parseIntent(raw), nil
}

// GenerateReport produces a markdown analysis of a feature collection.
func (c *OpenAIClient) GenerateReport(ctx context.Context, prompt string, featureJSON []byte) (string, error) {
	return c.Complete(ctx, CompletionRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: reportSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Question: %s\n\nFeature collection:\n%s", prompt, featureJSON)},
		},
		Temperature: 0.3,
	})
}

// Complete performs one chat-completions call, consulting the response
// cache first. A cache hit skips the provider entirely.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	fingerprint := req.Fingerprint()
	if c.cache != nil {
		if data, err := c.cache.GetLLMResponse(ctx, fingerprint); err == nil {
			return string(data), nil
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	build := func() (*http.Request, error) {
		httpReq, err := http.NewRequest(http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	}

	resp, err := doWithRetry(ctx, c.http, build, c.maxAttempts, c.baseDelay)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode provider response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}

	content := parsed.Choices[0].Message.Content

	if c.cache != nil {
		// Best effort; a failed cache write must not fail the call
		_ = c.cache.SetLLMResponse(ctx, fingerprint, []byte(content), c.cacheTTL)
	}

	return content, nil
}
