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

// HuggingFaceClient talks to the Hugging Face inference API. Instruction
// models there return prose around the JSON, so parsing always brace-scans.
type HuggingFaceClient struct {
	apiKey      string
	model       string
	apiURL      string
	http        Doer
	cache       ResponseCache
	cacheTTL    time.Duration
	maxAttempts int
	baseDelay   time.Duration
}

// NewHuggingFaceClient creates a client for the Hugging Face inference API.
// Fails when the API key is missing.
func NewHuggingFaceClient(apiKey, model, apiURL string, opts *Options) (*HuggingFaceClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: HUGGINGFACE_API_KEY", ErrMissingAPIKey)
	}

	o := opts.withDefaults(30 * time.Second)

	return &HuggingFaceClient{
		apiKey:      apiKey,
		model:       model,
		apiURL:      strings.TrimRight(apiURL, "/") + "/",
		http:        o.HTTPClient,
		cache:       o.Cache,
		cacheTTL:    o.CacheTTL,
		maxAttempts: o.MaxAttempts,
		baseDelay:   o.RetryBaseDelay,
	}, nil
}

// hfRequest is the inference API payload.
type hfRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		MaxNewTokens   int     `json:"max_new_tokens"`
		Temperature    float64 `json:"temperature"`
		ReturnFullText bool    `json:"return_full_text"`
	} `json:"parameters"`
}

// AnalyzeQuery extracts a structured intent from a natural-language query.
func (c *HuggingFaceClient) AnalyzeQuery(ctx context.Context, query string) (*Intent, error) {
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
func (c *HuggingFaceClient) GenerateReport(ctx context.Context, prompt string, featureJSON []byte) (string, error) {
	return c.Complete(ctx, CompletionRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: reportSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Question: %s\n\nFeature collection:\n%s", prompt, featureJSON)},
		},
		Temperature: 0.3,
	})
}

// Complete performs one inference call. The chat messages are flattened
// into a single instruction prompt, since the inference API takes raw text.
func (c *HuggingFaceClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	fingerprint := req.Fingerprint()
	if c.cache != nil {
		if data, err := c.cache.GetLLMResponse(ctx, fingerprint); err == nil {
			return string(data), nil
		}
	}

	var prompt strings.Builder
	for _, msg := range req.Messages {
		prompt.WriteString(msg.Content)
		prompt.WriteString("\n\n")
	}

	hfReq := hfRequest{Inputs: prompt.String()}
	hfReq.Parameters.MaxNewTokens = 512
	hfReq.Parameters.Temperature = req.Temperature
	if hfReq.Parameters.Temperature <= 0 {
		hfReq.Parameters.Temperature = 0.01 // HF rejects exactly zero
	}

	payload, err := json.Marshal(hfReq)
	if err != nil {
		return "", fmt.Errorf("marshal inference request: %w", err)
	}

	build := func() (*http.Request, error) {
		httpReq, err := http.NewRequest(http.MethodPost, c.apiURL+req.Model, bytes.NewReader(payload))
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

	var parsed []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode provider response: %w", err)
	}
	if len(parsed) == 0 {
		return "", fmt.Errorf("provider returned no generations")
	}

	content := parsed[0].GeneratedText

	if c.cache != nil {
		_ = c.cache.SetLLMResponse(ctx, fingerprint, []byte(content), c.cacheTTL)
	}

	return content, nil
}
