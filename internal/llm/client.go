package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/geollm/geollm/internal/config"
)

// Common errors for language model clients.
var (
	// ErrMissingAPIKey indicates the provider credential is absent.
	// This is fatal at construction time.
	ErrMissingAPIKey = errors.New("missing provider API key")
	// ErrProviderUnavailable indicates the provider kept failing after
	// all retry attempts were exhausted.
	ErrProviderUnavailable = errors.New("language model provider unavailable")
	// ErrUnknownProvider indicates an unrecognized LLM_PROVIDER value.
	ErrUnknownProvider = errors.New("unknown language model provider")
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes one completion call to a provider.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Fingerprint returns the SHA-256 cache key for a completion request.
// It covers the model, every message, and the sampling parameters, so two
// requests share a key only when the provider would see identical input.
func (r *CompletionRequest) Fingerprint() string {
	data, _ := json.Marshal(r)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Client extracts structured intents from natural-language queries.
type Client interface {
	// AnalyzeQuery extracts a structured intent. It degrades to
	// DefaultIntent on malformed provider output and only errors when
	// the provider itself is unreachable.
	AnalyzeQuery(ctx context.Context, query string) (*Intent, error)
	// Complete performs a raw completion call.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// GenerateReport produces a markdown analysis of a feature
	// collection for the original prompt.
	GenerateReport(ctx context.Context, prompt string, featureJSON []byte) (string, error)
}

// ResponseCache caches raw provider responses by request fingerprint.
// *cache.Cache satisfies this; tests supply in-memory fakes.
type ResponseCache interface {
	GetLLMResponse(ctx context.Context, fingerprint string) ([]byte, error)
	SetLLMResponse(ctx context.Context, fingerprint string, data []byte, ttl time.Duration) error
}

// Doer performs HTTP requests. Satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options tune client construction beyond provider credentials.
type Options struct {
	HTTPClient  Doer
	Cache       ResponseCache
	CacheTTL    time.Duration
	MaxAttempts int
	// RetryBaseDelay overrides the 2s backoff base. Tests shrink it.
	RetryBaseDelay time.Duration
}

func (o *Options) withDefaults(timeout time.Duration) Options {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: timeout}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = defaultBaseDelay
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return opts
}

// NewFromConfig constructs the provider selected by LLM_PROVIDER.
// respCache may be nil when response caching is disabled.
func NewFromConfig(cfg *config.Config, respCache ResponseCache) (Client, error) {
	var cache ResponseCache
	if cfg.LLMCacheEnabled {
		cache = respCache
	}

	opts := &Options{
		Cache:       cache,
		CacheTTL:    cfg.LLMCacheTTL,
		MaxAttempts: cfg.LLMMaxRetryAttempts,
		HTTPClient:  &http.Client{Timeout: cfg.LLMRequestTimeout},
	}

	switch cfg.LLMProvider {
	case "openai":
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, opts)
	case "huggingface":
		return NewHuggingFaceClient(cfg.HuggingFaceAPIKey, cfg.HuggingFaceModel, cfg.HuggingFaceAPIURL, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.LLMProvider)
	}
}
