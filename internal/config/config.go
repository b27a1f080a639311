// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor
// principles, with deployment profiles applying overlay defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Deployment profile names.
const (
	EnvDevelopment = "development"
	EnvTesting     = "testing"
	EnvProduction  = "production"
	EnvDocker      = "docker"
)

// ErrMissingSecret indicates a credential required for the current profile is absent.
var ErrMissingSecret = errors.New("missing required secret")

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Secrets
	SecretKey string `env:"SECRET_KEY"`
	JWTSecret string `env:"JWT_SECRET_KEY"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache and task broker (Redis)
	RedisURL  string `env:"REDIS_URL,required"`
	BrokerURL string `env:"BROKER_URL"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// JWT token lifetimes
	AccessTokenTTL  time.Duration `env:"JWT_ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"JWT_REFRESH_TOKEN_TTL" envDefault:"720h"`

	// LLM provider
	LLMProvider         string        `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey        string        `env:"OPENAI_API_KEY"`
	OpenAIModel         string        `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	OpenAIBaseURL       string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	HuggingFaceAPIKey   string        `env:"HUGGINGFACE_API_KEY"`
	HuggingFaceAPIURL   string        `env:"HUGGINGFACE_API_URL" envDefault:"https://api-inference.huggingface.co/models/"`
	HuggingFaceModel    string        `env:"HUGGINGFACE_DEFAULT_MODEL" envDefault:"mistralai/Mistral-7B-Instruct-v0.2"`
	LLMCacheEnabled     bool          `env:"LLM_CACHE_ENABLED" envDefault:"true"`
	LLMCacheTTL         time.Duration `env:"LLM_CACHE_TTL" envDefault:"5m"`
	LLMRequestTimeout   time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"30s"`
	LLMMaxRetryAttempts int           `env:"LLM_MAX_RETRY_ATTEMPTS" envDefault:"3"`

	// Geospatial provider
	MapboxAccessToken string        `env:"MAPBOX_ACCESS_TOKEN"`
	MapboxAPIURL      string        `env:"MAPBOX_API_URL" envDefault:"https://api.mapbox.com"`
	UseMockGeoData    bool          `env:"USE_MOCK_GEO_DATA" envDefault:"false"`
	GeoCacheTTL       time.Duration `env:"GEO_CACHE_TTL" envDefault:"6h"`

	// Mail
	MailServer        string `env:"MAIL_SERVER" envDefault:"smtp.gmail.com"`
	MailPort          int    `env:"MAIL_PORT" envDefault:"587"`
	MailUseTLS        bool   `env:"MAIL_USE_TLS" envDefault:"true"`
	MailUsername      string `env:"MAIL_USERNAME"`
	MailPassword      string `env:"MAIL_PASSWORD"`
	MailDefaultSender string `env:"MAIL_DEFAULT_SENDER" envDefault:"noreply@geollm.local"`
	MailSuppressSend  bool   `env:"MAIL_SUPPRESS_SEND" envDefault:"false"`

	// Rate limiting
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitAuthRPS int  `env:"RATE_LIMIT_AUTH_RPS" envDefault:"1"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" envDefault:"5"`

	// Retention windows for periodic cleanup jobs
	SessionRetention time.Duration `env:"SESSION_RETENTION" envDefault:"720h"`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment || c.AppEnv == EnvDocker
}

// IsTesting returns true if running under the testing profile.
func (c *Config) IsTesting() bool {
	return c.AppEnv == EnvTesting
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// applyProfile layers profile-specific defaults on top of the parsed
// environment. The original deployment carried per-profile config classes;
// these overlays reproduce their observable differences.
func (c *Config) applyProfile() {
	switch c.AppEnv {
	case EnvDevelopment, EnvDocker:
		c.MailSuppressSend = true
		c.UseMockGeoData = true
		c.AccessTokenTTL = 7 * 24 * time.Hour // Longer tokens for dev
	case EnvTesting:
		c.MailSuppressSend = true
		c.UseMockGeoData = true
		c.RateLimitEnabled = false
	case EnvProduction:
		// Stricter defaults stand as parsed
	}
}

// Validate checks profile-dependent invariants that env tags cannot express.
// Provider credentials are validated at client construction, not here, so a
// worker that never talks to the LLM can still boot without its key.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.SecretKey == "" {
			return fmt.Errorf("%w: SECRET_KEY", ErrMissingSecret)
		}
	}
	if c.JWTSecret == "" {
		c.JWTSecret = c.SecretKey
	}
	return nil
}

// Load parses environment variables and returns a Config.
// A .env file in the working directory is loaded first when present.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	// Missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyProfile()

	if cfg.BrokerURL == "" {
		cfg.BrokerURL = cfg.RedisURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
