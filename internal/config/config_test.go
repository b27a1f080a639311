package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/geollm_test")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("APP_ENV", "production")
	t.Setenv("SECRET_KEY", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AppPort != 8080 {
		t.Errorf("AppPort = %d, want 8080", cfg.AppPort)
	}
	if cfg.LLMProvider != "openai" {
		t.Errorf("LLMProvider = %q, want openai", cfg.LLMProvider)
	}
	if cfg.LLMMaxRetryAttempts != 3 {
		t.Errorf("LLMMaxRetryAttempts = %d, want 3", cfg.LLMMaxRetryAttempts)
	}
	if cfg.LLMCacheTTL != 5*time.Minute {
		t.Errorf("LLMCacheTTL = %v, want 5m", cfg.LLMCacheTTL)
	}
	if cfg.UseMockGeoData {
		t.Error("UseMockGeoData should default to false in production")
	}
	if cfg.BrokerURL != cfg.RedisURL {
		t.Errorf("BrokerURL = %q, want fallback to RedisURL", cfg.BrokerURL)
	}
	if cfg.JWTSecret != "test-secret" {
		t.Errorf("JWTSecret = %q, want fallback to SecretKey", cfg.JWTSecret)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail without DATABASE_URL")
	}
}

func TestLoad_ProfileOverlays(t *testing.T) {
	testCases := []struct {
		name             string
		appEnv           string
		wantMockGeo      bool
		wantMailSuppress bool
		wantRateLimit    bool
	}{
		{name: "development", appEnv: "development", wantMockGeo: true, wantMailSuppress: true, wantRateLimit: true},
		{name: "testing", appEnv: "testing", wantMockGeo: true, wantMailSuppress: true, wantRateLimit: false},
		{name: "docker", appEnv: "docker", wantMockGeo: true, wantMailSuppress: true, wantRateLimit: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/geollm_test")
			t.Setenv("REDIS_URL", "redis://localhost:6379/0")
			t.Setenv("APP_ENV", tc.appEnv)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.UseMockGeoData != tc.wantMockGeo {
				t.Errorf("UseMockGeoData = %v, want %v", cfg.UseMockGeoData, tc.wantMockGeo)
			}
			if cfg.MailSuppressSend != tc.wantMailSuppress {
				t.Errorf("MailSuppressSend = %v, want %v", cfg.MailSuppressSend, tc.wantMailSuppress)
			}
			if cfg.RateLimitEnabled != tc.wantRateLimit {
				t.Errorf("RateLimitEnabled = %v, want %v", cfg.RateLimitEnabled, tc.wantRateLimit)
			}
		})
	}
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/geollm_test")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("APP_ENV", "production")
	t.Setenv("SECRET_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail in production without SECRET_KEY")
	}
}
