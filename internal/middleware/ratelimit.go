package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/geollm/geollm/internal/auth"
	"github.com/geollm/geollm/internal/cache"
	"github.com/geollm/geollm/internal/model"
)

// RateLimitConfig holds configuration for the rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Cache   *cache.Cache
	Enabled bool
	// AuthRPS is the per-IP request rate for the HTML auth endpoints.
	AuthRPS int
	// Burst is the per-IP bucket capacity.
	Burst int
}

// RateLimitAPI returns a middleware that enforces per-key rate limits.
// Must be applied after Auth middleware. The limit is taken from the key's
// tier; the unlimited tier skips the bucket entirely. Redis failures fail
// open.
func RateLimitAPI(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil {
				// Auth middleware rejects unauthenticated requests first
				next.ServeHTTP(w, r)
				return
			}

			tier, ok := model.TierConfigs[authCtx.RateLimitTier]
			if !ok {
				tier = model.TierConfigs[model.TierFree]
			}
			if tier.RequestsPerMinute == 0 {
				next.ServeHTTP(w, r)
				return
			}

			result, err := cfg.Cache.CheckAPIRateLimit(r.Context(), authCtx.KeyID, tier.RequestsPerMinute, tier.Burst)
			if err != nil {
				// Fail open
				cfg.Logger.Warn("rate limit check failed",
					slog.String("key_id", authCtx.KeyID),
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, tier.RequestsPerMinute, result)

			if !result.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("key_id", authCtx.KeyID),
					slog.String("tier", authCtx.RateLimitTier),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeRateLimitError(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitIP returns a middleware that enforces per-IP rate limits.
// Used on the HTML auth endpoints, where no API key is present yet.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			ip := getClientIP(r)
			result, err := cfg.Cache.CheckIPRateLimit(r.Context(), ip, cfg.AuthRPS, cfg.Burst)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				cfg.Logger.Warn("ip rate limit exceeded",
					slog.String("ip_hash", cache.HashIP(ip)),
					slog.String("path", r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeRateLimitError(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setRateLimitHeaders adds standard rate limit headers to the response.
func setRateLimitHeaders(w http.ResponseWriter, limit int, result *cache.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// writeRateLimitError writes a 429 Too Many Requests response.
func writeRateLimitError(w http.ResponseWriter, result *cache.RateLimitResult) {
	if result.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(fmt.Sprintf(
		`{"error":{"code":"RATE_LIMITED","message":"Rate limit exceeded. Retry after %d seconds."}}`,
		int(result.RetryAfter.Seconds()))))
}

// getClientIP extracts the client IP, honoring proxy headers.
func getClientIP(r *http.Request) string {
	// X-Forwarded-For may carry a chain; the first entry is the client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
