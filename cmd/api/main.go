// Package main is the entrypoint for the GeoLLM API server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/geollm/geollm/internal/auth"
	"github.com/geollm/geollm/internal/cache"
	"github.com/geollm/geollm/internal/config"
	"github.com/geollm/geollm/internal/geo"
	"github.com/geollm/geollm/internal/handler"
	"github.com/geollm/geollm/internal/llm"
	"github.com/geollm/geollm/internal/metrics"
	"github.com/geollm/geollm/internal/middleware"
	"github.com/geollm/geollm/internal/repository"
	"github.com/geollm/geollm/internal/server"
	"github.com/geollm/geollm/internal/service"
	"github.com/geollm/geollm/internal/tasks"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		logger.Error("failed to initialize token manager", "error", err)
		os.Exit(1)
	}

	llmClient, err := llm.NewFromConfig(cfg, cacheClient)
	if err != nil {
		logger.Error("failed to initialize LLM client", "error", err)
		os.Exit(1)
	}

	geoSource, err := buildGeoSource(cfg, cacheClient, logger)
	if err != nil {
		logger.Error("failed to initialize geo source", "error", err)
		os.Exit(1)
	}

	recorder := metrics.NewPrometheus()
	publisher := tasks.NewPublisher(cacheClient.Client(), logger, recorder)

	queryService := service.NewQueryService(repo, llmClient, geoSource, publisher, recorder, logger)
	historyService := service.NewHistoryService(repo)
	userService := service.NewUserService(repo, tokens, publisher, cfg.RefreshTokenTTL, logger)
	apiKeyService := service.NewAPIKeyService(repo, cfg.IsProduction())

	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	queryHandler := handler.NewQueryHandler(queryService, logger)
	historyHandler := handler.NewHistoryHandler(historyService, logger)
	apiKeyHandler := handler.NewAPIKeyHandler(apiKeyService, logger)
	tokenHandler := handler.NewTokenHandler(userService, logger)
	pageHandler := handler.NewPageHandler(userService, historyService, tokens, logger, cfg.IsProduction())

	r := setupRouter(routerDeps{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		cache:    cacheClient,
		tokens:   tokens,
		recorder: recorder,
		health:   healthHandler,
		query:    queryHandler,
		history:  historyHandler,
		apiKeys:  apiKeyHandler,
		token:    tokenHandler,
		pages:    pageHandler,
	})

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"llm_provider", cfg.LLMProvider,
		"mock_geo", cfg.UseMockGeoData,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildGeoSource selects the mock source or the live provider.
func buildGeoSource(cfg *config.Config, cacheClient *cache.Cache, logger *slog.Logger) (geo.Source, error) {
	if cfg.UseMockGeoData {
		logger.Info("using mock geo data source")
		return geo.NewMockSource(), nil
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}
	return geo.NewHTTPSource(cfg.MapboxAccessToken, cfg.MapboxAPIURL, httpClient, cacheClient, cfg.GeoCacheTTL)
}

type routerDeps struct {
	cfg      *config.Config
	logger   *slog.Logger
	repo     *repository.Repository
	cache    *cache.Cache
	tokens   *auth.TokenManager
	recorder *metrics.PrometheusRecorder
	health   *handler.HealthHandler
	query    *handler.QueryHandler
	history  *handler.HistoryHandler
	apiKeys  *handler.APIKeyHandler
	token    *handler.TokenHandler
	pages    *handler.PageHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(d routerDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.logger))
	r.Use(middleware.Recoverer(d.logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment:      d.cfg.IsDevelopment(),
		MaxRequestBodySize: d.cfg.MaxRequestBodySize,
	}))
	r.Use(middleware.MaxBodySize(d.cfg.MaxRequestBodySize))

	// Health and metrics (no auth required)
	r.Get("/healthz", d.health.Healthz)
	r.Get("/readyz", d.health.Readyz)
	r.Method(http.MethodGet, "/metrics", d.recorder.Handler())

	authCfg := middleware.AuthConfig{
		Logger:     d.logger,
		Repository: d.repo,
		Cache:      d.cache,
	}
	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  d.logger,
		Cache:   d.cache,
		Enabled: d.cfg.RateLimitEnabled,
		AuthRPS: d.cfg.RateLimitAuthRPS,
		Burst:   d.cfg.RateLimitBurst,
	}

	// Browser pages (JWT session cookie)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(d.tokens, d.repo))

		r.Get("/", d.pages.Home)
		r.Get("/auth/login", d.pages.LoginForm)
		r.Get("/auth/register", d.pages.RegisterForm)
		r.Get("/auth/forgot", d.pages.ForgotForm)
		r.Get("/auth/reset", d.pages.ResetForm)
		r.Post("/auth/logout", d.pages.Logout)
		r.With(middleware.RequireSession).Get("/history", d.pages.HistoryPage)
		r.With(middleware.RequireSession).Get("/profile", d.pages.ProfilePage)
		r.With(middleware.RequireSession).Post("/profile", d.pages.ProfileUpdate)

		// Credential endpoints get IP-based rate limiting
		r.With(middleware.RateLimitIP(rateLimitCfg)).Post("/auth/login", d.pages.Login)
		r.With(middleware.RateLimitIP(rateLimitCfg)).Post("/auth/register", d.pages.Register)
		r.With(middleware.RateLimitIP(rateLimitCfg)).Post("/auth/forgot", d.pages.Forgot)
		r.With(middleware.RateLimitIP(rateLimitCfg)).Post("/auth/reset", d.pages.Reset)
	})

	// JSON API (API key auth)
	r.Route("/api/v1", func(r chi.Router) {
		// Token issuance authenticates by credentials, not API key
		r.With(middleware.RateLimitIP(rateLimitCfg)).Post("/auth/token", d.token.Token)
		r.With(middleware.RateLimitIP(rateLimitCfg)).Post("/auth/refresh", d.token.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authCfg))
			r.Use(middleware.RateLimitAPI(rateLimitCfg))

			r.With(middleware.RequireQuery()).Post("/query", d.query.Query)
			r.With(middleware.RequireQuery()).Post("/intent", d.query.Intent)

			r.Route("/history", func(r chi.Router) {
				r.With(middleware.RequireRead()).Get("/", d.history.List)
				r.With(middleware.RequireRead()).Get("/{id}", d.history.Get)
				r.With(middleware.RequireQuery()).Post("/{id}/favorite", d.history.ToggleFavorite)
				r.With(middleware.RequireQuery()).Post("/{id}/report", d.query.Report)
				r.With(middleware.RequireQuery()).Delete("/{id}", d.history.Delete)
			})

			r.Route("/api-keys", func(r chi.Router) {
				r.With(middleware.RequireRead()).Get("/", d.apiKeys.List)
				r.With(middleware.RequireAdmin()).Post("/", d.apiKeys.Create)
				r.With(middleware.RequireAdmin()).Delete("/{key_id}", d.apiKeys.Revoke)
			})
		})
	})

	r.NotFound(d.pages.NotFound)
	r.MethodNotAllowed(d.pages.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
