// Package main is the entrypoint for the GeoLLM background worker.
// It consumes the task streams and runs the periodic maintenance jobs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geollm/geollm/internal/cache"
	"github.com/geollm/geollm/internal/config"
	"github.com/geollm/geollm/internal/geo"
	"github.com/geollm/geollm/internal/llm"
	"github.com/geollm/geollm/internal/mailer"
	"github.com/geollm/geollm/internal/metrics"
	"github.com/geollm/geollm/internal/repository"
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
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Task streams may live on a separate Redis instance
	broker := cacheClient
	if cfg.BrokerURL != cfg.RedisURL {
		broker, err = cache.New(ctx, cfg.BrokerURL)
		if err != nil {
			logger.Error("failed to connect to broker", "error", err)
			os.Exit(1)
		}
		defer broker.Close()
		logger.Info("connected to broker")
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
	// The worker consumes tasks; it never publishes them
	queryService := service.NewQueryService(repo, llmClient, geoSource, nil, recorder, logger)
	mail := mailer.New(cfg, logger)

	worker := tasks.NewWorker(broker.Client(), logger, consumerID(), recorder)
	tasks.RegisterHandlers(worker, queryService, mail, logger)

	scheduler := tasks.NewScheduler(logger)
	scheduler.Add(tasks.Job{
		Name: "token_cleanup",
		Next: tasks.NextDailyAt(0, 0),
		Run: func(ctx context.Context) error {
			deleted, err := repo.DeleteExpiredAuthTokens(ctx)
			if err != nil {
				return err
			}
			logger.Info("expired tokens removed", "deleted", deleted)
			return nil
		},
	})
	scheduler.Add(tasks.Job{
		Name: "geo_cache_refresh",
		Next: tasks.NextEvery(6 * time.Hour),
		Run: func(ctx context.Context) error {
			expired, err := cacheClient.ExpireGeoCacheBelow(ctx, 30*time.Minute)
			if err != nil {
				return err
			}
			logger.Info("near-stale geo cache entries dropped", "expired", expired)
			return nil
		},
	})
	scheduler.Add(tasks.Job{
		Name: "session_cleanup",
		Next: tasks.NextDailyAt(2, 0),
		Run: func(ctx context.Context) error {
			deleted, err := repo.DeleteStaleSessions(ctx, time.Now().Add(-cfg.SessionRetention))
			if err != nil {
				return err
			}
			logger.Info("stale sessions removed", "deleted", deleted)
			return nil
		},
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- worker.Run(runCtx) }()
	go func() { errCh <- scheduler.Run(runCtx) }()

	logger.Info("worker started", "consumer_id", consumerID())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logger.Error("background loop failed", "error", err)
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stopCancel()

	if err := scheduler.Shutdown(stopCtx); err != nil {
		logger.Error("scheduler shutdown error", "error", err)
	}
	if err := worker.Shutdown(stopCtx); err != nil {
		logger.Error("worker shutdown error", "error", err)
	}
	cancel()

	logger.Info("worker stopped")
}

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

func buildGeoSource(cfg *config.Config, cacheClient *cache.Cache, logger *slog.Logger) (geo.Source, error) {
	if cfg.UseMockGeoData {
		logger.Info("using mock geo data source")
		return geo.NewMockSource(), nil
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}
	return geo.NewHTTPSource(cfg.MapboxAccessToken, cfg.MapboxAPIURL, httpClient, cacheClient, cfg.GeoCacheTTL)
}

func consumerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
