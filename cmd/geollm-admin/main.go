// Package main is the GeoLLM operational CLI for database setup,
// account management, and history maintenance.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/geollm/geollm/internal/cache"
	"github.com/geollm/geollm/internal/config"
	"github.com/geollm/geollm/internal/repository"
)

const (
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorReset = "\033[0m"
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "geollm-admin",
	Short: "GeoLLM administration tool",
	Long: `geollm-admin manages a GeoLLM deployment: database schema, user
accounts, API keys, and query history retention.

Configuration is read from the environment (DATABASE_URL, REDIS_URL,
and friends), the same variables the API server uses.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	rootCmd.AddCommand(
		initDBCmd,
		seedDataCmd,
		createAdminCmd,
		resetPasswordCmd,
		createAPIKeyCmd,
		setUserActiveCmd,
		listUsersCmd,
		backupDBCmd,
		cleanHistoryCmd,
		exportQueriesCmd,
		checkSystemCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// adminDeps bundles the connections a command needs.
type adminDeps struct {
	cfg  *config.Config
	repo *repository.Repository
}

// bootstrap loads config and connects to the database. Callers must
// Close the returned repository.
func bootstrap(ctx context.Context) (*adminDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Commands are interactive; keep slog noise out of the output
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &adminDeps{cfg: cfg, repo: repo}, nil
}

func (d *adminDeps) Close() {
	d.repo.Close()
}

func (d *adminDeps) connectCache(ctx context.Context) (*cache.Cache, error) {
	c, err := cache.New(ctx, d.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}
	return c, nil
}

func printOK(format string, args ...any) {
	fmt.Printf(colorGreen+"✓ "+colorReset+format+"\n", args...)
}

func printFail(format string, args ...any) {
	fmt.Printf(colorRed+"✗ "+colorReset+format+"\n", args...)
}
