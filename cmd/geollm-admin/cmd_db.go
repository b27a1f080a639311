package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/geollm/geollm/internal/config"
)

var initDBMigrationsDir string

// initDBCmd applies the schema migrations in order.
var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Apply database schema migrations",
	Long: `Apply all .up.sql migrations in lexical order. Migrations are
written to be idempotent, so re-running against an existing schema is
safe.`,
	RunE: runInitDB,
}

var backupDBOutput string

// backupDBCmd dumps the database via pg_dump.
var backupDBCmd = &cobra.Command{
	Use:   "backup-db",
	Short: "Dump the database with pg_dump",
	RunE:  runBackupDB,
}

// checkSystemCmd verifies connectivity and reports basic counts.
var checkSystemCmd = &cobra.Command{
	Use:   "check-system",
	Short: "Check database and Redis connectivity",
	RunE:  runCheckSystem,
}

func init() {
	initDBCmd.Flags().StringVar(&initDBMigrationsDir, "migrations", "migrations", "directory containing .up.sql files")
	backupDBCmd.Flags().StringVarP(&backupDBOutput, "output", "o", "", "output file (default geollm-<date>.sql)")
}

func runInitDB(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	deps, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	entries, err := os.ReadDir(initDBMigrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	applied := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}

		path := filepath.Join(initDBMigrationsDir, entry.Name())
		sql, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		if _, err := deps.repo.Pool().Exec(ctx, string(sql)); err != nil {
			printFail("%s", entry.Name())
			return fmt.Errorf("apply %s: %w", entry.Name(), err)
		}
		printOK("%s", entry.Name())
		applied++
	}

	if applied == 0 {
		return fmt.Errorf("no .up.sql files found in %s", initDBMigrationsDir)
	}
	printOK("schema up to date (%d migrations)", applied)
	return nil
}

func runBackupDB(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	output := backupDBOutput
	if output == "" {
		output = fmt.Sprintf("geollm-%s.sql", time.Now().UTC().Format("20060102-150405"))
	}

	dump := exec.CommandContext(cmd.Context(), "pg_dump", "--no-owner", "--file", output, cfg.DatabaseURL)
	dump.Stderr = os.Stderr

	if err := dump.Run(); err != nil {
		printFail("pg_dump failed")
		return fmt.Errorf("pg_dump: %w", err)
	}

	printOK("database dumped to %s", output)
	return nil
}

func runCheckSystem(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	deps, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	failed := false

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := deps.repo.Ping(pingCtx); err != nil {
		printFail("postgres: %v", err)
		failed = true
	} else {
		printOK("postgres reachable")
	}

	cacheClient, err := deps.connectCache(ctx)
	if err != nil {
		printFail("redis: %v", err)
		failed = true
	} else {
		defer cacheClient.Close()
		if err := cacheClient.Ping(pingCtx); err != nil {
			printFail("redis: %v", err)
			failed = true
		} else {
			printOK("redis reachable")
		}
	}

	for _, name := range []string{"DATABASE_URL", "REDIS_URL", "SECRET_KEY"} {
		if os.Getenv(name) == "" {
			printFail("%s not set", name)
			failed = true
		} else {
			printOK("%s set", name)
		}
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(".", &stat); err == nil {
		freeGB := float64(stat.Bavail) * float64(stat.Bsize) / (1 << 30)
		if freeGB < 1 {
			printFail("low disk space: %.1f GiB free", freeGB)
			failed = true
		} else {
			printOK("disk space: %.1f GiB free", freeGB)
		}
	}

	if !failed {
		queries, err := deps.repo.CountQueryHistory(ctx)
		if err != nil {
			return fmt.Errorf("count history: %w", err)
		}
		keys, err := deps.repo.CountActiveAPIKeys(ctx)
		if err != nil {
			return fmt.Errorf("count api keys: %w", err)
		}
		fmt.Printf("  query history rows: %d\n", queries)
		fmt.Printf("  active API keys:    %d\n", keys)
	}

	if failed {
		return fmt.Errorf("system check failed")
	}
	printOK("all systems healthy")
	return nil
}
