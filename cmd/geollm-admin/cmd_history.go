package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/geollm/geollm/internal/export"
	"github.com/geollm/geollm/internal/service"
)

var (
	cleanHistoryDays   int
	cleanHistoryDryRun bool
	cleanHistoryUser   string

	exportQueriesUser   string
	exportQueriesOutput string
	exportQueriesFormat string
)

// cleanHistoryCmd deletes query history past the retention window.
var cleanHistoryCmd = &cobra.Command{
	Use:   "clean-history",
	Short: "Delete query history older than a cutoff",
	Long: `Delete query history records older than the given number of days.
With --dry-run, counts matching records and deletes nothing.`,
	RunE: runCleanHistory,
}

// exportQueriesCmd exports a user's query history.
var exportQueriesCmd = &cobra.Command{
	Use:   "export-queries",
	Short: "Export a user's query history as JSON or CSV",
	RunE:  runExportQueries,
}

func init() {
	cleanHistoryCmd.Flags().IntVar(&cleanHistoryDays, "days", 0, "delete records older than this many days (required)")
	cleanHistoryCmd.Flags().BoolVar(&cleanHistoryDryRun, "dry-run", false, "count matching records without deleting")
	cleanHistoryCmd.Flags().StringVar(&cleanHistoryUser, "user", "", "limit to a single username")
	_ = cleanHistoryCmd.MarkFlagRequired("days")

	exportQueriesCmd.Flags().StringVar(&exportQueriesUser, "user", "", "username to export (required)")
	exportQueriesCmd.Flags().StringVarP(&exportQueriesOutput, "output", "o", "", "output file (default stdout)")
	exportQueriesCmd.Flags().StringVar(&exportQueriesFormat, "format", "json", "output format: json or csv")
	_ = exportQueriesCmd.MarkFlagRequired("user")
}

func runCleanHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if cleanHistoryDays <= 0 {
		return fmt.Errorf("--days must be positive")
	}

	deps, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	history := service.NewHistoryService(deps.repo)
	result, err := history.CleanHistory(ctx, service.CleanHistoryInput{
		Days:     cleanHistoryDays,
		DryRun:   cleanHistoryDryRun,
		Username: cleanHistoryUser,
	})
	if err != nil {
		printFail("clean-history failed")
		return err
	}

	fmt.Printf("cutoff: %s\n", result.Cutoff.UTC().Format(time.RFC3339))
	if result.DryRun {
		printOK("dry run: %d records would be deleted", result.Matched)
		return nil
	}
	printOK("%d records deleted", result.Deleted)
	return nil
}

func runExportQueries(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if exportQueriesFormat != "json" && exportQueriesFormat != "csv" {
		return fmt.Errorf("unsupported format %q (json or csv)", exportQueriesFormat)
	}

	deps, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	history := service.NewHistoryService(deps.repo)
	records, err := history.ExportHistory(ctx, exportQueriesUser)
	if err != nil {
		printFail("export failed")
		return err
	}

	out := os.Stdout
	if exportQueriesOutput != "" {
		f, err := os.Create(exportQueriesOutput)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if exportQueriesFormat == "csv" {
		err = export.WriteCSV(out, records)
	} else {
		err = export.WriteJSON(out, records)
	}
	if err != nil {
		return err
	}

	if exportQueriesOutput != "" {
		printOK("%d records written to %s", len(records), exportQueriesOutput)
	}
	return nil
}
