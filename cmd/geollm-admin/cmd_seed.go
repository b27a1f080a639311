package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/geollm/geollm/internal/model"
	"github.com/geollm/geollm/internal/service"
)

var seedDataConfirmed bool

// seedDataCmd loads demo data for local development.
var seedDataCmd = &cobra.Command{
	Use:   "seed-data",
	Short: "Load a default admin, demo account, and sample query history",
	Long: `Create a default admin account and a demo user with an API key and a
handful of sample query history records. Safe to re-run: existing
accounts are left alone. Intended for development databases only;
requires --yes to run.`,
	RunE: runSeedData,
}

func init() {
	seedDataCmd.Flags().BoolVar(&seedDataConfirmed, "yes", false, "confirm writing demo data")
}

func runSeedData(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !seedDataConfirmed {
		return fmt.Errorf("seed-data writes demo records; re-run with --yes to confirm")
	}

	deps, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	users := service.NewUserService(deps.repo, nil, nil, 0, nil)

	switch _, err := users.CreateAdmin(ctx, "admin", "admin@example.com", "admin-password"); {
	case err == nil:
		printOK("admin created (password: admin-password)")
	case errors.Is(err, service.ErrUsernameExists), errors.Is(err, service.ErrEmailExists):
		printOK("admin already exists, skipping")
	default:
		printFail("could not create admin")
		return err
	}

	demo, err := users.Register(ctx, service.RegisterInput{
		Username: "demo",
		Email:    "demo@example.com",
		Password: "demo-password",
	})
	if err != nil {
		if errors.Is(err, service.ErrUsernameExists) || errors.Is(err, service.ErrEmailExists) {
			printOK("demo user already exists, skipping")
			return nil
		}
		printFail("could not create demo user")
		return err
	}
	printOK("user demo created (password: demo-password)")

	keys := service.NewAPIKeyService(deps.repo, deps.cfg.IsProduction())
	key, err := keys.CreateAPIKey(ctx, demo.ID, model.APIKeyCreateRequest{
		Name:   "demo key",
		Scopes: []string{"read", "query"},
	})
	if err != nil {
		printFail("could not create demo API key")
		return err
	}
	printOK("API key created: %s", key.Key)

	for i, sample := range sampleQueries() {
		sample.ID = ulid.Make().String()
		sample.UserID = demo.ID
		sample.CreatedAt = time.Now().Add(-time.Duration(i*26) * time.Hour)
		if err := deps.repo.CreateQueryHistory(ctx, sample); err != nil {
			printFail("could not create sample history")
			return err
		}
	}
	printOK("%d sample queries created", len(sampleQueries()))

	return nil
}

func sampleQueries() []*model.QueryHistory {
	strp := func(s string) *string { return &s }

	return []*model.QueryHistory{
		{
			Prompt: "Show population density in Hanoi",
			Intent: model.IntentJSON{
				Location:   strp("Hanoi"),
				DataType:   strp("population"),
				Parameters: map[string]any{},
			},
			ResultSummary: "12 features",
			ResultCount:   12,
			DurationMs:    1420,
			IsFavorited:   true,
		},
		{
			Prompt: "Flood risk zones along the Mekong delta in 2023",
			Intent: model.IntentJSON{
				Location:   strp("Mekong Delta"),
				TimePeriod: strp("2023"),
				DataType:   strp("flood_risk"),
				Parameters: map[string]any{},
			},
			ResultSummary: "8 features",
			ResultCount:   8,
			DurationMs:    2310,
		},
		{
			Prompt: "Parks within 2km of the Old Quarter",
			Intent: model.IntentJSON{
				Location:   strp("Old Quarter, Hanoi"),
				DataType:   strp("parks"),
				Parameters: map[string]any{"radius_km": 2},
			},
			ResultSummary: "5 features",
			ResultCount:   5,
			DurationMs:    980,
		},
	}
}
