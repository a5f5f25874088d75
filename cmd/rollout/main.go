// Command rollout is the operator CLI for the Rollout Controller: query,
// update, stop, resume and history, each scoped to a feature that defaults
// to the hybrid progressive capture feature.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/lei/hybrid-capture/internal/config"
	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/internal/rollout"
	"github.com/lei/hybrid-capture/internal/store"
	"github.com/lei/hybrid-capture/pkg/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: rollout <query|update|stop|resume|history> [args...]")
	}

	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "configs/orchestrator.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	dsn, err := cfg.Store.DSN()
	if err != nil {
		return err
	}
	db, err := store.Connect(dsn)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	appLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	captureStore := store.NewCaptureStore(db)
	rolloutStore := store.NewRolloutStore(db)
	controller := rollout.New(rolloutStore, captureStore, appLogger)

	ctx := context.Background()
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "query":
		feature := featureArg(rest, 0)
		got, err := controller.Query(ctx, feature)
		if err != nil {
			return err
		}
		printConfiguration(got)
		return nil

	case "update":
		if len(rest) == 0 {
			return fmt.Errorf("usage: rollout update <percentage> [feature]")
		}
		pct, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("invalid percentage %q: %w", rest[0], err)
		}
		feature := featureArg(rest, 1)
		got, err := controller.Update(ctx, feature, pct, "operator update", "cli")
		if err != nil {
			return err
		}
		printConfiguration(got)
		return nil

	case "stop":
		feature := featureArg(rest, 0)
		got, err := controller.Stop(ctx, feature, "operator stop", "cli")
		if err != nil {
			return err
		}
		printConfiguration(got)
		return nil

	case "resume":
		feature := featureArg(rest, 0)
		got, err := controller.Resume(ctx, feature, "operator resume", "cli")
		if err != nil {
			return err
		}
		printConfiguration(got)
		return nil

	case "history":
		feature := featureArg(rest, 0)
		limit := 20
		if len(rest) > 1 {
			n, err := strconv.Atoi(rest[1])
			if err != nil {
				return fmt.Errorf("invalid limit %q: %w", rest[1], err)
			}
			limit = n
		}
		entries, err := controller.History(ctx, feature, limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s  %-10s %3d -> %3d  %-20s  %q\n",
				e.CreatedAt.Format("2006-01-02T15:04:05Z"), e.Action,
				e.PreviousPercentage, e.NewPercentage, e.TriggeredBy, e.Reason)
		}
		return nil

	default:
		return fmt.Errorf("unknown subcommand %q", cmd)
	}
}

// featureArg returns args[idx] if present, otherwise the default feature.
func featureArg(args []string, idx int) string {
	if idx < len(args) {
		return args[idx]
	}
	return rollout.DefaultFeature
}

func printConfiguration(cfg *models.RolloutConfiguration) {
	fmt.Printf("feature:         %s\n", cfg.Feature)
	fmt.Printf("strategy:        %s\n", cfg.Strategy)
	fmt.Printf("percentage:      %d\n", cfg.Percentage)
	fmt.Printf("effective:       %d\n", cfg.EffectivePercentage())
	fmt.Printf("active:          %t\n", cfg.IsActive)
	fmt.Printf("emergency_stop:  %t\n", cfg.EmergencyStop)
	fmt.Printf("updated_at:      %s\n", cfg.UpdatedAt.Format("2006-01-02T15:04:05Z"))
}
