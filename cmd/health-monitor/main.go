// Command health-monitor runs the long-lived process exposing the
// health/status/metrics HTTP surface: liveness, the Rate-Limit Governor's
// current report, and Prometheus gauges.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lei/hybrid-capture/pkg/orchestrator"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "configs/orchestrator.yaml"
	}

	o, err := orchestrator.NewFromEnv(configPath)
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return o.Start(ctx)
}
