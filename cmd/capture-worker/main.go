// Command capture-worker runs a single Job to completion: it loads the Job
// row a prior Router.Enqueue call created and drives it through the
// Capture Worker matching JOB_KIND. The low-latency back-end invokes this
// logic in-process; the batch back-end's dispatched GitHub Actions
// workflow invokes this binary as the job's entrypoint.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lei/hybrid-capture/internal/config"
	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/pkg/logger"
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

	cfg, batchCfg, err := orchestrator.LoadConfig(configPath)
	if err != nil {
		return err
	}

	// This binary is invoked once per dispatched job, not held open as a
	// request-scoped server; NewBatchLogger's sampling core (json format)
	// keeps log volume bounded across a historical-sync run touching
	// thousands of items, which the request-scoped Logger isn't built for.
	batchLog, err := logger.NewBatchLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer batchLog.Sync()

	params, err := config.LoadInvocationParams()
	if err != nil {
		return err
	}
	batchLog.Infow("capture-worker starting", "job_id", params.JobID, "job_kind", params.JobKind)

	o, err := orchestrator.New(cfg, batchCfg)
	if err != nil {
		return err
	}
	defer o.Close()

	triggerSource := models.TriggerScheduled
	if params.TriggerSource != "" {
		triggerSource = params.TriggerSource
	}

	data := models.JobData{
		RepositoryID:   params.RepositoryID,
		RepositoryName: params.RepositoryName,
		PRNumbers:      params.PRNumbers,
		TimeRangeDays:  params.TimeRangeDays,
		MaxItems:       params.MaxItems,
		TriggerSource:  triggerSource,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := o.RunJob(ctx, params.JobID, data); err != nil {
		batchLog.Errorw("capture-worker failed", "job_id", params.JobID, "error", err)
		return err
	}
	batchLog.Infow("capture-worker completed", "job_id", params.JobID)
	return nil
}
