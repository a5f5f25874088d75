// Package orchestrator wires the Hybrid Router, Hybrid Forge Client,
// Rate-Limit Governor and Rollout Controller into a single embeddable
// unit.
package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/lei/hybrid-capture/internal/api"
	"github.com/lei/hybrid-capture/internal/config"
	"github.com/lei/hybrid-capture/internal/dispatcher"
	"github.com/lei/hybrid-capture/internal/forgeclient"
	"github.com/lei/hybrid-capture/internal/metrics"
	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/internal/ratelimit"
	"github.com/lei/hybrid-capture/internal/rollout"
	"github.com/lei/hybrid-capture/internal/router"
	"github.com/lei/hybrid-capture/internal/store"
	"github.com/lei/hybrid-capture/internal/worker"
	"github.com/lei/hybrid-capture/pkg/logger"
)

// DispatcherConfig names the GitHub Actions workflow the batch back-end
// hands long-running historical-sync jobs to.
type DispatcherConfig = dispatcher.Config

// workerProgressStoreAdapter satisfies worker.ProgressStore by converting
// worker.ErrorEntry to store.ErrorEntry for the underlying store.
type workerProgressStoreAdapter struct {
	inner *store.ProgressStore
}

func (a *workerProgressStoreAdapter) Init(ctx context.Context, jobID string, total int) error {
	return a.inner.Init(ctx, jobID, total)
}

func (a *workerProgressStoreAdapter) RecordSuccess(ctx context.Context, jobID, currentItem string) error {
	return a.inner.RecordSuccess(ctx, jobID, currentItem)
}

func (a *workerProgressStoreAdapter) RecordFailure(ctx context.Context, jobID string, entry worker.ErrorEntry) error {
	return a.inner.RecordFailure(ctx, jobID, store.ErrorEntry{
		ItemID:    entry.ItemID,
		Message:   entry.Message,
		Timestamp: entry.Timestamp,
	})
}

// Orchestrator is the fully wired capture system: the Hybrid Router,
// Hybrid Forge Client, Rate-Limit Governor and Rollout Controller, plus
// the health/status/metrics HTTP surface.
type Orchestrator struct {
	config   *config.Config
	db       *gorm.DB
	logger   *logger.Logger
	governor *ratelimit.Governor
	forge    *forgeclient.HybridClient
	rollout  *rollout.Controller
	router   *router.Router
	jobs     *store.JobStore
	dispatch *worker.KindDispatcher
	server   *http.Server
}

// New wires an Orchestrator from a loaded Config. batchCfg may be the zero
// value: a deployment with no external job runner configured simply never
// routes work to the batch back-end (every Job classifies low-latency, or
// a batch-classified Enqueue call fails with ErrBackendUnavailable).
func New(cfg *config.Config, batchCfg DispatcherConfig) (*Orchestrator, error) {
	appLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	dsn, err := cfg.Store.DSN()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	db, err := store.Connect(dsn)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	governor := ratelimit.New(appLogger)
	governor.SetThresholds(ratelimit.Thresholds{
		Warning:    cfg.RateLimit.Warning,
		Critical:   cfg.RateLimit.Critical,
		Efficiency: cfg.RateLimit.Efficiency,
	})

	transport := forgeclient.NewGitHubTransport(cfg.Forge.Token, appLogger)
	forge := forgeclient.New(transport, governor, appLogger)
	forge.SetCompoundEnabled(cfg.Forge.UseCompound)

	captureStore := store.NewCaptureStore(db)
	jobStore := store.NewJobStore(db)
	progressStore := &workerProgressStoreAdapter{inner: store.NewProgressStore(db)}
	rolloutStore := store.NewRolloutStore(db)

	rolloutController := rollout.New(rolloutStore, captureStore, appLogger)

	runners := map[models.JobKind]worker.Runner{
		models.JobKindDetails:        worker.NewDetailsWorker(forge, captureStore, jobStore, progressStore, governor, appLogger),
		models.JobKindReviews:        worker.NewReviewsWorker(forge, captureStore, jobStore, progressStore, governor, appLogger),
		models.JobKindComments:       worker.NewCommentsWorker(forge, captureStore, jobStore, progressStore, governor, appLogger),
		models.JobKindFileChanges:    worker.NewFileChangesWorker(forge, captureStore, jobStore, progressStore, governor, appLogger),
		models.JobKindHistoricalSync: worker.NewHistoricalSyncWorker(forge, captureStore, jobStore, progressStore, governor, appLogger),
	}
	dispatch := worker.NewKindDispatcher(runners)

	lowLatency := router.NewLowLatencyBackend(dispatch, appLogger)

	// batch stays a nil router.Backend interface (not a typed-nil
	// *BatchBackend) when no dispatch target is configured, so router.New's
	// `impl == nil` check correctly reports the back-end unavailable rather
	// than calling through a nil receiver.
	var batch router.Backend
	if batchCfg.Owner != "" && batchCfg.Repo != "" {
		actionsClient := dispatcher.NewClient(batchCfg, appLogger)
		batch = router.NewBatchBackend(actionsClient, jobStore, batchCfg.WorkflowFile, appLogger)
	}

	r := router.New(jobStore, rolloutController, captureStore, rollout.DefaultFeature, lowLatency, batch, appLogger)

	metrics.Register(prometheus.DefaultRegisterer, governor, forge)

	handlers := api.NewHandlers(governor, captureStore)
	loggingMiddleware := api.NewLoggingMiddleware(appLogger)
	mux := api.NewRouter(handlers, loggingMiddleware)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Orchestrator{
		config:   cfg,
		db:       db,
		logger:   appLogger,
		governor: governor,
		forge:    forge,
		rollout:  rolloutController,
		router:   r,
		jobs:     jobStore,
		dispatch: dispatch,
		server:   srv,
	}, nil
}

// LoadConfig loads configuration from path (and the environment) and
// derives the DispatcherConfig New needs alongside it, so callers that need
// the raw Config before wiring an Orchestrator (cmd/capture-worker builds
// its own batch-invocation logger from cfg.Logging) don't have to load it
// twice.
func LoadConfig(configPath string) (*config.Config, DispatcherConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, DispatcherConfig{}, fmt.Errorf("orchestrator: %w", err)
	}

	batchCfg := DispatcherConfig{
		Owner:          cfg.Dispatch.Owner,
		Repo:           cfg.Dispatch.Repo,
		WorkflowFile:   cfg.Dispatch.WorkflowFile,
		Ref:            cfg.Dispatch.Ref,
		InstallationID: cfg.Dispatch.InstallationID,
		AppJWT:         cfg.Dispatch.AppJWT,
		Token:          cfg.Dispatch.Token,
	}

	return cfg, batchCfg, nil
}

// NewFromEnv loads configuration from path (and the environment) and wires
// an Orchestrator ready to run.
func NewFromEnv(configPath string) (*Orchestrator, error) {
	cfg, batchCfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return New(cfg, batchCfg)
}

// Router returns the wired Hybrid Router.
func (o *Orchestrator) Router() *router.Router { return o.router }

// Rollout returns the wired Rollout Controller.
func (o *Orchestrator) Rollout() *rollout.Controller { return o.rollout }

// Governor returns the wired Rate-Limit Governor, for reading reports
// without going through HTTP.
func (o *Orchestrator) Governor() *ratelimit.Governor { return o.governor }

// RunJob loads the Job row created by a prior Router.Enqueue call and
// drives it to completion against the Capture Worker matching its Kind.
// This is what cmd/capture-worker calls, so the batch back-end's dispatched
// GitHub Actions workflow reaches it as the job's entrypoint; the
// low-latency back-end does not call RunJob but runs the same Capture
// Worker dispatcher directly in-process.
func (o *Orchestrator) RunJob(ctx context.Context, jobID string, data models.JobData) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("orchestrator: load job %s: %w", jobID, err)
	}
	return o.dispatch.Run(ctx, job, data)
}

// Start runs the health/status/metrics HTTP server until ctx is cancelled,
// then shuts it down gracefully.
func (o *Orchestrator) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		o.logger.Info("starting http server", "port", o.config.Server.Port)
		serverErrors <- o.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("orchestrator: server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		o.logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := o.server.Shutdown(shutdownCtx); err != nil {
			o.server.Close()
			return fmt.Errorf("orchestrator: graceful shutdown failed: %w", err)
		}
		o.logger.Info("server stopped gracefully")
		return nil
	}
}

// Close releases the underlying database connection.
func (o *Orchestrator) Close() error {
	sqlDB, err := o.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
