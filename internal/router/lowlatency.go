package router

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/pkg/logger"
)

// MaxLowLatencyItems bounds the number of items a single low-latency job
// may carry.
const MaxLowLatencyItems = 50

// MaxLowLatencyConcurrency bounds simultaneous jobs per process.
const MaxLowLatencyConcurrency = 10

// JobRunner executes one Job to completion against its item list; supplied
// by whichever Capture Worker matches the Job's kind.
type JobRunner interface {
	Run(ctx context.Context, job *models.Job, data models.JobData) error
}

// LowLatencyBackend is a cooperatively-scheduled worker pool: concurrent
// across Jobs (capped by a semaphore), sequential within a Job.
type LowLatencyBackend struct {
	sem    *semaphore.Weighted
	runner JobRunner
	logger *logger.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewLowLatencyBackend wires a worker pool bounded at
// MaxLowLatencyConcurrency simultaneous jobs.
func NewLowLatencyBackend(runner JobRunner, log *logger.Logger) *LowLatencyBackend {
	return &LowLatencyBackend{
		sem:     semaphore.NewWeighted(MaxLowLatencyConcurrency),
		runner:  runner,
		logger:  log,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Enqueue rejects jobs with too many items outright (no partial
// acceptance), then launches the job on a pool goroutine; it returns once
// the semaphore slot is acquired or the job is scheduled, not once the
// work completes.
func (b *LowLatencyBackend) Enqueue(ctx context.Context, job *models.Job, data models.JobData) error {
	if len(data.PRNumbers) > MaxLowLatencyItems {
		return fmt.Errorf("router: low-latency job exceeds item cap of %d", MaxLowLatencyItems)
	}

	if !b.sem.TryAcquire(1) {
		return fmt.Errorf("router: low-latency pool at capacity")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.cancels[job.ID] = cancel
	b.mu.Unlock()

	go func() {
		defer b.sem.Release(1)
		defer func() {
			b.mu.Lock()
			delete(b.cancels, job.ID)
			b.mu.Unlock()
			cancel()
		}()
		if err := b.runner.Run(runCtx, job, data); err != nil && b.logger != nil {
			b.logger.Error("router: low-latency job failed", "job_id", job.ID, "error", err)
		}
	}()
	return nil
}

// Cancel signals the runner's context; the runner is expected to finish
// the current item (to preserve row integrity) before observing
// cancellation and transitioning the job to failed/cancelled.
func (b *LowLatencyBackend) Cancel(ctx context.Context, jobID string) error {
	b.mu.Lock()
	cancel, ok := b.cancels[jobID]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	cancel()
	return nil
}
