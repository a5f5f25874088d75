package router

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/pkg/logger"
)

// BatchTimeout is the hard ceiling on a batch Job; exceeding it is a
// failed job with reason "timeout". BatchBackend neither sends it in the
// dispatch inputs nor enforces it itself.
const BatchTimeout = 120 * time.Minute

// JobDispatcher is the external job-runner contract: a single dispatch
// call that must not block waiting for completion.
type JobDispatcher interface {
	Dispatch(ctx context.Context, workflowName string, inputs map[string]string) (runID string, err error)
	Cancel(ctx context.Context, runID string) error
}

// RunIDRecorder persists the opaque run id the dispatcher returns.
type RunIDRecorder interface {
	SetExternalRunID(ctx context.Context, jobID, runID string) error
}

// BatchBackend spawns external job runners; the Router may have
// unbounded batch runs in flight, bounded only by the runner's own quota.
type BatchBackend struct {
	dispatcher   JobDispatcher
	jobs         RunIDRecorder
	workflowName string
	logger       *logger.Logger
}

// NewBatchBackend wires a BatchBackend against its dispatcher and job
// store. workflowName is the named workflow passed to every dispatch call.
func NewBatchBackend(dispatcher JobDispatcher, jobs RunIDRecorder, workflowName string, log *logger.Logger) *BatchBackend {
	return &BatchBackend{dispatcher: dispatcher, jobs: jobs, workflowName: workflowName, logger: log}
}

// Enqueue dispatches the named workflow with a flat string-map of inputs
// and records the returned run id on the Job row.
func (b *BatchBackend) Enqueue(ctx context.Context, job *models.Job, data models.JobData) error {
	inputs := map[string]string{
		"repository_id":   strconv.FormatUint(data.RepositoryID, 10),
		"repository_name": data.RepositoryName,
		"job_id":          job.ID,
	}
	if data.TimeRangeDays > 0 {
		inputs["time_range_days"] = strconv.Itoa(data.TimeRangeDays)
	}
	if data.MaxItems > 0 {
		inputs["max_items"] = strconv.Itoa(data.MaxItems)
	}

	runID, err := b.dispatcher.Dispatch(ctx, b.workflowName, inputs)
	if err != nil {
		return fmt.Errorf("router: batch dispatch: %w", err)
	}

	if err := b.jobs.SetExternalRunID(ctx, job.ID, runID); err != nil {
		if b.logger != nil {
			b.logger.Error("router: failed to record external run id", "job_id", job.ID, "run_id", runID, "error", err)
		}
		return err
	}
	return nil
}

// Cancel forwards to the dispatcher using the Job's recorded run id;
// callers are expected to resolve runID from the Job row before calling.
func (b *BatchBackend) Cancel(ctx context.Context, runID string) error {
	return b.dispatcher.Cancel(ctx, runID)
}
