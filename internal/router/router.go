// Package router implements the Hybrid Router: classifies incoming work,
// consults the Rollout Controller, creates a job row, and dispatches to
// one of two back-ends.
package router

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/pkg/logger"
)

// JobStore is the subset of store.JobStore the Router depends on.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
}

// RolloutGate is the subset of rollout.Controller the Router consults
// before dispatch.
type RolloutGate interface {
	IsAllowed(ctx context.Context, feature string, repositoryID uint64) (bool, error)
}

// RepositoryValidator confirms a repository reference is known before a
// job row is created.
type RepositoryValidator interface {
	Exists(ctx context.Context, repositoryID uint64) (bool, error)
}

// Router is the Hybrid Router.
type Router struct {
	jobs     JobStore
	gate     RolloutGate
	repos    RepositoryValidator
	feature  string
	backends map[models.Backend]Backend
	logger   *logger.Logger
}

// New wires a Router against its collaborators. feature is the rollout
// feature name gating the hybrid path (DefaultFeature in most deployments).
func New(jobs JobStore, gate RolloutGate, repos RepositoryValidator, feature string, lowLatency, batch Backend, log *logger.Logger) *Router {
	return &Router{
		jobs:    jobs,
		gate:    gate,
		repos:   repos,
		feature: feature,
		backends: map[models.Backend]Backend{
			models.BackendLowLatency: lowLatency,
			models.BackendBatch:      batch,
		},
		logger: log,
	}
}

// Enqueue classifies data, consults the rollout gate, creates the job row,
// and dispatches to the chosen back-end with one bounded retry on refusal.
func (r *Router) Enqueue(ctx context.Context, kind models.JobKind, data models.JobData) (*models.Job, error) {
	if r.repos != nil {
		known, err := r.repos.Exists(ctx, data.RepositoryID)
		if err != nil {
			return nil, err
		}
		if !known {
			return nil, ErrInvalidArgument
		}
	}

	backend := Classify(data)

	if r.gate != nil {
		allowed, err := r.gate.IsAllowed(ctx, r.feature, data.RepositoryID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			// The rollout gate only decides whether the hybrid path is
			// active; when disabled every request falls back to the
			// low-latency back-end, which always exists.
			if r.backends[models.BackendLowLatency] == nil {
				return nil, ErrRolloutGated
			}
			backend = models.BackendLowLatency
		}
	}

	impl := r.backends[backend]
	if impl == nil {
		return nil, ErrBackendUnavailable
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:             uuid.NewString(),
		Kind:           kind,
		RepositoryID:   data.RepositoryID,
		RepositoryName: data.RepositoryName,
		Backend:        backend,
		Status:         models.JobStatusPending,
		TimeRangeDays:  data.TimeRangeDays,
		CreatedAt:      now,
	}
	if err := r.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := r.dispatchWithRetry(ctx, impl, job, data); err != nil {
		return nil, err
	}
	return job, nil
}

// Cancel forwards to the back-end that owns jobID.
func (r *Router) Cancel(ctx context.Context, backend models.Backend, jobID string) error {
	impl := r.backends[backend]
	if impl == nil {
		return ErrBackendUnavailable
	}
	return impl.Cancel(ctx, jobID)
}

// dispatchWithRetry retries a refused dispatch once against the same
// back-end after a short bounded wait, then surfaces BackendUnavailable.
// The Router never cross-dispatches between back-ends.
func (r *Router) dispatchWithRetry(ctx context.Context, impl Backend, job *models.Job, data models.JobData) error {
	err := impl.Enqueue(ctx, job, data)
	if err == nil {
		return nil
	}
	if r.logger != nil {
		r.logger.Warn("router: dispatch refused, retrying once", "job_id", job.ID, "backend", job.Backend, "error", err)
	}

	select {
	case <-time.After(250 * time.Millisecond):
	case <-ctx.Done():
		return ErrBackendUnavailable
	}

	if err := impl.Enqueue(ctx, job, data); err != nil {
		if r.logger != nil {
			r.logger.Error("router: dispatch refused after retry", "job_id", job.ID, "backend", job.Backend, "error", err)
		}
		return ErrBackendUnavailable
	}
	return nil
}
