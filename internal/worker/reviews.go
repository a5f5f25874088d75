package worker

import (
	"context"

	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/pkg/logger"
)

// ReviewsWorker captures only a PR's reviews, skipping files and comments.
type ReviewsWorker struct {
	base
	forge ForgeClient
	store CaptureStore
}

// NewReviewsWorker wires a ReviewsWorker.
func NewReviewsWorker(forge ForgeClient, store CaptureStore, jobs JobStore, progress ProgressStore, gate RateLimitGate, log *logger.Logger) *ReviewsWorker {
	return &ReviewsWorker{
		base:  base{jobs: jobs, progress: progress, gate: gate, logger: log},
		forge: forge,
		store: store,
	}
}

// Run implements router.JobRunner. Reviews are keyed by github_id and
// pointed back to their PR via (repositoryID, prNumber), so this worker
// never needs to resolve the parent PR row's surrogate id first.
func (w *ReviewsWorker) Run(ctx context.Context, job *models.Job, data models.JobData) error {
	owner, repo := splitRepoFullName(data.RepositoryName)
	return w.runLoop(ctx, job, data.PRNumbers, func(ctx context.Context, prNumber int) error {
		reviews, err := w.forge.GetPRReviews(ctx, owner, repo, prNumber)
		if err != nil {
			return err
		}
		for _, r := range reviews {
			if err := w.store.UpsertReview(ctx, data.RepositoryID, prNumber, r); err != nil {
				return err
			}
		}
		return nil
	})
}
