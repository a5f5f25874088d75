package worker

import (
	"context"
	"time"

	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/pkg/logger"
)

// ForgeClient is the subset of forgeclient.ForgeClient a worker depends on.
type ForgeClient interface {
	GetPRCompleteData(ctx context.Context, owner, repo string, prNumber int) (*models.PRCompleteData, error)
	GetPRReviews(ctx context.Context, owner, repo string, prNumber int) ([]models.Review, error)
	GetPRComments(ctx context.Context, owner, repo string, prNumber int) ([]models.Comment, []models.Comment, error)
	GetRecentPRs(ctx context.Context, owner, repo string, since time.Time, limit int) ([]models.PullRequest, error)
}

// DetailsWorker captures a PR's full normalised record: metadata, files,
// reviews and both comment kinds in one pass.
type DetailsWorker struct {
	base
	forge ForgeClient
	store CaptureStore
}

// NewDetailsWorker wires a DetailsWorker.
func NewDetailsWorker(forge ForgeClient, store CaptureStore, jobs JobStore, progress ProgressStore, gate RateLimitGate, log *logger.Logger) *DetailsWorker {
	return &DetailsWorker{
		base:  base{jobs: jobs, progress: progress, gate: gate, logger: log},
		forge: forge,
		store: store,
	}
}

// Run implements router.JobRunner.
func (w *DetailsWorker) Run(ctx context.Context, job *models.Job, data models.JobData) error {
	owner, repo := splitRepoFullName(data.RepositoryName)
	return w.runLoop(ctx, job, data.PRNumbers, func(ctx context.Context, prNumber int) error {
		complete, err := w.forge.GetPRCompleteData(ctx, owner, repo, prNumber)
		if err != nil {
			return err
		}
		if err := w.store.UpsertPullRequest(ctx, data.RepositoryID, complete.PullRequest); err != nil {
			return err
		}
		for _, r := range complete.Reviews {
			if err := w.store.UpsertReview(ctx, data.RepositoryID, prNumber, r); err != nil {
				return err
			}
		}
		for _, c := range complete.IssueComments {
			if err := w.store.UpsertComment(ctx, data.RepositoryID, prNumber, "issue", c); err != nil {
				return err
			}
		}
		for _, c := range complete.ReviewComments {
			if err := w.store.UpsertComment(ctx, data.RepositoryID, prNumber, "review", c); err != nil {
				return err
			}
		}
		for _, f := range complete.Files {
			if err := w.store.UpsertFileChange(ctx, data.RepositoryID, prNumber, f); err != nil {
				return err
			}
		}
		return nil
	})
}
