package worker

import (
	"context"

	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/pkg/logger"
)

// CommentsWorker captures both issue comments and review comments for a PR.
type CommentsWorker struct {
	base
	forge ForgeClient
	store CaptureStore
}

// NewCommentsWorker wires a CommentsWorker.
func NewCommentsWorker(forge ForgeClient, store CaptureStore, jobs JobStore, progress ProgressStore, gate RateLimitGate, log *logger.Logger) *CommentsWorker {
	return &CommentsWorker{
		base:  base{jobs: jobs, progress: progress, gate: gate, logger: log},
		forge: forge,
		store: store,
	}
}

// Run implements router.JobRunner.
func (w *CommentsWorker) Run(ctx context.Context, job *models.Job, data models.JobData) error {
	owner, repo := splitRepoFullName(data.RepositoryName)
	return w.runLoop(ctx, job, data.PRNumbers, func(ctx context.Context, prNumber int) error {
		issueComments, reviewComments, err := w.forge.GetPRComments(ctx, owner, repo, prNumber)
		if err != nil {
			return err
		}
		for _, c := range issueComments {
			if err := w.store.UpsertComment(ctx, data.RepositoryID, prNumber, "issue", c); err != nil {
				return err
			}
		}
		for _, c := range reviewComments {
			if err := w.store.UpsertComment(ctx, data.RepositoryID, prNumber, "review", c); err != nil {
				return err
			}
		}
		return nil
	})
}
