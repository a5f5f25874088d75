package worker

import (
	"context"
	"time"

	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/pkg/logger"
)

// HistoricalSyncWorker discovers recent PRs over a time range (bounded by
// maxItems) and captures each one's full record. It is the worker the
// batch back-end most commonly dispatches, since historical syncs are
// typically scheduled and span more than 10 PRs.
type HistoricalSyncWorker struct {
	base
	forge ForgeClient
	store CaptureStore
}

// NewHistoricalSyncWorker wires a HistoricalSyncWorker.
func NewHistoricalSyncWorker(forge ForgeClient, store CaptureStore, jobs JobStore, progress ProgressStore, gate RateLimitGate, log *logger.Logger) *HistoricalSyncWorker {
	return &HistoricalSyncWorker{
		base:  base{jobs: jobs, progress: progress, gate: gate, logger: log},
		forge: forge,
		store: store,
	}
}

// Run implements router.JobRunner. An empty PRNumbers with a non-empty
// TimeRangeDays fetches work from the store, not from the forge directly:
// this worker only re-captures PRs already known to the store, it does not
// discover brand-new ones by polling the forge.
func (w *HistoricalSyncWorker) Run(ctx context.Context, job *models.Job, data models.JobData) error {
	owner, repo := splitRepoFullName(data.RepositoryName)

	items := data.PRNumbers
	if len(items) == 0 {
		days := data.TimeRangeDays
		if days <= 0 {
			days = 1
		}
		since := time.Now().UTC().AddDate(0, 0, -days)
		numbers, err := w.store.RecentPullRequestNumbers(ctx, data.RepositoryID, since)
		if err != nil {
			return err
		}
		limit := data.MaxItems
		if limit > 0 && len(numbers) > limit {
			numbers = numbers[:limit]
		}
		items = numbers
	}

	return w.runLoop(ctx, job, items, func(ctx context.Context, prNumber int) error {
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
