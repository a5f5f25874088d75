package worker

import (
	"context"

	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/pkg/logger"
)

// FileChangesWorker captures only the changed-files list for a PR. The
// forge contract has no dedicated files operation (§4.2 lists only
// getPRCompleteData/getPRReviews/getPRComments/getRecentPRs), so this
// worker uses the compound-or-fallback path and keeps just the files slice.
type FileChangesWorker struct {
	base
	forge ForgeClient
	store CaptureStore
}

// NewFileChangesWorker wires a FileChangesWorker.
func NewFileChangesWorker(forge ForgeClient, store CaptureStore, jobs JobStore, progress ProgressStore, gate RateLimitGate, log *logger.Logger) *FileChangesWorker {
	return &FileChangesWorker{
		base:  base{jobs: jobs, progress: progress, gate: gate, logger: log},
		forge: forge,
		store: store,
	}
}

// Run implements router.JobRunner.
func (w *FileChangesWorker) Run(ctx context.Context, job *models.Job, data models.JobData) error {
	owner, repo := splitRepoFullName(data.RepositoryName)
	return w.runLoop(ctx, job, data.PRNumbers, func(ctx context.Context, prNumber int) error {
		complete, err := w.forge.GetPRCompleteData(ctx, owner, repo, prNumber)
		if err != nil {
			return err
		}
		for _, f := range complete.Files {
			if err := w.store.UpsertFileChange(ctx, data.RepositoryID, prNumber, f); err != nil {
				return err
			}
		}
		return nil
	})
}
