package worker

import (
	"context"
	"fmt"

	"github.com/lei/hybrid-capture/internal/models"
)

// Runner is the subset of router.JobRunner a single Capture Worker variant
// satisfies; declared locally to avoid worker depending on router.
type Runner interface {
	Run(ctx context.Context, job *models.Job, data models.JobData) error
}

// KindDispatcher routes a Job to the Capture Worker variant matching its
// Kind. It implements router.JobRunner itself, so both Router back-ends can
// hold a single runner regardless of how many job kinds exist.
type KindDispatcher struct {
	runners map[models.JobKind]Runner
}

// NewKindDispatcher wires a dispatcher against one runner per job kind.
// Every models.JobKind must have an entry; a job whose kind has no entry
// fails fast rather than silently no-op'ing.
func NewKindDispatcher(runners map[models.JobKind]Runner) *KindDispatcher {
	return &KindDispatcher{runners: runners}
}

// Run implements router.JobRunner by dispatching on job.Kind.
func (d *KindDispatcher) Run(ctx context.Context, job *models.Job, data models.JobData) error {
	runner, ok := d.runners[job.Kind]
	if !ok {
		return fmt.Errorf("worker: no runner registered for job kind %q", job.Kind)
	}
	return runner.Run(ctx, job, data)
}
