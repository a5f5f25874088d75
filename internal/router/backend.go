package router

import (
	"context"

	"github.com/lei/hybrid-capture/internal/models"
)

// Backend is the capability both back-ends implement. Enqueue must return
// once the back-end has accepted dispatch, not after the work completes.
type Backend interface {
	Enqueue(ctx context.Context, job *models.Job, data models.JobData) error
	Cancel(ctx context.Context, jobID string) error
}
