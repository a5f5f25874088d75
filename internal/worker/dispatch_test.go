package worker

import (
	"context"
	"testing"

	"github.com/lei/hybrid-capture/internal/models"
)

type fakeRunner struct {
	calls int
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, job *models.Job, data models.JobData) error {
	f.calls++
	return f.err
}

func TestKindDispatcherRoutesByJobKind(t *testing.T) {
	details := &fakeRunner{}
	reviews := &fakeRunner{}
	d := NewKindDispatcher(map[models.JobKind]Runner{
		models.JobKindDetails: details,
		models.JobKindReviews: reviews,
	})

	if err := d.Run(context.Background(), &models.Job{Kind: models.JobKindReviews}, models.JobData{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reviews.calls != 1 || details.calls != 0 {
		t.Fatalf("expected only the reviews runner to be invoked, got details=%d reviews=%d", details.calls, reviews.calls)
	}
}

func TestKindDispatcherFailsFastOnUnknownKind(t *testing.T) {
	d := NewKindDispatcher(map[models.JobKind]Runner{})

	err := d.Run(context.Background(), &models.Job{Kind: models.JobKindFileChanges}, models.JobData{})
	if err == nil {
		t.Fatalf("expected an error for an unregistered job kind")
	}
}
