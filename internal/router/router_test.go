package router

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lei/hybrid-capture/internal/models"
)

type fakeJobStore struct {
	mu   sync.Mutex
	jobs []*models.Job
}

func (s *fakeJobStore) Create(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

type fakeGate struct{ allowed bool }

func (g fakeGate) IsAllowed(ctx context.Context, feature string, repositoryID uint64) (bool, error) {
	return g.allowed, nil
}

type fakeValidator struct{ known bool }

func (v fakeValidator) Exists(ctx context.Context, repositoryID uint64) (bool, error) {
	return v.known, nil
}

type fakeBackend struct {
	mu        sync.Mutex
	calls     int
	failFirst bool
	enqueued  []*models.Job
}

func (b *fakeBackend) Enqueue(ctx context.Context, job *models.Job, data models.JobData) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.failFirst && b.calls == 1 {
		return errors.New("refused")
	}
	b.enqueued = append(b.enqueued, job)
	return nil
}

func (b *fakeBackend) Cancel(ctx context.Context, jobID string) error { return nil }

func TestEnqueueRejectsUnknownRepository(t *testing.T) {
	r := New(&fakeJobStore{}, fakeGate{allowed: true}, fakeValidator{known: false}, "f", &fakeBackend{}, &fakeBackend{}, nil)
	_, err := r.Enqueue(context.Background(), models.JobKindDetails, models.JobData{RepositoryID: 1})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestEnqueueClassifiesAndDispatches(t *testing.T) {
	low := &fakeBackend{}
	batch := &fakeBackend{}
	r := New(&fakeJobStore{}, fakeGate{allowed: true}, fakeValidator{known: true}, "f", low, batch, nil)

	job, err := r.Enqueue(context.Background(), models.JobKindDetails, models.JobData{
		RepositoryID: 1, TriggerSource: models.TriggerManual,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Backend != models.BackendLowLatency {
		t.Fatalf("expected low-latency dispatch, got %v", job.Backend)
	}
	if len(low.enqueued) != 1 {
		t.Fatalf("expected low-latency backend to receive the job")
	}
	if len(batch.enqueued) != 0 {
		t.Fatalf("expected batch backend untouched")
	}
}

func TestEnqueueFallsBackToLowLatencyWhenGateDisallows(t *testing.T) {
	low := &fakeBackend{}
	batch := &fakeBackend{}
	r := New(&fakeJobStore{}, fakeGate{allowed: false}, fakeValidator{known: true}, "f", low, batch, nil)

	job, err := r.Enqueue(context.Background(), models.JobKindDetails, models.JobData{
		RepositoryID: 1, TriggerSource: models.TriggerScheduled, TimeRangeDays: 30,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Backend != models.BackendLowLatency {
		t.Fatalf("expected gate-disallowed request to fall back to low-latency, got %v", job.Backend)
	}
}

func TestEnqueueRetriesOnceThenSucceeds(t *testing.T) {
	low := &fakeBackend{failFirst: true}
	r := New(&fakeJobStore{}, fakeGate{allowed: true}, fakeValidator{known: true}, "f", low, &fakeBackend{}, nil)

	_, err := r.Enqueue(context.Background(), models.JobKindDetails, models.JobData{
		RepositoryID: 1, TriggerSource: models.TriggerManual,
	})
	if err != nil {
		t.Fatalf("expected success after one retry, got %v", err)
	}
	if low.calls != 2 {
		t.Fatalf("expected exactly 2 dispatch attempts, got %d", low.calls)
	}
}

func TestEnqueueFailsAfterRetryExhausted(t *testing.T) {
	low := &fakeBackendAlwaysFails{}
	r := New(&fakeJobStore{}, fakeGate{allowed: true}, fakeValidator{known: true}, "f", low, &fakeBackend{}, nil)

	_, err := r.Enqueue(context.Background(), models.JobKindDetails, models.JobData{
		RepositoryID: 1, TriggerSource: models.TriggerManual,
	})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

type fakeBackendAlwaysFails struct{}

func (b *fakeBackendAlwaysFails) Enqueue(ctx context.Context, job *models.Job, data models.JobData) error {
	return errors.New("refused")
}
func (b *fakeBackendAlwaysFails) Cancel(ctx context.Context, jobID string) error { return nil }
