package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/lei/hybrid-capture/internal/forgeclient"
	"github.com/lei/hybrid-capture/internal/models"
)

type fakeJobStore struct {
	mu         sync.Mutex
	processing []string
	terminal   map[string]models.JobStatus
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{terminal: map[string]models.JobStatus{}}
}

func (s *fakeJobStore) MarkProcessing(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing = append(s.processing, jobID)
	return nil
}

func (s *fakeJobStore) MarkTerminal(ctx context.Context, jobID string, status models.JobStatus, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminal[jobID] = status
	return nil
}

type fakeProgressStore struct {
	mu        sync.Mutex
	total     int
	processed int
	failed    int
	errors    []ErrorEntry
}

func (s *fakeProgressStore) Init(ctx context.Context, jobID string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = total
	return nil
}

func (s *fakeProgressStore) RecordSuccess(ctx context.Context, jobID, currentItem string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	return nil
}

func (s *fakeProgressStore) RecordFailure(ctx context.Context, jobID string, entry ErrorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
	s.errors = append(s.errors, entry)
	return nil
}

type fakeGate struct{ resetAt time.Time }

func (g fakeGate) IsCritical() bool     { return false }
func (g fakeGate) ResetHint() time.Time { return g.resetAt }

func TestNotFoundSkipsWithoutCountingTowardFailureCeiling(t *testing.T) {
	jobs := newFakeJobStore()
	progress := &fakeProgressStore{}
	b := &base{jobs: jobs, progress: progress}

	job := &models.Job{ID: "job-1"}
	items := []int{1, 2, 3}
	calls := 0
	err := b.runLoop(context.Background(), job, items, func(ctx context.Context, prNumber int) error {
		calls++
		return forgeclient.ErrNotFound
	})
	if err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected all 3 items attempted, got %d calls", calls)
	}
	if progress.failed != 3 {
		t.Fatalf("expected 3 recorded failures, got %d", progress.failed)
	}
	if jobs.terminal["job-1"] != models.JobStatusCompleted {
		t.Fatalf("expected job to complete despite all-NotFound, got %v", jobs.terminal["job-1"])
	}
}

func TestTransportErrorRetriesThenSucceeds(t *testing.T) {
	jobs := newFakeJobStore()
	progress := &fakeProgressStore{}
	b := &base{jobs: jobs, progress: progress}

	job := &models.Job{ID: "job-2"}
	attempt := 0
	start := time.Now()
	err := b.runLoop(context.Background(), job, []int{1}, func(ctx context.Context, prNumber int) error {
		attempt++
		if attempt < 2 {
			return &forgeclient.ErrTransport{Err: errors.New("timeout")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if attempt != 2 {
		t.Fatalf("expected 2 attempts (1 retry), got %d", attempt)
	}
	if time.Since(start) < time.Second {
		t.Fatalf("expected at least the 1s back-off delay to elapse")
	}
	if progress.processed != 1 {
		t.Fatalf("expected item to record success after retry, got processed=%d", progress.processed)
	}
}

func TestStoreConflictTreatedAsSuccess(t *testing.T) {
	jobs := newFakeJobStore()
	progress := &fakeProgressStore{}
	b := &base{jobs: jobs, progress: progress}

	job := &models.Job{ID: "job-3"}
	err := b.runLoop(context.Background(), job, []int{1}, func(ctx context.Context, prNumber int) error {
		return gorm.ErrDuplicatedKey
	})
	if err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if progress.processed != 1 || progress.failed != 0 {
		t.Fatalf("expected StoreConflict to count as success, got processed=%d failed=%d", progress.processed, progress.failed)
	}
}

func TestConsecutiveFailuresAbortJob(t *testing.T) {
	jobs := newFakeJobStore()
	progress := &fakeProgressStore{}
	b := &base{jobs: jobs, progress: progress}

	items := make([]int, 20)
	for i := range items {
		items[i] = i + 1
	}

	job := &models.Job{ID: "job-4"}
	err := b.runLoop(context.Background(), job, items, func(ctx context.Context, prNumber int) error {
		return errors.New("persistent store error")
	})
	if err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if jobs.terminal["job-4"] != models.JobStatusFailed {
		t.Fatalf("expected job to abort as failed after 10 consecutive failures, got %v", jobs.terminal["job-4"])
	}
	if progress.failed != maxConsecutiveFailures {
		t.Fatalf("expected exactly %d recorded failures before abort, got %d", maxConsecutiveFailures, progress.failed)
	}
}

func TestRateExhaustedSleepsThenRetriesOnce(t *testing.T) {
	jobs := newFakeJobStore()
	progress := &fakeProgressStore{}
	gate := fakeGate{resetAt: time.Now().Add(50 * time.Millisecond)}
	b := &base{jobs: jobs, progress: progress, gate: gate}

	job := &models.Job{ID: "job-5"}
	attempt := 0
	err := b.runLoop(context.Background(), job, []int{1}, func(ctx context.Context, prNumber int) error {
		attempt++
		if attempt == 1 {
			return forgeclient.ErrRateExhausted
		}
		return nil
	})
	if err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if attempt != 2 {
		t.Fatalf("expected exactly one retry after RateExhausted, got %d attempts", attempt)
	}
	if progress.processed != 1 {
		t.Fatalf("expected item to succeed on retry, got processed=%d", progress.processed)
	}
}
