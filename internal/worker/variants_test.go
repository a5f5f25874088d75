package worker

import (
	"context"
	"testing"
	"time"

	"github.com/lei/hybrid-capture/internal/models"
)

type fakeForge struct {
	complete       map[int]*models.PRCompleteData
	reviews        map[int][]models.Review
	issueComments  map[int][]models.Comment
	reviewComments map[int][]models.Comment
	recent         []models.PullRequest
}

func (f *fakeForge) GetPRCompleteData(ctx context.Context, owner, repo string, prNumber int) (*models.PRCompleteData, error) {
	return f.complete[prNumber], nil
}

func (f *fakeForge) GetPRReviews(ctx context.Context, owner, repo string, prNumber int) ([]models.Review, error) {
	return f.reviews[prNumber], nil
}

func (f *fakeForge) GetPRComments(ctx context.Context, owner, repo string, prNumber int) ([]models.Comment, []models.Comment, error) {
	return f.issueComments[prNumber], f.reviewComments[prNumber], nil
}

func (f *fakeForge) GetRecentPRs(ctx context.Context, owner, repo string, since time.Time, limit int) ([]models.PullRequest, error) {
	return f.recent, nil
}

type fakeCaptureStore struct {
	prs       map[int]models.PullRequest
	reviews   map[int][]models.Review
	comments  map[int][]models.Comment
	files     map[int][]models.FileChange
	recentPRs []int
}

func newFakeCaptureStore() *fakeCaptureStore {
	return &fakeCaptureStore{
		prs:      map[int]models.PullRequest{},
		reviews:  map[int][]models.Review{},
		comments: map[int][]models.Comment{},
		files:    map[int][]models.FileChange{},
	}
}

func (s *fakeCaptureStore) UpsertRepository(ctx context.Context, repo models.Repository) error {
	return nil
}

func (s *fakeCaptureStore) UpsertPullRequest(ctx context.Context, repositoryID uint64, pr models.PullRequest) error {
	s.prs[pr.Number] = pr
	return nil
}

func (s *fakeCaptureStore) UpsertReview(ctx context.Context, repositoryID uint64, prNumber int, review models.Review) error {
	s.reviews[prNumber] = append(s.reviews[prNumber], review)
	return nil
}

func (s *fakeCaptureStore) UpsertComment(ctx context.Context, repositoryID uint64, prNumber int, kind string, c models.Comment) error {
	s.comments[prNumber] = append(s.comments[prNumber], c)
	return nil
}

func (s *fakeCaptureStore) UpsertFileChange(ctx context.Context, repositoryID uint64, prNumber int, f models.FileChange) error {
	s.files[prNumber] = append(s.files[prNumber], f)
	return nil
}

func (s *fakeCaptureStore) RecentPullRequestNumbers(ctx context.Context, repositoryID uint64, since time.Time) ([]int, error) {
	return s.recentPRs, nil
}

func TestDetailsWorkerCapturesFullRecord(t *testing.T) {
	forge := &fakeForge{complete: map[int]*models.PRCompleteData{
		42: {
			PullRequest: models.PullRequest{Number: 42, Title: "fix bug"},
			Reviews:     []models.Review{{ID: 1, State: "approved"}},
			IssueComments: []models.Comment{{ID: 2, Body: "lgtm"}},
			ReviewComments: []models.Comment{{ID: 3, Body: "nit"}},
			Files:       []models.FileChange{{Filename: "a.go"}},
		},
	}}
	store := newFakeCaptureStore()
	w := NewDetailsWorker(forge, store, newFakeJobStore(), &fakeProgressStore{}, nil, nil)

	job := &models.Job{ID: "job-details"}
	data := models.JobData{RepositoryID: 1, RepositoryName: "octo/repo", PRNumbers: []int{42}}
	if err := w.Run(context.Background(), job, data); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.prs[42].Title != "fix bug" {
		t.Fatalf("expected PR upserted, got %+v", store.prs[42])
	}
	if len(store.reviews[42]) != 1 || len(store.comments[42]) != 2 || len(store.files[42]) != 1 {
		t.Fatalf("expected reviews/comments/files all captured, got %+v", store)
	}
}

func TestReviewsWorkerOnlyCapturesReviews(t *testing.T) {
	forge := &fakeForge{reviews: map[int][]models.Review{42: {{ID: 1, State: "approved"}}}}
	store := newFakeCaptureStore()
	w := NewReviewsWorker(forge, store, newFakeJobStore(), &fakeProgressStore{}, nil, nil)

	job := &models.Job{ID: "job-reviews"}
	data := models.JobData{RepositoryID: 1, RepositoryName: "octo/repo", PRNumbers: []int{42}}
	if err := w.Run(context.Background(), job, data); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.reviews[42]) != 1 {
		t.Fatalf("expected 1 review, got %d", len(store.reviews[42]))
	}
	if len(store.comments[42]) != 0 || len(store.files[42]) != 0 {
		t.Fatalf("expected reviews worker to leave comments/files untouched")
	}
}

func TestCommentsWorkerCapturesBothKinds(t *testing.T) {
	forge := &fakeForge{
		issueComments:  map[int][]models.Comment{42: {{ID: 1}}},
		reviewComments: map[int][]models.Comment{42: {{ID: 2}, {ID: 3}}},
	}
	store := newFakeCaptureStore()
	w := NewCommentsWorker(forge, store, newFakeJobStore(), &fakeProgressStore{}, nil, nil)

	job := &models.Job{ID: "job-comments"}
	data := models.JobData{RepositoryID: 1, RepositoryName: "octo/repo", PRNumbers: []int{42}}
	if err := w.Run(context.Background(), job, data); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.comments[42]) != 3 {
		t.Fatalf("expected 3 combined comments, got %d", len(store.comments[42]))
	}
}

func TestFileChangesWorkerCapturesOnlyFiles(t *testing.T) {
	forge := &fakeForge{complete: map[int]*models.PRCompleteData{
		42: {
			PullRequest: models.PullRequest{Number: 42},
			Reviews:     []models.Review{{ID: 1}},
			Files:       []models.FileChange{{Filename: "a.go"}, {Filename: "b.go"}},
		},
	}}
	store := newFakeCaptureStore()
	w := NewFileChangesWorker(forge, store, newFakeJobStore(), &fakeProgressStore{}, nil, nil)

	job := &models.Job{ID: "job-files"}
	data := models.JobData{RepositoryID: 1, RepositoryName: "octo/repo", PRNumbers: []int{42}}
	if err := w.Run(context.Background(), job, data); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.files[42]) != 2 {
		t.Fatalf("expected 2 file changes, got %d", len(store.files[42]))
	}
	if len(store.reviews[42]) != 0 {
		t.Fatalf("expected file-changes worker to leave reviews untouched")
	}
}

func TestHistoricalSyncWorkerWithExplicitPRNumbersSkipsStoreLookup(t *testing.T) {
	forge := &fakeForge{complete: map[int]*models.PRCompleteData{
		7: {PullRequest: models.PullRequest{Number: 7}},
	}}
	store := newFakeCaptureStore()
	store.recentPRs = []int{999} // must not be consulted when PRNumbers is explicit
	w := NewHistoricalSyncWorker(forge, store, newFakeJobStore(), &fakeProgressStore{}, nil, nil)

	job := &models.Job{ID: "job-hs-explicit"}
	data := models.JobData{RepositoryID: 1, RepositoryName: "octo/repo", PRNumbers: []int{7}}
	if err := w.Run(context.Background(), job, data); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := store.prs[7]; !ok {
		t.Fatalf("expected PR 7 captured")
	}
	if _, ok := store.prs[999]; ok {
		t.Fatalf("store-discovered PR must not be used when PRNumbers was explicit")
	}
}

func TestHistoricalSyncWorkerWithEmptyPRNumbersQueriesStoreNotForge(t *testing.T) {
	forge := &fakeForge{
		complete: map[int]*models.PRCompleteData{11: {PullRequest: models.PullRequest{Number: 11}}},
		recent:   []models.PullRequest{{Number: 555}}, // must not be consulted
	}
	store := newFakeCaptureStore()
	store.recentPRs = []int{11}
	w := NewHistoricalSyncWorker(forge, store, newFakeJobStore(), &fakeProgressStore{}, nil, nil)

	job := &models.Job{ID: "job-hs-empty"}
	data := models.JobData{RepositoryID: 1, RepositoryName: "octo/repo", TimeRangeDays: 7}
	if err := w.Run(context.Background(), job, data); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := store.prs[11]; !ok {
		t.Fatalf("expected the store-discovered PR 11 to be captured")
	}
	if _, ok := store.prs[555]; ok {
		t.Fatalf("forge.GetRecentPRs must not be consulted when PR_NUMBERS is empty")
	}
}
