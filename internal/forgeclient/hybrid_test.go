package forgeclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lei/hybrid-capture/internal/models"
)

// fakeTransport is a hand-rolled Transport stub: no mocking library, per
// teacher convention.
type fakeTransport struct {
	compoundResp *compoundResponse
	compoundRL   RateLimitResult
	compoundErr  error

	pr             *models.PullRequest
	files          []models.FileChange
	reviews        []models.Review
	issueComments  []models.Comment
	reviewComments []models.Comment
	fineGrainedErr error

	recentPRs []models.PullRequest
	recentErr error

	lastRL RateLimitResult

	compoundCalls    int
	fineGrainedCalls int
}

func (f *fakeTransport) CompoundQuery(ctx context.Context, owner, repo string, prNumber int) (*compoundResponse, RateLimitResult, error) {
	f.compoundCalls++
	return f.compoundResp, f.compoundRL, f.compoundErr
}

func (f *fakeTransport) GetPR(ctx context.Context, owner, repo string, prNumber int) (*models.PullRequest, error) {
	f.fineGrainedCalls++
	return f.pr, f.fineGrainedErr
}

func (f *fakeTransport) GetFiles(ctx context.Context, owner, repo string, prNumber int) ([]models.FileChange, error) {
	return f.files, f.fineGrainedErr
}

func (f *fakeTransport) GetReviews(ctx context.Context, owner, repo string, prNumber int) ([]models.Review, error) {
	return f.reviews, f.fineGrainedErr
}

func (f *fakeTransport) GetIssueComments(ctx context.Context, owner, repo string, prNumber int) ([]models.Comment, error) {
	return f.issueComments, f.fineGrainedErr
}

func (f *fakeTransport) GetReviewComments(ctx context.Context, owner, repo string, prNumber int) ([]models.Comment, error) {
	return f.reviewComments, f.fineGrainedErr
}

func (f *fakeTransport) GetRecentPRs(ctx context.Context, owner, repo string, since time.Time, limit int) ([]models.PullRequest, error) {
	return f.recentPRs, f.recentErr
}

func (f *fakeTransport) LastRateLimit() RateLimitResult { return f.lastRL }

// fakeTracker is a hand-rolled Tracker stub.
type fakeTracker struct {
	critical bool
	samples  []models.RateLimitSample
}

func (f *fakeTracker) Track(sample models.RateLimitSample) { f.samples = append(f.samples, sample) }
func (f *fakeTracker) IsCritical() bool                    { return f.critical }

func TestGetPRCompleteDataPrefersCompoundPath(t *testing.T) {
	transport := &fakeTransport{
		compoundResp: &compoundResponse{
			PullRequest: models.PullRequest{Number: 42, Title: "add feature"},
			Reviews:     []models.Review{{ID: 1}},
		},
		compoundRL: RateLimitResult{Cost: 1, Remaining: 4999, Limit: 5000},
	}
	tracker := &fakeTracker{}
	c := New(transport, tracker, nil)

	data, err := c.GetPRCompleteData(context.Background(), "o", "r", 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.PullRequest.Number != 42 {
		t.Fatalf("expected PR 42, got %d", data.PullRequest.Number)
	}
	if transport.fineGrainedCalls != 0 {
		t.Fatalf("expected no fine-grained calls, got %d", transport.fineGrainedCalls)
	}
	snap := c.GetMetrics()
	if snap.CompoundQueries != 1 {
		t.Fatalf("expected 1 compound query recorded, got %d", snap.CompoundQueries)
	}
	if snap.TotalPointsSaved != 4 {
		t.Fatalf("expected 4 points saved (5-1), got %d", snap.TotalPointsSaved)
	}
	if len(tracker.samples) != 1 {
		t.Fatalf("expected governor to be tracked once, got %d", len(tracker.samples))
	}
}

func TestGetPRCompleteDataNotFoundShortCircuitsWithoutFallback(t *testing.T) {
	transport := &fakeTransport{compoundErr: ErrNotFound}
	c := New(transport, &fakeTracker{}, nil)

	_, err := c.GetPRCompleteData(context.Background(), "o", "r", 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if transport.fineGrainedCalls != 0 {
		t.Fatalf("expected no fallback attempt on 404, got %d fine-grained calls", transport.fineGrainedCalls)
	}
}

func TestGetPRCompleteDataFallsBackOnOtherCompoundError(t *testing.T) {
	transport := &fakeTransport{
		compoundErr: &ErrTransport{Err: errors.New("boom")},
		pr:          &models.PullRequest{Number: 7},
		files:       []models.FileChange{{Filename: "a.go"}},
		reviews:     []models.Review{{ID: 1}},
	}
	c := New(transport, &fakeTracker{}, nil)

	data, err := c.GetPRCompleteData(context.Background(), "o", "r", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.PullRequest.Number != 7 {
		t.Fatalf("expected fine-grained PR 7, got %d", data.PullRequest.Number)
	}
	if transport.fineGrainedCalls == 0 {
		t.Fatalf("expected fine-grained fallback calls")
	}
	snap := c.GetMetrics()
	if snap.Fallbacks != 1 {
		t.Fatalf("expected 1 fallback recorded, got %d", snap.Fallbacks)
	}
	if snap.FineGrainedQueries != 5 {
		t.Fatalf("expected 5 fine-grained queries recorded, got %d", snap.FineGrainedQueries)
	}
}

func TestGetPRReviewsUsesCompoundReviewsOnly(t *testing.T) {
	transport := &fakeTransport{
		compoundResp: &compoundResponse{Reviews: []models.Review{{ID: 1}, {ID: 2}}},
		compoundRL:   RateLimitResult{Cost: 1},
	}
	c := New(transport, &fakeTracker{}, nil)

	reviews, err := c.GetPRReviews(context.Background(), "o", "r", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("expected 2 reviews, got %d", len(reviews))
	}
}

func TestGetPRCommentsSeparatesIssueAndReviewComments(t *testing.T) {
	transport := &fakeTransport{
		compoundErr:    &ErrTransport{Err: errors.New("fail")},
		issueComments:  []models.Comment{{ID: 1}},
		reviewComments: []models.Comment{{ID: 2}, {ID: 3}},
	}
	c := New(transport, &fakeTracker{}, nil)

	issue, review, err := c.GetPRComments(context.Background(), "o", "r", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issue) != 1 || len(review) != 2 {
		t.Fatalf("expected 1 issue comment and 2 review comments, got %d/%d", len(issue), len(review))
	}
}

func TestGetRecentPRsBypassesCompoundPath(t *testing.T) {
	since := time.Now().Add(-24 * time.Hour)
	transport := &fakeTransport{recentPRs: []models.PullRequest{{Number: 1}, {Number: 2}}}
	c := New(transport, &fakeTracker{}, nil)

	prs, err := c.GetRecentPRs(context.Background(), "o", "r", since, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prs) != 2 {
		t.Fatalf("expected 2 PRs, got %d", len(prs))
	}
	if transport.compoundCalls != 0 {
		t.Fatalf("GetRecentPRs must never use the compound path, got %d calls", transport.compoundCalls)
	}
}

func TestAdmitRefusesWhenTrackerIsCritical(t *testing.T) {
	transport := &fakeTransport{compoundResp: &compoundResponse{}}
	tracker := &fakeTracker{critical: true}
	c := New(transport, tracker, nil)

	_, err := c.GetPRCompleteData(context.Background(), "o", "r", 1)
	if !errors.Is(err, ErrRateExhausted) {
		t.Fatalf("expected ErrRateExhausted, got %v", err)
	}
	if transport.compoundCalls != 0 {
		t.Fatalf("expected no transport calls when the budget is critical, got %d", transport.compoundCalls)
	}
}

func TestAdmitHonoursContextCancellation(t *testing.T) {
	transport := &fakeTransport{compoundResp: &compoundResponse{}}
	c := New(transport, &fakeTracker{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetPRReviews(ctx, "o", "r", 1)
	if err == nil {
		t.Fatalf("expected an error from a cancelled context")
	}
}

func TestSetCompoundEnabledFalseSkipsCompoundPath(t *testing.T) {
	transport := &fakeTransport{
		pr:      &models.PullRequest{Number: 9},
		reviews: []models.Review{{ID: 1}},
	}
	c := New(transport, &fakeTracker{}, nil)
	c.SetCompoundEnabled(false)

	if _, err := c.GetPRCompleteData(context.Background(), "o", "r", 9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transport.compoundCalls != 0 {
		t.Fatalf("expected compound path to be skipped, got %d calls", transport.compoundCalls)
	}
	if transport.fineGrainedCalls == 0 {
		t.Fatalf("expected fine-grained calls when compound is disabled")
	}
}
