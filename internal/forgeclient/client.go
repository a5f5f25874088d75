// Package forgeclient executes forge reads through a compound-query path
// (preferred) with automatic fallback to a five-call fine-grained path,
// both accounted against a single cost budget via the Rate-Limit Governor.
package forgeclient

import (
	"context"
	"time"

	"github.com/lei/hybrid-capture/internal/models"
)

// ForgeClient is the capability set downstream workers depend on. The
// compound and fine-grained paths are two implementations; HybridClient is
// a third that composes both with fallback. This removes the need for
// runtime reflection on responses: every caller sees the same normalised
// shape regardless of which path served it.
type ForgeClient interface {
	GetPRCompleteData(ctx context.Context, owner, repo string, prNumber int) (*models.PRCompleteData, error)
	GetPRReviews(ctx context.Context, owner, repo string, prNumber int) ([]models.Review, error)
	GetPRComments(ctx context.Context, owner, repo string, prNumber int) ([]models.Comment, []models.Comment, error)
	GetRecentPRs(ctx context.Context, owner, repo string, since time.Time, limit int) ([]models.PullRequest, error)
}

// RateLimitResult carries the forge-reported budget state alongside a
// query's data, so it can be fed to the Governor without a second round
// trip.
type RateLimitResult struct {
	Cost      int
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// Tracker is the subset of ratelimit.Governor the client depends on; kept
// as a narrow interface so the client can be tested without the real
// governor and so multiple clients can share one governor instance.
type Tracker interface {
	Track(sample models.RateLimitSample)
	IsCritical() bool
}

// Transport is the minimal HTTP-ish round-tripper both paths build on. A
// real implementation wraps the GitHub REST + GraphQL APIs; tests inject a
// fake.
type Transport interface {
	CompoundQuery(ctx context.Context, owner, repo string, prNumber int) (*compoundResponse, RateLimitResult, error)
	GetPR(ctx context.Context, owner, repo string, prNumber int) (*models.PullRequest, error)
	GetFiles(ctx context.Context, owner, repo string, prNumber int) ([]models.FileChange, error)
	GetReviews(ctx context.Context, owner, repo string, prNumber int) ([]models.Review, error)
	GetIssueComments(ctx context.Context, owner, repo string, prNumber int) ([]models.Comment, error)
	GetReviewComments(ctx context.Context, owner, repo string, prNumber int) ([]models.Comment, error)
	GetRecentPRs(ctx context.Context, owner, repo string, since time.Time, limit int) ([]models.PullRequest, error)

	// LastRateLimit returns the most recently observed REST rate-limit
	// headers, so fine-grained calls (whose per-call cost is a flat 1, not
	// forge-reported) can still be tracked against the real remaining
	// budget rather than a synthetic value.
	LastRateLimit() RateLimitResult
}

// compoundResponse is the raw shape the structured-query endpoint returns
// before normalisation.
type compoundResponse struct {
	PullRequest    models.PullRequest
	Files          []models.FileChange
	Reviews        []models.Review
	IssueComments  []models.Comment
	ReviewComments []models.Comment
}
