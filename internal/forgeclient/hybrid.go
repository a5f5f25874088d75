package forgeclient

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/pkg/logger"
)

// defaultCallRate is the token-bucket ceiling placed under the Governor's
// advisory admission check: the Governor decides whether the budget is
// critical, this enforces a floor on call spacing regardless, so a burst of
// enqueued jobs can never hammer the forge faster than the bucket refills.
const defaultCallRate = 20 // requests/second

// HybridClient implements ForgeClient by preferring the compound path and
// automatically falling back to the fine-grained path on any failure other
// than ErrNotFound.
type HybridClient struct {
	transport Transport
	tracker   Tracker
	metrics   *Metrics
	logger    *logger.Logger
	compound  atomic.Bool
	limiter   *rate.Limiter
}

// New wires a HybridClient against a Transport and a Rate-Limit Governor
// (or any object satisfying Tracker). Compound queries are enabled by
// default, matching USE_COMPOUND_QUERIES's default of true.
func New(transport Transport, tracker Tracker, log *logger.Logger) *HybridClient {
	c := &HybridClient{
		transport: transport,
		tracker:   tracker,
		metrics:   &Metrics{},
		logger:    log,
		limiter:   rate.NewLimiter(rate.Limit(defaultCallRate), defaultCallRate),
	}
	c.compound.Store(true)
	return c
}

// SetCompoundEnabled toggles the compound path.
func (c *HybridClient) SetCompoundEnabled(enabled bool) { c.compound.Store(enabled) }

// GetMetrics returns a snapshot of the client's counters.
func (c *HybridClient) GetMetrics() Snapshot { return c.metrics.Snapshot() }

func (c *HybridClient) admit(ctx context.Context) error {
	if c.tracker != nil && c.tracker.IsCritical() {
		return ErrRateExhausted
	}
	return c.limiter.Wait(ctx)
}

// GetPRCompleteData returns the full normalised PR record, preferring the
// compound path.
func (c *HybridClient) GetPRCompleteData(ctx context.Context, owner, repo string, prNumber int) (*models.PRCompleteData, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}

	if c.compound.Load() {
		resp, rl, err := c.transport.CompoundQuery(ctx, owner, repo, prNumber)
		if err == nil {
			c.metrics.recordCompound()
			c.metrics.recordPointsSaved(rl.Cost)
			c.track(rl, "pr_complete_data", 1)
			return &models.PRCompleteData{
				PullRequest:    resp.PullRequest,
				Files:          resp.Files,
				Reviews:        resp.Reviews,
				IssueComments:  resp.IssueComments,
				ReviewComments: resp.ReviewComments,
			}, nil
		}
		if err == ErrNotFound {
			return nil, err
		}
		c.fallback("pr_complete_data", err)
	}

	pr, err := c.transport.GetPR(ctx, owner, repo, prNumber)
	if err != nil {
		return nil, err
	}
	files, err := c.transport.GetFiles(ctx, owner, repo, prNumber)
	if err != nil {
		return nil, err
	}
	reviews, err := c.transport.GetReviews(ctx, owner, repo, prNumber)
	if err != nil {
		return nil, err
	}
	issueComments, err := c.transport.GetIssueComments(ctx, owner, repo, prNumber)
	if err != nil {
		return nil, err
	}
	reviewComments, err := c.transport.GetReviewComments(ctx, owner, repo, prNumber)
	if err != nil {
		return nil, err
	}

	rl := c.transport.LastRateLimit()
	rl.Cost = 5
	c.metrics.recordFineGrained(5)
	c.track(rl, "pr_complete_data", 1)

	return &models.PRCompleteData{
		PullRequest:    *pr,
		Files:          files,
		Reviews:        reviews,
		IssueComments:  issueComments,
		ReviewComments: reviewComments,
	}, nil
}

// GetPRReviews returns just the reviews, preferring the compound path.
func (c *HybridClient) GetPRReviews(ctx context.Context, owner, repo string, prNumber int) ([]models.Review, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}

	if c.compound.Load() {
		resp, rl, err := c.transport.CompoundQuery(ctx, owner, repo, prNumber)
		if err == nil {
			c.metrics.recordCompound()
			c.metrics.recordPointsSaved(rl.Cost)
			c.track(rl, "pr_reviews", 1)
			return resp.Reviews, nil
		}
		if err == ErrNotFound {
			return nil, err
		}
		c.fallback("pr_reviews", err)
	}

	reviews, err := c.transport.GetReviews(ctx, owner, repo, prNumber)
	if err != nil {
		return nil, err
	}
	rl := c.transport.LastRateLimit()
	rl.Cost = 1
	c.metrics.recordFineGrained(1)
	c.track(rl, "pr_reviews", 1)
	return reviews, nil
}

// GetPRComments returns issue comments and review comments separately,
// preferring the compound path.
func (c *HybridClient) GetPRComments(ctx context.Context, owner, repo string, prNumber int) ([]models.Comment, []models.Comment, error) {
	if err := c.admit(ctx); err != nil {
		return nil, nil, err
	}

	if c.compound.Load() {
		resp, rl, err := c.transport.CompoundQuery(ctx, owner, repo, prNumber)
		if err == nil {
			c.metrics.recordCompound()
			c.metrics.recordPointsSaved(rl.Cost)
			c.track(rl, "pr_comments", 1)
			return resp.IssueComments, resp.ReviewComments, nil
		}
		if err == ErrNotFound {
			return nil, nil, err
		}
		c.fallback("pr_comments", err)
	}

	issueComments, err := c.transport.GetIssueComments(ctx, owner, repo, prNumber)
	if err != nil {
		return nil, nil, err
	}
	reviewComments, err := c.transport.GetReviewComments(ctx, owner, repo, prNumber)
	if err != nil {
		return nil, nil, err
	}
	rl := c.transport.LastRateLimit()
	rl.Cost = 2
	c.metrics.recordFineGrained(2)
	c.track(rl, "pr_comments", 1)
	return issueComments, reviewComments, nil
}

// GetRecentPRs lists PRs updated since a cutoff, capped at limit. The forge
// exposes this as a single paginated query regardless of compound mode.
func (c *HybridClient) GetRecentPRs(ctx context.Context, owner, repo string, since time.Time, limit int) ([]models.PullRequest, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}

	prs, err := c.transport.GetRecentPRs(ctx, owner, repo, since, limit)
	if err != nil {
		return nil, err
	}
	rl := c.transport.LastRateLimit()
	rl.Cost = 1
	c.metrics.recordFineGrained(1)
	c.track(rl, "recent_prs", len(prs))
	return prs, nil
}

func (c *HybridClient) fallback(queryType string, cause error) {
	c.metrics.recordFallback()
	if c.logger != nil {
		c.logger.Warn("forgeclient: compound query failed, falling back to fine-grained path",
			"query_type", queryType, "error", cause)
	}
}

func (c *HybridClient) track(rl RateLimitResult, queryType string, items int) {
	if c.tracker == nil {
		return
	}
	c.tracker.Track(models.RateLimitSample{
		Timestamp:      time.Now().UTC(),
		Remaining:      rl.Remaining,
		Limit:          rl.Limit,
		Cost:           rl.Cost,
		QueryType:      queryType,
		ItemsProcessed: items,
		ResetAt:        rl.ResetAt,
	})
}
