package forgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/pkg/logger"
)

// GitHubTransport implements Transport against the real GitHub GraphQL
// (compound) and REST (fine-grained) APIs. Every call is retried up to
// twice with exponential back-off (1s, 4s) on transport failure, then
// surfaced as ErrTransport.
type GitHubTransport struct {
	baseRESTURL    string
	baseGraphQLURL string
	token          string
	httpClient     *http.Client
	logger         *logger.Logger

	mu   sync.RWMutex
	last RateLimitResult
}

// NewGitHubTransport builds a transport bound to api.github.com (or an
// enterprise base URL) with a bounded per-call timeout.
func NewGitHubTransport(token string, log *logger.Logger) *GitHubTransport {
	return &GitHubTransport{
		baseRESTURL:    "https://api.github.com",
		baseGraphQLURL: "https://api.github.com/graphql",
		token:          token,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		logger:         log,
	}
}

// LastRateLimit returns the most recently observed rate-limit headers.
func (t *GitHubTransport) LastRateLimit() RateLimitResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

func (t *GitHubTransport) recordRateLimit(resp *http.Response) {
	remaining, _ := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	limit, _ := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))
	resetUnix, _ := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = RateLimitResult{
		Remaining: remaining,
		Limit:     limit,
		ResetAt:   time.Unix(resetUnix, 0),
	}
}

// withRetry runs fn with up to 2 retries (1s, 4s) on transport failure.
func (t *GitHubTransport) withRetry(ctx context.Context, fn func() (*http.Response, error)) (*http.Response, error) {
	op := func() (*http.Response, error) {
		resp, err := fn()
		if err != nil {
			return nil, fmt.Errorf("%w", err)
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("forgeclient: server error %d", resp.StatusCode)
		}
		return resp, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 4
	bo.MaxInterval = 4 * time.Second

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(3),
	)
	if err != nil {
		return nil, &ErrTransport{Err: err}
	}
	return resp, nil
}

func (t *GitHubTransport) doREST(ctx context.Context, method, path string) (*http.Response, error) {
	resp, err := t.withRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, t.baseRESTURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+t.token)
		req.Header.Set("Accept", "application/vnd.github+json")
		return t.httpClient.Do(req)
	})
	if err != nil {
		return nil, err
	}
	t.recordRateLimit(resp)
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrNotFound
	}
	return resp, nil
}

// GetPR fetches a single PR's metadata.
func (t *GitHubTransport) GetPR(ctx context.Context, owner, repo string, prNumber int) (*models.PullRequest, error) {
	resp, err := t.doREST(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, prNumber))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire wirePullRequest
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &ErrTransport{Err: err}
	}
	pr := wire.toModel()
	return &pr, nil
}

// GetFiles fetches the changed-files list.
func (t *GitHubTransport) GetFiles(ctx context.Context, owner, repo string, prNumber int) ([]models.FileChange, error) {
	resp, err := t.doREST(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pulls/%d/files", owner, repo, prNumber))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire []wireFile
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &ErrTransport{Err: err}
	}
	files := make([]models.FileChange, 0, len(wire))
	for _, f := range wire {
		files = append(files, f.toModel())
	}
	return files, nil
}

// GetReviews fetches reviews.
func (t *GitHubTransport) GetReviews(ctx context.Context, owner, repo string, prNumber int) ([]models.Review, error) {
	resp, err := t.doREST(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", owner, repo, prNumber))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire []wireReview
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &ErrTransport{Err: err}
	}
	reviews := make([]models.Review, 0, len(wire))
	for _, r := range wire {
		reviews = append(reviews, r.toModel())
	}
	return reviews, nil
}

// GetIssueComments fetches issue-level comments on the PR.
func (t *GitHubTransport) GetIssueComments(ctx context.Context, owner, repo string, prNumber int) ([]models.Comment, error) {
	resp, err := t.doREST(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, prNumber))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire []wireComment
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &ErrTransport{Err: err}
	}
	comments := make([]models.Comment, 0, len(wire))
	for _, c := range wire {
		comments = append(comments, c.toModel())
	}
	return comments, nil
}

// GetReviewComments fetches inline diff comments.
func (t *GitHubTransport) GetReviewComments(ctx context.Context, owner, repo string, prNumber int) ([]models.Comment, error) {
	resp, err := t.doREST(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pulls/%d/comments", owner, repo, prNumber))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire []wireReviewComment
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &ErrTransport{Err: err}
	}
	comments := make([]models.Comment, 0, len(wire))
	for _, c := range wire {
		comments = append(comments, c.toModel())
	}
	return comments, nil
}

// GetRecentPRs lists PRs updated since a cutoff.
func (t *GitHubTransport) GetRecentPRs(ctx context.Context, owner, repo string, since time.Time, limit int) ([]models.PullRequest, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls?state=all&sort=updated&direction=desc&per_page=%d", owner, repo, limit)
	resp, err := t.doREST(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire []wirePullRequest
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &ErrTransport{Err: err}
	}

	prs := make([]models.PullRequest, 0, len(wire))
	for _, w := range wire {
		if w.UpdatedAt.Before(since) {
			continue
		}
		prs = append(prs, w.toModel())
		if len(prs) >= limit {
			break
		}
	}
	return prs, nil
}

// CompoundQuery requests all fields of interest in one GraphQL round trip.
func (t *GitHubTransport) CompoundQuery(ctx context.Context, owner, repo string, prNumber int) (*compoundResponse, RateLimitResult, error) {
	query := compoundGraphQLQuery(owner, repo, prNumber)
	body, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return nil, RateLimitResult{}, &ErrTransport{Err: err}
	}

	resp, err := t.withRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseGraphQLURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+t.token)
		req.Header.Set("Content-Type", "application/json")
		return t.httpClient.Do(req)
	})
	if err != nil {
		return nil, RateLimitResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, RateLimitResult{}, ErrNotFound
	}

	var wire wireGraphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, RateLimitResult{}, &ErrTransport{Err: err}
	}
	if wire.Data.Repository.PullRequest.Number == 0 {
		return nil, RateLimitResult{}, ErrNotFound
	}

	rl := RateLimitResult{
		Cost:      wire.Data.RateLimit.Cost,
		Remaining: wire.Data.RateLimit.Remaining,
		Limit:     wire.Data.RateLimit.Limit,
	}
	t.mu.Lock()
	t.last = rl
	t.mu.Unlock()

	return wire.Data.Repository.PullRequest.toCompoundResponse(), rl, nil
}

func compoundGraphQLQuery(owner, repo string, prNumber int) string {
	return fmt.Sprintf(`query {
  rateLimit { cost remaining limit }
  repository(owner: %q, name: %q) {
    pullRequest(number: %d) {
      id number title body state isDraft
      additions deletions changedFiles
      author { login }
      baseRefName headRefName
      createdAt updatedAt closedAt mergedAt merged mergeable
      files(first: 100) { nodes { path additions deletions changeType } }
      reviews(first: 100) {
        nodes {
          id state body author { login } submittedAt commit { oid }
          comments(first: 100) {
            nodes {
              id body path position originalPosition diffHunk
              author { login } createdAt updatedAt replyTo { id }
            }
          }
        }
      }
      comments(first: 100) { nodes { id body author { login } createdAt updatedAt } }
    }
  }
}`, owner, repo, prNumber)
}
