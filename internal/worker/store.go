package worker

import (
	"context"
	"strings"
	"time"

	"github.com/lei/hybrid-capture/internal/models"
)

// CaptureStore is the subset of store.CaptureStore a worker depends on.
type CaptureStore interface {
	UpsertRepository(ctx context.Context, repo models.Repository) error
	UpsertPullRequest(ctx context.Context, repositoryID uint64, pr models.PullRequest) error
	UpsertReview(ctx context.Context, repositoryID uint64, prNumber int, review models.Review) error
	UpsertComment(ctx context.Context, repositoryID uint64, prNumber int, kind string, c models.Comment) error
	UpsertFileChange(ctx context.Context, repositoryID uint64, prNumber int, f models.FileChange) error
	RecentPullRequestNumbers(ctx context.Context, repositoryID uint64, since time.Time) ([]int, error)
}

// splitRepoFullName splits "owner/name" into its parts; callers are
// expected to have validated the reference via the Router before a Job
// reaches a worker.
func splitRepoFullName(fullName string) (owner, name string) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 {
		return "", fullName
	}
	return parts[0], parts[1]
}
