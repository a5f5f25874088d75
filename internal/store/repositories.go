package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lei/hybrid-capture/internal/models"
)

// ErrRepositoryNotFound is returned when no repository row exists for an id.
var ErrRepositoryNotFound = errors.New("store: repository not found")

// CaptureStore upserts repositories, pull_requests, reviews and comments
// using their natural keys. Updating a PR MUST NOT delete its children.
type CaptureStore struct {
	db *gorm.DB
}

// NewCaptureStore wraps a *gorm.DB for capture-worker persistence.
func NewCaptureStore(db *gorm.DB) *CaptureStore { return &CaptureStore{db: db} }

// Ping verifies the underlying connection is reachable.
func (s *CaptureStore) Ping() error { return Ping(s.db) }

// UpsertRepository keys on full_name.
func (s *CaptureStore) UpsertRepository(ctx context.Context, repo models.Repository) error {
	row := RepositoryRow{
		ID:            repo.ID,
		FullName:      repo.FullName,
		Owner:         repo.Owner,
		Name:          repo.Name,
		SizeCategory:  string(repo.SizeCategory),
		DefaultBranch: repo.DefaultBranch,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "full_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"size_category", "default_branch"}),
	}).Create(&row).Error
}

// Exists reports whether a repository row exists for the given id.
func (s *CaptureStore) Exists(ctx context.Context, repositoryID uint64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&RepositoryRow{}).Where("id = ?", repositoryID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SizeCategory returns the repository's size category, used by the
// repository_size rollout strategy.
func (s *CaptureStore) SizeCategory(ctx context.Context, repositoryID uint64) (models.RepositorySizeCategory, error) {
	var row RepositoryRow
	err := s.db.WithContext(ctx).Select("size_category").Where("id = ?", repositoryID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrRepositoryNotFound
	}
	if err != nil {
		return "", err
	}
	return models.RepositorySizeCategory(row.SizeCategory), nil
}

// UpsertPullRequest keys on (repository_id, number). The compound and
// fine-grained paths both normalise to models.PullRequest before reaching
// here, so this call never branches on which path produced the data.
func (s *CaptureStore) UpsertPullRequest(ctx context.Context, repositoryID uint64, pr models.PullRequest) error {
	row := PullRequestRow{
		ID:            pr.ID,
		RepositoryID:  repositoryID,
		Number:        pr.Number,
		Title:         pr.Title,
		Body:          pr.Body,
		State:         pr.State,
		Draft:         pr.Draft,
		Additions:     pr.Additions,
		Deletions:     pr.Deletions,
		ChangedFiles:  pr.ChangedFiles,
		CommitCount:   pr.CommitCount,
		AuthorID:      pr.Author.ID,
		AuthorLogin:   pr.Author.Login,
		Merged:        pr.Merged,
		Mergeable:     pr.Mergeable,
		BaseRef:       pr.BaseRef,
		HeadRef:       pr.HeadRef,
		CreatedAt:     pr.Timestamps.Created,
		UpdatedAt:     pr.Timestamps.Updated,
		ClosedAt:      pr.Timestamps.Closed,
		MergedAt:      pr.Timestamps.Merged,
	}
	if pr.MergedBy != nil {
		row.MergedByID = &pr.MergedBy.ID
		row.MergedByLogin = pr.MergedBy.Login
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "repository_id"}, {Name: "number"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "body", "state", "draft", "additions", "deletions",
			"changed_files", "commit_count", "author_id", "author_login",
			"merged_by_id", "merged_by_login", "merged", "mergeable",
			"base_ref", "head_ref", "updated_at", "closed_at", "merged_at",
		}),
	}).Create(&row).Error
}

// RecentPullRequestNumbers returns PR numbers updated at or after since,
// for a repository already captured in the store. Used by the
// historical-sync worker when PR_NUMBERS is empty: the boundary case reads
// already-captured work from the store rather than re-discovering it from
// the forge.
func (s *CaptureStore) RecentPullRequestNumbers(ctx context.Context, repositoryID uint64, since time.Time) ([]int, error) {
	var numbers []int
	err := s.db.WithContext(ctx).Model(&PullRequestRow{}).
		Where("repository_id = ? AND updated_at >= ?", repositoryID, since).
		Order("updated_at DESC").
		Pluck("number", &numbers).Error
	return numbers, err
}

// UpsertReview keys on github_id (review.ID). repositoryID/prNumber are
// carried as a plain indexed pointer, not a surrogate-id foreign key, so a
// reviews-only Capture Worker never needs to resolve the parent PR row.
func (s *CaptureStore) UpsertReview(ctx context.Context, repositoryID uint64, prNumber int, review models.Review) error {
	row := ReviewRow{
		GithubID:     review.ID,
		RepositoryID: repositoryID,
		PRNumber:     prNumber,
		State:        review.State,
		Body:         review.Body,
		AuthorID:     review.Author.ID,
		AuthorLogin:  review.Author.Login,
		SubmittedAt:  review.SubmittedAt,
		CommitID:     review.CommitID,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "github_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "body", "submitted_at"}),
	}).Create(&row).Error
}

// UpsertComment keys on github_id. kind is "issue" or "review".
func (s *CaptureStore) UpsertComment(ctx context.Context, repositoryID uint64, prNumber int, kind string, c models.Comment) error {
	row := CommentRow{
		GithubID:         c.ID,
		RepositoryID:     repositoryID,
		PRNumber:         prNumber,
		Kind:             kind,
		Body:             c.Body,
		AuthorID:         c.Author.ID,
		AuthorLogin:      c.Author.Login,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
		Path:             c.Path,
		Position:         c.Position,
		OriginalPosition: c.OriginalPosition,
		DiffHunk:         c.DiffHunk,
		InReplyToID:      c.InReplyToID,
		ReviewID:         c.ReviewID,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "github_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&row).Error
}

// UpsertFileChange keys on (repository_id, pr_number, filename).
func (s *CaptureStore) UpsertFileChange(ctx context.Context, repositoryID uint64, prNumber int, f models.FileChange) error {
	row := FileChangeRow{
		RepositoryID: repositoryID,
		PRNumber:     prNumber,
		Filename:     f.Filename,
		Additions:    f.Additions,
		Deletions:    f.Deletions,
		Changes:      f.Changes,
		Status:       f.Status,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "repository_id"}, {Name: "pr_number"}, {Name: "filename"}},
		DoUpdates: clause.AssignmentColumns([]string{"additions", "deletions", "changes", "status"}),
	}).Create(&row).Error
}
