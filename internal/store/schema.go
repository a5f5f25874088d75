// Package store is the relational projection the core reads and writes:
// progressive_capture_jobs, progressive_capture_progress,
// rollout_configuration, rollout_history, repositories, pull_requests,
// reviews and comments.
package store

import (
	"time"

	"gorm.io/datatypes"
)

// JobRow is the progressive_capture_jobs table.
type JobRow struct {
	ID             string `gorm:"primaryKey"`
	Kind           string `gorm:"index"`
	RepositoryID   uint64 `gorm:"index"`
	RepositoryName string
	Backend        string
	Status         string `gorm:"index"`
	ExternalRunID  string
	TimeRangeDays  int
	Metadata       datatypes.JSONMap `gorm:"type:json"`
	LastError      string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

func (JobRow) TableName() string { return "progressive_capture_jobs" }

// ErrorEntry is one recent error kept inline in ProgressRow.RecentErrors.
type ErrorEntry struct {
	ItemID    string    `json:"item_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressRow is the progressive_capture_progress table.
type ProgressRow struct {
	JobID        string `gorm:"primaryKey"`
	Total        int
	Processed    int
	Failed       int
	CurrentItem  string
	RecentErrors datatypes.JSONSlice[ErrorEntry] `gorm:"type:json"`
}

func (ProgressRow) TableName() string { return "progressive_capture_progress" }

// RolloutConfigurationRow is the rollout_configuration table, one row per
// feature name. It is a materialised view; RolloutHistoryRow is the
// authoritative audit trail.
type RolloutConfigurationRow struct {
	Feature       string `gorm:"primaryKey"`
	Percentage    int
	Strategy      string
	EmergencyStop bool
	IsActive      bool
	Whitelist     datatypes.JSONSlice[uint64] `gorm:"type:json"`
	UpdatedAt     time.Time
}

func (RolloutConfigurationRow) TableName() string { return "rollout_configuration" }

// RolloutHistoryRow is the append-only rollout_history table.
type RolloutHistoryRow struct {
	ID                 uint64 `gorm:"primaryKey;autoIncrement"`
	Feature            string `gorm:"index"`
	Action             string
	PreviousPercentage int
	NewPercentage      int
	Reason             string
	TriggeredBy        string
	CreatedAt          time.Time
}

func (RolloutHistoryRow) TableName() string { return "rollout_history" }

// RepositoryRow is the repositories table.
type RepositoryRow struct {
	ID            uint64 `gorm:"primaryKey"`
	FullName      string `gorm:"uniqueIndex"`
	Owner         string
	Name          string
	SizeCategory  string
	DefaultBranch string
}

func (RepositoryRow) TableName() string { return "repositories" }

// PullRequestRow is the pull_requests table, keyed on
// (repository_id, number).
type PullRequestRow struct {
	ID           uint64 `gorm:"primaryKey"`
	RepositoryID uint64 `gorm:"uniqueIndex:idx_pr_repo_number,priority:1"`
	Number       int    `gorm:"uniqueIndex:idx_pr_repo_number,priority:2"`
	Title        string
	Body         string
	State        string
	Draft        bool
	Additions    int
	Deletions    int
	ChangedFiles int
	CommitCount  int
	AuthorID     uint64
	AuthorLogin  string
	MergedByID   *uint64
	MergedByLogin string
	Merged       bool
	Mergeable    *bool
	BaseRef      string
	HeadRef      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClosedAt     *time.Time
	MergedAt     *time.Time
}

func (PullRequestRow) TableName() string { return "pull_requests" }

// ReviewRow is the reviews table, keyed on GithubID. RepositoryID+PRNumber
// is carried as a plain indexed pointer back to pull_requests rather than a
// foreign key on its surrogate id, so a reviews-only Capture Worker never
// needs to resolve the parent PR row first.
type ReviewRow struct {
	GithubID     uint64 `gorm:"primaryKey"`
	RepositoryID uint64 `gorm:"index:idx_review_repo_pr,priority:1"`
	PRNumber     int    `gorm:"index:idx_review_repo_pr,priority:2"`
	State        string
	Body         string
	AuthorID     uint64
	AuthorLogin  string
	SubmittedAt  time.Time
	CommitID     string
}

func (ReviewRow) TableName() string { return "reviews" }

// CommentRow is the comments table (both issue and review comments), keyed
// on GithubID.
type CommentRow struct {
	GithubID         uint64 `gorm:"primaryKey"`
	RepositoryID     uint64 `gorm:"index:idx_comment_repo_pr,priority:1"`
	PRNumber         int    `gorm:"index:idx_comment_repo_pr,priority:2"`
	Kind             string // "issue" or "review"
	Body             string
	AuthorID         uint64
	AuthorLogin      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Path             string
	Position         *int
	OriginalPosition *int
	DiffHunk         string
	InReplyToID      *uint64
	ReviewID         *uint64
}

func (CommentRow) TableName() string { return "comments" }

// FileChangeRow is the file_changes table, keyed on
// (repository_id, pr_number, filename). Row shape for the file-changes
// Capture Worker's output.
type FileChangeRow struct {
	RepositoryID uint64 `gorm:"primaryKey;uniqueIndex:idx_file_repo_pr_name,priority:1"`
	PRNumber     int    `gorm:"primaryKey;uniqueIndex:idx_file_repo_pr_name,priority:2"`
	Filename     string `gorm:"primaryKey;uniqueIndex:idx_file_repo_pr_name,priority:3"`
	Additions    int
	Deletions    int
	Changes      int
	Status       string
}

func (FileChangeRow) TableName() string { return "file_changes" }
