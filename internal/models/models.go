// Package models declares the entities shared across the capture
// orchestrator: jobs, progress, rollout configuration/history, and the
// forge's normalised response shapes.
package models

import "time"

// JobKind identifies the unit of work a Capture Worker performs.
type JobKind string

const (
	JobKindDetails         JobKind = "details"
	JobKindReviews         JobKind = "reviews"
	JobKindComments        JobKind = "comments"
	JobKindHistoricalSync  JobKind = "historical-sync"
	JobKindFileChanges     JobKind = "file-changes"
)

// Backend is the back-end a Job was dispatched to.
type Backend string

const (
	BackendLowLatency Backend = "lowlatency"
	BackendBatch      Backend = "batch"
)

// JobStatus is the lifecycle state of a Job. Transitions are monotonic:
// pending -> processing -> (completed | failed).
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// TriggerSource distinguishes operator-initiated from scheduled work; it
// feeds the Router's classifier.
type TriggerSource string

const (
	TriggerManual    TriggerSource = "manual"
	TriggerScheduled TriggerSource = "scheduled"
)

// JobData is the caller-supplied payload for Router.Enqueue.
type JobData struct {
	RepositoryID   uint64
	RepositoryName string
	PRNumbers      []int
	TimeRangeDays  int
	MaxItems       int
	TriggerSource  TriggerSource
}

// Job is a unit of work created by the Router.
//
// Invariant: StartedAt is non-nil iff Status >= processing; CompletedAt is
// non-nil iff Status is terminal (completed or failed).
type Job struct {
	ID             string
	Kind           JobKind
	RepositoryID   uint64
	RepositoryName string
	Backend        Backend
	Status         JobStatus
	ExternalRunID  string // batch back-end only
	TimeRangeDays  int
	Metadata       map[string]any
	LastError      string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// ErrorRecord is a single item-level failure kept in Progress.RecentErrors.
type ErrorRecord struct {
	ItemID    string
	Message   string
	Timestamp time.Time
}

// Progress is the one-row-per-Job counter set.
//
// Invariant: Processed+Failed <= Total once Total > 0; counts never
// decrease.
type Progress struct {
	JobID        string
	Total        int
	Processed    int
	Failed       int
	CurrentItem  string
	RecentErrors []ErrorRecord
}

// MaxRecentErrors bounds Progress.RecentErrors.
const MaxRecentErrors = 25

// RolloutStrategy selects how Controller.IsAllowed stages traffic.
type RolloutStrategy string

const (
	StrategyPercentage     RolloutStrategy = "percentage"
	StrategyWhitelist      RolloutStrategy = "whitelist"
	StrategyRepositorySize RolloutStrategy = "repository_size"
)

// RolloutConfiguration is the one-row-per-feature gate.
//
// Invariant: when EmergencyStop is true the effective percentage is 0
// regardless of the stored Percentage.
type RolloutConfiguration struct {
	Feature       string
	Percentage    int
	Strategy      RolloutStrategy
	EmergencyStop bool
	IsActive      bool
	Whitelist     map[uint64]struct{}
	UpdatedAt     time.Time
}

// EffectivePercentage applies the emergency-stop override.
func (c RolloutConfiguration) EffectivePercentage() int {
	if c.EmergencyStop {
		return 0
	}
	return c.Percentage
}

// RolloutAction is the kind of change recorded in RolloutHistory.
type RolloutAction string

const (
	ActionUpdated  RolloutAction = "updated"
	ActionRollback RolloutAction = "rollback"
	ActionStop     RolloutAction = "stop"
	ActionResume   RolloutAction = "resume"
)

// RolloutHistoryEntry is one append-only audit row.
type RolloutHistoryEntry struct {
	ID                 uint64
	Feature            string
	Action             RolloutAction
	PreviousPercentage int
	NewPercentage      int
	Reason             string
	TriggeredBy        string
	CreatedAt          time.Time
}

// RepositorySizeCategory stages the repository_size rollout strategy.
type RepositorySizeCategory string

const (
	CategoryTest   RepositorySizeCategory = "test"
	CategorySmall  RepositorySizeCategory = "small"
	CategoryMedium RepositorySizeCategory = "medium"
	CategoryLarge  RepositorySizeCategory = "large"
)

// Repository maps a forge repository to its size category.
type Repository struct {
	ID            uint64
	FullName      string
	Owner         string
	Name          string
	SizeCategory  RepositorySizeCategory
	DefaultBranch string
}

// Actor is the normalised author/mergedBy shape shared by PRs, reviews and
// comments.
type Actor struct {
	ID     uint64
	Login  string
	Avatar string
}

// Timestamps groups the PR's lifecycle timestamps.
type Timestamps struct {
	Created time.Time
	Updated time.Time
	Closed  *time.Time
	Merged  *time.Time
}

// PullRequest is the normalised shape both the compound and fine-grained
// forge paths must produce.
type PullRequest struct {
	ID           uint64
	Number       int
	Title        string
	Body         string
	State        string // open, closed
	Draft        bool
	Additions    int
	Deletions    int
	ChangedFiles int
	CommitCount  int
	Author       Actor
	MergedBy     *Actor
	Timestamps   Timestamps
	Merged       bool
	Mergeable    *bool
	BaseRef      string
	HeadRef      string
}

// FileChange is one file touched by a PullRequest.
type FileChange struct {
	Filename  string
	Additions int
	Deletions int
	Changes   int
	Status    string
}

// Review is a single PR review.
type Review struct {
	ID          uint64
	State       string
	Body        string
	Author      Actor
	SubmittedAt time.Time
	CommitID    string
}

// Comment is the shape shared by issue comments and review comments; the
// review-comment-only fields are zero-valued for issue comments.
type Comment struct {
	ID               uint64
	Body             string
	Author           Actor
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Path             string
	Position         *int
	OriginalPosition *int
	DiffHunk         string
	InReplyToID      *uint64
	ReviewID         *uint64
}

// PRCompleteData is the normalised record returned by
// ForgeClient.GetPRCompleteData regardless of which path served it.
type PRCompleteData struct {
	PullRequest PullRequest
	Files       []FileChange
	Reviews     []Review
	IssueComments  []Comment
	ReviewComments []Comment
}

// RateLimitSample is a single budget observation fed to the Governor.
type RateLimitSample struct {
	Timestamp      time.Time
	Remaining      int
	Limit          int
	Cost           int
	QueryType      string
	ItemsProcessed int
	ResetAt        time.Time
}

// AlertSeverity ranks Governor alerts.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is one Governor observation worth surfacing.
type Alert struct {
	Severity  AlertSeverity
	Message   string
	Timestamp time.Time
}

// RecommendationPriority ranks Governor recommendations.
type RecommendationPriority string

const (
	PriorityCritical RecommendationPriority = "critical"
	PriorityHigh     RecommendationPriority = "high"
	PriorityMedium   RecommendationPriority = "medium"
)

// Recommendation is a derived, human-readable rule firing from the current
// sample window.
type Recommendation struct {
	Message  string
	Priority RecommendationPriority
}

// Prediction is the result of Governor.Predict.
type Prediction struct {
	AverageCost      float64
	PredictedCost    float64
	CurrentRemaining int
	WillExceedLimit  bool
	SafeQueries      int
}

// Report is the result of Governor.GenerateReport.
type Report struct {
	Summary         string
	Efficiency      float64
	Alerts          []Alert
	Recommendations []Recommendation
}
