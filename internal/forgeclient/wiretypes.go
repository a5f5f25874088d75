package forgeclient

import (
	"strings"
	"time"

	"github.com/lei/hybrid-capture/internal/models"
)

// The wire* types below mirror GitHub's REST/GraphQL JSON shapes exactly
// (snake_case REST fields, camelCase GraphQL fields) and are never exposed
// outside this package; every caller sees the normalised models.* shapes.

type wireActor struct {
	Login string `json:"login"`
	ID    uint64 `json:"id"`
}

func (a wireActor) toModel() models.Actor {
	return models.Actor{ID: a.ID, Login: a.Login}
}

type wirePullRequest struct {
	ID           uint64     `json:"id"`
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	State        string     `json:"state"`
	Draft        bool       `json:"draft"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changed_files"`
	Commits      int        `json:"commits"`
	Merged       bool       `json:"merged"`
	Mergeable    *bool      `json:"mergeable"`
	User         wireActor  `json:"user"`
	MergedBy     *wireActor `json:"merged_by"`
	Base         struct {
		Ref string `json:"ref"`
	} `json:"base"`
	Head struct {
		Ref string `json:"ref"`
	} `json:"head"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at"`
	MergedAt  *time.Time `json:"merged_at"`
}

func (w wirePullRequest) toModel() models.PullRequest {
	var mergedBy *models.Actor
	if w.MergedBy != nil {
		m := w.MergedBy.toModel()
		mergedBy = &m
	}
	return models.PullRequest{
		ID:           w.ID,
		Number:       w.Number,
		Title:        w.Title,
		Body:         w.Body,
		State:        w.State,
		Draft:        w.Draft,
		Additions:    w.Additions,
		Deletions:    w.Deletions,
		ChangedFiles: w.ChangedFiles,
		CommitCount:  w.Commits,
		Author:       w.User.toModel(),
		MergedBy:     mergedBy,
		Merged:       w.Merged,
		Mergeable:    w.Mergeable,
		BaseRef:      w.Base.Ref,
		HeadRef:      w.Head.Ref,
		Timestamps: models.Timestamps{
			Created: w.CreatedAt,
			Updated: w.UpdatedAt,
			Closed:  w.ClosedAt,
			Merged:  w.MergedAt,
		},
	}
}

type wireFile struct {
	Filename  string `json:"filename"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
	Status    string `json:"status"`
}

func (w wireFile) toModel() models.FileChange {
	return models.FileChange{
		Filename:  w.Filename,
		Additions: w.Additions,
		Deletions: w.Deletions,
		Changes:   w.Changes,
		Status:    w.Status,
	}
}

type wireReview struct {
	ID          uint64    `json:"id"`
	State       string    `json:"state"`
	Body        string    `json:"body"`
	User        wireActor `json:"user"`
	SubmittedAt time.Time `json:"submitted_at"`
	CommitID    string    `json:"commit_id"`
}

func (w wireReview) toModel() models.Review {
	return models.Review{
		ID:          w.ID,
		State:       w.State,
		Body:        w.Body,
		Author:      w.User.toModel(),
		SubmittedAt: w.SubmittedAt,
		CommitID:    w.CommitID,
	}
}

type wireComment struct {
	ID        uint64    `json:"id"`
	Body      string    `json:"body"`
	User      wireActor `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (w wireComment) toModel() models.Comment {
	return models.Comment{
		ID:        w.ID,
		Body:      w.Body,
		Author:    w.User.toModel(),
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

type wireReviewComment struct {
	ID                  uint64    `json:"id"`
	Body                string    `json:"body"`
	User                wireActor `json:"user"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	Path                string    `json:"path"`
	Position            *int      `json:"position"`
	OriginalPosition    *int      `json:"original_position"`
	DiffHunk            string    `json:"diff_hunk"`
	InReplyToID         *uint64   `json:"in_reply_to_id"`
	PullRequestReviewID *uint64   `json:"pull_request_review_id"`
}

func (w wireReviewComment) toModel() models.Comment {
	return models.Comment{
		ID:               w.ID,
		Body:             w.Body,
		Author:           w.User.toModel(),
		CreatedAt:        w.CreatedAt,
		UpdatedAt:        w.UpdatedAt,
		Path:             w.Path,
		Position:         w.Position,
		OriginalPosition: w.OriginalPosition,
		DiffHunk:         w.DiffHunk,
		InReplyToID:      w.InReplyToID,
		ReviewID:         w.PullRequestReviewID,
	}
}

// GraphQL response shapes for the compound path. Field names follow
// GraphQL's camelCase convention, decoded straight off the JSON envelope.

type wireGraphQLResponse struct {
	Data struct {
		RateLimit struct {
			Cost      int `json:"cost"`
			Remaining int `json:"remaining"`
			Limit     int `json:"limit"`
		} `json:"rateLimit"`
		Repository struct {
			PullRequest wireGraphQLPullRequest `json:"pullRequest"`
		} `json:"repository"`
	} `json:"data"`
}

type wireGraphQLActor struct {
	Login string `json:"login"`
}

type wireGraphQLPullRequest struct {
	ID           string           `json:"id"`
	Number       int              `json:"number"`
	Title        string           `json:"title"`
	Body         string           `json:"body"`
	State        string           `json:"state"`
	IsDraft      bool             `json:"isDraft"`
	Additions    int              `json:"additions"`
	Deletions    int              `json:"deletions"`
	ChangedFiles int              `json:"changedFiles"`
	Author       wireGraphQLActor `json:"author"`
	BaseRefName  string           `json:"baseRefName"`
	HeadRefName  string           `json:"headRefName"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	ClosedAt     *time.Time       `json:"closedAt"`
	MergedAt     *time.Time       `json:"mergedAt"`
	Merged       bool             `json:"merged"`
	Mergeable    string           `json:"mergeable"`
	Files        struct {
		Nodes []struct {
			Path       string `json:"path"`
			Additions  int    `json:"additions"`
			Deletions  int    `json:"deletions"`
			ChangeType string `json:"changeType"`
		} `json:"nodes"`
	} `json:"files"`
	Reviews struct {
		Nodes []struct {
			ID          string           `json:"id"`
			State       string           `json:"state"`
			Body        string           `json:"body"`
			Author      wireGraphQLActor `json:"author"`
			SubmittedAt time.Time        `json:"submittedAt"`
			Commit      struct {
				OID string `json:"oid"`
			} `json:"commit"`
			Comments struct {
				Nodes []struct {
					ID               string           `json:"id"`
					Body             string           `json:"body"`
					Path             string           `json:"path"`
					Position         *int             `json:"position"`
					OriginalPosition *int             `json:"originalPosition"`
					DiffHunk         string           `json:"diffHunk"`
					Author           wireGraphQLActor `json:"author"`
					CreatedAt        time.Time        `json:"createdAt"`
					UpdatedAt        time.Time        `json:"updatedAt"`
					ReplyTo          *struct {
						ID string `json:"id"`
					} `json:"replyTo"`
				} `json:"nodes"`
			} `json:"comments"`
		} `json:"nodes"`
	} `json:"reviews"`
	Comments struct {
		Nodes []struct {
			ID        string           `json:"id"`
			Body      string           `json:"body"`
			Author    wireGraphQLActor `json:"author"`
			CreatedAt time.Time        `json:"createdAt"`
			UpdatedAt time.Time        `json:"updatedAt"`
		} `json:"nodes"`
	} `json:"comments"`
}

// graphQLNodeID reduces GitHub's opaque base64 node ID to a stable uint64
// via FNV-1a; only used for GraphQL nodes since REST already supplies
// numeric IDs.
func graphQLNodeID(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func (w wireGraphQLPullRequest) toCompoundResponse() *compoundResponse {
	mergeable := w.Mergeable == "MERGEABLE"
	var mergeablePtr *bool
	if w.Mergeable != "" && w.Mergeable != "UNKNOWN" {
		mergeablePtr = &mergeable
	}

	state := strings.ToLower(w.State)
	if state == "merged" {
		state = "closed"
	}

	pr := models.PullRequest{
		ID:           graphQLNodeID(w.ID),
		Number:       w.Number,
		Title:        w.Title,
		Body:         w.Body,
		State:        state,
		Draft:        w.IsDraft,
		Additions:    w.Additions,
		Deletions:    w.Deletions,
		ChangedFiles: w.ChangedFiles,
		Author:       models.Actor{Login: w.Author.Login},
		Merged:       w.Merged,
		Mergeable:    mergeablePtr,
		BaseRef:      w.BaseRefName,
		HeadRef:      w.HeadRefName,
		Timestamps: models.Timestamps{
			Created: w.CreatedAt,
			Updated: w.UpdatedAt,
			Closed:  w.ClosedAt,
			Merged:  w.MergedAt,
		},
	}

	files := make([]models.FileChange, 0, len(w.Files.Nodes))
	for _, f := range w.Files.Nodes {
		files = append(files, models.FileChange{
			Filename:  f.Path,
			Additions: f.Additions,
			Deletions: f.Deletions,
			Changes:   f.Additions + f.Deletions,
			Status:    f.ChangeType,
		})
	}

	reviews := make([]models.Review, 0, len(w.Reviews.Nodes))
	var reviewComments []models.Comment
	for _, r := range w.Reviews.Nodes {
		reviews = append(reviews, models.Review{
			ID:          graphQLNodeID(r.ID),
			State:       r.State,
			Body:        r.Body,
			Author:      models.Actor{Login: r.Author.Login},
			SubmittedAt: r.SubmittedAt,
			CommitID:    r.Commit.OID,
		})

		reviewID := graphQLNodeID(r.ID)
		for _, rc := range r.Comments.Nodes {
			var inReplyTo *uint64
			if rc.ReplyTo != nil {
				id := graphQLNodeID(rc.ReplyTo.ID)
				inReplyTo = &id
			}
			reviewComments = append(reviewComments, models.Comment{
				ID:               graphQLNodeID(rc.ID),
				Body:             rc.Body,
				Author:           models.Actor{Login: rc.Author.Login},
				CreatedAt:        rc.CreatedAt,
				UpdatedAt:        rc.UpdatedAt,
				Path:             rc.Path,
				Position:         rc.Position,
				OriginalPosition: rc.OriginalPosition,
				DiffHunk:         rc.DiffHunk,
				InReplyToID:      inReplyTo,
				ReviewID:         &reviewID,
			})
		}
	}

	comments := make([]models.Comment, 0, len(w.Comments.Nodes))
	for _, c := range w.Comments.Nodes {
		comments = append(comments, models.Comment{
			ID:        graphQLNodeID(c.ID),
			Body:      c.Body,
			Author:    models.Actor{Login: c.Author.Login},
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		})
	}

	return &compoundResponse{
		PullRequest:    pr,
		Files:          files,
		Reviews:        reviews,
		IssueComments:  comments,
		ReviewComments: reviewComments,
	}
}
