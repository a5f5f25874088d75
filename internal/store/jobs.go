package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/lei/hybrid-capture/internal/models"
)

// ErrJobNotFound is returned when a Job id has no matching row.
var ErrJobNotFound = errors.New("store: job not found")

// JobStore persists progressive_capture_jobs rows. Jobs and Progress are
// exclusively owned by the back-end that created them.
type JobStore struct {
	db *gorm.DB
}

// NewJobStore wraps a *gorm.DB for job persistence.
func NewJobStore(db *gorm.DB) *JobStore { return &JobStore{db: db} }

// Create inserts a new Job row with status pending.
func (s *JobStore) Create(ctx context.Context, job *models.Job) error {
	row := toJobRow(job)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	return nil
}

// MarkProcessing transitions status to processing and sets StartedAt.
func (s *JobStore) MarkProcessing(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&JobRow{}).
		Where("id = ?", jobID).
		Updates(map[string]any{"status": string(models.JobStatusProcessing), "started_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkTerminal transitions status to completed or failed and sets
// CompletedAt + LastError.
func (s *JobStore) MarkTerminal(ctx context.Context, jobID string, status models.JobStatus, lastError string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&JobRow{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":       string(status),
			"completed_at": now,
			"last_error":   lastError,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// SetExternalRunID records the batch back-end's opaque run id.
func (s *JobStore) SetExternalRunID(ctx context.Context, jobID, runID string) error {
	res := s.db.WithContext(ctx).Model(&JobRow{}).
		Where("id = ?", jobID).
		Update("external_run_id", runID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Get loads a single Job row.
func (s *JobStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	var row JobRow
	err := s.db.WithContext(ctx).Where("id = ?", jobID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromJobRow(&row), nil
}

func toJobRow(job *models.Job) *JobRow {
	meta := map[string]any{}
	for k, v := range job.Metadata {
		meta[k] = v
	}
	return &JobRow{
		ID:             job.ID,
		Kind:           string(job.Kind),
		RepositoryID:   job.RepositoryID,
		RepositoryName: job.RepositoryName,
		Backend:        string(job.Backend),
		Status:         string(job.Status),
		ExternalRunID:  job.ExternalRunID,
		TimeRangeDays:  job.TimeRangeDays,
		Metadata:       meta,
		LastError:      job.LastError,
		CreatedAt:      job.CreatedAt,
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
	}
}

func fromJobRow(row *JobRow) *models.Job {
	meta := map[string]any{}
	for k, v := range row.Metadata {
		meta[k] = v
	}
	return &models.Job{
		ID:             row.ID,
		Kind:           models.JobKind(row.Kind),
		RepositoryID:   row.RepositoryID,
		RepositoryName: row.RepositoryName,
		Backend:        models.Backend(row.Backend),
		Status:         models.JobStatus(row.Status),
		ExternalRunID:  row.ExternalRunID,
		TimeRangeDays:  row.TimeRangeDays,
		Metadata:       meta,
		LastError:      row.LastError,
		CreatedAt:      row.CreatedAt,
		StartedAt:      row.StartedAt,
		CompletedAt:    row.CompletedAt,
	}
}
