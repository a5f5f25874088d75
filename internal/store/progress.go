package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lei/hybrid-capture/internal/models"
)

// ProgressStore persists progressive_capture_progress rows.
type ProgressStore struct {
	db *gorm.DB
}

// NewProgressStore wraps a *gorm.DB for progress persistence.
func NewProgressStore(db *gorm.DB) *ProgressStore { return &ProgressStore{db: db} }

// Init creates the progress row for a job with the known total; if the row
// already exists only total is overwritten, and processed/failed are kept.
func (s *ProgressStore) Init(ctx context.Context, jobID string, total int) error {
	row := ProgressRow{JobID: jobID, Total: total}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"total"}),
	}).Create(&row).Error
}

// RecordSuccess increments processed and updates the current item.
func (s *ProgressStore) RecordSuccess(ctx context.Context, jobID, currentItem string) error {
	return s.db.WithContext(ctx).Model(&ProgressRow{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{
			"processed":    gorm.Expr("processed + 1"),
			"current_item": currentItem,
		}).Error
}

// RecordFailure increments failed and appends a bounded recent-error entry.
// Runs inside a transaction with a row lock so concurrent item failures
// within the same job never lose an increment.
func (s *ProgressStore) RecordFailure(ctx context.Context, jobID string, entry ErrorEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ProgressRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("job_id = ?", jobID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = ProgressRow{JobID: jobID}
		} else if err != nil {
			return err
		}

		recent := append(row.RecentErrors, entry)
		if len(recent) > models.MaxRecentErrors {
			recent = recent[len(recent)-models.MaxRecentErrors:]
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"failed", "recent_errors", "current_item"}),
		}).Create(&ProgressRow{
			JobID:        jobID,
			Failed:       row.Failed + 1,
			RecentErrors: recent,
			CurrentItem:  entry.ItemID,
		}).Error
	})
}

// Get loads a single Progress row.
func (s *ProgressStore) Get(ctx context.Context, jobID string) (*models.Progress, error) {
	var row ProgressRow
	if err := s.db.WithContext(ctx).Where("job_id = ?", jobID).First(&row).Error; err != nil {
		return nil, err
	}

	errs := make([]models.ErrorRecord, 0, len(row.RecentErrors))
	for _, e := range row.RecentErrors {
		errs = append(errs, models.ErrorRecord{ItemID: e.ItemID, Message: e.Message, Timestamp: e.Timestamp})
	}

	return &models.Progress{
		JobID:        row.JobID,
		Total:        row.Total,
		Processed:    row.Processed,
		Failed:       row.Failed,
		CurrentItem:  row.CurrentItem,
		RecentErrors: errs,
	}, nil
}
