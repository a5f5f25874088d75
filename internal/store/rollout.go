package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lei/hybrid-capture/internal/models"
)

// ErrConfigNotFound is returned when a feature has no configuration row yet.
var ErrConfigNotFound = errors.New("store: rollout configuration not found")

// RolloutStore persists rollout_configuration and rollout_history.
// update-then-append-history is serialised through a single transaction so
// the two either both succeed or neither does.
type RolloutStore struct {
	db *gorm.DB
}

// NewRolloutStore wraps a *gorm.DB for rollout persistence.
func NewRolloutStore(db *gorm.DB) *RolloutStore { return &RolloutStore{db: db} }

// GetOrInit loads a feature's configuration, creating the initial
// (active=true, stop=false, percentage=0) row if none exists.
func (s *RolloutStore) GetOrInit(ctx context.Context, feature string) (*models.RolloutConfiguration, error) {
	var row RolloutConfigurationRow
	err := s.db.WithContext(ctx).Where("feature = ?", feature).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = RolloutConfigurationRow{
			Feature:    feature,
			Percentage: 0,
			Strategy:   string(models.StrategyPercentage),
			IsActive:   true,
			UpdatedAt:  time.Now().UTC(),
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return fromConfigRow(&row), nil
}

// ApplyWithHistory writes the new configuration row and appends a history
// entry atomically.
func (s *RolloutStore) ApplyWithHistory(ctx context.Context, cfg models.RolloutConfiguration, entry models.RolloutHistoryEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := toConfigRow(cfg)
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "feature"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"percentage", "strategy", "emergency_stop", "is_active", "whitelist", "updated_at",
			}),
		}).Create(row).Error; err != nil {
			return err
		}

		historyRow := RolloutHistoryRow{
			Feature:            entry.Feature,
			Action:             string(entry.Action),
			PreviousPercentage: entry.PreviousPercentage,
			NewPercentage:      entry.NewPercentage,
			Reason:             entry.Reason,
			TriggeredBy:        entry.TriggeredBy,
			CreatedAt:          entry.CreatedAt,
		}
		return tx.Create(&historyRow).Error
	})
}

// History returns the most recent limit entries, newest first.
func (s *RolloutStore) History(ctx context.Context, feature string, limit int) ([]models.RolloutHistoryEntry, error) {
	var rows []RolloutHistoryRow
	q := s.db.WithContext(ctx).Where("feature = ?", feature).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]models.RolloutHistoryEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, models.RolloutHistoryEntry{
			ID:                 r.ID,
			Feature:            r.Feature,
			Action:             models.RolloutAction(r.Action),
			PreviousPercentage: r.PreviousPercentage,
			NewPercentage:      r.NewPercentage,
			Reason:             r.Reason,
			TriggeredBy:        r.TriggeredBy,
			CreatedAt:          r.CreatedAt,
		})
	}
	return entries, nil
}

func toConfigRow(cfg models.RolloutConfiguration) *RolloutConfigurationRow {
	whitelist := make([]uint64, 0, len(cfg.Whitelist))
	for id := range cfg.Whitelist {
		whitelist = append(whitelist, id)
	}
	return &RolloutConfigurationRow{
		Feature:       cfg.Feature,
		Percentage:    cfg.Percentage,
		Strategy:      string(cfg.Strategy),
		EmergencyStop: cfg.EmergencyStop,
		IsActive:      cfg.IsActive,
		Whitelist:     whitelist,
		UpdatedAt:     cfg.UpdatedAt,
	}
}

func fromConfigRow(row *RolloutConfigurationRow) *models.RolloutConfiguration {
	whitelist := make(map[uint64]struct{}, len(row.Whitelist))
	for _, id := range row.Whitelist {
		whitelist[id] = struct{}{}
	}
	return &models.RolloutConfiguration{
		Feature:       row.Feature,
		Percentage:    row.Percentage,
		Strategy:      models.RolloutStrategy(row.Strategy),
		EmergencyStop: row.EmergencyStop,
		IsActive:      row.IsActive,
		Whitelist:     whitelist,
		UpdatedAt:     row.UpdatedAt,
	}
}
