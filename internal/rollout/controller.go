// Package rollout implements deterministic feature gating for the hybrid
// capture path: percentage/whitelist/repository-size strategies, an
// append-only audit log, and automated emergency rollback.
package rollout

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/pkg/logger"
)

// Store is the persistence surface the Controller depends on; satisfied by
// *store.RolloutStore, narrowed here so the Controller can be tested
// without a database.
type Store interface {
	GetOrInit(ctx context.Context, feature string) (*models.RolloutConfiguration, error)
	ApplyWithHistory(ctx context.Context, cfg models.RolloutConfiguration, entry models.RolloutHistoryEntry) error
	History(ctx context.Context, feature string, limit int) ([]models.RolloutHistoryEntry, error)
}

// RepositoryLookup resolves a repository's size category for the
// repository_size strategy.
type RepositoryLookup interface {
	SizeCategory(ctx context.Context, repositoryID uint64) (models.RepositorySizeCategory, error)
}

// categoryThresholds maps the staged repository_size strategy's opening
// percentages. A category is "opened" once the feature's percentage
// crosses its threshold.
var categoryThresholds = map[models.RepositorySizeCategory]int{
	models.CategoryTest:   25,
	models.CategorySmall:  50,
	models.CategoryMedium: 75,
	models.CategoryLarge:  100,
}

// Controller is the Rollout Controller: gates traffic by feature and
// repository, and records every change it makes.
type Controller struct {
	store  Store
	repos  RepositoryLookup
	logger *logger.Logger
}

// New wires a Controller against its store and repository lookup.
func New(store Store, repos RepositoryLookup, log *logger.Logger) *Controller {
	return &Controller{store: store, repos: repos, logger: log}
}

// Query returns the feature's live configuration, creating it on first use.
func (c *Controller) Query(ctx context.Context, feature string) (*models.RolloutConfiguration, error) {
	return c.store.GetOrInit(ctx, feature)
}

// Update validates and applies a new percentage, appending a history entry
// atomically with the configuration write.
func (c *Controller) Update(ctx context.Context, feature string, newPercentage int, reason, triggeredBy string) (*models.RolloutConfiguration, error) {
	if newPercentage < 0 || newPercentage > 100 {
		return nil, ErrInvalidArgument
	}

	current, err := c.store.GetOrInit(ctx, feature)
	if err != nil {
		return nil, err
	}
	if current.EmergencyStop {
		return nil, ErrEmergencyStopped
	}

	now := time.Now().UTC()
	next := *current
	next.Percentage = newPercentage
	next.UpdatedAt = now

	entry := models.RolloutHistoryEntry{
		Feature:            feature,
		Action:             models.ActionUpdated,
		PreviousPercentage: current.Percentage,
		NewPercentage:      newPercentage,
		Reason:             reason,
		TriggeredBy:        triggeredBy,
		CreatedAt:          now,
	}

	if err := c.store.ApplyWithHistory(ctx, next, entry); err != nil {
		return nil, err
	}
	return &next, nil
}

// Stop sets emergency_stop and deactivates the feature.
func (c *Controller) Stop(ctx context.Context, feature, reason, triggeredBy string) (*models.RolloutConfiguration, error) {
	current, err := c.store.GetOrInit(ctx, feature)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next := *current
	next.EmergencyStop = true
	next.IsActive = false
	next.UpdatedAt = now

	entry := models.RolloutHistoryEntry{
		Feature:            feature,
		Action:             models.ActionStop,
		PreviousPercentage: current.Percentage,
		NewPercentage:      current.Percentage,
		Reason:             reason,
		TriggeredBy:        triggeredBy,
		CreatedAt:          now,
	}

	if err := c.store.ApplyWithHistory(ctx, next, entry); err != nil {
		return nil, err
	}
	return &next, nil
}

// Resume clears emergency_stop and reactivates the feature.
func (c *Controller) Resume(ctx context.Context, feature, reason, triggeredBy string) (*models.RolloutConfiguration, error) {
	current, err := c.store.GetOrInit(ctx, feature)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next := *current
	next.EmergencyStop = false
	next.IsActive = true
	next.UpdatedAt = now

	entry := models.RolloutHistoryEntry{
		Feature:            feature,
		Action:             models.ActionResume,
		PreviousPercentage: current.Percentage,
		NewPercentage:      current.Percentage,
		Reason:             reason,
		TriggeredBy:        triggeredBy,
		CreatedAt:          now,
	}

	if err := c.store.ApplyWithHistory(ctx, next, entry); err != nil {
		return nil, err
	}
	return &next, nil
}

// History returns up to limit past entries, newest first.
func (c *Controller) History(ctx context.Context, feature string, limit int) ([]models.RolloutHistoryEntry, error) {
	return c.store.History(ctx, feature, limit)
}

// IsAllowed computes gating freshly from the live configuration.
func (c *Controller) IsAllowed(ctx context.Context, feature string, repositoryID uint64) (bool, error) {
	cfg, err := c.store.GetOrInit(ctx, feature)
	if err != nil {
		return false, err
	}
	if !cfg.IsActive || cfg.EmergencyStop {
		return false, nil
	}

	switch cfg.Strategy {
	case models.StrategyWhitelist:
		_, ok := cfg.Whitelist[repositoryID]
		return ok, nil

	case models.StrategyRepositorySize:
		if c.repos == nil {
			return false, fmt.Errorf("rollout: repository_size strategy requires a RepositoryLookup")
		}
		category, err := c.repos.SizeCategory(ctx, repositoryID)
		if err != nil {
			return false, err
		}
		threshold, ok := categoryThresholds[category]
		if !ok {
			return false, nil
		}
		return cfg.Percentage >= threshold, nil

	default: // StrategyPercentage
		h := stableHash(feature, repositoryID)
		return h < uint64(cfg.Percentage), nil
	}
}

// stableHash reduces "feature:repositoryId" to [0,100) via xxhash, chosen
// for being a fast, well-specified, language-portable 64-bit hash (the same
// choice backs cache/shard keys elsewhere in this stack).
func stableHash(feature string, repositoryID uint64) uint64 {
	key := fmt.Sprintf("%s:%d", feature, repositoryID)
	return xxhash.Sum64String(key) % 100
}

// Rollback writes percentage 0 with triggered-by "automated_health_check",
// followed by a read-back verification that the effective percentage is 0.
// Unlike Update(feature, 0, reason) it also writes when the feature is
// emergency-stopped, and it records the history action "rollback".
func (c *Controller) Rollback(ctx context.Context, feature, reason string) (*models.RolloutConfiguration, error) {
	cfg, err := c.rollbackUpdate(ctx, feature, reason)
	if err != nil {
		return nil, err
	}
	if err := c.Verify(ctx, feature, 0); err != nil {
		if c.logger != nil {
			c.logger.Error("rollout: rollback verify mismatch", "feature", feature, "error", err)
		}
		return nil, err
	}
	return cfg, nil
}

// rollbackUpdate performs the percentage-0 write; it bypasses the
// EmergencyStopped guard in Update since a prior stop should never block an
// automated safety rollback from also recording a zero-percentage update.
func (c *Controller) rollbackUpdate(ctx context.Context, feature, reason string) (*models.RolloutConfiguration, error) {
	current, err := c.store.GetOrInit(ctx, feature)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next := *current
	next.Percentage = 0
	next.UpdatedAt = now

	entry := models.RolloutHistoryEntry{
		Feature:            feature,
		Action:             models.ActionRollback,
		PreviousPercentage: current.Percentage,
		NewPercentage:      0,
		Reason:             reason,
		TriggeredBy:        "automated_health_check",
		CreatedAt:          now,
	}

	if err := c.store.ApplyWithHistory(ctx, next, entry); err != nil {
		return nil, err
	}
	return &next, nil
}

// Verify reads back the configuration and confirms its effective percentage
// matches expected.
func (c *Controller) Verify(ctx context.Context, feature string, expectedPercentage int) error {
	cfg, err := c.store.GetOrInit(ctx, feature)
	if err != nil {
		return err
	}
	if cfg.EffectivePercentage() != expectedPercentage {
		return fmt.Errorf("%w: feature %q expected %d, got %d",
			ErrVerifyMismatch, feature, expectedPercentage, cfg.EffectivePercentage())
	}
	return nil
}
