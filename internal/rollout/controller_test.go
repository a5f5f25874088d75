package rollout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lei/hybrid-capture/internal/models"
)

// fakeStore is an in-memory Store used for unit tests, following the
// hand-rolled-fake convention (no mocking library).
type fakeStore struct {
	mu      sync.Mutex
	configs map[string]models.RolloutConfiguration
	history map[string][]models.RolloutHistoryEntry
	nextID  uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		configs: make(map[string]models.RolloutConfiguration),
		history: make(map[string][]models.RolloutHistoryEntry),
	}
}

func (f *fakeStore) GetOrInit(ctx context.Context, feature string) (*models.RolloutConfiguration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cfg, ok := f.configs[feature]; ok {
		return &cfg, nil
	}
	cfg := models.RolloutConfiguration{
		Feature:    feature,
		Percentage: 0,
		Strategy:   models.StrategyPercentage,
		IsActive:   true,
		Whitelist:  map[uint64]struct{}{},
		UpdatedAt:  time.Now().UTC(),
	}
	f.configs[feature] = cfg
	return &cfg, nil
}

func (f *fakeStore) ApplyWithHistory(ctx context.Context, cfg models.RolloutConfiguration, entry models.RolloutHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[cfg.Feature] = cfg
	f.nextID++
	entry.ID = f.nextID
	f.history[entry.Feature] = append([]models.RolloutHistoryEntry{entry}, f.history[entry.Feature]...)
	return nil
}

func (f *fakeStore) History(ctx context.Context, feature string, limit int) ([]models.RolloutHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.history[feature]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]models.RolloutHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

type fakeRepoLookup struct {
	categories map[uint64]models.RepositorySizeCategory
}

func (f *fakeRepoLookup) SizeCategory(ctx context.Context, repositoryID uint64) (models.RepositorySizeCategory, error) {
	cat, ok := f.categories[repositoryID]
	if !ok {
		return "", errors.New("not found")
	}
	return cat, nil
}

func TestUpdateRejectsOutOfRangePercentage(t *testing.T) {
	c := New(newFakeStore(), nil, nil)
	ctx := context.Background()

	if _, err := c.Update(ctx, DefaultFeature, 101, "bad", "manual"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := c.Update(ctx, DefaultFeature, -1, "bad", "manual"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestUpdateRejectsWhenEmergencyStopped(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil, nil)
	ctx := context.Background()

	if _, err := c.Stop(ctx, DefaultFeature, "incident", "manual"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := c.Update(ctx, DefaultFeature, 50, "try again", "manual"); !errors.Is(err, ErrEmergencyStopped) {
		t.Fatalf("expected ErrEmergencyStopped, got %v", err)
	}
}

func TestUpdateAppliesAndRecordsHistory(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil, nil)
	ctx := context.Background()

	cfg, err := c.Update(ctx, DefaultFeature, 30, "ramp up", "manual")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if cfg.Percentage != 30 {
		t.Fatalf("expected percentage 30, got %d", cfg.Percentage)
	}

	history, err := c.History(ctx, DefaultFeature, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].NewPercentage != 30 || history[0].Action != models.ActionUpdated {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestStopThenResumeRoundTrips(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil, nil)
	ctx := context.Background()

	if _, err := c.Update(ctx, DefaultFeature, 40, "ramp", "manual"); err != nil {
		t.Fatalf("update: %v", err)
	}
	stopped, err := c.Stop(ctx, DefaultFeature, "incident", "manual")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !stopped.EmergencyStop || stopped.IsActive {
		t.Fatalf("expected stopped state, got %+v", stopped)
	}
	if stopped.EffectivePercentage() != 0 {
		t.Fatalf("expected effective percentage 0 while stopped, got %d", stopped.EffectivePercentage())
	}

	resumed, err := c.Resume(ctx, DefaultFeature, "resolved", "manual")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.EmergencyStop || !resumed.IsActive {
		t.Fatalf("expected resumed state, got %+v", resumed)
	}
	if resumed.Percentage != 40 {
		t.Fatalf("expected percentage preserved at 40, got %d", resumed.Percentage)
	}
}

func TestIsAllowedPercentageStrategyIsDeterministic(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil, nil)
	ctx := context.Background()

	if _, err := c.Update(ctx, DefaultFeature, 100, "full rollout", "manual"); err != nil {
		t.Fatalf("update: %v", err)
	}
	allowed, err := c.IsAllowed(ctx, DefaultFeature, 12345)
	if err != nil {
		t.Fatalf("isAllowed: %v", err)
	}
	if !allowed {
		t.Fatalf("expected repository allowed at 100%%")
	}

	if _, err := c.Update(ctx, DefaultFeature, 0, "roll back", "manual"); err != nil {
		t.Fatalf("update: %v", err)
	}
	allowed, err = c.IsAllowed(ctx, DefaultFeature, 12345)
	if err != nil {
		t.Fatalf("isAllowed: %v", err)
	}
	if allowed {
		t.Fatalf("expected repository disallowed at 0%%")
	}
}

func TestIsAllowedFalseWhenInactiveOrStopped(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil, nil)
	ctx := context.Background()

	if _, err := c.Update(ctx, DefaultFeature, 100, "full", "manual"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := c.Stop(ctx, DefaultFeature, "incident", "manual"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	allowed, err := c.IsAllowed(ctx, DefaultFeature, 1)
	if err != nil {
		t.Fatalf("isAllowed: %v", err)
	}
	if allowed {
		t.Fatalf("expected disallowed while emergency-stopped")
	}
}

func TestIsAllowedWhitelistStrategy(t *testing.T) {
	store := newFakeStore()
	cfg, _ := store.GetOrInit(context.Background(), DefaultFeature)
	cfg.Strategy = models.StrategyWhitelist
	cfg.Whitelist = map[uint64]struct{}{42: {}}
	store.configs[DefaultFeature] = *cfg

	c := New(store, nil, nil)
	ctx := context.Background()

	allowed, err := c.IsAllowed(ctx, DefaultFeature, 42)
	if err != nil || !allowed {
		t.Fatalf("expected whitelisted repository allowed, got %v err=%v", allowed, err)
	}
	allowed, err = c.IsAllowed(ctx, DefaultFeature, 99)
	if err != nil || allowed {
		t.Fatalf("expected non-whitelisted repository disallowed, got %v err=%v", allowed, err)
	}
}

func TestIsAllowedRepositorySizeStrategyStages(t *testing.T) {
	store := newFakeStore()
	cfg, _ := store.GetOrInit(context.Background(), DefaultFeature)
	cfg.Strategy = models.StrategyRepositorySize
	cfg.Percentage = 50
	store.configs[DefaultFeature] = *cfg

	repos := &fakeRepoLookup{categories: map[uint64]models.RepositorySizeCategory{
		1: models.CategoryTest,
		2: models.CategorySmall,
		3: models.CategoryMedium,
		4: models.CategoryLarge,
	}}
	c := New(store, repos, nil)
	ctx := context.Background()

	cases := []struct {
		repo    uint64
		allowed bool
	}{
		{1, true},  // test opens at 25
		{2, true},  // small opens at 50
		{3, false}, // medium opens at 75
		{4, false}, // large opens at 100
	}
	for _, tc := range cases {
		allowed, err := c.IsAllowed(ctx, DefaultFeature, tc.repo)
		if err != nil {
			t.Fatalf("isAllowed(%d): %v", tc.repo, err)
		}
		if allowed != tc.allowed {
			t.Fatalf("repo %d: expected allowed=%v, got %v", tc.repo, tc.allowed, allowed)
		}
	}
}

func TestRollbackSetsPercentageToZeroAndVerifies(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil, nil)
	ctx := context.Background()

	if _, err := c.Update(ctx, DefaultFeature, 80, "ramp", "manual"); err != nil {
		t.Fatalf("update: %v", err)
	}
	cfg, err := c.Rollback(ctx, DefaultFeature, "error rate spike")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if cfg.Percentage != 0 {
		t.Fatalf("expected rollback to zero percentage, got %d", cfg.Percentage)
	}

	history, _ := c.History(ctx, DefaultFeature, 1)
	if len(history) != 1 || history[0].Action != models.ActionRollback || history[0].TriggeredBy != "automated_health_check" {
		t.Fatalf("unexpected rollback history entry: %+v", history)
	}
}

func TestHealthMonitorCheckTriggersRollbackAboveThreshold(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil, nil)
	ctx := context.Background()
	if _, err := c.Update(ctx, DefaultFeature, 60, "ramp", "manual"); err != nil {
		t.Fatalf("update: %v", err)
	}

	monitor := NewHealthMonitor(c, stubErrorRate(0.5), 0.25, time.Minute, nil)
	if err := monitor.Check(ctx, DefaultFeature, CheckFull, false); err != nil {
		t.Fatalf("check: %v", err)
	}

	cfg, err := c.Query(ctx, DefaultFeature)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if cfg.Percentage != 0 {
		t.Fatalf("expected rollback to have fired, percentage=%d", cfg.Percentage)
	}
}

func TestHealthMonitorCheckSkipsBelowThreshold(t *testing.T) {
	store := newFakeStore()
	c := New(store, nil, nil)
	ctx := context.Background()
	if _, err := c.Update(ctx, DefaultFeature, 60, "ramp", "manual"); err != nil {
		t.Fatalf("update: %v", err)
	}

	monitor := NewHealthMonitor(c, stubErrorRate(0.05), 0.25, time.Minute, nil)
	if err := monitor.Check(ctx, DefaultFeature, CheckFull, false); err != nil {
		t.Fatalf("check: %v", err)
	}

	cfg, err := c.Query(ctx, DefaultFeature)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if cfg.Percentage != 60 {
		t.Fatalf("expected no rollback, percentage=%d", cfg.Percentage)
	}
}

type stubErrorRate float64

func (s stubErrorRate) ErrorRate(ctx context.Context, feature string) (float64, error) {
	return float64(s), nil
}
