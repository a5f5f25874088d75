// Package ratelimit tracks forge cost-budget consumption, predicts
// exhaustion and reports per-query-class efficiency. It is advisory: it
// records and reports, it does not itself refuse calls.
package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/pkg/logger"
)

// Thresholds control when Governor.track emits alerts.
type Thresholds struct {
	Warning    int     // remaining budget below this: warning alert
	Critical   int     // remaining budget below this: critical alert
	Efficiency float64 // cost/item above this: info alert
}

// DefaultThresholds returns the stock warning/critical/efficiency levels.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 1000, Critical: 100, Efficiency: 5}
}

// sampleWindow is how long a sample is kept before eviction.
const sampleWindow = 24 * time.Hour

// predictionWindow is how many trailing samples Predict averages over.
const predictionWindow = 10

// maxAlerts bounds the retained alert history.
const maxAlerts = 50

// Governor is a per-process shared object; its sample sequence requires
// mutual exclusion on writes, read-only access on reads.
type Governor struct {
	mu         sync.RWMutex
	samples    []models.RateLimitSample
	alerts     []models.Alert
	thresholds Thresholds
	logger     *logger.Logger
}

// New constructs a Governor with the default thresholds.
func New(log *logger.Logger) *Governor {
	return &Governor{
		thresholds: DefaultThresholds(),
		logger:     log,
	}
}

// SetThresholds replaces the active thresholds.
func (g *Governor) SetThresholds(t Thresholds) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.thresholds = t
}

// Track appends a sample, evicts stale entries, and may emit an alert.
// Non-suspending: pure in-memory bookkeeping.
func (g *Governor) Track(sample models.RateLimitSample) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.samples = append(g.samples, sample)
	g.evictLocked(sample.Timestamp)

	var errs error
	if alert, err := g.budgetAlertLocked(sample); err != nil {
		errs = multierr.Append(errs, err)
	} else if alert != nil {
		g.appendAlertLocked(*alert)
	}

	if alert, err := g.efficiencyAlertLocked(sample); err != nil {
		errs = multierr.Append(errs, err)
	} else if alert != nil {
		g.appendAlertLocked(*alert)
	}

	if errs != nil && g.logger != nil {
		g.logger.Warn("ratelimit: sample evaluation produced warnings",
			"query_type", sample.QueryType, "error", errs.Error())
	}
}

func (g *Governor) evictLocked(now time.Time) {
	cutoff := now.Add(-sampleWindow)
	i := 0
	for ; i < len(g.samples); i++ {
		if g.samples[i].Timestamp.After(cutoff) {
			break
		}
	}
	if i > 0 {
		g.samples = append([]models.RateLimitSample(nil), g.samples[i:]...)
	}
}

func (g *Governor) budgetAlertLocked(sample models.RateLimitSample) (*models.Alert, error) {
	if sample.Limit < 0 {
		return nil, fmt.Errorf("ratelimit: negative limit in sample for %s", sample.QueryType)
	}
	switch {
	case sample.Remaining < g.thresholds.Critical:
		return &models.Alert{
			Severity:  models.SeverityCritical,
			Message:   fmt.Sprintf("critical: only %d requests remaining", sample.Remaining),
			Timestamp: sample.Timestamp,
		}, nil
	case sample.Remaining < g.thresholds.Warning:
		return &models.Alert{
			Severity:  models.SeverityWarning,
			Message:   fmt.Sprintf("warning: %d requests remaining", sample.Remaining),
			Timestamp: sample.Timestamp,
		}, nil
	default:
		return nil, nil
	}
}

func (g *Governor) efficiencyAlertLocked(sample models.RateLimitSample) (*models.Alert, error) {
	if sample.ItemsProcessed < 0 {
		return nil, fmt.Errorf("ratelimit: negative items processed in sample for %s", sample.QueryType)
	}
	if sample.ItemsProcessed == 0 {
		return nil, nil
	}
	perItem := float64(sample.Cost) / float64(sample.ItemsProcessed)
	if perItem > g.thresholds.Efficiency {
		return &models.Alert{
			Severity:  models.SeverityInfo,
			Message:   fmt.Sprintf("query type %q cost %.2f points/item", sample.QueryType, perItem),
			Timestamp: sample.Timestamp,
		}, nil
	}
	return nil, nil
}

func (g *Governor) appendAlertLocked(alert models.Alert) {
	g.alerts = append(g.alerts, alert)
	if len(g.alerts) > maxAlerts {
		g.alerts = g.alerts[len(g.alerts)-maxAlerts:]
	}
}

// Predict extrapolates cost over queriesRemaining using the trailing
// prediction window.
func (g *Governor) Predict(queriesRemaining int) models.Prediction {
	g.mu.RLock()
	defer g.mu.RUnlock()

	window := g.samples
	if len(window) > predictionWindow {
		window = window[len(window)-predictionWindow:]
	}

	var totalCost float64
	for _, s := range window {
		totalCost += float64(s.Cost)
	}

	avg := 0.0
	if len(window) > 0 {
		avg = totalCost / float64(len(window))
	}

	remaining := 0
	if len(g.samples) > 0 {
		remaining = g.samples[len(g.samples)-1].Remaining
	}

	predicted := float64(queriesRemaining) * avg
	safe := 0
	if avg > 0 {
		safe = int(float64(remaining) / avg)
	}

	return models.Prediction{
		AverageCost:      avg,
		PredictedCost:    predicted,
		CurrentRemaining: remaining,
		WillExceedLimit:  predicted > float64(remaining),
		SafeQueries:      safe,
	}
}

// IsCritical reports whether the most recent sample is below the critical
// threshold; the Hybrid Forge Client MAY use this to refuse a call.
func (g *Governor) IsCritical() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.samples) == 0 {
		return false
	}
	return g.samples[len(g.samples)-1].Remaining < g.thresholds.Critical
}

// ResetHint returns the most recently observed budget reset time, used by
// a Capture Worker to bound how long it sleeps after a RateExhausted
// refusal. The zero time is returned when no sample carries a reset.
func (g *Governor) ResetHint() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for i := len(g.samples) - 1; i >= 0; i-- {
		if !g.samples[i].ResetAt.IsZero() {
			return g.samples[i].ResetAt
		}
	}
	return time.Time{}
}

// GenerateReport summarises current efficiency, alerts and derived
// recommendations.
func (g *Governor) GenerateReport() models.Report {
	g.mu.RLock()
	defer g.mu.RUnlock()

	costByType := map[string]float64{}
	countByType := map[string]int{}
	var totalCost, totalItems float64
	var remaining int
	for _, s := range g.samples {
		costByType[s.QueryType] += float64(s.Cost)
		countByType[s.QueryType]++
		totalCost += float64(s.Cost)
		totalItems += float64(s.ItemsProcessed)
		remaining = s.Remaining
	}

	efficiency := 0.0
	if totalItems > 0 {
		efficiency = totalCost / totalItems
	}

	recs := g.recommendationsLocked(costByType, countByType, efficiency, remaining)

	alerts := append([]models.Alert(nil), g.alerts...)

	return models.Report{
		Summary:         fmt.Sprintf("%d samples tracked, %d alerts active", len(g.samples), len(alerts)),
		Efficiency:      efficiency,
		Alerts:          alerts,
		Recommendations: recs,
	}
}

func (g *Governor) recommendationsLocked(costByType map[string]float64, countByType map[string]int, efficiency float64, remaining int) []models.Recommendation {
	var recs []models.Recommendation

	if efficiency > 3 {
		recs = append(recs, models.Recommendation{
			Message:  "prefer compound queries to reduce points",
			Priority: models.PriorityHigh,
		})
	}

	var highCost []string
	for qt, cost := range costByType {
		if countByType[qt] == 0 {
			continue
		}
		avg := cost / float64(countByType[qt])
		if avg > 10 {
			highCost = append(highCost, qt)
		}
	}
	if len(highCost) > 0 {
		sort.Strings(highCost)
		recs = append(recs, models.Recommendation{
			Message:  fmt.Sprintf("high-cost queries: %v", highCost),
			Priority: models.PriorityMedium,
		})
	}

	if remaining < 500 {
		recs = append(recs, models.Recommendation{
			Message:  "throttle or switch to fine-grained path",
			Priority: models.PriorityCritical,
		})
	}

	return recs
}
