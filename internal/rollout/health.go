package rollout

import (
	"context"
	"time"

	"github.com/lei/hybrid-capture/pkg/logger"
)

// JobErrorRates is the subset of job-row statistics the health collaborator
// reads; an implementer typically backs this with a windowed COUNT query
// against progressive_capture_jobs.
type JobErrorRates interface {
	// ErrorRate returns the fraction of jobs for feature that failed within
	// the trailing window the implementation defines.
	ErrorRate(ctx context.Context, feature string) (float64, error)
}

// CheckType mirrors the CHECK_TYPE environment values recognised by the
// health-collaborator entrypoint.
type CheckType string

const (
	CheckFull        CheckType = "full"
	CheckErrorRates  CheckType = "error_rates"
	CheckMetricsOnly CheckType = "metrics_only"
)

// HealthMonitor periodically reads in-flight job metrics and triggers an
// automated rollback when the error rate exceeds a configured threshold.
// It holds no mutable shared state beyond its own ticker; all gating state
// lives in the Controller's store.
type HealthMonitor struct {
	controller        *Controller
	jobs              JobErrorRates
	criticalErrorRate float64
	interval          time.Duration
	logger            *logger.Logger
}

// NewHealthMonitor wires a HealthMonitor. criticalErrorRate is the
// fraction (0,1] above which rollback fires, e.g. 0.25 for 25%.
func NewHealthMonitor(controller *Controller, jobs JobErrorRates, criticalErrorRate float64, interval time.Duration, log *logger.Logger) *HealthMonitor {
	return &HealthMonitor{
		controller:        controller,
		jobs:              jobs,
		criticalErrorRate: criticalErrorRate,
		interval:          interval,
		logger:            log,
	}
}

// Run blocks, checking every interval until ctx is cancelled.
func (m *HealthMonitor) Run(ctx context.Context, feature string) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Check(ctx, feature, CheckFull, false); err != nil {
				if m.logger != nil {
					m.logger.Error("rollout: health check failed", "feature", feature, "error", err)
				}
			}
		}
	}
}

// Check runs a single evaluation. force bypasses the error-rate threshold
// and always triggers rollback, mirroring FORCE_CHECK=true.
func (m *HealthMonitor) Check(ctx context.Context, feature string, checkType CheckType, force bool) error {
	if checkType == CheckMetricsOnly {
		return nil
	}

	if !force {
		rate, err := m.jobs.ErrorRate(ctx, feature)
		if err != nil {
			return err
		}
		if rate <= m.criticalErrorRate {
			return nil
		}
		if m.logger != nil {
			m.logger.Warn("rollout: error rate exceeded threshold, triggering rollback",
				"feature", feature, "error_rate", rate, "threshold", m.criticalErrorRate)
		}
	}

	_, err := m.controller.Rollback(ctx, feature, "automated health check: error rate exceeded threshold")
	return err
}
