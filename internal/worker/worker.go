// Package worker implements Capture Workers: one per job-kind, each
// transforming forge reads into row upserts while updating a progress row,
// following a shared per-item error-handling policy.
package worker

import (
	"context"
	"strconv"
	"time"

	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/pkg/logger"
)

// maxConsecutiveFailures aborts a Job once this many items in a row fail.
const maxConsecutiveFailures = 10

// rateExhaustedCeiling bounds the sleep-and-retry wait when the governor
// refuses a call.
const rateExhaustedCeiling = time.Minute

// JobStore is the subset of store.JobStore a worker depends on.
type JobStore interface {
	MarkProcessing(ctx context.Context, jobID string) error
	MarkTerminal(ctx context.Context, jobID string, status models.JobStatus, lastError string) error
}

// ProgressStore is the subset of store.ProgressStore a worker depends on.
type ProgressStore interface {
	Init(ctx context.Context, jobID string, total int) error
	RecordSuccess(ctx context.Context, jobID, currentItem string) error
	RecordFailure(ctx context.Context, jobID string, entry ErrorEntry) error
}

// ErrorEntry mirrors store.ErrorEntry without importing the store package
// directly, keeping this package persistence-agnostic.
type ErrorEntry struct {
	ItemID    string
	Message   string
	Timestamp time.Time
}

// RateLimitGate lets a worker apply the RateExhausted sleep-then-retry
// policy using the same governor the forge client consults.
type RateLimitGate interface {
	IsCritical() bool
	ResetHint() time.Time
}

// base holds the collaborators every Capture Worker variant shares.
type base struct {
	jobs     JobStore
	progress ProgressStore
	gate     RateLimitGate
	logger   *logger.Logger
}

// runLoop drives the shared per-item lifecycle: mark processing, resolve
// items, process each sequentially applying the error-handling policy
// table, and mark the Job terminal. processItem is supplied by the
// concrete worker and returns a classified error (see errors.go).
func (b *base) runLoop(ctx context.Context, job *models.Job, items []int, processItem func(ctx context.Context, prNumber int) error) error {
	if err := b.jobs.MarkProcessing(ctx, job.ID); err != nil {
		return err
	}
	if err := b.progress.Init(ctx, job.ID, len(items)); err != nil {
		return err
	}

	consecutiveFailures := 0
	for _, prNumber := range items {
		if ctx.Err() != nil {
			return b.abort(ctx, job, "cancelled")
		}

		if err := b.processWithPolicy(ctx, job, prNumber, processItem); err != nil {
			consecutiveFailures++
			if consecutiveFailures >= maxConsecutiveFailures {
				return b.abort(ctx, job, "too many consecutive failures")
			}
			continue
		}
		consecutiveFailures = 0
	}

	return b.jobs.MarkTerminal(ctx, job.ID, models.JobStatusCompleted, "")
}

func (b *base) abort(ctx context.Context, job *models.Job, reason string) error {
	_ = b.jobs.MarkTerminal(context.WithoutCancel(ctx), job.ID, models.JobStatusFailed, reason)
	return nil
}

// processWithPolicy applies the shared error taxonomy to a single item,
// recording progress accordingly. A nil return means the item succeeded or
// was recorded as a tolerated failure that does not count toward the
// consecutive-failure ceiling's caller contract beyond what is returned.
func (b *base) processWithPolicy(ctx context.Context, job *models.Job, prNumber int, processItem func(ctx context.Context, prNumber int) error) error {
	itemID := itemIDFor(prNumber)

	err := b.callWithTransportRetry(ctx, prNumber, processItem)
	switch {
	case err == nil:
		return b.progress.RecordSuccess(ctx, job.ID, itemID)

	case IsNotFound(err):
		_ = b.progress.RecordFailure(ctx, job.ID, ErrorEntry{ItemID: itemID, Message: "not found", Timestamp: time.Now().UTC()})
		return nil // NotFound does not count toward consecutive failures

	case IsRateExhausted(err):
		b.sleepForRateLimit(ctx)
		if retryErr := processItem(ctx, prNumber); retryErr == nil {
			return b.progress.RecordSuccess(ctx, job.ID, itemID)
		}
		_ = b.progress.RecordFailure(ctx, job.ID, ErrorEntry{ItemID: itemID, Message: "rate exhausted", Timestamp: time.Now().UTC()})
		return err

	case IsStoreConflict(err):
		// Idempotent: treated as success.
		return b.progress.RecordSuccess(ctx, job.ID, itemID)

	default:
		if b.logger != nil {
			b.logger.Warn("worker: item failed", "job_id", job.ID, "item_id", itemID, "error", err)
		}
		_ = b.progress.RecordFailure(ctx, job.ID, ErrorEntry{ItemID: itemID, Message: err.Error(), Timestamp: time.Now().UTC()})
		return err
	}
}

// callWithTransportRetry applies up to 2 retries with exponential
// back-off (1s, 4s) for Transport-classified errors.
func (b *base) callWithTransportRetry(ctx context.Context, prNumber int, processItem func(ctx context.Context, prNumber int) error) error {
	err := processItem(ctx, prNumber)
	if err == nil || !IsTransport(err) {
		return err
	}

	delays := []time.Duration{time.Second, 4 * time.Second}
	for _, d := range delays {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
		err = processItem(ctx, prNumber)
		if err == nil || !IsTransport(err) {
			return err
		}
	}
	return err
}

// sleepForRateLimit waits until the governor's resetAt hint or one minute,
// whichever is sooner.
func (b *base) sleepForRateLimit(ctx context.Context) {
	wait := rateExhaustedCeiling
	if b.gate != nil {
		if reset := b.gate.ResetHint(); !reset.IsZero() {
			if until := time.Until(reset); until > 0 && until < wait {
				wait = until
			}
		}
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func itemIDFor(prNumber int) string {
	return "pr-" + strconv.Itoa(prNumber)
}
