package router

import (
	"testing"

	"github.com/lei/hybrid-capture/internal/models"
)

func TestClassifyTimeRangeWins(t *testing.T) {
	got := Classify(models.JobData{TimeRangeDays: 1})
	if got != models.BackendLowLatency {
		t.Fatalf("expected low-latency for timeRangeDays<=1, got %v", got)
	}
}

func TestClassifySmallPRList(t *testing.T) {
	got := Classify(models.JobData{PRNumbers: []int{1, 2, 3}})
	if got != models.BackendLowLatency {
		t.Fatalf("expected low-latency for <=10 PRs, got %v", got)
	}
}

func TestClassifyManualTrigger(t *testing.T) {
	got := Classify(models.JobData{TriggerSource: models.TriggerManual})
	if got != models.BackendLowLatency {
		t.Fatalf("expected low-latency for manual trigger, got %v", got)
	}
}

func TestClassifyDefaultsToBatch(t *testing.T) {
	got := Classify(models.JobData{TimeRangeDays: 30, TriggerSource: models.TriggerScheduled})
	if got != models.BackendBatch {
		t.Fatalf("expected batch, got %v", got)
	}
}

func TestClassifyLargePRListWithoutOtherSignalsIsBatch(t *testing.T) {
	prs := make([]int, 11)
	for i := range prs {
		prs[i] = i + 1
	}
	got := Classify(models.JobData{PRNumbers: prs, TriggerSource: models.TriggerScheduled, TimeRangeDays: 30})
	if got != models.BackendBatch {
		t.Fatalf("expected batch for >10 PRs with no other signal, got %v", got)
	}
}
