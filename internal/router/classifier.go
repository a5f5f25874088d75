package router

import "github.com/lei/hybrid-capture/internal/models"

// Classify implements the routing algorithm of §4.1: a request is
// low-latency iff any of (a) timeRangeDays<=1, (b) prNumbers is non-empty
// and has at most 10 entries, (c) triggerSource is manual. Conditions are
// evaluated in order and the first match wins; classification does not
// consult the rollout gate.
func Classify(data models.JobData) models.Backend {
	if data.TimeRangeDays > 0 && data.TimeRangeDays <= 1 {
		return models.BackendLowLatency
	}
	if len(data.PRNumbers) > 0 && len(data.PRNumbers) <= 10 {
		return models.BackendLowLatency
	}
	if data.TriggerSource == models.TriggerManual {
		return models.BackendLowLatency
	}
	return models.BackendBatch
}
