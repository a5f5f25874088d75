package api

import (
	"encoding/json"
	"net/http"

	"github.com/lei/hybrid-capture/internal/models"
)

// RateLimitReporter is the subset of ratelimit.Governor the status handler
// reads.
type RateLimitReporter interface {
	GenerateReport() models.Report
}

// StorePinger is the subset of the store connection the health handler
// depends on.
type StorePinger interface {
	Ping() error
}

// Handlers holds the read-only collaborators the health/status surface
// reports against. Mutating operations (rollout update/stop/resume) are
// CLI-only; this surface never writes.
type Handlers struct {
	governor RateLimitReporter
	store    StorePinger
}

// NewHandlers creates a new handlers instance. store may be nil, in which
// case Health skips the connectivity check (used by tests that don't wire
// a database).
func NewHandlers(governor RateLimitReporter, store StorePinger) *Handlers {
	return &Handlers{governor: governor, store: store}
}

// Health handles liveness probe requests, reporting store connectivity
// alongside the process's own aliveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]string{"store": "skipped"}

	if h.store != nil {
		if err := h.store.Ping(); err != nil {
			status = "degraded"
			checks["store"] = "unreachable"
		} else {
			checks["store"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]any{"status": status, "checks": checks})
}

// Status handles GET /status, returning the Rate-Limit Governor's current
// in-memory report. This is informational only.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())
	report := h.governor.GenerateReport()

	if logger != nil {
		logger.Debug("status requested", "alert_count", len(report.Alerts))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
