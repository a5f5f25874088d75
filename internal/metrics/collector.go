// Package metrics exposes the Rate-Limit Governor's report and the Hybrid
// Forge Client's query counters as Prometheus gauges, additive to the
// in-memory report neither component's own contract depends on.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lei/hybrid-capture/internal/forgeclient"
	"github.com/lei/hybrid-capture/internal/models"
)

// GovernorReporter is the subset of ratelimit.Governor the collector reads.
type GovernorReporter interface {
	GenerateReport() models.Report
}

// ForgeMetricsReporter is the subset of forgeclient.HybridClient the
// collector reads.
type ForgeMetricsReporter interface {
	GetMetrics() forgeclient.Snapshot
}

// Register attaches GaugeFunc collectors that pull live values from gov and
// forge at scrape time, rather than pushing updates on every sample — the
// Governor and Hybrid Forge Client remain the source of truth and never
// import this package.
func Register(reg prometheus.Registerer, gov GovernorReporter, forge ForgeMetricsReporter) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "hybrid_capture_rate_limit_efficiency",
			Help: "Points spent per item processed, from the Rate-Limit Governor's current report.",
		}, func() float64 { return gov.GenerateReport().Efficiency }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "hybrid_capture_rate_limit_active_alerts",
			Help: "Number of alerts currently retained by the Rate-Limit Governor.",
		}, func() float64 { return float64(len(gov.GenerateReport().Alerts)) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "hybrid_capture_forge_compound_queries_total",
			Help: "Compound-path queries served by the Hybrid Forge Client.",
		}, func() float64 { return float64(forge.GetMetrics().CompoundQueries) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "hybrid_capture_forge_fine_grained_queries_total",
			Help: "Fine-grained-path queries served by the Hybrid Forge Client.",
		}, func() float64 { return float64(forge.GetMetrics().FineGrainedQueries) }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "hybrid_capture_forge_fallback_rate",
			Help: "Fraction of compound-path attempts that fell back to the fine-grained path.",
		}, func() float64 { return forge.GetMetrics().FallbackRate }),

		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "hybrid_capture_forge_points_saved_total",
			Help: "Rate-limit points saved by preferring compound queries.",
		}, func() float64 { return float64(forge.GetMetrics().TotalPointsSaved) }),
	)
}
