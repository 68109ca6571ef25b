// Package metrics defines the Prometheus instrumentation shared across the
// service. Collectors are registered on the default registry; the server
// exposes them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IncidentParses counts incident-summary parse terminations by outcome:
	// success, exhausted, callback_failed.
	IncidentParses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plotline",
		Subsystem: "incident",
		Name:      "parses_total",
		Help:      "Incident summary parse terminations by outcome.",
	}, []string{"outcome"})

	// RepairAttempts counts repair callbacks issued by the incident loop.
	RepairAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plotline",
		Subsystem: "incident",
		Name:      "repair_attempts_total",
		Help:      "Repair callbacks issued while parsing incident summaries.",
	})

	// ChartResolutions counts chart spec resolutions by chart type and
	// outcome: ok, unresolved_columns, unsupported_type.
	ChartResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plotline",
		Subsystem: "chart",
		Name:      "resolutions_total",
		Help:      "Chart spec resolutions by chart type and outcome.",
	}, []string{"type", "outcome"})

	// AnalyzeRequests counts analyze API requests by result:
	// ok, bad_request, llm_error.
	AnalyzeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plotline",
		Subsystem: "server",
		Name:      "analyze_requests_total",
		Help:      "Analyze requests by result.",
	}, []string{"result"})
)
