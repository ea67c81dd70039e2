// Package telemetry provides application-level observability for the module hub.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by cmd/hub in worker mode:
//
//	GET http://<host>:<MODHUB_TELEMETRY_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint returns data in the Prometheus text
// exposition format and is intended to be scraped every 15–60 seconds.
//
// # Metric Groups
//
//   - Catalog query counters and latency histograms (search + suggest)
//   - Submission lifecycle counters, labelled by outcome
//   - Stats refresh counters, labelled by result
//   - Hosting API request counters, labelled by operation and status class
//
// # Label Cardinality
//
// Hosting API metrics are labelled by operation name (e.g. "create_pull"),
// never by repository id, to keep cardinality bounded regardless of how many
// modules the catalog holds.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Catalog query metrics.
//
// SearchQueriesTotal counts FT searches issued by ListModules, labelled by
// the sort key actually applied ("none" when unsorted).
//
// Example PromQL:
//   - Query rate:        rate(hub_search_queries_total[5m])
//   - Sort popularity:   sum by (sort) (hub_search_queries_total)
var (
	SearchQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_search_queries_total",
			Help: "Total number of module list/search queries, by sort key.",
		},
		[]string{"sort"},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hub_search_duration_seconds",
			Help:    "Histogram of end-to-end ListModules latency (search + document fetch).",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	SuggestRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_suggest_requests_total",
			Help: "Total number of autocomplete suggestion lookups.",
		},
	)
)

// Submission lifecycle metrics.
//
// SubmissionsTotal is incremented once per Submit call, labelled by outcome:
// "queued", "rejected_disabled", "rejected_listed", "rejected_active",
// "rejected_invalid", or "unscheduled" (document created but job enqueue failed).
//
// SubmissionProcessTotal is incremented once per processing attempt that
// reaches a terminal decision, labelled "finished" or "failed". Attempts
// returned to the queue for retry are not counted.
var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_submissions_total",
			Help: "Total number of module submission attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	SubmissionProcessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_submission_process_total",
			Help: "Total number of submission processing runs that reached a terminal state, by result.",
		},
		[]string{"result"},
	)
)

// Stats refresh metrics, labelled "updated", "skipped" (unsupported repository
// type), or "error".
var StatsRefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hub_stats_refresh_total",
		Help: "Total number of per-module stats refresh runs, by result.",
	},
	[]string{"result"},
)

// Hosting API metrics, labelled by operation name and HTTP status class
// ("2xx", "4xx", "5xx", "error" for transport failures).
var HostingRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hub_hosting_api_requests_total",
		Help: "Total number of hosting API requests, by operation and status class.",
	},
	[]string{"operation", "status"},
)

// StatusClass buckets an HTTP status code for the HostingRequestsTotal label.
// A zero code (transport failure before any response) maps to "error".
func StatusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "error"
	}
}
