// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "barrierbot"

// JobRuns counts scheduled and manual passes by job and outcome
// (ok|error|skipped).
var JobRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Job passes by job name and outcome",
	},
	[]string{"job", "outcome"},
)

// JobDuration observes wall time of one pass.
var JobDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Duration of one job pass in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	},
	[]string{"job"},
)

// RecordsEvaluated counts positions examined per job.
var RecordsEvaluated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "records_evaluated_total",
		Help:      "Active positions examined by a job",
	},
	[]string{"job"},
)

// Transitions counts persisted status changes by target status.
var Transitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "positions",
		Name:      "transitions_total",
		Help:      "Persisted position transitions by resulting status",
	},
	[]string{"status"},
)

// Checkpoints counts persisted monthly checkpoints by payout kind.
var Checkpoints = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "positions",
		Name:      "checkpoints_total",
		Help:      "Persisted monthly checkpoints by payout kind",
	},
	[]string{"payout"},
)

// StaleUpdates counts compare-and-swap updates that lost to a concurrent
// writer.
var StaleUpdates = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "positions",
		Name:      "stale_updates_total",
		Help:      "Status updates skipped because the position changed underneath",
	},
	[]string{"job"},
)

// PriceFetchFailures counts oracle failures by market kind.
var PriceFetchFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "oracle",
		Name:      "fetch_failures_total",
		Help:      "Price fetch failures by market kind",
	},
	[]string{"market"},
)

// OracleCache counts quote cache lookups by result (hit|miss).
var OracleCache = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "oracle",
		Name:      "cache_lookups_total",
		Help:      "Quote cache lookups by result",
	},
	[]string{"result"},
)

// Notifications counts delivery attempts by sender and result (ok|error).
var Notifications = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "deliveries_total",
		Help:      "Notification deliveries by sender and result",
	},
	[]string{"sender", "result"},
)
