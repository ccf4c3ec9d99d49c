// Package metrics holds the Prometheus collectors of the quiz engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsStarted counts attempts entering Active, by mode: fresh/resumed.
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_client_sessions_started_total",
			Help: "Quiz attempts started or resumed",
		},
		[]string{"mode"},
	)

	// StartFailures counts start requests rejected by the server.
	StartFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_client_start_failures_total",
			Help: "Start requests the server rejected",
		},
	)

	// Confirmations counts per-question acknowledgments, by status: ok/failed.
	Confirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_client_confirmations_total",
			Help: "Per-question answer confirmations",
		},
		[]string{"status"},
	)

	// Submissions counts final submissions by trigger (manual/timeout) and status.
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_client_submissions_total",
			Help: "Final quiz submissions",
		},
		[]string{"trigger", "status"},
	)

	// StorageErrors counts local persistence failures by operation.
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_client_storage_errors_total",
			Help: "Local session store failures",
		},
		[]string{"op"},
	)

	// SubmitLatency observes submission round-trip time.
	SubmitLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiz_client_submit_duration_seconds",
			Help:    "Time spent submitting a quiz",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)
)
