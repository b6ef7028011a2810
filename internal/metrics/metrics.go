// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store Metrics
	StoreWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worktime_store_write_duration_seconds",
			Help:    "Duration of write-through flushes to the embedded store",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
		},
		[]string{"namespace"},
	)

	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktime_store_writes_total",
			Help: "Total number of store writes",
		},
		[]string{"namespace", "op"}, // op: put, remove
	)

	StoreGCRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worktime_store_gc_runs_total",
			Help: "Total number of value log GC runs",
		},
	)

	RetentionDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worktime_retention_discarded_total",
			Help: "Total number of ended intervals discarded by the retention sweep",
		},
	)

	// Tracking Metrics
	IntervalsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worktime_intervals_started_total",
			Help: "Total number of tracked intervals started",
		},
	)

	IntervalsEnded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worktime_intervals_ended_total",
			Help: "Total number of tracked intervals ended",
		},
	)

	ActivitiesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktime_activities_recorded_total",
			Help: "Total number of activity events recorded",
		},
		[]string{"type"},
	)

	ActivitiesDebounced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worktime_activities_debounced_total",
			Help: "Total number of activity events suppressed by the dedup window",
		},
	)

	// Sync Metrics
	PendingOperations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worktime_pending_operations",
			Help: "Current number of operations awaiting delivery",
		},
	)

	OperationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktime_operations_delivered_total",
			Help: "Total number of operations confirmed by the backend",
		},
		[]string{"kind"},
	)

	OperationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktime_operations_failed_total",
			Help: "Total number of failed delivery attempts",
		},
		[]string{"kind", "class"}, // class: transient, permanent, auth
	)

	OperationsDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktime_operations_dead_lettered_total",
			Help: "Total number of operations moved to the dead-letter ring",
		},
		[]string{"kind", "class"},
	)

	DeadLetterEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worktime_dead_letter_entries",
			Help: "Current number of records in the dead-letter ring",
		},
	)

	SyncPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worktime_sync_pass_duration_seconds",
			Help:    "Duration of sync passes in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	SyncPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worktime_sync_passes_total",
			Help: "Total number of sync passes by outcome",
		},
		[]string{"outcome"}, // completed, auth_required, canceled
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worktime_sync_last_success_timestamp",
			Help: "Unix timestamp of the last completed sync pass",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	BackendOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worktime_backend_online",
			Help: "1 when the last connectivity probe reached the backend",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordStoreWrite records a write-through flush.
func RecordStoreWrite(namespace, op string, duration time.Duration) {
	StoreWrites.WithLabelValues(namespace, op).Inc()
	StoreWriteDuration.WithLabelValues(namespace).Observe(duration.Seconds())
}

// RecordDelivered records an operation confirmed by the backend.
func RecordDelivered(kind string) {
	OperationsDelivered.WithLabelValues(kind).Inc()
}

// RecordFailed records a failed delivery attempt.
func RecordFailed(kind, class string) {
	OperationsFailed.WithLabelValues(kind, class).Inc()
}

// RecordDeadLettered records an operation moved to the dead-letter ring.
func RecordDeadLettered(kind, class string) {
	OperationsDeadLettered.WithLabelValues(kind, class).Inc()
}

// RecordSyncPass records a finished sync pass.
func RecordSyncPass(outcome string, duration time.Duration) {
	SyncPasses.WithLabelValues(outcome).Inc()
	SyncPassDuration.Observe(duration.Seconds())
	if outcome == "completed" {
		SyncLastSuccess.SetToCurrentTime()
	}
}

// RecordAPIRequest records an HTTP API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// SetBackendOnline updates the connectivity gauge.
func SetBackendOnline(online bool) {
	if online {
		BackendOnline.Set(1)
		return
	}
	BackendOnline.Set(0)
}
