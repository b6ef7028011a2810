// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

/*
Package metrics provides Prometheus metrics for the WorkTime agent.

Collectors are registered with the default registry through promauto and
exposed by the local API at /metrics:

	curl http://127.0.0.1:7431/metrics

# Available Metrics

Store:
  - worktime_store_write_duration_seconds (histogram, labels: namespace)
  - worktime_store_writes_total (counter, labels: namespace, op)
  - worktime_store_gc_runs_total (counter)
  - worktime_retention_discarded_total (counter)

Tracking:
  - worktime_intervals_started_total, worktime_intervals_ended_total (counter)
  - worktime_activities_recorded_total (counter, labels: type)
  - worktime_activities_debounced_total (counter)

Sync:
  - worktime_pending_operations (gauge)
  - worktime_operations_delivered_total (counter, labels: kind)
  - worktime_operations_failed_total (counter, labels: kind, class)
  - worktime_operations_dead_lettered_total (counter, labels: kind, class)
  - worktime_dead_letter_entries (gauge)
  - worktime_sync_pass_duration_seconds (histogram)
  - worktime_sync_passes_total (counter, labels: outcome)
  - worktime_sync_last_success_timestamp (gauge)

Backend:
  - circuit_breaker_state (gauge, labels: name; 0=closed, 1=half-open, 2=open)
  - circuit_breaker_requests_total (counter, labels: name, result)
  - circuit_breaker_state_transitions_total (counter, labels: name, from_state, to_state)
  - worktime_backend_online (gauge)

API:
  - api_requests_total (counter, labels: method, endpoint, status_code)
  - api_request_duration_seconds (histogram, labels: method, endpoint)
*/
package metrics
