// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

// Package scheduler wakes the sync orchestrator.
//
// Scheduler runs a full sync pass on a coarse recurring timer and whenever
// Reconnect is called. ConnectivityWatcher probes the backend and calls
// Reconnect when it comes back online. Neither is responsible for delivery
// promptness; the session tracker and the activity outbox request their own
// immediate syncs.
package scheduler
