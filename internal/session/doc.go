// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

/*
Package session tracks attention intervals on review subjects.

An interval belongs to one execution context (a browser tab, an editor
window) and moves through a small state machine:

	Active <-> Paused
	Active/Paused -> Ended

Nothing leaves Ended. Pausing and resuming are local bookkeeping only: the
backend learns about an interval when it starts and when it ends, and the
end carries the active time accumulated while the interval was Active.

Every transition is written through the durable cache before the call
returns, so the process may die at any point without losing an interval.
Starting and ending write the interval and its operation in one store
transaction. Ending an interval always enqueues an interval_end operation,
even when the start was never confirmed by the backend; the sync
orchestrator creates the remote session first in that case. An Ended
interval that reaches Initialize without a queued operation, and was not
given up on, is queued again.

# Ownership

The Tracker creates operations and acknowledges the interval_end it
completes; it never mutates them otherwise. The orchestrator mutates
intervals only through AssignRemoteID, MarkSynced and MarkUndeliverable,
which share the tracker mutex with every other transition. Retention
(Sweep) drops Synced intervals and Ended intervals marked undeliverable.
*/
package session
