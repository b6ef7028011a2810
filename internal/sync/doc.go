// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

/*
Package sync delivers queued operations to the WorkTime backend.

The orchestrator reads the pending-operation queue, performs the matching
remote call for each operation, and acknowledges, retries or dead-letters it
according to the retry policy.

Key Components:

  - Orchestrator: single-flight sync passes over the queue
  - Backend: the remote calls a pass makes (implemented by backend.Client)
  - IntervalRepository / ActivityRepository: views onto the session tracker
    and the activity outbox

Delivery Rules:

 1. Operations for one entity are delivered in creation order. A skipped or
    failed operation holds back the later operations of the same entity.
 2. An interval end whose start never reached the backend creates the
    session first, then ends it.
 3. Two or more ready activities are sent in batches of at most 100. A batch
    is confirmed only when the backend created every activity in it.
 4. A 401 clears the credential and aborts the pass. Queued operations keep
    their attempt counts.
 5. Transient failures are retried with exponential backoff and jitter;
    permanent failures and exhausted operations go to the dead-letter ring.

Usage Example:

	orch := sync.NewOrchestrator(sync.Deps{
	    Queue:      q,
	    Intervals:  tracker,
	    Activities: outbox,
	    Backend:    client,
	    Auth:       tokens,
	    Meta:       db.Meta,
	}, &cfg.Sync)

	if _, err := orch.TrySync(ctx); errors.Is(err, sync.ErrSyncInFlight) {
	    // the running pass picks up new work before it exits
	}

Thread Safety:

All methods are safe for concurrent use. At most one pass runs at a time.
*/
package sync
