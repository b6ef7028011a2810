// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

/*
Package cache provides the in-memory duplicate window used by the activity
outbox.

The detection layer may fire the same review action twice within a few
milliseconds (a click handler and a DOM observer both reporting an
approval, for example). The outbox asks an LRUCache whether the
(subject, action type) pair was seen within the window and drops the
second event when it was.

# Usage Example

	window := cache.NewLRUCache(1024, 500*time.Millisecond)

	if window.IsDuplicate("octocat/hello-world#42|approve") {
	    return // absorbed
	}

# Thread Safety

All methods are safe for concurrent use.

# Persistence

The window is deliberately memory-only. After a restart the first event
for a key is always accepted.
*/
package cache
