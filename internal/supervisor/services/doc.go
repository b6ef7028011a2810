// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

/*
Package services provides suture.Service wrappers for WorkTime components.

Each wrapper translates a component lifecycle into suture's context-aware
Serve pattern:

	type Service interface {
	    Serve(ctx context.Context) error
	}

# Available Services

Background loops (LoopService):
  - sync-scheduler: scheduler.Scheduler
  - connectivity-watcher: scheduler.ConnectivityWatcher
  - store-maintainer: store.Maintainer

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts the ListenAndServe pattern to Serve

# Error Handling

Serve returns ctx.Err() on a requested shutdown and a wrapped error when
the component fails, which suture answers with a restart under its backoff
policy.
*/
package services
