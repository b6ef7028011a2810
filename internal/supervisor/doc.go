// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

/*
Package supervisor runs the agent's long-lived services under suture v4.

# Overview

Services are organized into three layers:

	RootSupervisor ("worktime")
	├── DataSupervisor ("data-layer")
	│   └── store-maintainer
	├── SyncSupervisor ("sync-layer")
	│   ├── sync-scheduler
	│   └── connectivity-watcher
	└── APISupervisor ("api-layer")
	    └── http-server

Each layer restarts independently. Crashed services are restarted with
suture's failure decay and backoff, and supervisor events are logged
through the slog adapter in internal/logging (sutureslog).

# Usage Example

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(),
	    supervisor.TreeConfigFrom(&cfg.Supervisor))
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewMaintainerService(maintainer))
	tree.AddSyncService(services.NewSchedulerService(sched))
	tree.AddSyncService(services.NewConnectivityService(watcher))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))

	errCh := tree.ServeBackground(ctx)

See the services subpackage for the wrappers.
*/
package supervisor
