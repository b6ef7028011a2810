// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

// Package main is the entry point for the WorkTime agent.
//
// The agent records how long a reviewer spends on a pull request and which
// review actions they take, keeps that record in a local Badger store, and
// delivers it to the WorkTime backend whenever the backend is reachable.
// The browser extension talks to it over a loopback HTTP API.
//
// # Application Architecture
//
// The agent initializes components in the following order:
//
//  1. Configuration: defaults, optional worktime.yaml, environment (Koanf v2)
//  2. Store: Badger with the interval, op, outbox, deadletter and meta namespaces
//  3. Caches: dead letters, pending operations, intervals, outbox
//  4. Auth: bearer token, restored from the store when a secret is set
//  5. Sync: backend client, retry policy, orchestrator
//  6. Recovery: one sync pass for work left over from the last run
//  7. Background loops: scheduler, connectivity watcher, store maintainer
//  8. HTTP Server: the loopback API
//
// Everything after step 6 runs under a suture supervisor tree.
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the tree. Services get the configured shutdown
// timeout, then the store is closed.
//
// # Example Usage
//
//	export WORKTIME_API_URL=https://worktime.example.com/api/v1
//	export WORKTIME_ENCRYPTION_SECRET=$(openssl rand -base64 32)
//	export WORKTIME_STORE_PATH=$HOME/.local/share/worktime
//	./worktime
package main
