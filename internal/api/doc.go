// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

/*
Package api serves the agent's local HTTP API using the Chi router.

The detection layer posts messages here; the sign-in flow hands over the
bearer token; operators read status, the dead-letter ring and metrics.

Endpoints:

	POST   /v1/events               detection message
	POST   /v1/sync                 run a sync pass now
	POST   /v1/connectivity/online  the network came back
	PUT    /v1/auth/token           set the bearer token
	DELETE /v1/auth/token           sign out
	GET    /v1/status               sync status
	GET    /v1/dead-letters         dead-letter ring
	GET    /metrics                 Prometheus
	GET    /health                  liveness

Responses use the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "VALIDATION_ERROR", "message": "...", "details": {...}}}

Middleware Stack:

  - RequestIDWithLogging: X-Request-ID plus request_id in the logging context
  - chi Recoverer
  - go-chi/cors with explicitly configured origins
  - go-chi/httprate per client IP on /v1
  - request metrics (method, route pattern, status)
*/
package api
