// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

/*
Package config provides centralized configuration management for the
WorkTime agent.

# Configuration Sources

LoadWithKoanf layers three sources with Koanf v2 (highest priority wins):
  - Environment variables
  - Config file: CONFIG_PATH, ./worktime.yaml or /etc/worktime/config.yaml
  - Built-in defaults

The merged result is validated before it is returned.

# Configuration Structure

  - StoreConfig: Badger directory and write options
  - BackendConfig: backend URL, request rate and circuit breaker
  - AuthConfig: token encryption secret and an optional seed token
  - SyncConfig: retry policy, batch size, dead-letter capacity, pass and
    immediate-sync timeouts
  - ActivityConfig: review action debounce window
  - SchedulerConfig: periodic sync and connectivity probing
  - ServerConfig: loopback API address, CORS and rate limit
  - LoggingConfig: zerolog level and format
  - SupervisorConfig: suture failure thresholds and shutdown timeout
  - RetentionConfig: sweep interval, TTL and value log GC ratio

# Environment Variables

Agent settings:
  - WORKTIME_STORE_PATH: Badger directory (default: /var/lib/worktime/store)
  - WORKTIME_API_URL: backend base URL
  - WORKTIME_ENCRYPTION_SECRET: enables encrypted token persistence
  - WORKTIME_TOKEN: bearer token to start with
  - WORKTIME_SYNC_MAX_ATTEMPTS: failures before dead-lettering (default: 5)
  - WORKTIME_SCHEDULER_INTERVAL: periodic sync interval, at least 30s (default: 1m)
  - WORKTIME_DEAD_LETTER_CAPACITY: dead-letter ring size (default: 200)

Server and logging:
  - HTTP_HOST, HTTP_PORT: API address (default: 127.0.0.1:7431)
  - CORS_ORIGINS: comma-separated allowed origins
  - LOG_LEVEL: trace, debug, info, warn, error (default: info)
  - LOG_FORMAT: json or console (default: json)

The complete mapping is envMappings in koanf.go.

# Example Configuration File

	backend:
	  base_url: https://worktime.example.com/api/v1
	sync:
	  max_attempts: 8
	  max_delay: 10m
	scheduler:
	  interval: 2m
	server:
	  port: 7431

# Thread Safety

The Config struct is not modified after LoadWithKoanf returns and may be read
from any goroutine.
*/
package config
