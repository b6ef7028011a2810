// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"worktime.yaml",
	"worktime.yml",
	"/etc/worktime/config.yaml",
	"/etc/worktime/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:             "/var/lib/worktime/store",
			SyncWrites:       true, // every Put must survive a kill
			Compression:      true,
			MemTableSize:     16 << 20, // 16MB
			ValueLogFileSize: 64 << 20, // 64MB
			NumMemtables:     2,
			CloseTimeout:     10 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL:             "http://localhost:8787/api/v1",
			Timeout:             15 * time.Second,
			RequestsPerSecond:   5,
			Burst:               10,
			BreakerMaxRequests:  3,
			BreakerInterval:     time.Minute,
			BreakerTimeout:      2 * time.Minute,
			BreakerFailureRatio: 0.6,
			BreakerMinRequests:  10,
		},
		Auth: AuthConfig{
			EncryptionSecret: "",
			Token:            "",
		},
		Sync: SyncConfig{
			MaxAttempts:        5,
			BaseDelay:          2 * time.Second,
			MaxDelay:           5 * time.Minute,
			Jitter:             0.25,
			BatchSize:          100,
			DeadLetterCapacity: 200,
			PassTimeout:        2 * time.Minute,
			HookTimeout:        10 * time.Second,
		},
		Activity: ActivityConfig{
			DedupWindow:   500 * time.Millisecond,
			DedupCapacity: 1024,
		},
		Scheduler: SchedulerConfig{
			Interval:      time.Minute,
			ProbeInterval: 30 * time.Second,
			ProbeTimeout:  5 * time.Second,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            7431,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"chrome-extension://*", "moz-extension://*"},
			RateLimitReqs:   600,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5.0,
			FailureDecay:     30.0,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Retention: RetentionConfig{
			Interval:         time.Hour,
			EndedIntervalTTL: 7 * 24 * time.Hour,
			GCDiscardRatio:   0.5,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence is ENV > File > Defaults. The result is validated before it is returned.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "" if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Store
	"worktime_store_path":        "store.path",
	"worktime_store_sync_writes": "store.sync_writes",
	"worktime_store_compression": "store.compression",

	// Backend
	"worktime_api_url":               "backend.base_url",
	"worktime_api_timeout":           "backend.timeout",
	"worktime_api_rps":               "backend.requests_per_second",
	"worktime_api_burst":             "backend.burst",
	"worktime_breaker_timeout":       "backend.breaker_timeout",
	"worktime_breaker_failure_ratio": "backend.breaker_failure_ratio",

	// Auth
	"worktime_encryption_secret": "auth.encryption_secret",
	"worktime_token":             "auth.token",

	// Sync
	"worktime_sync_max_attempts":        "sync.max_attempts",
	"worktime_sync_base_delay":          "sync.base_delay",
	"worktime_sync_max_delay":           "sync.max_delay",
	"worktime_sync_jitter":              "sync.jitter",
	"worktime_sync_batch_size":          "sync.batch_size",
	"worktime_dead_letter_capacity":     "sync.dead_letter_capacity",
	"worktime_sync_pass_timeout":        "sync.pass_timeout",
	"worktime_sync_hook_timeout":        "sync.hook_timeout",
	"worktime_activity_dedup_window":    "activity.dedup_window",
	"worktime_scheduler_interval":       "scheduler.interval",
	"worktime_connectivity_probe":       "scheduler.probe_interval",
	"worktime_connectivity_probe_limit": "scheduler.probe_timeout",

	// Server
	"http_host":         "server.host",
	"http_port":         "server.port",
	"http_timeout":      "server.timeout",
	"cors_origins":      "server.cors_origins",
	"rate_limit_reqs":   "server.rate_limit_requests",
	"rate_limit_window": "server.rate_limit_window",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",

	// Retention
	"worktime_retention_interval": "retention.interval",
	"worktime_retention_ttl":      "retention.ended_interval_ttl",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - WORKTIME_API_URL -> backend.base_url
//   - WORKTIME_SYNC_MAX_ATTEMPTS -> sync.max_attempts
//   - HTTP_PORT -> server.port
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// Unmapped keys are skipped so unrelated environment variables never leak into config.
	return ""
}
