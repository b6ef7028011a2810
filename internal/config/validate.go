// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package config

import (
	"net/url"
	"strings"
	"time"
)

// MinSchedulerInterval is the shortest recurring wake-up the host allows.
const MinSchedulerInterval = 30 * time.Second

// MaxBatchSize is the largest activity batch the backend accepts.
const MaxBatchSize = 100

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateStore,
		c.validateBackend,
		c.validateSync,
		c.validateActivity,
		c.validateScheduler,
		c.validateServer,
		c.validateLogging,
		c.validateRetention,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.Path == "" {
		return &ConfigError{Field: "store.path", Message: "store path is required"}
	}
	if c.Store.MemTableSize < 1024*1024 { // 1MB minimum
		return &ConfigError{Field: "store.memtable_size", Message: "must be at least 1MB"}
	}
	if c.Store.ValueLogFileSize < 1024*1024 {
		return &ConfigError{Field: "store.value_log_file_size", Message: "must be at least 1MB"}
	}
	if c.Store.NumMemtables < 1 {
		return &ConfigError{Field: "store.num_memtables", Message: "must be at least 1"}
	}
	return nil
}

func (c *Config) validateBackend() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ConfigError{Field: "backend.base_url", Message: "must be an absolute http(s) URL"}
	}
	if c.Backend.Timeout <= 0 {
		return &ConfigError{Field: "backend.timeout", Message: "must be positive"}
	}
	if c.Backend.RequestsPerSecond <= 0 {
		return &ConfigError{Field: "backend.requests_per_second", Message: "must be positive"}
	}
	if c.Backend.Burst < 1 {
		return &ConfigError{Field: "backend.burst", Message: "must be at least 1"}
	}
	if c.Backend.BreakerFailureRatio <= 0 || c.Backend.BreakerFailureRatio > 1 {
		return &ConfigError{Field: "backend.breaker_failure_ratio", Message: "must be in (0, 1]"}
	}
	return nil
}

func (c *Config) validateSync() error {
	s := c.Sync
	switch {
	case s.MaxAttempts < 1:
		return &ConfigError{Field: "sync.max_attempts", Message: "must be at least 1"}
	case s.BaseDelay <= 0:
		return &ConfigError{Field: "sync.base_delay", Message: "must be positive"}
	case s.MaxDelay < s.BaseDelay:
		return &ConfigError{Field: "sync.max_delay", Message: "must not be less than sync.base_delay"}
	case s.Jitter < 0 || s.Jitter >= 1:
		return &ConfigError{Field: "sync.jitter", Message: "must be in [0, 1)"}
	case s.BatchSize < 1 || s.BatchSize > MaxBatchSize:
		return &ConfigError{Field: "sync.batch_size", Message: "must be between 1 and 100"}
	case s.DeadLetterCapacity < 1:
		return &ConfigError{Field: "sync.dead_letter_capacity", Message: "must be at least 1"}
	case s.PassTimeout <= 0:
		return &ConfigError{Field: "sync.pass_timeout", Message: "must be positive"}
	case s.HookTimeout <= 0:
		return &ConfigError{Field: "sync.hook_timeout", Message: "must be positive"}
	}
	return nil
}

func (c *Config) validateActivity() error {
	if c.Activity.DedupWindow <= 0 {
		return &ConfigError{Field: "activity.dedup_window", Message: "must be positive"}
	}
	if c.Activity.DedupCapacity < 1 {
		return &ConfigError{Field: "activity.dedup_capacity", Message: "must be at least 1"}
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.Interval < MinSchedulerInterval {
		return &ConfigError{Field: "scheduler.interval", Message: "must be at least 30 seconds"}
	}
	if c.Scheduler.ProbeInterval < time.Second {
		return &ConfigError{Field: "scheduler.probe_interval", Message: "must be at least 1 second"}
	}
	if c.Scheduler.ProbeTimeout <= 0 {
		return &ConfigError{Field: "scheduler.probe_timeout", Message: "must be positive"}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "must be between 1 and 65535"}
	}
	if c.Server.RateLimitReqs < 1 {
		return &ConfigError{Field: "server.rate_limit_requests", Message: "must be at least 1"}
	}
	if c.Server.RateLimitWindow <= 0 {
		return &ConfigError{Field: "server.rate_limit_window", Message: "must be positive"}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "disabled":
	default:
		return &ConfigError{Field: "logging.level", Message: "unknown level " + c.Logging.Level}
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be json or console"}
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.Interval < time.Minute {
		return &ConfigError{Field: "retention.interval", Message: "must be at least 1 minute"}
	}
	if c.Retention.EndedIntervalTTL < time.Hour {
		return &ConfigError{Field: "retention.ended_interval_ttl", Message: "must be at least 1 hour"}
	}
	if c.Retention.GCDiscardRatio <= 0 || c.Retention.GCDiscardRatio >= 1 {
		return &ConfigError{Field: "retention.gc_discard_ratio", Message: "must be in (0, 1)"}
	}
	return nil
}
