// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

// Package config loads the WorkTime agent configuration.
//
// Configuration is layered with koanf: built-in defaults, then an optional
// YAML file, then environment variables. See LoadWithKoanf.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all agent configuration.
type Config struct {
	Store      StoreConfig      `koanf:"store"`
	Backend    BackendConfig    `koanf:"backend"`
	Auth       AuthConfig       `koanf:"auth"`
	Sync       SyncConfig       `koanf:"sync"`
	Activity   ActivityConfig   `koanf:"activity"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Retention  RetentionConfig  `koanf:"retention"`
}

// StoreConfig configures the embedded BadgerDB directory.
type StoreConfig struct {
	Path             string        `koanf:"path"`
	SyncWrites       bool          `koanf:"sync_writes"`
	Compression      bool          `koanf:"compression"`
	MemTableSize     int64         `koanf:"memtable_size"`
	ValueLogFileSize int64         `koanf:"value_log_file_size"`
	NumMemtables     int           `koanf:"num_memtables"`
	CloseTimeout     time.Duration `koanf:"close_timeout"`
}

// BackendConfig configures the remote time-tracking API client.
type BackendConfig struct {
	BaseURL           string        `koanf:"base_url"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`

	// Circuit breaker
	BreakerMaxRequests  uint32        `koanf:"breaker_max_requests"`
	BreakerInterval     time.Duration `koanf:"breaker_interval"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
}

// AuthConfig configures the bearer credential store.
type AuthConfig struct {
	// EncryptionSecret is the key material the stored token is encrypted with.
	EncryptionSecret string `koanf:"encryption_secret"`

	// Token seeds the store on start when set.
	Token string `koanf:"token"`
}

// SyncConfig configures the orchestrator and its retry policy.
type SyncConfig struct {
	MaxAttempts        int           `koanf:"max_attempts"`
	BaseDelay          time.Duration `koanf:"base_delay"`
	MaxDelay           time.Duration `koanf:"max_delay"`
	Jitter             float64       `koanf:"jitter"`
	BatchSize          int           `koanf:"batch_size"`
	DeadLetterCapacity int           `koanf:"dead_letter_capacity"`
	PassTimeout        time.Duration `koanf:"pass_timeout"`

	// HookTimeout bounds the immediate sync run before End and Record return.
	HookTimeout time.Duration `koanf:"hook_timeout"`
}

// ActivityConfig configures the activity outbox.
type ActivityConfig struct {
	DedupWindow   time.Duration `koanf:"dedup_window"`
	DedupCapacity int           `koanf:"dedup_capacity"`
}

// SchedulerConfig configures the recurring wake-up and the connectivity probe.
type SchedulerConfig struct {
	Interval      time.Duration `koanf:"interval"`
	ProbeInterval time.Duration `koanf:"probe_interval"`
	ProbeTimeout  time.Duration `koanf:"probe_timeout"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_requests"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig holds suture tree parameters.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// RetentionConfig configures the store maintainer.
type RetentionConfig struct {
	Interval         time.Duration `koanf:"interval"`
	EndedIntervalTTL time.Duration `koanf:"ended_interval_ttl"`
	GCDiscardRatio   float64       `koanf:"gc_discard_ratio"`
}

// ListenAddr returns host:port for the HTTP server.
func (s ServerConfig) ListenAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
