// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

// Package retry decides whether a failed backend call is retried and when.
//
// Delays grow as base * 2^attempt with symmetric jitter and a ceiling.
// Once the un-jittered delay reaches the ceiling the ceiling itself is
// returned, so delays never shrink as attempts grow.
package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/tkhieu/worktime/internal/config"
)

// Policy holds the retry limits and the jitter source.
type Policy struct {
	// MaxAttempts is the number of failures after which an operation is
	// dead-lettered.
	MaxAttempts int

	// BaseDelay is the delay for attempt zero.
	BaseDelay time.Duration

	// MaxDelay caps every delay.
	MaxDelay time.Duration

	// Jitter is the symmetric random fraction applied to the delay.
	Jitter float64

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
}

// DefaultPolicy returns production defaults: 5 attempts, 2s base, 5m cap, 25% jitter.
func DefaultPolicy() *Policy {
	return NewPolicyWithSeed(5, 2*time.Second, 5*time.Minute, 0.25, 0)
}

// NewPolicy builds a policy from the sync config section.
func NewPolicy(cfg *config.SyncConfig) *Policy {
	return NewPolicyWithSeed(cfg.MaxAttempts, cfg.BaseDelay, cfg.MaxDelay, cfg.Jitter, 0)
}

// NewPolicyWithSeed creates a Policy with a specific random seed.
// A zero seed uses a time-based seed; tests pass a fixed one for
// reproducible jitter.
func NewPolicyWithSeed(maxAttempts int, base, maxDelay time.Duration, jitter float64, seed int64) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if base <= 0 {
		base = 2 * time.Second
	}
	if maxDelay < base {
		maxDelay = base
	}
	if jitter < 0 || jitter >= 1 {
		jitter = 0.25
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   base,
		MaxDelay:    maxDelay,
		Jitter:      jitter,
		//nolint:gosec // G404: Using weak random for non-cryptographic jitter in backoff timing
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
}

// SetClock replaces the clock used by IsReadyForRetry.
func (p *Policy) SetClock(now func() time.Time) {
	p.now = now
}

// ShouldRetry reports whether an operation that has failed attempt times
// with err should stay in the queue.
func (p *Policy) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return Classify(err) == Transient
}

// BackoffDelay returns the delay before retrying after attempt failures.
func (p *Policy) BackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	backoff := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	ceiling := float64(p.MaxDelay)
	if backoff >= ceiling {
		return p.MaxDelay
	}

	p.rngMu.Lock()
	jitter := backoff * p.Jitter * (p.rng.Float64()*2 - 1) // -jitter to +jitter
	p.rngMu.Unlock()

	delay := backoff + jitter
	if delay > ceiling {
		delay = ceiling
	}
	return time.Duration(delay)
}

// IsReadyForRetry reports whether enough time has passed since
// lastAttemptAt. An operation that was never attempted is always ready.
func (p *Policy) IsReadyForRetry(attempt int, lastAttemptAt time.Time) bool {
	if lastAttemptAt.IsZero() {
		return true
	}
	return p.now().Sub(lastAttemptAt) >= p.BackoffDelay(attempt)
}

// NextAttempt returns the time an operation becomes eligible again. A
// server Retry-After hint longer than the computed delay wins.
func (p *Policy) NextAttempt(attempt int, lastAttemptAt time.Time, retryAfter time.Duration) time.Time {
	delay := p.BackoffDelay(attempt)
	if retryAfter > delay {
		delay = retryAfter
	}
	return lastAttemptAt.Add(delay)
}
