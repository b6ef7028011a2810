// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package models

import "time"

// IntervalState is the lifecycle state of a TrackedInterval.
type IntervalState string

const (
	IntervalActive IntervalState = "active"
	IntervalPaused IntervalState = "paused"
	IntervalEnded  IntervalState = "ended"
)

// SyncState records whether the backend has the final state of an interval.
type SyncState string

const (
	Unsynced SyncState = "unsynced"
	Synced   SyncState = "synced"
)

// TrackedInterval is one continuous span of attention on a subject within
// one execution context (a browser tab, an editor window).
type TrackedInterval struct {
	LocalID             string        `json:"local_id"`
	RemoteID            string        `json:"remote_id,omitempty"`
	Subject             Subject       `json:"subject"`
	ContextID           string        `json:"context_id"`
	StartedAt           time.Time     `json:"started_at"`
	EndedAt             *time.Time    `json:"ended_at,omitempty"`
	AccumulatedActiveMs int64         `json:"accumulated_active_ms"`
	LastResumeAt        time.Time     `json:"last_resume_at"`
	State               IntervalState `json:"state"`
	SyncState           SyncState     `json:"sync_state"`

	// Undeliverable is set when the interval_end operation was dead-lettered.
	// Retention may then discard the interval.
	Undeliverable bool `json:"undeliverable,omitempty"`
}

// IsOpen reports whether the interval is Active or Paused.
func (t *TrackedInterval) IsOpen() bool {
	return t.State == IntervalActive || t.State == IntervalPaused
}

// FoldActive adds the time since LastResumeAt to AccumulatedActiveMs when
// the interval is Active. Negative spans (clock moved backwards) add nothing.
func (t *TrackedInterval) FoldActive(now time.Time) {
	if t.State != IntervalActive {
		return
	}
	if elapsed := now.Sub(t.LastResumeAt); elapsed > 0 {
		t.AccumulatedActiveMs += elapsed.Milliseconds()
	}
	t.LastResumeAt = now
}

// AwaitingDelivery reports whether the interval is Ended and its final
// state still has to reach the backend.
func (t *TrackedInterval) AwaitingDelivery() bool {
	return t.State == IntervalEnded && t.SyncState != Synced && !t.Undeliverable
}

// Duration returns the accumulated active time.
func (t *TrackedInterval) Duration() time.Duration {
	return time.Duration(t.AccumulatedActiveMs) * time.Millisecond
}

// DurationSeconds is the whole number of active seconds reported to the backend.
func (t *TrackedInterval) DurationSeconds() int64 {
	return t.AccumulatedActiveMs / 1000
}
