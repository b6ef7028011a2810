// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package models

import (
	"encoding/json"
	"time"
)

// OperationKind is the remote mutation a PendingOperation performs.
type OperationKind string

const (
	OpIntervalStart       OperationKind = "interval_start"
	OpIntervalEnd         OperationKind = "interval_end"
	OpActivityCreate      OperationKind = "activity_create"
	OpActivityBatchCreate OperationKind = "activity_batch_create"
)

// IsActivity reports whether the operation delivers an activity.
func (k OperationKind) IsActivity() bool {
	return k == OpActivityCreate || k == OpActivityBatchCreate
}

// PendingOperation is a durable, not-yet-confirmed remote mutation.
//
// The session tracker and the activity outbox create operations. Only the
// sync orchestrator changes Attempt, LastError, LastAttemptAt, NextAttemptAt
// and RemoteID afterwards.
type PendingOperation struct {
	// ID is a zero padded sequence number; lexical order is creation order.
	ID            string          `json:"id"`
	LocalID       string          `json:"local_id"`
	RemoteID      string          `json:"remote_id,omitempty"`
	Kind          OperationKind   `json:"kind"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Attempt       int             `json:"attempt"`
	LastAttemptAt time.Time       `json:"last_attempt_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	NextAttemptAt time.Time       `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IntervalEndPayload is carried by interval_end operations so the end can be
// replayed without the interval: subject for create-before-end, and the
// final duration.
type IntervalEndPayload struct {
	Subject         Subject `json:"subject"`
	DurationSeconds int64   `json:"duration_seconds"`
}

// IntervalStartPayload is carried by interval_start operations.
type IntervalStartPayload struct {
	Subject   Subject   `json:"subject"`
	StartedAt time.Time `json:"started_at"`
}

// FailureClass explains why an operation was dead-lettered.
type FailureClass string

const (
	FailureExhausted FailureClass = "transient_exhausted"
	FailurePermanent FailureClass = "permanent"
	FailureInvariant FailureClass = "invariant"
)

// DeadLetterRecord is an operation removed from the retry path, kept for
// diagnostics only.
type DeadLetterRecord struct {
	Operation PendingOperation `json:"operation"`
	Reason    string           `json:"reason"`
	Class     FailureClass     `json:"class"`
	DeadAt    time.Time        `json:"dead_at"`
}
