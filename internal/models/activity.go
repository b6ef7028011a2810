// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package models

import (
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

// ActivityType is a review action reported by the detection layer.
type ActivityType string

const (
	ActivityReviewSubmitted ActivityType = "review_submitted"
	ActivityReviewComment   ActivityType = "review_comment"
	ActivityApprove         ActivityType = "approve"
	ActivityRequestChanges  ActivityType = "request_changes"
	ActivityFileViewed      ActivityType = "file_viewed"
	ActivityPROpened        ActivityType = "pr_opened"
)

// ActivityTypes lists every accepted activity type.
var ActivityTypes = []ActivityType{
	ActivityReviewSubmitted,
	ActivityReviewComment,
	ActivityApprove,
	ActivityRequestChanges,
	ActivityFileViewed,
	ActivityPROpened,
}

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	for _, known := range ActivityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Metadata bounds. Activity metadata carries flags and counters only, never
// review text.
const (
	MaxMetadataKeys        = 8
	MaxMetadataKeyLength   = 32
	MaxMetadataValueLength = 64
)

var (
	ErrUnknownActivityType = errors.New("unknown activity type")
	ErrMetadataTooLarge    = errors.New("metadata has too many keys")
	ErrMetadataValue       = errors.New("metadata value not allowed")
)

// Metadata is the bounded key/value bag attached to an activity.
type Metadata map[string]any

// Validate enforces the privacy bounds: at most MaxMetadataKeys keys, and
// only bool, finite numbers and short strings as values.
func (m Metadata) Validate() error {
	if len(m) > MaxMetadataKeys {
		return fmt.Errorf("%w: %d > %d", ErrMetadataTooLarge, len(m), MaxMetadataKeys)
	}
	for k, v := range m {
		if k == "" || len(k) > MaxMetadataKeyLength {
			return fmt.Errorf("%w: key %q", ErrMetadataValue, k)
		}
		if err := validateScalar(v); err != nil {
			return fmt.Errorf("%w: key %q: %s", ErrMetadataValue, k, err.Error())
		}
	}
	return nil
}

func validateScalar(v any) error {
	switch val := v.(type) {
	case bool, int, int32, int64, uint, uint32, uint64:
		return nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return errors.New("non-finite number")
		}
		return nil
	case float32:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return errors.New("non-finite number")
		}
		return nil
	case string:
		if utf8.RuneCountInString(val) > MaxMetadataValueLength {
			return fmt.Errorf("string longer than %d characters", MaxMetadataValueLength)
		}
		return nil
	default:
		return fmt.Errorf("unsupported type %T", v)
	}
}

// ActivityEvent is an immutable record of a review action. Undeliverable
// is the only field that changes after creation; it is set when the
// activity_create operation was dead-lettered.
type ActivityEvent struct {
	LocalID       string       `json:"local_id"`
	Subject       Subject      `json:"subject"`
	Type          ActivityType `json:"type"`
	Metadata      Metadata     `json:"metadata,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	Undeliverable bool         `json:"undeliverable,omitempty"`
}

// DedupKey is the (subject, type) pair the debounce window is keyed on.
func (e *ActivityEvent) DedupKey() string {
	return e.Subject.Key() + "|" + string(e.Type)
}
