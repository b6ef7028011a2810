// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package retry

import (
	"errors"
	"net/http"
	"time"

	"github.com/tkhieu/worktime/internal/backend"
)

// Class is the retry category of an error.
type Class int

const (
	// Transient errors are retried with backoff: timeouts, 5xx, 429 and
	// breaker rejections.
	Transient Class = iota
	// Permanent errors cannot succeed on retry: validation failures and
	// permission denials.
	Permanent
	// Auth errors need a new credential before anything else is sent.
	Auth
)

// String returns the class name used in logs and metrics.
func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case Auth:
		return "auth"
	default:
		return "unknown"
	}
}

// Classify maps an error from the backend client to a retry class.
// Unrecognized errors are treated as transient.
func Classify(err error) Class {
	if err == nil {
		return Transient
	}
	if errors.Is(err, backend.ErrUnauthenticated) {
		return Auth
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized:
			return Auth
		case apiErr.Temporary():
			return Transient
		default:
			return Permanent
		}
	}

	if errors.Is(err, backend.ErrBatchTooLarge) || errors.Is(err, backend.ErrEmptyBatch) {
		return Permanent
	}
	// Breaker rejections, deadlines and net.Error values land here.
	return Transient
}

// RetryAfter returns the server's Retry-After hint carried by err, or zero.
func RetryAfter(err error) time.Duration {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Temporary() {
		return apiErr.RetryAfter
	}
	return 0
}
