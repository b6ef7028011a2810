// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	syncPassKey  contextKey = "sync_pass"
)

// GenerateRequestID creates a new request ID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// GeneratePassID creates a short ID identifying one sync pass in the logs.
func GeneratePassID() string {
	return uuid.New().String()[:8]
}

// ContextWithRequestID returns a context carrying the HTTP request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithPassID returns a context carrying a sync pass ID.
func ContextWithPassID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, syncPassKey, id)
}

// PassIDFromContext returns the sync pass ID, or "" when absent.
func PassIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(syncPassKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns a logger with the request and sync pass IDs found in ctx.
//
//	logging.Ctx(ctx).Info().Msg("Event accepted")
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := Logger().With()
	if id := RequestIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("request_id", id)
	}
	if id := PassIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("sync_pass", id)
	}
	logger := logCtx.Logger()
	return &logger
}
