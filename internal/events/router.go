// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package events

import (
	"context"
	"time"

	"github.com/tkhieu/worktime/internal/logging"
	"github.com/tkhieu/worktime/internal/models"
)

// Tracker is the session tracker surface the router drives.
type Tracker interface {
	Start(ctx context.Context, subject models.Subject, contextID string) (models.TrackedInterval, error)
	ActiveForContext(contextID string) (models.TrackedInterval, bool)
	PauseContext(ctx context.Context, contextID string) error
	ResumeContext(ctx context.Context, contextID string) error
	EndContext(ctx context.Context, contextID string) (time.Duration, bool, error)
}

// Recorder is the activity outbox surface the router drives.
type Recorder interface {
	Record(ctx context.Context, subject models.Subject, typ models.ActivityType, metadata models.Metadata) (models.ActivityEvent, bool, error)
}

// Outcome reports what a message did.
type Outcome struct {
	Type MessageType `json:"type"`

	// IntervalID is the interval the message acted on, if any.
	IntervalID string `json:"interval_id,omitempty"`

	// ActivityID is set when a review action was recorded.
	ActivityID string `json:"activity_id,omitempty"`

	// DurationSeconds is the final duration of an interval closed by the message.
	DurationSeconds int64 `json:"duration_seconds,omitempty"`

	// Duplicate is true when a review action fell inside the debounce window.
	Duplicate bool `json:"duplicate,omitempty"`

	// Ignored is true when the context had no open interval.
	Ignored bool `json:"ignored,omitempty"`
}

// Router dispatches detection messages.
type Router struct {
	tracker Tracker
	outbox  Recorder
}

// NewRouter creates a router.
func NewRouter(tracker Tracker, outbox Recorder) *Router {
	return &Router{tracker: tracker, outbox: outbox}
}

// Handle validates msg and applies it.
func (r *Router) Handle(ctx context.Context, msg Message) (Outcome, error) {
	if err := msg.Validate(); err != nil {
		return Outcome{}, err
	}

	out := Outcome{Type: msg.Type}

	switch msg.Type {
	case SubjectDetected:
		iv, err := r.tracker.Start(ctx, *msg.Subject, msg.ContextID)
		if err != nil {
			return out, err
		}
		out.IntervalID = iv.LocalID

	case ContextHidden, ContextVisible:
		iv, ok := r.tracker.ActiveForContext(msg.ContextID)
		if !ok {
			out.Ignored = true
			break
		}
		out.IntervalID = iv.LocalID
		var err error
		if msg.Type == ContextHidden {
			err = r.tracker.PauseContext(ctx, msg.ContextID)
		} else {
			err = r.tracker.ResumeContext(ctx, msg.ContextID)
		}
		if err != nil {
			return out, err
		}

	case ContextClosed:
		iv, ok := r.tracker.ActiveForContext(msg.ContextID)
		d, ended, err := r.tracker.EndContext(ctx, msg.ContextID)
		if err != nil {
			return out, err
		}
		if !ended {
			out.Ignored = true
			break
		}
		if ok {
			out.IntervalID = iv.LocalID
		}
		out.DurationSeconds = int64(d / time.Second)

	case ReviewActionDetected:
		ev, recorded, err := r.outbox.Record(ctx, *msg.Subject, msg.ActionType, msg.Metadata)
		if err != nil {
			return out, err
		}
		out.Duplicate = !recorded
		out.ActivityID = ev.LocalID
	}

	logging.Ctx(ctx).Debug().
		Str("type", string(msg.Type)).
		Str("context_id", msg.ContextID).
		Str("interval_id", out.IntervalID).
		Bool("ignored", out.Ignored).
		Bool("duplicate", out.Duplicate).
		Msg("Detection message handled")
	return out, nil
}
