// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tkhieu/worktime/internal/logging"
	"github.com/tkhieu/worktime/internal/metrics"
	"github.com/tkhieu/worktime/internal/models"
	"github.com/tkhieu/worktime/internal/queue"
	"github.com/tkhieu/worktime/internal/store"
	"github.com/tkhieu/worktime/internal/validation"
)

var (
	// ErrIntervalNotFound is returned for unknown local ids.
	ErrIntervalNotFound = errors.New("interval not found")

	// ErrIntervalEnded is returned when a transition would leave Ended.
	ErrIntervalEnded = errors.New("interval already ended")

	// ErrInvalidSubject is returned when a subject fails validation.
	ErrInvalidSubject = errors.New("invalid subject")

	// ErrEmptyContext is returned when no execution context id is given.
	ErrEmptyContext = errors.New("context id is required")
)

// SyncHook asks for a best-effort delivery of one interval's operations.
// It is called without the tracker lock held.
type SyncHook func(ctx context.Context, localID string)

// Tracker owns the TrackedInterval entities.
type Tracker struct {
	intervals *store.Cache[models.TrackedInterval]
	queue     *queue.Queue
	now       func() time.Time
	newID     func() string

	mu        sync.Mutex
	hook      SyncHook
	byContext map[string]string // context id -> local id of its open interval
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDGenerator replaces the local id generator.
func WithIDGenerator(newID func() string) Option {
	return func(t *Tracker) { t.newID = newID }
}

// WithSyncHook sets the immediate-sync hook called by End.
func WithSyncHook(hook SyncHook) Option {
	return func(t *Tracker) { t.hook = hook }
}

// NewTracker creates a tracker over the interval cache and the operation queue.
func NewTracker(intervals *store.Cache[models.TrackedInterval], q *queue.Queue, opts ...Option) *Tracker {
	t := &Tracker{
		intervals: intervals,
		queue:     q,
		now:       time.Now,
		newID:     uuid.NewString,
		byContext: make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetSyncHook replaces the immediate-sync hook. The orchestrator is built
// after the tracker, so the hook is usually wired here.
func (t *Tracker) SetSyncHook(hook SyncHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hook = hook
}

// Initialize loads the interval namespace and rebuilds the context index.
// If a context somehow owns more than one open interval, all but the most
// recently started are ended. An undelivered Ended interval that no queued
// operation references gets its interval_end enqueued again. The queue must
// be initialized first.
func (t *Tracker) Initialize(ctx context.Context) error {
	loaded, err := t.intervals.Initialize(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	open := make([]models.TrackedInterval, 0, len(loaded))
	for _, iv := range loaded {
		if iv.IsOpen() {
			open = append(open, iv)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].StartedAt.After(open[j].StartedAt) })

	t.byContext = make(map[string]string, len(open))
	for _, iv := range open {
		if _, taken := t.byContext[iv.ContextID]; taken {
			logging.Warn().
				Str("local_id", iv.LocalID).
				Str("context_id", iv.ContextID).
				Msg("Ending duplicate open interval found on load")
			if _, err := t.endLocked(ctx, iv.LocalID); err != nil {
				return err
			}
			continue
		}
		t.byContext[iv.ContextID] = iv.LocalID
	}

	requeued := 0
	for _, iv := range t.intervals.Values() {
		if !iv.AwaitingDelivery() || t.queue.References(iv.LocalID) {
			continue
		}
		if err := t.requeueEndLocked(ctx, iv); err != nil {
			return err
		}
		requeued++
	}

	logging.Info().
		Int("intervals", len(loaded)).
		Int("open", len(t.byContext)).
		Int("requeued", requeued).
		Msg("Session tracker loaded")
	return nil
}

// requeueEndLocked enqueues interval_end again for an Ended interval whose
// operation is missing, so its duration is still delivered.
func (t *Tracker) requeueEndLocked(ctx context.Context, iv models.TrackedInterval) error {
	payload := models.IntervalEndPayload{Subject: iv.Subject, DurationSeconds: iv.DurationSeconds()}
	if _, err := t.queue.Enqueue(ctx, models.OpIntervalEnd, iv.LocalID, payload); err != nil {
		return fmt.Errorf("requeue interval end %s: %w", iv.LocalID, err)
	}
	logging.Warn().
		Str("local_id", iv.LocalID).
		Str("subject", iv.Subject.Key()).
		Int64("duration_seconds", payload.DurationSeconds).
		Msg("Re-enqueued interval end for undelivered interval")
	return nil
}

// Start returns the open interval of contextID when it tracks the same
// subject. Otherwise it ends that interval (if any) and starts a new
// Active one, enqueuing interval_start.
func (t *Tracker) Start(ctx context.Context, subject models.Subject, contextID string) (models.TrackedInterval, error) {
	if contextID == "" {
		return models.TrackedInterval{}, ErrEmptyContext
	}
	if verr := validation.ValidateStruct(&subject); verr != nil {
		return models.TrackedInterval{}, fmt.Errorf("%w: %s", ErrInvalidSubject, verr.Error())
	}

	t.mu.Lock()

	var replaced string
	if id, ok := t.byContext[contextID]; ok {
		current, found := t.intervals.Get(id)
		if found && current.Subject.Key() == subject.Key() {
			t.mu.Unlock()
			return current, nil
		}
		if found {
			if _, err := t.endLocked(ctx, id); err != nil {
				t.mu.Unlock()
				return models.TrackedInterval{}, fmt.Errorf("end previous interval: %w", err)
			}
			replaced = id
		} else {
			delete(t.byContext, contextID)
		}
	}

	now := t.now().UTC()
	iv := models.TrackedInterval{
		LocalID:      t.newID(),
		Subject:      subject,
		ContextID:    contextID,
		StartedAt:    now,
		LastResumeAt: now,
		State:        models.IntervalActive,
		SyncState:    models.Unsynced,
	}
	b := t.intervals.NewBatch()
	err := t.intervals.StagePut(b, iv.LocalID, iv)
	if err == nil {
		_, err = t.queue.EnqueueIn(b, models.OpIntervalStart, iv.LocalID,
			models.IntervalStartPayload{Subject: subject, StartedAt: now})
	}
	if err == nil {
		err = b.Commit()
	}
	if err != nil {
		t.mu.Unlock()
		return models.TrackedInterval{}, fmt.Errorf("persist interval: %w", err)
	}
	t.byContext[contextID] = iv.LocalID
	hook := t.hook
	t.mu.Unlock()

	metrics.IntervalsStarted.Inc()
	logging.Debug().
		Str("local_id", iv.LocalID).
		Str("subject", subject.Key()).
		Str("context_id", contextID).
		Msg("Interval started")

	if replaced != "" && hook != nil {
		hook(ctx, replaced)
	}
	return iv, nil
}

// Pause folds the active time and moves the interval to Paused. It is a
// no-op for Paused and Ended intervals and never touches the queue.
func (t *Tracker) Pause(ctx context.Context, localID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pauseLocked(ctx, localID)
}

func (t *Tracker) pauseLocked(ctx context.Context, localID string) error {
	iv, ok := t.intervals.Get(localID)
	if !ok {
		return fmt.Errorf("pause %s: %w", localID, ErrIntervalNotFound)
	}
	if iv.State != models.IntervalActive {
		return nil
	}
	iv.FoldActive(t.now().UTC())
	iv.State = models.IntervalPaused
	if err := t.intervals.Put(ctx, localID, iv); err != nil {
		return fmt.Errorf("pause %s: %w", localID, err)
	}
	return nil
}

// Resume moves a Paused interval back to Active. It is a no-op for Active
// intervals and returns ErrIntervalEnded for Ended ones.
func (t *Tracker) Resume(ctx context.Context, localID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resumeLocked(ctx, localID)
}

func (t *Tracker) resumeLocked(ctx context.Context, localID string) error {
	iv, ok := t.intervals.Get(localID)
	if !ok {
		return fmt.Errorf("resume %s: %w", localID, ErrIntervalNotFound)
	}
	switch iv.State {
	case models.IntervalActive:
		return nil
	case models.IntervalEnded:
		return fmt.Errorf("resume %s: %w", localID, ErrIntervalEnded)
	}
	iv.State = models.IntervalActive
	iv.LastResumeAt = t.now().UTC()
	if err := t.intervals.Put(ctx, localID, iv); err != nil {
		return fmt.Errorf("resume %s: %w", localID, err)
	}
	return nil
}

// End closes the interval, enqueues interval_end with the final duration,
// and then runs the immediate-sync hook for it. Ending an Ended interval
// returns its duration. It enqueues nothing unless the interval is still
// undelivered and has lost its operation.
func (t *Tracker) End(ctx context.Context, localID string) (time.Duration, error) {
	t.mu.Lock()
	iv, ok := t.intervals.Get(localID)
	if ok && iv.State == models.IntervalEnded {
		requeue := iv.AwaitingDelivery() && !t.queue.References(localID)
		var err error
		if requeue {
			err = t.requeueEndLocked(ctx, iv)
		}
		hook := t.hook
		t.mu.Unlock()
		if err != nil {
			return iv.Duration(), err
		}
		if requeue && hook != nil {
			hook(ctx, localID)
		}
		return iv.Duration(), nil
	}
	d, err := t.endLocked(ctx, localID)
	hook := t.hook
	t.mu.Unlock()

	if err != nil {
		return d, err
	}
	if hook != nil {
		hook(ctx, localID)
	}
	return d, nil
}

// endLocked writes the Ended interval and its interval_end operation in one
// transaction. On failure neither is changed.
func (t *Tracker) endLocked(_ context.Context, localID string) (time.Duration, error) {
	iv, ok := t.intervals.Get(localID)
	if !ok {
		return 0, fmt.Errorf("end %s: %w", localID, ErrIntervalNotFound)
	}
	if iv.State == models.IntervalEnded {
		return iv.Duration(), nil
	}

	now := t.now().UTC()
	iv.FoldActive(now)
	iv.EndedAt = &now
	iv.State = models.IntervalEnded
	payload := models.IntervalEndPayload{Subject: iv.Subject, DurationSeconds: iv.DurationSeconds()}

	b := t.intervals.NewBatch()
	if err := t.intervals.StagePut(b, localID, iv); err != nil {
		return 0, fmt.Errorf("end %s: %w", localID, err)
	}
	if _, err := t.queue.EnqueueIn(b, models.OpIntervalEnd, localID, payload); err != nil {
		return 0, fmt.Errorf("end %s: %w", localID, err)
	}
	if err := b.Commit(); err != nil {
		return 0, fmt.Errorf("end %s: %w", localID, err)
	}
	if t.byContext[iv.ContextID] == localID {
		delete(t.byContext, iv.ContextID)
	}

	metrics.IntervalsEnded.Inc()
	logging.Debug().
		Str("local_id", localID).
		Str("subject", iv.Subject.Key()).
		Int64("duration_seconds", payload.DurationSeconds).
		Msg("Interval ended")
	return iv.Duration(), nil
}

// ActiveForContext returns the open (Active or Paused) interval of a context.
func (t *Tracker) ActiveForContext(contextID string) (models.TrackedInterval, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byContext[contextID]
	if !ok {
		return models.TrackedInterval{}, false
	}
	return t.intervals.Get(id)
}

// PauseContext pauses the open interval of a context, if there is one.
func (t *Tracker) PauseContext(ctx context.Context, contextID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byContext[contextID]
	if !ok {
		return nil
	}
	return t.pauseLocked(ctx, id)
}

// ResumeContext resumes the open interval of a context, if there is one.
func (t *Tracker) ResumeContext(ctx context.Context, contextID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byContext[contextID]
	if !ok {
		return nil
	}
	return t.resumeLocked(ctx, id)
}

// EndContext ends the open interval of a context. The boolean is false
// when the context had no open interval.
func (t *Tracker) EndContext(ctx context.Context, contextID string) (time.Duration, bool, error) {
	t.mu.Lock()
	id, ok := t.byContext[contextID]
	t.mu.Unlock()
	if !ok {
		return 0, false, nil
	}
	d, err := t.End(ctx, id)
	return d, true, err
}

// Get returns an interval by local id.
func (t *Tracker) Get(localID string) (models.TrackedInterval, bool) {
	return t.intervals.Get(localID)
}

// List returns every cached interval in key order.
func (t *Tracker) List() []models.TrackedInterval {
	return t.intervals.Values()
}

// AssignRemoteID stores the backend session id on an interval. An id that
// is already set is kept.
func (t *Tracker) AssignRemoteID(ctx context.Context, localID, remoteID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	iv, ok := t.intervals.Get(localID)
	if !ok {
		return fmt.Errorf("assign remote id %s: %w", localID, ErrIntervalNotFound)
	}
	if iv.RemoteID != "" {
		if iv.RemoteID != remoteID {
			logging.Warn().
				Str("local_id", localID).
				Str("remote_id", iv.RemoteID).
				Str("ignored_remote_id", remoteID).
				Msg("Interval already has a remote id")
		}
		return nil
	}
	iv.RemoteID = remoteID
	if err := t.intervals.Put(ctx, localID, iv); err != nil {
		return fmt.Errorf("assign remote id %s: %w", localID, err)
	}
	return nil
}

// MarkSynced completes delivery of an Ended interval: the interval_end
// operation opID is acknowledged and the interval set Synced in one
// transaction. The Synced interval is then dropped from the cache. If that
// removal fails the sweeper drops it later.
func (t *Tracker) MarkSynced(ctx context.Context, localID, opID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.intervals.NewBatch()
	if err := t.queue.AckIn(b, opID); err != nil {
		return fmt.Errorf("mark synced %s: %w", localID, err)
	}
	iv, ok := t.intervals.Get(localID)
	if ok {
		if iv.State != models.IntervalEnded {
			return fmt.Errorf("mark synced %s: interval is %s", localID, iv.State)
		}
		iv.SyncState = models.Synced
		if err := t.intervals.StagePut(b, localID, iv); err != nil {
			return fmt.Errorf("mark synced %s: %w", localID, err)
		}
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("mark synced %s: %w", localID, err)
	}
	if !ok {
		return nil
	}

	logging.Debug().Str("local_id", localID).Str("remote_id", iv.RemoteID).Msg("Interval synced")
	if err := t.intervals.Remove(ctx, localID); err != nil {
		logging.Warn().Err(err).Str("local_id", localID).Msg("Synced interval left for the sweeper")
	}
	return nil
}

// MarkUndeliverable flags an interval whose interval_end operation is being
// dead-lettered. Retention may discard it once it ages out.
func (t *Tracker) MarkUndeliverable(ctx context.Context, localID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	iv, ok := t.intervals.Get(localID)
	if !ok || iv.Undeliverable {
		return nil
	}
	iv.Undeliverable = true
	if err := t.intervals.Put(ctx, localID, iv); err != nil {
		return fmt.Errorf("mark undeliverable %s: %w", localID, err)
	}
	return nil
}

func (t *Tracker) discardLocked(ctx context.Context, localID string) error {
	iv, ok := t.intervals.Get(localID)
	if !ok {
		return nil
	}
	if t.byContext[iv.ContextID] == localID {
		delete(t.byContext, iv.ContextID)
	}
	if err := t.intervals.Remove(ctx, localID); err != nil {
		return fmt.Errorf("discard %s: %w", localID, err)
	}
	return nil
}

// Sweep is the retention sweeper run by the store maintainer. It discards
// Synced intervals, and Ended intervals marked undeliverable that ended
// before cutoff. An interval still referenced by a pending operation, or
// whose final state has yet to reach the backend, is kept at any age.
func (t *Tracker) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for _, iv := range t.intervals.Values() {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if iv.State != models.IntervalEnded || iv.AwaitingDelivery() {
			continue
		}
		if iv.SyncState != models.Synced && (iv.EndedAt == nil || !iv.EndedAt.Before(cutoff)) {
			continue
		}
		if t.queue.References(iv.LocalID) {
			continue
		}
		if err := t.discardLocked(ctx, iv.LocalID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
