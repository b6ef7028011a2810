// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

// Package activity records discrete review actions in a durable outbox.
//
// Each recorded event is persisted together with the one activity_create
// operation that references it. The orchestrator coalesces ready activity operations into batch
// calls and removes an event only after the backend confirmed it. A short
// duplicate window absorbs the same (subject, action) pair fired twice by
// the detection layer.
package activity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tkhieu/worktime/internal/backend"
	"github.com/tkhieu/worktime/internal/cache"
	"github.com/tkhieu/worktime/internal/logging"
	"github.com/tkhieu/worktime/internal/metrics"
	"github.com/tkhieu/worktime/internal/models"
	"github.com/tkhieu/worktime/internal/queue"
	"github.com/tkhieu/worktime/internal/store"
	"github.com/tkhieu/worktime/internal/validation"
)

// ErrInvalidSubject is returned when the event subject fails validation.
var ErrInvalidSubject = errors.New("invalid subject")

// SyncHook asks for a best-effort delivery of pending activities.
type SyncHook func(ctx context.Context)

// Outbox owns the ActivityEvent entities.
type Outbox struct {
	events *store.Cache[models.ActivityEvent]
	queue  *queue.Queue
	window *cache.LRUCache
	now    func() time.Time
	newID  func() string

	mu   sync.Mutex
	hook SyncHook
}

// Option customizes an Outbox.
type Option func(*Outbox)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Outbox) { o.now = now }
}

// WithIDGenerator replaces the local id generator.
func WithIDGenerator(newID func() string) Option {
	return func(o *Outbox) { o.newID = newID }
}

// WithSyncHook sets the immediate-sync hook called by Record.
func WithSyncHook(hook SyncHook) Option {
	return func(o *Outbox) { o.hook = hook }
}

// NewOutbox creates an outbox. window decides which events are duplicates.
func NewOutbox(events *store.Cache[models.ActivityEvent], q *queue.Queue, window *cache.LRUCache, opts ...Option) *Outbox {
	o := &Outbox{
		events: events,
		queue:  q,
		window: window,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetSyncHook replaces the immediate-sync hook.
func (o *Outbox) SetSyncHook(hook SyncHook) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hook = hook
}

// Initialize loads the outbox namespace. An event that is neither
// undeliverable nor referenced by a queued operation gets its
// activity_create enqueued again. The queue must be initialized first.
func (o *Outbox) Initialize(ctx context.Context) error {
	loaded, err := o.events.Initialize(ctx)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	requeued := 0
	for _, ev := range o.events.Values() {
		if ev.Undeliverable || o.queue.References(ev.LocalID) {
			continue
		}
		req := backend.NewActivityRequest(&ev)
		if _, err := o.queue.Enqueue(ctx, models.OpActivityCreate, ev.LocalID, req); err != nil {
			return fmt.Errorf("requeue activity %s: %w", ev.LocalID, err)
		}
		logging.Warn().
			Str("local_id", ev.LocalID).
			Str("type", string(ev.Type)).
			Msg("Re-enqueued undelivered activity")
		requeued++
	}

	logging.Info().Int("events", len(loaded)).Int("requeued", requeued).Msg("Activity outbox loaded")
	return nil
}

// Record validates and stores one review action and enqueues its delivery.
// The boolean is false when the event was absorbed by the duplicate window;
// nothing is stored in that case.
func (o *Outbox) Record(ctx context.Context, subject models.Subject, typ models.ActivityType, metadata models.Metadata) (models.ActivityEvent, bool, error) {
	if verr := validation.ValidateStruct(&subject); verr != nil {
		return models.ActivityEvent{}, false, fmt.Errorf("%w: %s", ErrInvalidSubject, verr.Error())
	}
	if !typ.Valid() {
		return models.ActivityEvent{}, false, fmt.Errorf("%w: %q", models.ErrUnknownActivityType, typ)
	}
	if err := metadata.Validate(); err != nil {
		return models.ActivityEvent{}, false, err
	}

	ev := models.ActivityEvent{
		LocalID:   o.newID(),
		Subject:   subject,
		Type:      typ,
		Metadata:  metadata,
		CreatedAt: o.now().UTC(),
	}

	o.mu.Lock()
	if o.window.IsDuplicate(ev.DedupKey()) {
		o.mu.Unlock()
		metrics.ActivitiesDebounced.Inc()
		logging.Debug().Str("key", ev.DedupKey()).Msg("Duplicate activity absorbed")
		return models.ActivityEvent{}, false, nil
	}

	if err := o.persist(&ev); err != nil {
		// let the detection layer retry the same action
		o.window.Remove(ev.DedupKey())
		o.mu.Unlock()
		return models.ActivityEvent{}, false, fmt.Errorf("persist activity: %w", err)
	}
	hook := o.hook
	o.mu.Unlock()

	metrics.ActivitiesRecorded.WithLabelValues(string(typ)).Inc()
	logging.Debug().
		Str("local_id", ev.LocalID).
		Str("subject", subject.Key()).
		Str("type", string(typ)).
		Msg("Activity recorded")

	if hook != nil {
		hook(ctx)
	}
	return ev, true, nil
}

// persist writes the event and its activity_create operation in one
// transaction.
func (o *Outbox) persist(ev *models.ActivityEvent) error {
	b := o.events.NewBatch()
	if err := o.events.StagePut(b, ev.LocalID, *ev); err != nil {
		return err
	}
	if _, err := o.queue.EnqueueIn(b, models.OpActivityCreate, ev.LocalID, backend.NewActivityRequest(ev)); err != nil {
		return err
	}
	return b.Commit()
}

// Get returns an event by local id.
func (o *Outbox) Get(localID string) (models.ActivityEvent, bool) {
	return o.events.Get(localID)
}

// Complete acknowledges the delivered operation opID and drops its event in
// one transaction.
func (o *Outbox) Complete(_ context.Context, localID, opID string) error {
	b := o.events.NewBatch()
	if err := o.queue.AckIn(b, opID); err != nil {
		return fmt.Errorf("complete activity %s: %w", localID, err)
	}
	if _, ok := o.events.Get(localID); ok {
		if err := o.events.StageRemove(b, localID); err != nil {
			return fmt.Errorf("complete activity %s: %w", localID, err)
		}
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("complete activity %s: %w", localID, err)
	}
	return nil
}

// MarkUndeliverable flags an event whose operation is being dead-lettered.
func (o *Outbox) MarkUndeliverable(ctx context.Context, localID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	ev, ok := o.events.Get(localID)
	if !ok || ev.Undeliverable {
		return nil
	}
	ev.Undeliverable = true
	if err := o.events.Put(ctx, localID, ev); err != nil {
		return fmt.Errorf("mark undeliverable %s: %w", localID, err)
	}
	return nil
}

// Pending returns undelivered events, oldest first.
func (o *Outbox) Pending() []models.ActivityEvent {
	events := o.events.Values()
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events
}

// Len returns the number of undelivered events.
func (o *Outbox) Len() int {
	return o.events.Len()
}

// Sweep removes undeliverable events created before cutoff that no pending
// operation references. Events still awaiting delivery are kept at any age.
func (o *Outbox) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	removed := 0
	for _, ev := range o.events.Values() {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !ev.Undeliverable || !ev.CreatedAt.Before(cutoff) || o.queue.References(ev.LocalID) {
			continue
		}
		if err := o.events.Remove(ctx, ev.LocalID); err != nil {
			return removed, fmt.Errorf("sweep activity %s: %w", ev.LocalID, err)
		}
		removed++
	}
	return removed, nil
}
