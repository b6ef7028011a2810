// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

/*
orchestrator.go - Sync Orchestrator Lifecycle and Entry Points

This file contains the orchestrator struct, its dependencies, and the three
ways a sync pass is started.

Entry Points:
  - TrySync(): full pass, never waits; returns ErrSyncInFlight when busy
  - SyncInterval(): one interval's operations, waits for the running pass
  - SyncActivities(): ready activity operations, waits for the running pass

Single Flight:
  - sem: a one-slot channel held for the whole pass
  - rerun: set by a TrySync that found the slot taken; the holder runs one
    more full pass before releasing, so no trigger is lost

Thread Safety:
  - mu: protects lastResult, lastErr, authRequired
  - interval and queue mutation goes through their owners' locks
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tkhieu/worktime/internal/auth"
	"github.com/tkhieu/worktime/internal/backend"
	"github.com/tkhieu/worktime/internal/config"
	"github.com/tkhieu/worktime/internal/logging"
	"github.com/tkhieu/worktime/internal/models"
	"github.com/tkhieu/worktime/internal/queue"
	"github.com/tkhieu/worktime/internal/retry"
	"github.com/tkhieu/worktime/internal/store"
)

var (
	// ErrSyncInFlight is returned by TrySync while another pass runs.
	ErrSyncInFlight = errors.New("sync already in flight")

	// ErrNotAuthenticated is returned when no usable credential exists, or
	// when the backend rejected the credential during a pass.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Backend is the remote API the orchestrator delivers to.
type Backend interface {
	StartSession(ctx context.Context, req backend.StartSessionRequest) (backend.StartSessionResponse, error)
	EndSession(ctx context.Context, sessionID string, durationSeconds int64) (backend.EndSessionResponse, error)
	CreateActivity(ctx context.Context, req backend.ActivityRequest) (backend.ActivityResponse, error)
	CreateActivities(ctx context.Context, reqs []backend.ActivityRequest) (backend.BatchResponse, error)
}

// IntervalRepository is the orchestrator's view of the session tracker.
type IntervalRepository interface {
	Get(localID string) (models.TrackedInterval, bool)
	AssignRemoteID(ctx context.Context, localID, remoteID string) error
	// MarkSynced acknowledges the delivered interval_end opID together with
	// the interval update.
	MarkSynced(ctx context.Context, localID, opID string) error
	MarkUndeliverable(ctx context.Context, localID string) error
}

// ActivityRepository is the orchestrator's view of the activity outbox.
type ActivityRepository interface {
	Get(localID string) (models.ActivityEvent, bool)
	// Complete acknowledges the delivered opID and drops its event together.
	Complete(ctx context.Context, localID, opID string) error
	MarkUndeliverable(ctx context.Context, localID string) error
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Queue      *queue.Queue
	Intervals  IntervalRepository
	Activities ActivityRepository
	Backend    Backend
	Auth       auth.Authenticator
	Policy     *retry.Policy
	Meta       *store.Meta
	Clock      func() time.Time
}

// Result counts what one call did.
type Result struct {
	Delivered    int           `json:"delivered"`
	Failed       int           `json:"failed"`
	DeadLettered int           `json:"dead_lettered"`
	Skipped      int           `json:"skipped"`
	Dropped      int           `json:"dropped"`
	Passes       int           `json:"passes"`
	Duration     time.Duration `json:"duration_ns"`
}

func (r *Result) add(o Result) {
	r.Delivered += o.Delivered
	r.Failed += o.Failed
	r.DeadLettered += o.DeadLettered
	r.Skipped += o.Skipped
	r.Dropped += o.Dropped
	r.Passes += o.Passes
	r.Duration += o.Duration
}

// Status is a snapshot for the local API.
type Status struct {
	InFlight     bool      `json:"in_flight"`
	AuthRequired bool      `json:"auth_required"`
	LastResult   *Result   `json:"last_result,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	LastSyncAt   time.Time `json:"last_sync_at,omitempty"`
	Pending      int       `json:"pending"`
	DeadLetters  int       `json:"dead_letters"`
}

// Orchestrator drains the pending-operation queue to the backend.
type Orchestrator struct {
	queue      *queue.Queue
	intervals  IntervalRepository
	activities ActivityRepository
	backend    Backend
	auth       auth.Authenticator
	policy     *retry.Policy
	meta       *store.Meta
	now        func() time.Time

	batchSize   int
	passTimeout time.Duration

	sem   chan struct{}
	rerun atomic.Bool

	// released runs right after the slot is freed. Tests only.
	released func()

	mu           sync.RWMutex
	lastResult   *Result
	lastErr      error
	authRequired bool
}

// NewOrchestrator wires an orchestrator. cfg supplies batch size and the
// pass timeout.
func NewOrchestrator(d Deps, cfg *config.SyncConfig) *Orchestrator {
	batch := cfg.BatchSize
	if batch <= 0 || batch > backend.MaxBatchSize {
		batch = backend.MaxBatchSize
	}
	timeout := cfg.PassTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	policy := d.Policy
	if policy == nil {
		policy = retry.NewPolicy(cfg)
	}
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Orchestrator{
		queue:       d.Queue,
		intervals:   d.Intervals,
		activities:  d.Activities,
		backend:     d.Backend,
		auth:        d.Auth,
		policy:      policy,
		meta:        d.Meta,
		now:         clock,
		batchSize:   batch,
		passTimeout: timeout,
		sem:         make(chan struct{}, 1),
	}
}

func (o *Orchestrator) tryAcquire() bool {
	select {
	case o.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	select {
	case o.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release runs the full passes requested while the slot was held, then
// frees the slot. A request that arrives between the last check and the
// release is picked up by taking the slot again.
func (o *Orchestrator) release(ctx context.Context, total *Result) error {
	var err error
	for {
		for o.rerun.Swap(false) && err == nil && ctx.Err() == nil {
			var res Result
			res, err = o.runPass(ctx, passScope{})
			total.add(res)
		}
		<-o.sem
		if o.released != nil {
			o.released()
		}
		if err != nil || ctx.Err() != nil || !o.rerun.Load() || !o.tryAcquire() {
			return err
		}
	}
}

// TrySync runs a full pass unless one is already running, in which case it
// asks the running pass to go around once more and returns ErrSyncInFlight.
func (o *Orchestrator) TrySync(ctx context.Context) (Result, error) {
	if !o.tryAcquire() {
		o.rerun.Store(true)
		// The holder may have checked rerun just before we set it.
		if !o.tryAcquire() {
			return Result{}, ErrSyncInFlight
		}
	}
	o.rerun.Store(false)

	total, err := o.runPass(ctx, passScope{})
	if rerr := o.release(ctx, &total); err == nil {
		err = rerr
	}
	o.finish(total, err)
	return total, err
}

// SyncInterval delivers the operations of one interval now, ignoring
// backoff. It waits for a running pass to finish.
func (o *Orchestrator) SyncInterval(ctx context.Context, localID string) error {
	if err := o.acquire(ctx); err != nil {
		return err
	}
	total, err := o.runPass(ctx, passScope{localID: localID, ignoreBackoff: true})
	if rerr := o.release(ctx, &total); err == nil {
		err = rerr
	}
	o.finish(total, err)
	return err
}

// SyncActivities delivers ready activity operations now. It waits for a
// running pass to finish.
func (o *Orchestrator) SyncActivities(ctx context.Context) error {
	if err := o.acquire(ctx); err != nil {
		return err
	}
	total, err := o.runPass(ctx, passScope{activitiesOnly: true})
	if rerr := o.release(ctx, &total); err == nil {
		err = rerr
	}
	o.finish(total, err)
	return err
}

// IntervalHook returns the tracker's immediate-sync hook. The hook delivers
// the interval before it returns, for at most timeout, and keeps going when
// the caller's context is cancelled. Failures leave the operations queued
// for the scheduler.
func (o *Orchestrator) IntervalHook(timeout time.Duration) func(ctx context.Context, localID string) {
	return func(ctx context.Context, localID string) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := o.SyncInterval(ctx, localID); err != nil {
			logging.Ctx(ctx).Debug().Err(err).Str("interval_id", localID).Msg("Immediate interval sync did not complete")
		}
	}
}

// ActivityHook is IntervalHook for the activity outbox.
func (o *Orchestrator) ActivityHook(timeout time.Duration) func(ctx context.Context) {
	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := o.SyncActivities(ctx); err != nil {
			logging.Ctx(ctx).Debug().Err(err).Msg("Immediate activity sync did not complete")
		}
	}
}

func (o *Orchestrator) finish(res Result, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastResult = &res
	o.lastErr = err
}

// setAuthRequired records the auth state, logging once per transition.
func (o *Orchestrator) setAuthRequired(required bool) {
	o.mu.Lock()
	changed := o.authRequired != required
	o.authRequired = required
	o.mu.Unlock()

	if changed && required {
		logging.Warn().Msg("Backend credential missing or rejected, sync paused until sign-in")
	} else if changed {
		logging.Info().Msg("Backend credential available, sync resumed")
	}
}

// Status returns a snapshot of the orchestrator state.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	s := Status{
		InFlight:     len(o.sem) == 1,
		AuthRequired: o.authRequired,
	}
	if o.lastResult != nil {
		r := *o.lastResult
		s.LastResult = &r
	}
	if o.lastErr != nil {
		s.LastError = o.lastErr.Error()
	}
	o.mu.RUnlock()

	qs := o.queue.Stats()
	s.Pending = qs.Pending
	s.DeadLetters = qs.DeadLetters
	if o.meta != nil {
		if t, err := o.meta.LastSyncAt(); err == nil {
			s.LastSyncAt = t
		}
	}
	return s
}
