// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tkhieu/worktime/internal/backend"
	"github.com/tkhieu/worktime/internal/logging"
	"github.com/tkhieu/worktime/internal/metrics"
	"github.com/tkhieu/worktime/internal/models"
	"github.com/tkhieu/worktime/internal/retry"
)

// ErrPartialBatch is recorded when the backend created fewer activities than
// a batch carried.
var ErrPartialBatch = errors.New("backend created a partial batch")

// errAuthAbort stops a pass after the backend rejected the credential.
var errAuthAbort = fmt.Errorf("credential rejected: %w", ErrNotAuthenticated)

// passScope narrows a pass. The zero value is a full pass.
type passScope struct {
	localID        string
	activitiesOnly bool
	ignoreBackoff  bool
}

func (s passScope) includes(op *models.PendingOperation) bool {
	if s.localID != "" && op.LocalID != s.localID {
		return false
	}
	if s.activitiesOnly && !op.Kind.IsActivity() {
		return false
	}
	return true
}

// runPass walks the queue once. Operations for the same entity are strictly
// ordered: once one is skipped or fails, the later ones wait for the next
// pass. Interval operations go one at a time; activity operations are
// collected and sent in batches after the walk.
func (o *Orchestrator) runPass(parent context.Context, scope passScope) (Result, error) {
	start := o.now()
	res := Result{Passes: 1}

	if o.auth == nil || !o.auth.IsAuthenticated(parent) {
		o.setAuthRequired(true)
		metrics.RecordSyncPass("auth_required", 0)
		return res, ErrNotAuthenticated
	}
	o.setAuthRequired(false)

	ctx, cancel := context.WithTimeout(parent, o.passTimeout)
	defer cancel()
	ctx = logging.ContextWithPassID(ctx, logging.GeneratePassID())
	log := logging.Ctx(ctx)

	var (
		blocked    = make(map[string]bool)
		activities []models.PendingOperation
		err        error
	)
	for _, op := range o.queue.Pending() {
		if ctx.Err() != nil {
			break
		}
		if !scope.includes(&op) {
			continue
		}
		if blocked[op.LocalID] {
			res.Skipped++
			continue
		}
		if !scope.ignoreBackoff && !o.ready(&op) {
			blocked[op.LocalID] = true
			res.Skipped++
			continue
		}
		if op.Kind.IsActivity() {
			activities = append(activities, op)
			continue
		}

		if derr := o.deliverInterval(ctx, op, &res); derr != nil {
			if errors.Is(derr, errAuthAbort) {
				err = derr
				break
			}
			blocked[op.LocalID] = true
		}
	}

	if err == nil && len(activities) > 0 && ctx.Err() == nil {
		err = o.deliverActivities(ctx, activities, &res)
	}
	if err == nil && parent.Err() == nil && ctx.Err() != nil {
		err = fmt.Errorf("sync pass: %w", ctx.Err())
	}

	res.Duration = o.now().Sub(start)
	outcome := "completed"
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		outcome = "auth_required"
	case err != nil:
		outcome = "aborted"
	case res.Failed > 0 || res.DeadLettered > 0:
		outcome = "partial"
	}
	if err == nil && o.meta != nil {
		if serr := o.meta.SetLastSyncAt(o.now()); serr != nil {
			log.Warn().Err(serr).Msg("Failed to persist last sync time")
		}
	}
	metrics.RecordSyncPass(outcome, res.Duration)

	log.Info().
		Str("outcome", outcome).
		Int("delivered", res.Delivered).
		Int("failed", res.Failed).
		Int("dead_lettered", res.DeadLettered).
		Int("skipped", res.Skipped).
		Int("dropped", res.Dropped).
		Dur("duration", res.Duration).
		Msg("Sync pass finished")
	return res, err
}

// ready reports whether op's backoff has elapsed. NextAttemptAt is fixed
// when the failure is recorded, so the jitter drawn then is honored.
func (o *Orchestrator) ready(op *models.PendingOperation) bool {
	if op.Attempt == 0 {
		return true
	}
	if !op.NextAttemptAt.IsZero() {
		return !o.now().Before(op.NextAttemptAt)
	}
	return o.policy.IsReadyForRetry(op.Attempt, op.LastAttemptAt)
}

func (o *Orchestrator) deliverInterval(ctx context.Context, op models.PendingOperation, res *Result) error {
	iv, found := o.intervals.Get(op.LocalID)
	subject, remoteID, ok := intervalTarget(&op, &iv, found)
	if !ok {
		o.drop(ctx, op, "interval no longer exists", res)
		return nil
	}

	switch op.Kind {
	case models.OpIntervalStart:
		if remoteID == "" {
			var err error
			if remoteID, err = o.createSession(ctx, op, subject); err != nil {
				return o.handleFailure(ctx, op, err, res)
			}
		}
		o.ack(ctx, op, res)
		return nil

	case models.OpIntervalEnd:
		if remoteID == "" {
			// The start never reached the backend; create the session so
			// there is something to end.
			var err error
			if remoteID, err = o.createSession(ctx, op, subject); err != nil {
				return o.handleFailure(ctx, op, err, res)
			}
		}
		duration := endDuration(&op, &iv, found)
		if _, err := o.backend.EndSession(ctx, remoteID, duration); err != nil {
			return o.handleFailure(ctx, op, err, res)
		}
		if err := o.intervals.MarkSynced(ctx, op.LocalID, op.ID); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("op_id", op.ID).Msg("Failed to acknowledge delivered operation")
			return nil
		}
		o.delivered(op, res)
		return nil

	default:
		o.drop(ctx, op, fmt.Sprintf("unknown operation kind %q", op.Kind), res)
		return nil
	}
}

// intervalTarget resolves the subject and any known server id for an
// interval operation. End operations carry their subject so they can be
// replayed after the interval itself is gone.
func intervalTarget(op *models.PendingOperation, iv *models.TrackedInterval, found bool) (models.Subject, string, bool) {
	if found {
		remote := iv.RemoteID
		if remote == "" {
			remote = op.RemoteID
		}
		return iv.Subject, remote, true
	}
	if op.Kind != models.OpIntervalEnd || len(op.Payload) == 0 {
		return models.Subject{}, "", false
	}
	var p models.IntervalEndPayload
	if err := json.Unmarshal(op.Payload, &p); err != nil || p.Subject.Number <= 0 {
		return models.Subject{}, "", false
	}
	return p.Subject, op.RemoteID, true
}

// endDuration prefers the duration captured when the interval ended.
func endDuration(op *models.PendingOperation, iv *models.TrackedInterval, found bool) int64 {
	if len(op.Payload) > 0 {
		var p models.IntervalEndPayload
		if err := json.Unmarshal(op.Payload, &p); err == nil {
			return p.DurationSeconds
		}
	}
	if found {
		return iv.DurationSeconds()
	}
	return 0
}

// createSession obtains a server id for op's interval and records it on the
// interval and on every queued operation of that interval.
func (o *Orchestrator) createSession(ctx context.Context, op models.PendingOperation, subject models.Subject) (string, error) {
	resp, err := o.backend.StartSession(ctx, backend.NewStartSessionRequest(subject))
	if err != nil {
		return "", err
	}
	remoteID := resp.SessionID

	if err := o.intervals.AssignRemoteID(ctx, op.LocalID, remoteID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("local_id", op.LocalID).Msg("Failed to record remote id on interval")
	}
	for _, other := range o.queue.ForEntity(op.LocalID) {
		if other.RemoteID == remoteID {
			continue
		}
		if _, err := o.queue.SetRemoteID(ctx, other.ID, remoteID); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("op_id", other.ID).Msg("Failed to record remote id on operation")
		}
	}
	logging.Ctx(ctx).Debug().
		Str("local_id", op.LocalID).
		Str("remote_id", remoteID).
		Str("subject", subject.Key()).
		Msg("Session created")
	return remoteID, nil
}

// deliverActivities sends a single activity on its own and larger sets in
// batches. A batch is confirmed only when the backend created every
// activity in it.
func (o *Orchestrator) deliverActivities(ctx context.Context, ops []models.PendingOperation, res *Result) error {
	type item struct {
		op  models.PendingOperation
		req backend.ActivityRequest
	}
	items := make([]item, 0, len(ops))
	for _, op := range ops {
		ev, ok := o.activities.Get(op.LocalID)
		if !ok {
			o.drop(ctx, op, "activity no longer exists", res)
			continue
		}
		items = append(items, item{op: op, req: backend.NewActivityRequest(&ev)})
	}

	if len(items) == 1 {
		it := items[0]
		if _, err := o.backend.CreateActivity(ctx, it.req); err != nil {
			if herr := o.handleFailure(ctx, it.op, err, res); errors.Is(herr, errAuthAbort) {
				return herr
			}
			return nil
		}
		o.ackActivity(ctx, it.op, res)
		return nil
	}

	for begin := 0; begin < len(items); begin += o.batchSize {
		if ctx.Err() != nil {
			return nil
		}
		end := min(begin+o.batchSize, len(items))
		chunk := items[begin:end]

		reqs := make([]backend.ActivityRequest, len(chunk))
		for i := range chunk {
			reqs[i] = chunk[i].req
		}
		resp, err := o.backend.CreateActivities(ctx, reqs)
		if err == nil && resp.CreatedCount != len(chunk) {
			err = fmt.Errorf("%w: %d of %d", ErrPartialBatch, resp.CreatedCount, len(chunk))
		}
		if err != nil {
			for _, it := range chunk {
				if herr := o.handleFailure(ctx, it.op, err, res); errors.Is(herr, errAuthAbort) {
					return herr
				}
			}
			continue
		}
		for _, it := range chunk {
			o.ackActivity(ctx, it.op, res)
		}
	}
	return nil
}

func (o *Orchestrator) ack(ctx context.Context, op models.PendingOperation, res *Result) {
	if err := o.queue.Ack(ctx, op.ID); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("op_id", op.ID).Msg("Failed to acknowledge delivered operation")
		return
	}
	o.delivered(op, res)
}

func (o *Orchestrator) ackActivity(ctx context.Context, op models.PendingOperation, res *Result) {
	if err := o.activities.Complete(ctx, op.LocalID, op.ID); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("op_id", op.ID).Msg("Failed to acknowledge delivered activity")
		return
	}
	o.delivered(op, res)
}

func (o *Orchestrator) delivered(op models.PendingOperation, res *Result) {
	res.Delivered++
	metrics.RecordDelivered(string(op.Kind))
}

// markUndeliverable flags the entity of an operation about to be
// dead-lettered, which lets retention discard it later. Only the operation
// that carries an entity's final state marks it.
func (o *Orchestrator) markUndeliverable(ctx context.Context, op models.PendingOperation) {
	var err error
	switch {
	case op.Kind == models.OpIntervalEnd:
		err = o.intervals.MarkUndeliverable(ctx, op.LocalID)
	case op.Kind.IsActivity():
		err = o.activities.MarkUndeliverable(ctx, op.LocalID)
	default:
		return
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("local_id", op.LocalID).Msg("Failed to mark entity undeliverable")
	}
}

// drop dead-letters an operation whose entity is gone. Such an operation can
// never be delivered, so it is not retried.
func (o *Orchestrator) drop(ctx context.Context, op models.PendingOperation, reason string, res *Result) {
	logging.Ctx(ctx).Warn().
		Str("op_id", op.ID).
		Str("kind", string(op.Kind)).
		Str("local_id", op.LocalID).
		Msg("Dropping operation: " + reason)
	if _, err := o.queue.DeadLetter(ctx, op.ID, models.FailureInvariant, reason); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("op_id", op.ID).Msg("Failed to dead-letter operation")
		return
	}
	res.Dropped++
}

// handleFailure classifies a delivery error. Auth failures clear the
// credential and abort the pass without touching the operation. Other
// failures are recorded with the next attempt time; operations that are
// permanent or out of attempts are dead-lettered.
func (o *Orchestrator) handleFailure(ctx context.Context, op models.PendingOperation, cause error, res *Result) error {
	log := logging.Ctx(ctx)

	// A cancelled pass is not the operation's fault.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	class := retry.Classify(cause)
	if class == retry.Auth {
		if err := o.auth.Clear(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to clear rejected credential")
		}
		o.setAuthRequired(true)
		return errAuthAbort
	}

	res.Failed++
	metrics.RecordFailed(string(op.Kind), class.String())

	next := o.policy.NextAttempt(op.Attempt, o.now(), retry.RetryAfter(cause))
	updated, err := o.queue.RecordFailure(ctx, op.ID, cause, next)
	if err != nil {
		log.Error().Err(err).Str("op_id", op.ID).Msg("Failed to record delivery failure")
		return cause
	}

	if o.policy.ShouldRetry(updated.Attempt, cause) {
		log.Warn().
			Err(cause).
			Str("op_id", op.ID).
			Str("kind", string(op.Kind)).
			Int("attempt", updated.Attempt).
			Time("next_attempt_at", updated.NextAttemptAt).
			Msg("Delivery failed, will retry")
		return cause
	}

	failure := models.FailureExhausted
	if class == retry.Permanent {
		failure = models.FailurePermanent
	}
	o.markUndeliverable(ctx, op)
	if _, err := o.queue.DeadLetter(ctx, op.ID, failure, cause.Error()); err != nil {
		log.Error().Err(err).Str("op_id", op.ID).Msg("Failed to dead-letter operation")
		return cause
	}
	res.DeadLettered++
	return cause
}
