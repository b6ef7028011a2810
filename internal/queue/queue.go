// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

// Package queue holds the durable list of operations awaiting delivery to
// the backend, and the dead-letter ring of operations that gave up.
//
// The queue is constructed once at process start from the store and handed
// to the session tracker and the activity outbox (which enqueue) and to the
// sync orchestrator (which acknowledges, records failures and dead-letters).
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tkhieu/worktime/internal/metrics"
	"github.com/tkhieu/worktime/internal/models"
	"github.com/tkhieu/worktime/internal/store"
)

// ErrOperationNotFound is returned for unknown operation ids.
var ErrOperationNotFound = errors.New("operation not found")

// ErrEmptyLocalID is returned when an operation does not reference an entity.
var ErrEmptyLocalID = errors.New("operation must reference an entity")

// idWidth zero pads sequence ids so lexical order equals numeric order.
const idWidth = 20

func formatID(seq uint64) string {
	s := strconv.FormatUint(seq, 10)
	for len(s) < idWidth {
		s = "0" + s
	}
	return s
}

// Queue is the pending-operation queue.
type Queue struct {
	ops  *store.Cache[models.PendingOperation]
	dead *DeadLetters
	now  func() time.Time

	mu  sync.Mutex
	seq uint64
}

// New creates a queue over the operations cache.
func New(ops *store.Cache[models.PendingOperation], dead *DeadLetters) *Queue {
	return &Queue{ops: ops, dead: dead, now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (q *Queue) SetClock(now func() time.Time) {
	q.now = now
}

// Initialize loads persisted operations and recovers the id sequence.
func (q *Queue) Initialize(ctx context.Context) error {
	loaded, err := q.ops.Initialize(ctx)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq = 0
	for key := range loaded {
		n, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			continue
		}
		if n > q.seq {
			q.seq = n
		}
	}
	if q.dead != nil {
		if err := q.dead.Initialize(ctx); err != nil {
			return err
		}
	}
	metrics.PendingOperations.Set(float64(len(loaded)))
	return nil
}

// Enqueue appends an operation for localID. payload is stored as JSON.
func (q *Queue) Enqueue(ctx context.Context, kind models.OperationKind, localID string, payload any) (models.PendingOperation, error) {
	b := q.ops.NewBatch()
	op, err := q.EnqueueIn(b, kind, localID, payload)
	if err != nil {
		return models.PendingOperation{}, err
	}
	if err := b.Commit(); err != nil {
		return models.PendingOperation{}, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return op, nil
}

// EnqueueIn stages an operation in b so it lands in the same transaction as
// the entity it references. The operation is queued once b commits. A batch
// that fails to commit leaves a gap in the id sequence and nothing else.
func (q *Queue) EnqueueIn(b *store.Batch, kind models.OperationKind, localID string, payload any) (models.PendingOperation, error) {
	if localID == "" {
		return models.PendingOperation{}, ErrEmptyLocalID
	}
	var raw []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return models.PendingOperation{}, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		raw = data
	}

	q.mu.Lock()
	q.seq++
	op := models.PendingOperation{
		ID:        formatID(q.seq),
		LocalID:   localID,
		Kind:      kind,
		Payload:   raw,
		CreatedAt: q.now().UTC(),
	}
	q.mu.Unlock()

	if err := q.ops.StagePut(b, op.ID, op); err != nil {
		return models.PendingOperation{}, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	b.OnCommit(q.updatePending)
	return op, nil
}

// Pending returns every queued operation in creation order.
func (q *Queue) Pending() []models.PendingOperation {
	return q.ops.Values()
}

// ForEntity returns the queued operations referencing localID, in creation order.
func (q *Queue) ForEntity(localID string) []models.PendingOperation {
	var out []models.PendingOperation
	for _, op := range q.ops.Values() {
		if op.LocalID == localID {
			out = append(out, op)
		}
	}
	return out
}

// References reports whether any queued operation references localID.
func (q *Queue) References(localID string) bool {
	for _, op := range q.ops.Values() {
		if op.LocalID == localID {
			return true
		}
	}
	return false
}

// Get returns the operation with id.
func (q *Queue) Get(id string) (models.PendingOperation, bool) {
	return q.ops.Get(id)
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	return q.ops.Len()
}

// Ack removes a delivered operation.
func (q *Queue) Ack(ctx context.Context, id string) error {
	b := q.ops.NewBatch()
	if err := q.AckIn(b, id); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("ack %s: %w", id, err)
	}
	return nil
}

// AckIn stages the removal of a delivered operation in b, so the entity
// update that completes delivery commits together with it.
func (q *Queue) AckIn(b *store.Batch, id string) error {
	if _, ok := q.ops.Get(id); !ok {
		return fmt.Errorf("ack %s: %w", id, ErrOperationNotFound)
	}
	if err := q.ops.StageRemove(b, id); err != nil {
		return fmt.Errorf("ack %s: %w", id, err)
	}
	b.OnCommit(q.updatePending)
	return nil
}

func (q *Queue) updatePending() {
	metrics.PendingOperations.Set(float64(q.ops.Len()))
}

// RecordFailure increments the attempt count of id and stores the error and
// the next time the operation may be attempted.
func (q *Queue) RecordFailure(ctx context.Context, id string, cause error, nextAttemptAt time.Time) (models.PendingOperation, error) {
	return q.update(ctx, id, func(op *models.PendingOperation) {
		op.Attempt++
		op.LastAttemptAt = q.now().UTC()
		if cause != nil {
			op.LastError = cause.Error()
		}
		op.NextAttemptAt = nextAttemptAt.UTC()
	})
}

// SetRemoteID records the server id obtained for the operation's entity.
func (q *Queue) SetRemoteID(ctx context.Context, id, remoteID string) (models.PendingOperation, error) {
	return q.update(ctx, id, func(op *models.PendingOperation) {
		op.RemoteID = remoteID
	})
}

func (q *Queue) update(ctx context.Context, id string, mutate func(*models.PendingOperation)) (models.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	op, ok := q.ops.Get(id)
	if !ok {
		return models.PendingOperation{}, fmt.Errorf("update %s: %w", id, ErrOperationNotFound)
	}
	mutate(&op)
	if err := q.ops.Put(ctx, id, op); err != nil {
		return models.PendingOperation{}, fmt.Errorf("update %s: %w", id, err)
	}
	return op, nil
}

// DeadLetter moves id into the dead-letter ring and removes it from the queue.
// The record is written before the operation is removed, so a crash between
// the two leaves a duplicate diagnostic rather than a lost one.
func (q *Queue) DeadLetter(ctx context.Context, id string, class models.FailureClass, reason string) (models.DeadLetterRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	op, ok := q.ops.Get(id)
	if !ok {
		return models.DeadLetterRecord{}, fmt.Errorf("dead-letter %s: %w", id, ErrOperationNotFound)
	}

	rec := models.DeadLetterRecord{
		Operation: op,
		Reason:    reason,
		Class:     class,
		DeadAt:    q.now().UTC(),
	}
	if q.dead != nil {
		if err := q.dead.Add(ctx, rec); err != nil {
			return models.DeadLetterRecord{}, fmt.Errorf("dead-letter %s: %w", id, err)
		}
	}
	if err := q.ops.Remove(ctx, id); err != nil {
		return models.DeadLetterRecord{}, fmt.Errorf("dead-letter %s: %w", id, err)
	}
	metrics.PendingOperations.Set(float64(q.ops.Len()))
	metrics.RecordDeadLettered(string(op.Kind), string(class))
	return rec, nil
}

// DeadLetters returns the dead-letter ring.
func (q *Queue) DeadLetters() *DeadLetters {
	return q.dead
}

// Stats summarizes the queue.
type Stats struct {
	Pending     int       `json:"pending"`
	Oldest      time.Time `json:"oldest,omitempty"`
	MaxAttempts int       `json:"max_attempts"`
	DeadLetters int       `json:"dead_letters"`
}

// Stats returns a snapshot of queue statistics.
func (q *Queue) Stats() Stats {
	ops := q.ops.Values()
	s := Stats{Pending: len(ops)}
	for i, op := range ops {
		if i == 0 || op.CreatedAt.Before(s.Oldest) {
			s.Oldest = op.CreatedAt
		}
		if op.Attempt > s.MaxAttempts {
			s.MaxAttempts = op.Attempt
		}
	}
	if q.dead != nil {
		s.DeadLetters = q.dead.Len()
	}
	return s
}
