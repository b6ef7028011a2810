// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tkhieu/worktime/internal/models"
	"github.com/tkhieu/worktime/internal/store"
)

func openTestStore(t *testing.T, dir string) *store.DB {
	t.Helper()
	cfg := store.DefaultConfig(dir)
	cfg.Compression = false
	cfg.MemTableSize = 1 << 20
	cfg.ValueLogFileSize = 1 << 20
	db, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	return db
}

func newTestQueue(t *testing.T, db *store.DB, capacity int) *Queue {
	t.Helper()
	dead := NewDeadLetters(store.NewCache[models.DeadLetterRecord](db, store.NamespaceDeadLetters), capacity)
	q := New(store.NewCache[models.PendingOperation](db, store.NamespaceOperations), dead)
	if err := q.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return q
}

func TestFormatIDOrdering(t *testing.T) {
	ids := []string{formatID(9), formatID(10), formatID(100)}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Errorf("%s should sort before %s", ids[i-1], ids[i])
		}
	}
	if len(formatID(1)) != idWidth {
		t.Errorf("formatID width = %d, want %d", len(formatID(1)), idWidth)
	}
}

func TestEnqueue_CreationOrder(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t, t.TempDir())
	defer db.Close()
	q := newTestQueue(t, db, 10)

	for i := 0; i < 12; i++ {
		if _, err := q.Enqueue(ctx, models.OpActivityCreate, "evt", nil); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	pending := q.Pending()
	if len(pending) != 12 {
		t.Fatalf("Pending() len = %d, want 12", len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i-1].ID >= pending[i].ID {
			t.Fatalf("Pending() out of order at %d: %s >= %s", i, pending[i-1].ID, pending[i].ID)
		}
	}

	if _, err := q.Enqueue(ctx, models.OpIntervalStart, "", nil); !errors.Is(err, ErrEmptyLocalID) {
		t.Errorf("Enqueue() without local id error = %v", err)
	}
}

func TestEnqueue_SequenceRecoveredAfterRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db := openTestStore(t, dir)
	q := newTestQueue(t, db, 10)
	first, _ := q.Enqueue(ctx, models.OpIntervalStart, "iv-1", models.IntervalStartPayload{})
	second, _ := q.Enqueue(ctx, models.OpIntervalEnd, "iv-1", models.IntervalEndPayload{DurationSeconds: 42})
	if err := q.Ack(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db2 := openTestStore(t, dir)
	defer db2.Close()
	q2 := newTestQueue(t, db2, 10)

	pending := q2.Pending()
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Fatalf("reloaded Pending() = %+v, want only %s", pending, second.ID)
	}

	var payload models.IntervalEndPayload
	if err := unmarshal(pending[0].Payload, &payload); err != nil || payload.DurationSeconds != 42 {
		t.Errorf("reloaded payload = %+v, err %v", payload, err)
	}

	third, err := q2.Enqueue(ctx, models.OpActivityCreate, "evt", nil)
	if err != nil {
		t.Fatal(err)
	}
	if third.ID <= second.ID {
		t.Errorf("new id %s not after recovered %s", third.ID, second.ID)
	}
}

func TestRecordFailureAndRemoteID(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t, t.TempDir())
	defer db.Close()
	q := newTestQueue(t, db, 10)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	q.SetClock(func() time.Time { return now })

	op, _ := q.Enqueue(ctx, models.OpIntervalStart, "iv-1", nil)
	next := now.Add(4 * time.Second)

	updated, err := q.RecordFailure(ctx, op.ID, errors.New("timeout"), next)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Attempt != 1 || updated.LastError != "timeout" {
		t.Errorf("after failure: %+v", updated)
	}
	if !updated.LastAttemptAt.Equal(now) || !updated.NextAttemptAt.Equal(next) {
		t.Errorf("timestamps: last %v next %v", updated.LastAttemptAt, updated.NextAttemptAt)
	}

	updated, err = q.SetRemoteID(ctx, op.ID, "sess-9")
	if err != nil {
		t.Fatal(err)
	}
	if updated.RemoteID != "sess-9" || updated.Attempt != 1 {
		t.Errorf("after SetRemoteID: %+v", updated)
	}

	if _, err := q.RecordFailure(ctx, "missing", nil, next); !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("RecordFailure(missing) error = %v", err)
	}
	if err := q.Ack(ctx, "missing"); !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("Ack(missing) error = %v", err)
	}
}

func TestForEntityAndReferences(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t, t.TempDir())
	defer db.Close()
	q := newTestQueue(t, db, 10)

	_, _ = q.Enqueue(ctx, models.OpIntervalStart, "a", nil)
	_, _ = q.Enqueue(ctx, models.OpIntervalStart, "b", nil)
	_, _ = q.Enqueue(ctx, models.OpIntervalEnd, "a", nil)

	ops := q.ForEntity("a")
	if len(ops) != 2 || ops[0].Kind != models.OpIntervalStart || ops[1].Kind != models.OpIntervalEnd {
		t.Errorf("ForEntity(a) = %+v", ops)
	}
	if !q.References("b") || q.References("c") {
		t.Error("References() wrong")
	}
}

func TestDeadLetter_MovesOperation(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t, t.TempDir())
	defer db.Close()
	q := newTestQueue(t, db, 10)

	op, _ := q.Enqueue(ctx, models.OpActivityCreate, "evt", nil)
	rec, err := q.DeadLetter(ctx, op.ID, models.FailurePermanent, "HTTP 422")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Operation.ID != op.ID || rec.Class != models.FailurePermanent {
		t.Errorf("record = %+v", rec)
	}
	if q.Len() != 0 {
		t.Errorf("queue Len() = %d after dead-letter", q.Len())
	}
	if q.DeadLetters().Len() != 1 {
		t.Errorf("dead letters Len() = %d", q.DeadLetters().Len())
	}
	stats := q.Stats()
	if stats.Pending != 0 || stats.DeadLetters != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestDeadLetters_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t, t.TempDir())
	defer db.Close()
	q := newTestQueue(t, db, 3)

	for i := 0; i < 5; i++ {
		op, _ := q.Enqueue(ctx, models.OpActivityCreate, "evt", nil)
		if _, err := q.DeadLetter(ctx, op.ID, models.FailureExhausted, "gave up"); err != nil {
			t.Fatal(err)
		}
	}

	list := q.DeadLetters().List()
	if len(list) != 3 {
		t.Fatalf("List() len = %d, want 3", len(list))
	}
	if list[0].Operation.ID != formatID(3) || list[2].Operation.ID != formatID(5) {
		t.Errorf("ring kept %s..%s, want %s..%s",
			list[0].Operation.ID, list[2].Operation.ID, formatID(3), formatID(5))
	}
}

func TestEnqueueIn_VisibleOnlyAfterCommit(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t, t.TempDir())
	defer db.Close()
	q := newTestQueue(t, db, 10)

	first, err := q.Enqueue(ctx, models.OpIntervalStart, "iv-1", nil)
	if err != nil {
		t.Fatal(err)
	}

	b := db.NewBatch()
	staged, err := q.EnqueueIn(b, models.OpIntervalEnd, "iv-1", models.IntervalEndPayload{DurationSeconds: 9})
	if err != nil {
		t.Fatalf("EnqueueIn() error = %v", err)
	}
	if err := q.AckIn(b, first.ID); err != nil {
		t.Fatalf("AckIn() error = %v", err)
	}
	if q.Len() != 1 || !q.References("iv-1") {
		t.Fatalf("staged changes visible before Commit: len = %d", q.Len())
	}
	if _, ok := q.Get(staged.ID); ok {
		t.Error("staged operation visible before Commit")
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	ops := q.Pending()
	if len(ops) != 1 || ops[0].ID != staged.ID || ops[0].Kind != models.OpIntervalEnd {
		t.Fatalf("Pending() = %+v, want only the staged end", ops)
	}
	if err := q.AckIn(db.NewBatch(), "missing"); !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("AckIn(missing) error = %v", err)
	}
}

func TestEnqueueIn_UncommittedBatchLeavesOnlyAGap(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t, t.TempDir())
	defer db.Close()
	q := newTestQueue(t, db, 10)

	if _, err := q.EnqueueIn(db.NewBatch(), models.OpActivityCreate, "evt", nil); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", q.Len())
	}

	op, err := q.Enqueue(ctx, models.OpActivityCreate, "evt", nil)
	if err != nil {
		t.Fatal(err)
	}
	if op.ID != formatID(2) {
		t.Errorf("ID = %s, want %s", op.ID, formatID(2))
	}
}
