// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package activity

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkhieu/worktime/internal/backend"
	"github.com/tkhieu/worktime/internal/cache"
	"github.com/tkhieu/worktime/internal/models"
	"github.com/tkhieu/worktime/internal/queue"
	"github.com/tkhieu/worktime/internal/store"
)

var hello42 = models.Subject{Owner: "octocat", Repo: "hello-world", Number: 42}

type harness struct {
	db     *store.DB
	queue  *queue.Queue
	outbox *Outbox
	now    time.Time
	hooks  int
}

func newHarness(t *testing.T, dir string) *harness {
	t.Helper()
	ctx := context.Background()

	cfg := store.DefaultConfig(dir)
	cfg.Compression = false
	cfg.MemTableSize = 1 << 20
	cfg.ValueLogFileSize = 1 << 20
	db, err := store.Open(cfg)
	require.NoError(t, err)

	h := &harness{db: db, now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return h.now }

	dead := queue.NewDeadLetters(store.NewCache[models.DeadLetterRecord](db, store.NamespaceDeadLetters), 10)
	h.queue = queue.New(store.NewCache[models.PendingOperation](db, store.NamespaceOperations), dead)
	require.NoError(t, h.queue.Initialize(ctx))

	window := cache.NewLRUCache(64, 500*time.Millisecond)
	window.SetClock(clock)

	seq := 0
	h.outbox = NewOutbox(
		store.NewCache[models.ActivityEvent](db, store.NamespaceOutbox),
		h.queue,
		window,
		WithClock(clock),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("evt-%d", seq)
		}),
		WithSyncHook(func(context.Context) { h.hooks++ }),
	)
	require.NoError(t, h.outbox.Initialize(ctx))
	return h
}

func TestRecord_PersistsAndEnqueues(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.db.Close()

	ev, recorded, err := h.outbox.Record(context.Background(), hello42, models.ActivityApprove,
		models.Metadata{"files_viewed": 3, "draft": false})
	require.NoError(t, err)
	require.True(t, recorded)

	stored, ok := h.outbox.Get(ev.LocalID)
	require.True(t, ok)
	assert.Equal(t, models.ActivityApprove, stored.Type)
	assert.Equal(t, h.now, stored.CreatedAt)

	ops := h.queue.ForEntity(ev.LocalID)
	require.Len(t, ops, 1)
	assert.Equal(t, models.OpActivityCreate, ops[0].Kind)

	var req backend.ActivityRequest
	require.NoError(t, json.Unmarshal(ops[0].Payload, &req))
	assert.Equal(t, "approve", req.ActivityType)
	assert.Equal(t, 42, req.ItemNumber)

	assert.Equal(t, 1, h.hooks)
}

func TestRecord_DebouncesIdenticalActions(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.db.Close()
	ctx := context.Background()

	_, first, err := h.outbox.Record(ctx, hello42, models.ActivityApprove, nil)
	require.NoError(t, err)
	require.True(t, first)

	h.now = h.now.Add(200 * time.Millisecond)
	_, second, err := h.outbox.Record(ctx, hello42, models.ActivityApprove, nil)
	require.NoError(t, err)
	assert.False(t, second)

	assert.Equal(t, 1, h.outbox.Len(), "exactly one event for a double fire")
	assert.Equal(t, 1, h.queue.Len())
	assert.Equal(t, 1, h.hooks)

	_, other, err := h.outbox.Record(ctx, hello42, models.ActivityReviewComment, nil)
	require.NoError(t, err)
	assert.True(t, other, "a different action is not a duplicate")

	h.now = h.now.Add(time.Second)
	_, later, err := h.outbox.Record(ctx, hello42, models.ActivityApprove, nil)
	require.NoError(t, err)
	assert.True(t, later, "outside the window the same action is recorded again")
	assert.Equal(t, 3, h.outbox.Len())
}

func TestRecord_Rejections(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.db.Close()
	ctx := context.Background()

	_, _, err := h.outbox.Record(ctx, hello42, models.ActivityType("merge"), nil)
	assert.ErrorIs(t, err, models.ErrUnknownActivityType)

	_, _, err = h.outbox.Record(ctx, models.Subject{Owner: "o", Number: 1}, models.ActivityApprove, nil)
	assert.ErrorIs(t, err, ErrInvalidSubject)

	_, _, err = h.outbox.Record(ctx, hello42, models.ActivityReviewComment,
		models.Metadata{"body": strings.Repeat("free text ", 20)})
	assert.ErrorIs(t, err, models.ErrMetadataValue)

	tooMany := models.Metadata{}
	for i := 0; i <= models.MaxMetadataKeys; i++ {
		tooMany[fmt.Sprintf("k%d", i)] = i
	}
	_, _, err = h.outbox.Record(ctx, hello42, models.ActivityFileViewed, tooMany)
	assert.ErrorIs(t, err, models.ErrMetadataTooLarge)

	assert.Zero(t, h.outbox.Len())
	assert.Zero(t, h.queue.Len())

	_, recorded, err := h.outbox.Record(ctx, hello42, models.ActivityReviewComment, nil)
	require.NoError(t, err)
	assert.True(t, recorded, "rejected events do not open a duplicate window")
}

func TestPendingAndComplete(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.db.Close()
	ctx := context.Background()

	var ids []string
	for _, typ := range []models.ActivityType{models.ActivityPROpened, models.ActivityFileViewed, models.ActivityApprove} {
		ev, _, err := h.outbox.Record(ctx, hello42, typ, nil)
		require.NoError(t, err)
		ids = append(ids, ev.LocalID)
		h.now = h.now.Add(time.Second)
	}

	pending := h.outbox.Pending()
	require.Len(t, pending, 3)
	for i, ev := range pending {
		assert.Equal(t, ids[i], ev.LocalID)
	}

	ops := h.queue.ForEntity(ids[1])
	require.Len(t, ops, 1)
	require.NoError(t, h.outbox.Complete(ctx, ids[1], ops[0].ID))
	_, ok := h.outbox.Get(ids[1])
	assert.False(t, ok)
	assert.Equal(t, 2, h.outbox.Len())
	assert.Empty(t, h.queue.ForEntity(ids[1]))
	assert.Equal(t, 2, h.queue.Len())

	err := h.outbox.Complete(ctx, ids[0], "missing")
	assert.ErrorIs(t, err, queue.ErrOperationNotFound)
	_, ok = h.outbox.Get(ids[0])
	assert.True(t, ok, "an unknown operation leaves the event alone")
}

func TestRecord_FailedWriteLeavesNothing(t *testing.T) {
	h := newHarness(t, t.TempDir())
	require.NoError(t, h.db.Close())

	_, recorded, err := h.outbox.Record(context.Background(), hello42, models.ActivityApprove, nil)
	require.ErrorIs(t, err, store.ErrClosed)
	assert.False(t, recorded)
	assert.Zero(t, h.outbox.Len())
	assert.Zero(t, h.queue.Len())
}

func TestOutbox_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, dir)
	ev, _, err := h.outbox.Record(context.Background(), hello42, models.ActivityRequestChanges, models.Metadata{"threads": 2})
	require.NoError(t, err)
	require.NoError(t, h.db.Close())

	h2 := newHarness(t, dir)
	defer h2.db.Close()

	got, ok := h2.outbox.Get(ev.LocalID)
	require.True(t, ok)
	assert.Equal(t, models.ActivityRequestChanges, got.Type)
	assert.Len(t, h2.queue.ForEntity(ev.LocalID), 1)
}

func TestInitialize_RequeuesEventWithoutOperation(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, dir)
	ctx := context.Background()

	// An event persisted without its operation, as left by older builds.
	orphan := models.ActivityEvent{
		LocalID:   "evt-orphan",
		Subject:   hello42,
		Type:      models.ActivityReviewSubmitted,
		CreatedAt: h.now.Add(-48 * time.Hour),
	}
	events := store.NewCache[models.ActivityEvent](h.db, store.NamespaceOutbox)
	_, err := events.Initialize(ctx)
	require.NoError(t, err)
	require.NoError(t, events.Put(ctx, orphan.LocalID, orphan))
	require.NoError(t, h.db.Close())

	h2 := newHarness(t, dir)
	defer h2.db.Close()

	ops := h2.queue.ForEntity(orphan.LocalID)
	require.Len(t, ops, 1)
	assert.Equal(t, models.OpActivityCreate, ops[0].Kind)
	var req backend.ActivityRequest
	require.NoError(t, json.Unmarshal(ops[0].Payload, &req))
	assert.Equal(t, "review_submitted", req.ActivityType)

	removed, err := h2.outbox.Sweep(ctx, h2.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)
	_, ok := h2.outbox.Get(orphan.LocalID)
	assert.True(t, ok)

	// A second restart does not queue it twice.
	require.NoError(t, h2.outbox.Initialize(ctx))
	assert.Len(t, h2.queue.ForEntity(orphan.LocalID), 1)
}

func TestSweep_RemovesOnlyUndeliverable(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.db.Close()
	ctx := context.Background()

	failed, _, err := h.outbox.Record(ctx, hello42, models.ActivityApprove, nil)
	require.NoError(t, err)
	queued, _, err := h.outbox.Record(ctx, hello42, models.ActivityFileViewed, nil)
	require.NoError(t, err)

	removed, err := h.outbox.Sweep(ctx, h.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed, "events awaiting delivery are kept")

	require.NoError(t, h.outbox.MarkUndeliverable(ctx, failed.LocalID))
	for _, op := range h.queue.ForEntity(failed.LocalID) {
		_, err := h.queue.DeadLetter(ctx, op.ID, models.FailurePermanent, "400 Bad Request")
		require.NoError(t, err)
	}

	removed, err = h.outbox.Sweep(ctx, h.now)
	require.NoError(t, err)
	assert.Zero(t, removed, "events newer than the cutoff are kept")

	removed, err = h.outbox.Sweep(ctx, h.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := h.outbox.Get(failed.LocalID)
	assert.False(t, ok)
	_, ok = h.outbox.Get(queued.LocalID)
	assert.True(t, ok)
}
