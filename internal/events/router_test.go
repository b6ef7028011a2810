// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkhieu/worktime/internal/activity"
	"github.com/tkhieu/worktime/internal/cache"
	"github.com/tkhieu/worktime/internal/models"
	"github.com/tkhieu/worktime/internal/queue"
	"github.com/tkhieu/worktime/internal/session"
	"github.com/tkhieu/worktime/internal/store"
	"github.com/tkhieu/worktime/internal/validation"
)

var hello42 = models.Subject{Owner: "octocat", Repo: "hello-world", Number: 42}

type fixture struct {
	router  *Router
	tracker *session.Tracker
	outbox  *activity.Outbox
	queue   *queue.Queue
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	cfg := store.DefaultConfig(t.TempDir())
	cfg.Compression = false
	cfg.MemTableSize = 1 << 20
	cfg.ValueLogFileSize = 1 << 20
	db, err := store.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{now: time.Date(2026, 5, 6, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	f.queue = queue.New(store.NewCache[models.PendingOperation](db, store.NamespaceOperations), nil)
	require.NoError(t, f.queue.Initialize(ctx))

	f.tracker = session.NewTracker(store.NewCache[models.TrackedInterval](db, store.NamespaceIntervals), f.queue,
		session.WithClock(clock))
	require.NoError(t, f.tracker.Initialize(ctx))

	window := cache.NewLRUCache(64, 500*time.Millisecond)
	window.SetClock(clock)
	f.outbox = activity.NewOutbox(store.NewCache[models.ActivityEvent](db, store.NamespaceOutbox), f.queue, window,
		activity.WithClock(clock))
	require.NoError(t, f.outbox.Initialize(ctx))

	f.router = NewRouter(f.tracker, f.outbox)
	return f
}

func (f *fixture) handle(t *testing.T, raw string) Outcome {
	t.Helper()
	msg, err := Decode([]byte(raw))
	require.NoError(t, err)
	out, err := f.router.Handle(context.Background(), msg)
	require.NoError(t, err)
	return out
}

func TestRouter_IntervalLifecycle(t *testing.T) {
	f := newFixture(t)

	out := f.handle(t, `{"type":"subject_detected","context_id":"tab-1","subject":{"owner":"octocat","repo":"hello-world","number":42}}`)
	require.NotEmpty(t, out.IntervalID)
	id := out.IntervalID

	f.now = f.now.Add(40 * time.Second)
	out = f.handle(t, `{"type":"context_hidden","context_id":"tab-1"}`)
	assert.Equal(t, id, out.IntervalID)

	iv, _ := f.tracker.Get(id)
	assert.Equal(t, models.IntervalPaused, iv.State)

	f.now = f.now.Add(10 * time.Minute)
	f.handle(t, `{"type":"context_visible","context_id":"tab-1"}`)
	f.now = f.now.Add(20 * time.Second)

	out = f.handle(t, `{"type":"context_closed","context_id":"tab-1"}`)
	assert.Equal(t, id, out.IntervalID)
	assert.Equal(t, int64(60), out.DurationSeconds, "hidden time is not counted")

	kinds := []models.OperationKind{}
	for _, op := range f.queue.Pending() {
		kinds = append(kinds, op.Kind)
	}
	assert.Equal(t, []models.OperationKind{models.OpIntervalStart, models.OpIntervalEnd}, kinds)
}

func TestRouter_UnknownContextIsIgnored(t *testing.T) {
	f := newFixture(t)

	for _, raw := range []string{
		`{"type":"context_hidden","context_id":"tab-9"}`,
		`{"type":"context_visible","context_id":"tab-9"}`,
		`{"type":"context_closed","context_id":"tab-9"}`,
	} {
		out := f.handle(t, raw)
		assert.True(t, out.Ignored, raw)
	}
	assert.Equal(t, 0, f.queue.Len())
}

func TestRouter_ReviewActionDebounced(t *testing.T) {
	f := newFixture(t)
	raw := `{"type":"review_action_detected","subject":{"owner":"octocat","repo":"hello-world","number":42},"action_type":"approve","metadata":{"files":3}}`

	out := f.handle(t, raw)
	assert.False(t, out.Duplicate)
	assert.NotEmpty(t, out.ActivityID)

	f.now = f.now.Add(200 * time.Millisecond)
	out = f.handle(t, raw)
	assert.True(t, out.Duplicate)

	assert.Equal(t, 1, f.outbox.Len())
}

func TestRouter_Rejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name      string
		raw       string
		wantField string
	}{
		{"unknown type", `{"type":"tab_scrolled","context_id":"tab-1"}`, "type"},
		{"subject missing", `{"type":"subject_detected","context_id":"tab-1"}`, "subject"},
		{"context missing", `{"type":"context_hidden"}`, "context_id"},
		{"context with spaces", `{"type":"context_closed","context_id":"tab 1"}`, "context_id"},
		{"bad subject number", `{"type":"subject_detected","context_id":"tab-1","subject":{"owner":"o","repo":"r","number":0}}`, "number"},
		{"unknown action", `{"type":"review_action_detected","subject":{"owner":"o","repo":"r","number":1},"action_type":"merged"}`, "action_type"},
		{"action missing", `{"type":"review_action_detected","subject":{"owner":"o","repo":"r","number":1}}`, "action_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			_, err = f.router.Handle(context.Background(), msg)

			var verr *validation.RequestValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			fields := []string{}
			for _, fe := range verr.Errors() {
				fields = append(fields, fe.Field())
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}

	t.Run("review action without subject", func(t *testing.T) {
		msg, err := Decode([]byte(`{"type":"review_action_detected","action_type":"approve"}`))
		require.NoError(t, err)
		_, err = f.router.Handle(context.Background(), msg)
		assert.ErrorIs(t, err, ErrInvalidMessage)
	})

	t.Run("metadata with nested values", func(t *testing.T) {
		msg, err := Decode([]byte(`{"type":"review_action_detected","subject":{"owner":"o","repo":"r","number":1},"action_type":"approve","metadata":{"body":{"text":"lgtm"}}}`))
		require.NoError(t, err)
		_, err = f.router.Handle(context.Background(), msg)
		assert.ErrorIs(t, err, ErrInvalidMessage)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := Decode([]byte(`{"type":`))
		assert.ErrorIs(t, err, ErrInvalidMessage)
	})

	assert.Equal(t, 0, f.queue.Len())
}
