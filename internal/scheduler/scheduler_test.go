// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intsync "github.com/tkhieu/worktime/internal/sync"
)

type countingSyncer struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (c *countingSyncer) TrySync(ctx context.Context) (intsync.Result, error) {
	c.calls.Add(1)
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return intsync.Result{}, ctx.Err()
		}
	}
	return intsync.Result{Passes: 1}, c.err
}

func TestNew_EnforcesMinimumInterval(t *testing.T) {
	assert.Equal(t, MinInterval, New(&countingSyncer{}, time.Second).Interval())
	assert.Equal(t, time.Minute, New(&countingSyncer{}, time.Minute).Interval())
}

func TestScheduler_ReconnectTriggersSync(t *testing.T) {
	syncer := &countingSyncer{}
	s := New(syncer, time.Hour)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.Reconnect()
	require.Eventually(t, func() bool { return syncer.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	runs, last := s.Stats()
	assert.Equal(t, uint64(1), runs)
	assert.False(t, last.IsZero())
}

func TestScheduler_ReconnectCoalesces(t *testing.T) {
	syncer := &countingSyncer{block: make(chan struct{})}
	s := New(syncer, time.Hour)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.Reconnect()
	require.Eventually(t, func() bool { return syncer.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	// The loop is busy; these collapse into one pending request.
	for i := 0; i < 10; i++ {
		s.Reconnect()
	}
	close(syncer.block)

	require.Eventually(t, func() bool { return syncer.calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), syncer.calls.Load())
}

func TestScheduler_ErrorsDoNotStopLoop(t *testing.T) {
	syncer := &countingSyncer{err: errors.New("backend exploded")}
	s := New(syncer, time.Hour)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.Reconnect()
	require.Eventually(t, func() bool { return syncer.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	s.Reconnect()
	require.Eventually(t, func() bool { return syncer.calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.IsRunning())
}

func TestScheduler_Lifecycle(t *testing.T) {
	s := New(&countingSyncer{}, time.Hour)
	assert.False(t, s.IsRunning())

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")
	assert.True(t, s.IsRunning())

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())

	require.NoError(t, s.Start(context.Background()), "restart after stop")
	assert.True(t, s.IsRunning())
	s.Stop()
}

func TestScheduler_StopInterruptsRunningPass(t *testing.T) {
	syncer := &countingSyncer{block: make(chan struct{})}
	s := New(syncer, time.Hour)
	require.NoError(t, s.Start(context.Background()))

	s.Reconnect()
	require.Eventually(t, func() bool { return syncer.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
