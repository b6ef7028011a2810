// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tkhieu/worktime/internal/logging"
	intsync "github.com/tkhieu/worktime/internal/sync"
)

// MinInterval is the shortest recurring wake-up the scheduler accepts.
const MinInterval = 30 * time.Second

// Syncer runs a full sync pass.
//
// Satisfied by *sync.Orchestrator.
type Syncer interface {
	TrySync(ctx context.Context) (intsync.Result, error)
}

// Scheduler triggers sync passes on a timer and on reconnect.
type Scheduler struct {
	syncer   Syncer
	interval time.Duration

	// reconnect holds at most one pending request; extra requests coalesce.
	reconnect chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	running  bool
	stopping bool
	stopDone chan struct{}
	lastRun  time.Time
	runs     uint64
}

// New creates a scheduler. Intervals below MinInterval are raised to it.
func New(syncer Syncer, interval time.Duration) *Scheduler {
	if interval < MinInterval {
		interval = MinInterval
	}
	return &Scheduler{
		syncer:    syncer,
		interval:  interval,
		reconnect: make(chan struct{}, 1),
	}
}

// Interval returns the recurring wake-up period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start begins the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()

	for s.stopping {
		stopDone := s.stopDone
		s.mu.Unlock()
		<-stopDone
		s.mu.Lock()
	}

	if s.running {
		s.mu.Unlock()
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.stopDone = make(chan struct{})

	loopCtx := s.ctx
	done := s.stopDone
	s.mu.Unlock()

	go s.run(loopCtx, done)

	logging.Info().Dur("interval", s.interval).Msg("Sync scheduler started")
	return nil
}

// Stop stops the loop and waits for a running pass to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running || s.stopping {
		s.mu.Unlock()
		return
	}

	s.cancel()
	s.running = false
	s.stopping = true
	stopDone := s.stopDone
	s.mu.Unlock()

	<-stopDone

	s.mu.Lock()
	s.stopping = false
	s.mu.Unlock()

	logging.Info().Msg("Sync scheduler stopped")
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Reconnect requests a sync pass now. It never blocks; requests made while
// one is already pending are merged into it.
func (s *Scheduler) Reconnect() {
	select {
	case s.reconnect <- struct{}{}:
	default:
	}
}

// Stats reports how many wake-ups ran and when the last one did.
func (s *Scheduler) Stats() (runs uint64, lastRun time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.lastRun
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wake(ctx, "timer")
		case <-s.reconnect:
			s.wake(ctx, "reconnect")
		}
	}
}

func (s *Scheduler) wake(ctx context.Context, trigger string) {
	s.mu.Lock()
	s.runs++
	s.lastRun = time.Now()
	s.mu.Unlock()

	_, err := s.syncer.TrySync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, intsync.ErrSyncInFlight):
		logging.Debug().Str("trigger", trigger).Msg("Sync already running, rerun requested")
	case errors.Is(err, intsync.ErrNotAuthenticated):
		logging.Debug().Str("trigger", trigger).Msg("Sync skipped, not authenticated")
	case errors.Is(err, context.Canceled):
	default:
		logging.Warn().Err(err).Str("trigger", trigger).Msg("Scheduled sync failed")
	}
}
