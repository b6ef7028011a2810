// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package services

import (
	"context"
	"fmt"
)

// StartStopper is the lifecycle of the agent's background loops.
//
// Satisfied by:
//   - *scheduler.Scheduler
//   - *scheduler.ConnectivityWatcher
//   - *store.Maintainer
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// LoopService wraps a Start/Stop background loop as a supervised service.
//
// It adapts the Start/Stop lifecycle pattern to suture's Serve pattern:
//  1. Calls Start(ctx) to begin the loop
//  2. Waits for context cancellation
//  3. Calls Stop() which waits for the loop goroutine to exit
//
// Example usage:
//
//	sched := scheduler.New(orch, cfg.Scheduler.Interval)
//	tree.AddSyncService(services.NewSchedulerService(sched))
type LoopService struct {
	loop StartStopper
	name string
}

// NewLoopService wraps loop under the given service name.
func NewLoopService(loop StartStopper, name string) *LoopService {
	return &LoopService{loop: loop, name: name}
}

// NewSchedulerService wraps the sync scheduler.
func NewSchedulerService(loop StartStopper) *LoopService {
	return NewLoopService(loop, "sync-scheduler")
}

// NewConnectivityService wraps the connectivity watcher.
func NewConnectivityService(loop StartStopper) *LoopService {
	return NewLoopService(loop, "connectivity-watcher")
}

// NewMaintainerService wraps the store maintainer.
func NewMaintainerService(loop StartStopper) *LoopService {
	return NewLoopService(loop, "store-maintainer")
}

// Serve implements suture.Service.
//
// If Start() fails, the error is returned immediately, causing suture to
// restart the service according to its backoff policy.
func (s *LoopService) Serve(ctx context.Context) error {
	if err := s.loop.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()

	s.loop.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer. Suture uses it in log messages.
func (s *LoopService) String() string {
	return s.name
}
