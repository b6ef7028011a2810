// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/tkhieu/worktime/internal/logging"
	"github.com/tkhieu/worktime/internal/metrics"
)

// Pinger probes the backend. Satisfied by *backend.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Reconnecter is told when the backend comes back. Satisfied by *Scheduler.
type Reconnecter interface {
	Reconnect()
}

// ConnectivityWatcher probes the backend periodically and calls Reconnect
// on every offline to online transition.
type ConnectivityWatcher struct {
	pinger   Pinger
	target   Reconnecter
	interval time.Duration
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	online  bool
	known   bool
}

// NewConnectivityWatcher creates a watcher.
func NewConnectivityWatcher(pinger Pinger, target Reconnecter, interval, timeout time.Duration) *ConnectivityWatcher {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 || timeout > interval {
		timeout = min(10*time.Second, interval)
	}
	return &ConnectivityWatcher{
		pinger:   pinger,
		target:   target,
		interval: interval,
		timeout:  timeout,
	}
}

// Start probes once and then every interval.
func (w *ConnectivityWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	w.wg.Add(1)
	go w.run(w.ctx)

	logging.Info().Dur("interval", w.interval).Msg("Connectivity watcher started")
	return nil
}

// Stop stops probing.
func (w *ConnectivityWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.cancel()
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	logging.Info().Msg("Connectivity watcher stopped")
}

// IsRunning reports whether the watcher is probing.
func (w *ConnectivityWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Online reports the result of the last probe. Before the first probe the
// backend is assumed online.
func (w *ConnectivityWatcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.known || w.online
}

func (w *ConnectivityWatcher) run(ctx context.Context) {
	defer w.wg.Done()

	w.Probe(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Probe(ctx)
		}
	}
}

// Probe checks the backend once and returns whether it answered.
func (w *ConnectivityWatcher) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.pinger.Ping(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return w.Online()
	}
	online := err == nil

	w.mu.Lock()
	wasOnline, known := w.online, w.known
	w.online, w.known = online, true
	w.mu.Unlock()

	metrics.SetBackendOnline(online)

	switch {
	case online && known && !wasOnline:
		logging.Info().Msg("Backend reachable again, requesting sync")
		w.target.Reconnect()
	case !online && (!known || wasOnline):
		logging.Warn().Err(err).Msg("Backend unreachable")
	}
	return online
}
