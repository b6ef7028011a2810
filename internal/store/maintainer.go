// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package store

import (
	"context"
	"sync"
	"time"

	"github.com/tkhieu/worktime/internal/logging"
	"github.com/tkhieu/worktime/internal/metrics"
)

// Sweeper discards entities that retention no longer needs to keep.
// Sweep returns how many entities were removed.
type Sweeper interface {
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// SweeperFunc adapts a function to Sweeper.
type SweeperFunc func(ctx context.Context, cutoff time.Time) (int, error)

// Sweep calls f.
func (f SweeperFunc) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	return f(ctx, cutoff)
}

// MaintainerConfig controls the retention loop.
type MaintainerConfig struct {
	Interval time.Duration
	TTL      time.Duration
}

// Maintainer periodically runs retention sweeps and Badger value log GC.
type Maintainer struct {
	db       *DB
	sweepers []Sweeper
	config   MaintainerConfig
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool

	lastRun     time.Time
	lastRemoved int
}

// NewMaintainer creates a maintainer over db.
func NewMaintainer(db *DB, cfg MaintainerConfig, sweepers ...Sweeper) *Maintainer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	return &Maintainer{
		db:       db,
		sweepers: sweepers,
		config:   cfg,
		now:      time.Now,
	}
}

// Start begins the background loop.
func (m *Maintainer) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run()

	logging.Info().
		Dur("interval", m.config.Interval).
		Dur("ttl", m.config.TTL).
		Msg("Store maintainer started")
	return nil
}

// Stop stops the loop and waits for an in-progress run to finish.
func (m *Maintainer) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	logging.Info().Msg("Store maintainer stopped")
}

// IsRunning returns whether the loop is active.
func (m *Maintainer) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Maintainer) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.RunNow(m.ctx)
		}
	}
}

// RunNow runs every sweeper with the current cutoff, then value log GC.
// It returns the number of entities removed.
func (m *Maintainer) RunNow(ctx context.Context) int {
	start := m.now()
	cutoff := start.Add(-m.config.TTL)

	removed := 0
	for _, s := range m.sweepers {
		n, err := s.Sweep(ctx, cutoff)
		removed += n
		if err != nil {
			logging.Error().Err(err).Msg("Retention sweep failed")
		}
	}
	if removed > 0 {
		metrics.RetentionDiscarded.Add(float64(removed))
	}

	if err := m.db.RunGC(); err != nil {
		logging.Error().Err(err).Msg("Store GC error")
	}

	m.mu.Lock()
	m.lastRun = start
	m.lastRemoved = removed
	m.mu.Unlock()

	if removed > 0 {
		logging.Info().
			Int("removed", removed).
			Time("cutoff", cutoff).
			Msg("Retention sweep discarded entities")
	}
	return removed
}

// MaintainerStats reports the last run.
type MaintainerStats struct {
	LastRun     time.Time
	LastRemoved int
}

// Stats returns statistics about the last run.
func (m *Maintainer) Stats() MaintainerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MaintainerStats{LastRun: m.lastRun, LastRemoved: m.lastRemoved}
}
