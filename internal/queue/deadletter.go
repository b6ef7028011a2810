// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/tkhieu/worktime/internal/logging"
	"github.com/tkhieu/worktime/internal/metrics"
	"github.com/tkhieu/worktime/internal/models"
	"github.com/tkhieu/worktime/internal/store"
)

// DefaultDeadLetterCapacity is the default ring size.
const DefaultDeadLetterCapacity = 200

// DeadLetters is a capped ring of dead operations. When full, the oldest
// record is evicted. Records are never retried automatically.
type DeadLetters struct {
	cache    *store.Cache[models.DeadLetterRecord]
	capacity int

	mu  sync.Mutex
	seq uint64
}

// NewDeadLetters creates a ring of the given capacity over cache.
func NewDeadLetters(cache *store.Cache[models.DeadLetterRecord], capacity int) *DeadLetters {
	if capacity < 1 {
		capacity = DefaultDeadLetterCapacity
	}
	return &DeadLetters{cache: cache, capacity: capacity}
}

// Initialize loads the ring and trims it to capacity.
func (d *DeadLetters) Initialize(ctx context.Context) error {
	loaded, err := d.cache.Initialize(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq = 0
	for key := range loaded {
		if n, err := strconv.ParseUint(key, 10, 64); err == nil && n > d.seq {
			d.seq = n
		}
	}
	if err := d.evictLocked(ctx); err != nil {
		return err
	}
	metrics.DeadLetterEntries.Set(float64(d.cache.Len()))
	return nil
}

// Add appends rec, evicting the oldest records beyond capacity.
func (d *DeadLetters) Add(ctx context.Context, rec models.DeadLetterRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := formatID(d.seq + 1)
	if err := d.cache.Put(ctx, key, rec); err != nil {
		return fmt.Errorf("add dead letter: %w", err)
	}
	d.seq++

	logging.Warn().
		Str("op_id", rec.Operation.ID).
		Str("kind", string(rec.Operation.Kind)).
		Str("local_id", rec.Operation.LocalID).
		Str("class", string(rec.Class)).
		Int("attempts", rec.Operation.Attempt).
		Str("reason", rec.Reason).
		Msg("Operation dead-lettered")

	if err := d.evictLocked(ctx); err != nil {
		return err
	}
	metrics.DeadLetterEntries.Set(float64(d.cache.Len()))
	return nil
}

func (d *DeadLetters) evictLocked(ctx context.Context) error {
	keys := d.cache.Keys()
	for i := 0; i < len(keys)-d.capacity; i++ {
		if err := d.cache.Remove(ctx, keys[i]); err != nil {
			return fmt.Errorf("evict dead letter %s: %w", keys[i], err)
		}
	}
	return nil
}

// List returns the records oldest first.
func (d *DeadLetters) List() []models.DeadLetterRecord {
	return d.cache.Values()
}

// Len returns the number of records held.
func (d *DeadLetters) Len() int {
	return d.cache.Len()
}

// Capacity returns the ring size.
func (d *DeadLetters) Capacity() int {
	return d.capacity
}
