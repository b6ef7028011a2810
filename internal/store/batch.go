// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package store

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tkhieu/worktime/internal/metrics"
)

type batchWrite struct {
	namespace string
	key       string
	value     []byte
	remove    bool
}

// Batch groups writes to several namespaces into one Badger transaction.
// Caches stage their changes with StagePut and StageRemove; memory is
// updated only after Commit succeeds, so either every staged change is
// visible or none is.
//
// A Batch is used by one goroutine and committed once.
type Batch struct {
	db       *DB
	writes   []batchWrite
	onCommit []func()
	done     bool
}

// NewBatch starts an empty batch.
func (s *DB) NewBatch() *Batch {
	return &Batch{db: s}
}

// Len returns the number of staged writes.
func (b *Batch) Len() int {
	return len(b.writes)
}

// OnCommit registers fn to run after a successful Commit, in order.
func (b *Batch) OnCommit(fn func()) {
	b.onCommit = append(b.onCommit, fn)
}

// Commit writes every staged change in one transaction and then applies
// the in-memory updates. An empty batch commits trivially.
func (b *Batch) Commit() error {
	if b.done {
		return ErrBatchCommitted
	}
	b.done = true
	if err := b.db.checkOpen(); err != nil {
		return err
	}

	if len(b.writes) > 0 {
		start := time.Now()
		err := b.db.db.Update(func(txn *badger.Txn) error {
			for _, w := range b.writes {
				var err error
				if w.remove {
					err = txn.Delete(nsKey(w.namespace, w.key))
				} else {
					err = txn.Set(nsKey(w.namespace, w.key), w.value)
				}
				if err != nil {
					return fmt.Errorf("%s:%s: %w", w.namespace, w.key, err)
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		elapsed := time.Since(start)
		for _, w := range b.writes {
			op := "put"
			if w.remove {
				op = "remove"
			}
			metrics.RecordStoreWrite(w.namespace, op, elapsed)
		}
	}

	for _, fn := range b.onCommit {
		fn()
	}
	return nil
}

// StagePut stages a write of value under key. The cache sees it after Commit.
func (c *Cache[T]) StagePut(b *Batch, key string, value T) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := c.checkInitialized(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s:%s: %w", c.namespace, key, err)
	}
	b.writes = append(b.writes, batchWrite{namespace: c.namespace, key: key, value: data})
	b.OnCommit(func() {
		c.mu.Lock()
		c.items[key] = value
		c.mu.Unlock()
	})
	return nil
}

// StageRemove stages the removal of key.
func (c *Cache[T]) StageRemove(b *Batch, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := c.checkInitialized(); err != nil {
		return err
	}
	b.writes = append(b.writes, batchWrite{namespace: c.namespace, key: key, remove: true})
	b.OnCommit(func() {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
	})
	return nil
}

// NewBatch starts a batch on the store behind the cache.
func (c *Cache[T]) NewBatch() *Batch {
	return c.db.NewBatch()
}

func (c *Cache[T]) checkInitialized() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return ErrNotInitialized
	}
	return nil
}
