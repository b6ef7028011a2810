// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tkhieu/worktime/internal/logging"
)

// Cache is a write-through cache over one namespace.
//
// Reads after Initialize are served from memory. Put and Remove update
// memory only after the single changed key is durably written, so memory
// never runs ahead of disk.
type Cache[T any] struct {
	db        *DB
	namespace string

	mu          sync.RWMutex
	items       map[string]T
	initialized bool
}

// NewCache creates a cache over namespace. Call Initialize before use.
func NewCache[T any](db *DB, namespace string) *Cache[T] {
	return &Cache[T]{db: db, namespace: namespace}
}

// Namespace returns the key namespace the cache owns.
func (c *Cache[T]) Namespace() string {
	return c.namespace
}

// Initialize loads the whole namespace into memory with one prefix scan and
// returns a copy of what was loaded. Values that fail to decode are logged
// and skipped. Calling Initialize again reloads from disk.
func (c *Cache[T]) Initialize(ctx context.Context) (map[string]T, error) {
	items := make(map[string]T)
	err := c.db.scan(ctx, c.namespace, func(key string, value []byte) error {
		var v T
		if err := json.Unmarshal(value, &v); err != nil {
			logging.Warn().Err(err).
				Str("namespace", c.namespace).
				Str("key", key).
				Msg("Skipping undecodable store value")
			return nil
		}
		items[key] = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("initialize %s: %w", c.namespace, err)
	}

	c.mu.Lock()
	c.items = items
	c.initialized = true
	c.mu.Unlock()

	out := make(map[string]T, len(items))
	for k, v := range items {
		out[k] = v
	}
	return out, nil
}

// Get returns the cached value for key.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

// Put writes value to disk and then to memory.
func (c *Cache[T]) Put(_ context.Context, key string, value T) error {
	if key == "" {
		return ErrEmptyKey
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s:%s: %w", c.namespace, key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return ErrNotInitialized
	}
	if err := c.db.set(c.namespace, key, data); err != nil {
		return err
	}
	c.items[key] = value
	return nil
}

// Remove deletes key from disk and then from memory.
func (c *Cache[T]) Remove(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return ErrNotInitialized
	}
	if err := c.db.delete(c.namespace, key); err != nil {
		return err
	}
	delete(c.items, key)
	return nil
}

// Keys returns all keys in lexical order.
func (c *Cache[T]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns all values ordered by key.
func (c *Cache[T]) Values() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.items[k])
	}
	return out
}

// Len returns the number of cached entries.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
