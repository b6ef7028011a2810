// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package store

import (
	"errors"
	"fmt"
	"time"
)

const metaLastSyncAt = "last_sync_at"

// Meta stores small values in the meta namespace. Reads go straight to
// Badger; the values are tiny and rarely read.
type Meta struct {
	db *DB
}

// Get returns the raw value stored under key, or ErrNotFound.
func (m *Meta) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	return m.db.get(NamespaceMeta, key)
}

// Set stores a raw value under key.
func (m *Meta) Set(key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	return m.db.set(NamespaceMeta, key, value)
}

// Delete removes key.
func (m *Meta) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return m.db.delete(NamespaceMeta, key)
}

// LastSyncAt returns the time of the last completed sync pass, or the zero
// time when none has completed.
func (m *Meta) LastSyncAt() (time.Time, error) {
	raw, err := m.Get(metaLastSyncAt)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	var t time.Time
	if err := t.UnmarshalText(raw); err != nil {
		return time.Time{}, fmt.Errorf("decode %s: %w", metaLastSyncAt, err)
	}
	return t, nil
}

// SetLastSyncAt records the time of a completed sync pass.
func (m *Meta) SetLastSyncAt(t time.Time) error {
	raw, err := t.UTC().MarshalText()
	if err != nil {
		return fmt.Errorf("encode %s: %w", metaLastSyncAt, err)
	}
	return m.Set(metaLastSyncAt, raw)
}
