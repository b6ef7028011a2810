// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

// Package store is the durable cache behind every WorkTime entity.
//
// Entities live in BadgerDB, one key namespace per kind. A Cache loads its
// namespace into memory once at start and writes each change through to
// Badger before returning, so a process killed right after a successful
// Put or Remove loses nothing.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/tkhieu/worktime/internal/logging"
	"github.com/tkhieu/worktime/internal/metrics"
)

// Key namespaces.
const (
	NamespaceIntervals   = "interval"
	NamespaceOperations  = "op"
	NamespaceOutbox      = "outbox"
	NamespaceDeadLetters = "deadletter"
	NamespaceMeta        = "meta"
)

var (
	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("store is closed")

	// ErrNotInitialized is returned by a Cache used before Initialize.
	ErrNotInitialized = errors.New("cache not initialized")

	// ErrEmptyKey is returned when a key is empty.
	ErrEmptyKey = errors.New("empty key")

	// ErrNotFound is returned by Meta lookups of absent keys.
	ErrNotFound = errors.New("key not found")

	// ErrBatchCommitted is returned by a second Commit of the same Batch.
	ErrBatchCommitted = errors.New("batch already committed")
)

// Config holds store options.
type Config struct {
	Path             string
	SyncWrites       bool
	Compression      bool
	MemTableSize     int64
	ValueLogFileSize int64
	NumMemtables     int
	CloseTimeout     time.Duration
	GCRatio          float64

	// InMemory runs Badger without a directory. Tests only.
	InMemory bool
}

// DefaultConfig returns production defaults for the given directory.
func DefaultConfig(path string) Config {
	return Config{
		Path:             path,
		SyncWrites:       true,
		Compression:      true,
		MemTableSize:     16 << 20,
		ValueLogFileSize: 64 << 20,
		NumMemtables:     2,
		CloseTimeout:     10 * time.Second,
		GCRatio:          0.5,
	}
}

// DB wraps the Badger handle shared by every Cache.
type DB struct {
	db     *badger.DB
	config Config

	mu     sync.RWMutex
	closed bool

	// Meta holds small typed values such as the last sync time.
	Meta *Meta
}

// Open opens (or creates) the store at cfg.Path.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("open store: %w", ErrEmptyKey)
	}
	if cfg.GCRatio == 0 {
		cfg.GCRatio = 0.5
	}
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = 10 * time.Second
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.MemTableSize > 0 {
		opts.MemTableSize = cfg.MemTableSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.NumMemtables > 0 {
		opts.NumMemtables = cfg.NumMemtables
	}
	if cfg.Compression {
		opts.Compression = options.Snappy
	}

	// Badger's own logger is noisy at info level
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &DB{db: db, config: cfg}
	s.Meta = &Meta{db: s}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Bool("compression", cfg.Compression).
		Msg("Store opened")
	return s, nil
}

func (s *DB) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func nsKey(namespace, key string) []byte {
	return []byte(namespace + ":" + key)
}

// set writes a single key in its own transaction.
func (s *DB) set(namespace, key string, value []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nsKey(namespace, key), value)
	})
	if err != nil {
		return fmt.Errorf("write %s:%s: %w", namespace, key, err)
	}
	metrics.RecordStoreWrite(namespace, "put", time.Since(start))
	return nil
}

// get reads a single key, returning ErrNotFound when absent.
func (s *DB) get(namespace, key string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nsKey(namespace, key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s:%s: %w", namespace, key, err)
	}
	return out, nil
}

// delete removes a single key. Deleting an absent key is not an error.
func (s *DB) delete(namespace, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(nsKey(namespace, key))
	})
	if err != nil {
		return fmt.Errorf("delete %s:%s: %w", namespace, key, err)
	}
	metrics.RecordStoreWrite(namespace, "remove", time.Since(start))
	return nil
}

// scan calls fn for every key in namespace, in lexical key order.
func (s *DB) scan(ctx context.Context, namespace string, fn func(key string, value []byte) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	prefix := []byte(namespace + ":")
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			key := string(item.Key()[len(prefix):])
			if err := item.Value(func(val []byte) error {
				return fn(key, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// RunGC runs Badger value log garbage collection until nothing is left to rewrite.
func (s *DB) RunGC() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	defer metrics.StoreGCRuns.Inc()

	for {
		err := s.db.RunValueLogGC(s.config.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close flushes and closes Badger, giving up after the configured timeout.
func (s *DB) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timeout := s.config.CloseTimeout
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Store closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}
