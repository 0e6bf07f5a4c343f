// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"

	"github.com/tomtom215/mapsync/internal/logging"
)

const keyPrefix = "kv:"

// BadgerConfig configures the persistent store.
type BadgerConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM (tests, ephemeral agents).
	InMemory bool

	// SyncWrites fsyncs every write. The offline queue relies on this for
	// durability across crashes.
	SyncWrites bool
}

// BadgerStore implements Store on BadgerDB. Subscribe is backed by
// badger's change feed, so it observes writes from every handle on the
// same database, not just this one.
type BadgerStore struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OpenBadger opens (or creates) the store.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("store: badger path is required")
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Device store opened")

	return &BadgerStore{db: db, ctx: ctx, cancel: cancel}, nil
}

func (s *BadgerStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Get returns the value stored under key.
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set writes value under key.
func (s *BadgerStore) Set(_ context.Context, key string, value []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(value) == 0 {
		// An empty value is indistinguishable from a delete in the change feed.
		return fmt.Errorf("set %s: empty value", key)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), value)
	})
}

// Delete removes key.
func (s *BadgerStore) Delete(_ context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(keyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Subscribe follows changes to key via badger's publisher. Delivery is
// asynchronous; a write issued immediately after Subscribe returns may
// not be observed if the feed has not attached yet.
func (s *BadgerStore) Subscribe(key string, fn func(Change)) func() {
	ctx, cancel := context.WithCancel(s.ctx)
	fullKey := []byte(keyPrefix + key)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.db.Subscribe(ctx, func(kvs *badger.KVList) error {
			for _, kv := range kvs.GetKv() {
				if string(kv.GetKey()) != string(fullKey) {
					continue
				}
				value := kv.GetValue()
				if len(value) == 0 {
					fn(Change{Key: key, Deleted: true})
					continue
				}
				fn(Change{Key: key, Value: value})
			}
			return nil
		}, []pb.Match{{Prefix: fullKey}})
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Warn().Err(err).Str("key", key).Msg("[store] Change feed stopped")
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }
}

// Close stops all change feeds and closes the database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	logging.Info().Msg("Device store closed")
	return nil
}
