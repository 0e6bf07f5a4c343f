// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and by agents started
// with store.in_memory. Subscribers are called synchronously after the
// write is applied, outside the lock.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	subs   map[string]map[int]func(Change)
	nextID int
	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
		subs: make(map[string]map[int]func(Change)),
	}
}

// Get returns a copy of the stored value.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores a copy of value.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.data[key] = stored
	fns := s.subscribersLocked(key)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(Change{Key: key, Value: stored})
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	_, existed := s.data[key]
	delete(s.data, key)
	var fns []func(Change)
	if existed {
		fns = s.subscribersLocked(key)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(Change{Key: key, Deleted: true})
	}
	return nil
}

// Subscribe registers fn for key.
func (s *MemoryStore) Subscribe(key string, fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]func(Change))
	}
	s.subs[key][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[key], id)
		})
	}
}

// Close drops all data and subscribers.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = make(map[string]map[int]func(Change))
	return nil
}

func (s *MemoryStore) subscribersLocked(key string) []func(Change) {
	m := s.subs[key]
	if len(m) == 0 {
		return nil
	}
	fns := make([]func(Change), 0, len(m))
	for _, fn := range m {
		fns = append(fns, fn)
	}
	return fns
}
