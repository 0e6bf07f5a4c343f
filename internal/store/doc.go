// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package store is the injected key-value store that holds all
// device-local state: the offline queue, the seen-broadcast set and user
// preferences.
//
// Two implementations are provided:
//
//   - MemoryStore: in-process map, synchronous change notification. Tests
//     use it everywhere.
//   - BadgerStore: BadgerDB-backed and durable, with change notification
//     from badger's publisher.
//
// Values are unversioned JSON. Writers that need a schema change should
// introduce a new key next to the old one rather than rewriting in place.
package store
