// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package events is the explicit in-process publish/subscribe channel
// between sync components, built on watermill's gochannel pub/sub.
//
//	bus := events.NewBus(nil)
//	cancel, _ := bus.Subscribe(events.TopicServerUnavailable, func(e events.Event) {
//	    var p events.ServerUnavailable
//	    _ = e.Decode(&p)
//	})
//	defer cancel()
//	_ = bus.Publish(events.TopicServerUnavailable, events.ServerUnavailable{Reason: "circuit open"})
//
// Delivery is at-most-once and only to subscribers present at publish
// time; nothing is persisted.
package events
