// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package conn

import "time"

// Default reconnect policy.
const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultMultiplier   = 1.5
)

// Backoff is the reconnect delay policy: the k-th consecutive failure
// waits min(initial * multiplier^k, max). It is not safe for concurrent
// use; the Manager only touches it from its run loop.
type Backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	current    time.Duration
}

// NewBackoff returns a Backoff. Non-positive arguments take the defaults.
func NewBackoff(initial, maxDelay time.Duration, multiplier float64) *Backoff {
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if maxDelay < initial {
		maxDelay = initial
	}
	if multiplier < 1 {
		multiplier = DefaultMultiplier
	}
	return &Backoff{initial: initial, max: maxDelay, multiplier: multiplier, current: initial}
}

// Current is the delay the next failure will wait.
func (b *Backoff) Current() time.Duration {
	return b.current
}

// Next returns the delay to wait now and grows the following one.
func (b *Backoff) Next() time.Duration {
	d := b.current
	grown := time.Duration(float64(b.current) * b.multiplier)
	if grown > b.max || grown < b.current {
		grown = b.max
	}
	b.current = grown
	return d
}

// Reset returns to the initial delay after a successful open.
func (b *Backoff) Reset() {
	b.current = b.initial
}
