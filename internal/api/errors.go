// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrOffline marks a request that never got an answer from the server:
// dial failure, timeout, connection reset, or an open circuit breaker.
var ErrOffline = errors.New("server unreachable")

// HTTPError is a response the server did send, with a non-2xx status.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode), e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// transient reports whether the status means "try again later" rather
// than "the server said no".
func (e *HTTPError) transient() bool {
	return e.StatusCode >= 500 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout
}

// IsConnectivity reports whether err is a transient failure that should
// be retried (queued offline), as opposed to an authoritative rejection.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOffline) {
		return true
	}
	var he *HTTPError
	return errors.As(err, &he) && he.transient()
}

// IsNotFound reports a 404. Callers acting on an item that no longer
// exists treat this as a no-op.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusNotFound
}

// IsRejected reports an authoritative 4xx: surface it, never queue it.
func IsRejected(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode >= 400 && he.StatusCode < 500 && !he.transient()
}
