// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package services

import (
	"context"
	"fmt"
)

// Socket is the lifecycle slice of *conn.Manager.
type Socket interface {
	Connect(ctx context.Context) error
	Close() error
}

// SocketService keeps one socket channel open for as long as it is
// served. The manager reconnects on its own; the service only starts it
// and tears it down. A closed manager cannot be reopened, so a restart
// after shutdown fails fast with the manager's error.
type SocketService struct {
	socket Socket
	name   string
}

// NewSocketService wraps socket. channel names it in supervisor logs.
func NewSocketService(channel string, socket Socket) *SocketService {
	return &SocketService{
		socket: socket,
		name:   "socket:" + channel,
	}
}

// Serve implements suture.Service.
func (s *SocketService) Serve(ctx context.Context) error {
	if err := s.socket.Connect(ctx); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	<-ctx.Done()
	if err := s.socket.Close(); err != nil {
		return fmt.Errorf("%s close: %w", s.name, err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture logs.
func (s *SocketService) String() string {
	return s.name
}
