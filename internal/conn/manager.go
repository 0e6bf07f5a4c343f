// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package conn

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/metrics"
	"github.com/tomtom215/mapsync/internal/models"
)

// ErrClosed is returned by Connect after Close.
var ErrClosed = errors.New("conn: manager closed")

// Handler receives every decoded frame, in arrival order.
type Handler func(models.Frame)

// StateObserver is told about every state transition.
type StateObserver func(State)

// Options configures a Manager.
type Options struct {
	// Channel names the socket in logs and metrics, e.g. "points".
	Channel string
	URL     string

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	PingInterval time.Duration // default 30s
	ReadTimeout  time.Duration // default 60s

	Dialer *websocket.Dialer
}

// Manager owns one WebSocket per channel URL and keeps it alive. A
// client-initiated Close is the only clean close; every other ending
// (read error, server close frame, network drop) reconnects after the
// backoff delay, forever.
type Manager struct {
	channel      string
	url          string
	dialer       *websocket.Dialer
	pingInterval time.Duration
	readTimeout  time.Duration

	// handler and observer are single-slot cells: the read loop always
	// loads the latest value, so callers may swap them at any time.
	handler  atomic.Pointer[Handler]
	observer atomic.Pointer[StateObserver]

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	started bool
	closed  bool
	backoff *Backoff

	kick     chan struct{}
	stopChan chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewManager creates an idle Manager. Nothing is dialed until Connect.
func NewManager(opts Options) *Manager {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			HandshakeTimeout:  10 * time.Second,
			EnableCompression: true,
		}
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := NewBackoff(opts.InitialDelay, opts.MaxDelay, opts.Multiplier)
	return &Manager{
		channel:      opts.Channel,
		url:          opts.URL,
		dialer:       dialer,
		pingInterval: opts.PingInterval,
		readTimeout:  opts.ReadTimeout,
		backoff:      b,
		state:        State{Channel: opts.Channel, Status: StatusDisconnected, RetryDelay: b.Current()},
		kick:         make(chan struct{}, 1),
		stopChan:     make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// SetHandler installs h as the current frame handler. nil detaches.
func (m *Manager) SetHandler(h Handler) {
	if h == nil {
		m.handler.Store(nil)
		return
	}
	m.handler.Store(&h)
}

// SetStateObserver installs fn as the current state observer. nil detaches.
func (m *Manager) SetStateObserver(fn StateObserver) {
	if fn == nil {
		m.observer.Store(nil)
		return
	}
	m.observer.Store(&fn)
}

// Connect starts the connection loop. It is a no-op while a socket is
// open. While a reconnect is pending it skips the remaining wait.
func (m *Manager) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.started {
		if m.conn == nil {
			select {
			case m.kick <- struct{}{}:
			default:
			}
		}
		return nil
	}
	m.started = true
	m.wg.Add(1)
	go m.run()
	return nil
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether a socket is open.
func (m *Manager) IsConnected() bool {
	return m.State().Status == StatusConnected
}

// run dials, serves and reconnects until Close.
func (m *Manager) run() {
	defer m.wg.Done()

	everConnected := false
	for {
		m.setState(StatusConnecting, "", false)

		ws, err := m.dial()
		if err == nil {
			m.onOpen(ws, everConnected)
			everConnected = true
			err = m.serve(ws)
		}
		if m.stopping() {
			return
		}

		delay := m.scheduleRetry(err)
		timer := time.NewTimer(delay)
		select {
		case <-m.stopChan:
			timer.Stop()
			return
		case <-m.kick:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (m *Manager) dial() (*websocket.Conn, error) {
	logging.Debug().Str("channel", m.channel).Str("url", m.url).Msg("[conn] Dialing")

	ws, resp, err := m.dialer.DialContext(m.ctx, m.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return ws, nil
}

// onOpen publishes the socket and resets the backoff. If Close raced the
// dial, the socket is closed straight away.
func (m *Manager) onOpen(ws *websocket.Conn, reconnected bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = ws.Close()
		return
	}
	m.conn = ws
	m.backoff.Reset()
	m.mu.Unlock()

	metrics.SetChannelConnected(m.channel, true)
	logging.Info().Str("channel", m.channel).Bool("reconnected", reconnected).Msg("[conn] Connected")
	m.setState(StatusConnected, "", reconnected)
}

// serve reads frames until the socket fails. It owns the ping goroutine
// for this socket and joins it before returning.
func (m *Manager) serve(ws *websocket.Conn) error {
	done := make(chan struct{})
	var pingWG sync.WaitGroup
	pingWG.Add(1)
	go func() {
		defer pingWG.Done()
		m.pingLoop(ws, done)
	}()

	defer func() {
		close(done)
		pingWG.Wait()

		m.mu.Lock()
		if m.conn == ws {
			m.conn = nil
		}
		m.mu.Unlock()
		_ = ws.Close()
		metrics.SetChannelConnected(m.channel, false)
	}()

	_ = ws.SetReadDeadline(time.Now().Add(m.readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(m.readTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = ws.SetReadDeadline(time.Now().Add(m.readTimeout))
		m.dispatch(data)
	}
}

func (m *Manager) pingLoop(ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			if err != nil {
				// Force-close so the reader takes the unclean path.
				logging.Debug().Err(err).Str("channel", m.channel).Msg("[conn] Ping failed")
				_ = ws.Close()
				return
			}
		}
	}
}

// dispatch decodes one frame and hands it to the current handler. A
// frame that does not decode is dropped; a panicking handler is logged.
func (m *Manager) dispatch(data []byte) {
	frame, err := models.ParseFrame(data)
	if err != nil {
		metrics.WSMessagesDropped.WithLabelValues(m.channel).Inc()
		logging.Warn().Err(err).Str("channel", m.channel).Int("bytes", len(data)).Msg("[conn] Dropping malformed frame")
		return
	}
	metrics.WSMessagesReceived.WithLabelValues(m.channel, frame.Type).Inc()

	h := m.handler.Load()
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Str("channel", m.channel).Str("type", frame.Type).Msg("[conn] Handler panicked")
		}
	}()
	(*h)(frame)
}

// scheduleRetry records the failure and returns the delay to wait.
func (m *Manager) scheduleRetry(cause error) time.Duration {
	m.mu.Lock()
	delay := m.backoff.Next()
	m.mu.Unlock()

	msg := ""
	if cause != nil && !websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
		msg = cause.Error()
	}
	metrics.WSReconnects.WithLabelValues(m.channel).Inc()
	metrics.WSRetryDelay.WithLabelValues(m.channel).Set(delay.Seconds())
	logging.Warn().Err(cause).Str("channel", m.channel).Dur("retry_in", delay).Msg("[conn] Connection lost, scheduling reconnect")

	m.mu.Lock()
	m.state = State{Channel: m.channel, Status: StatusDisconnected, RetryDelay: delay, LastError: msg}
	st := m.state
	m.mu.Unlock()
	m.notify(st)
	return delay
}

func (m *Manager) setState(status Status, lastErr string, reconnected bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.state = State{
		Channel:     m.channel,
		Status:      status,
		RetryDelay:  m.backoff.Current(),
		LastError:   lastErr,
		Reconnected: reconnected,
	}
	st := m.state
	m.mu.Unlock()
	m.notify(st)
}

func (m *Manager) notify(st State) {
	if fn := m.observer.Load(); fn != nil {
		(*fn)(st)
	}
}

func (m *Manager) stopping() bool {
	select {
	case <-m.stopChan:
		return true
	default:
		return false
	}
}

// Close tears the channel down: the pending reconnect is cancelled, the
// handler and observer are detached before the socket is closed, and
// every goroutine is joined. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ws := m.conn

	m.handler.Store(nil)
	m.observer.Store(nil)
	close(m.stopChan)
	m.cancel()
	m.mu.Unlock()

	if ws != nil {
		if err := ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		); err != nil {
			logging.Debug().Err(err).Str("channel", m.channel).Msg("[conn] Failed to send close message")
		}
		_ = ws.Close()
	}

	m.wg.Wait()

	m.mu.Lock()
	m.state = State{Channel: m.channel, Status: StatusDisconnected, RetryDelay: m.backoff.Current()}
	m.mu.Unlock()
	metrics.SetChannelConnected(m.channel, false)
	logging.Info().Str("channel", m.channel).Msg("[conn] Closed")
	return nil
}

// DeriveWebSocketURL turns the REST base URL into the socket URL:
// http becomes ws, https becomes wss, host is kept and the path replaced.
func DeriveWebSocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", baseURL)
	}
	if path == "" {
		path = "/"
	}
	u.Path = path
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
