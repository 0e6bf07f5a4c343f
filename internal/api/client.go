// Mapsync - Community Map Realtime Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/metrics"
)

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 4 << 10

// Publisher is the slice of the event bus the client needs.
type Publisher interface {
	Publish(topic string, payload any) error
}

// Config configures a Client.
type Config struct {
	BaseURL string
	UserID  string
	Timeout time.Duration

	// RateLimitRPS caps outgoing requests; 0 disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	Breaker BreakerSettings

	// Events receives server.unavailable when the breaker opens. Optional.
	Events Publisher

	// OnReachability is told after every request whether the server
	// answered. Optional.
	OnReachability func(reachable bool)

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Client talks to the map server's REST API.
type Client struct {
	baseURL        string
	userID         string
	httpClient     *http.Client
	limiter        *rate.Limiter
	cb             *gobreaker.CircuitBreaker[*response]
	onReachability func(bool)
}

// response is a fully read HTTP response; the body is drained inside the
// breaker so connection errors mid-body count as failures.
type response struct {
	status int
	body   []byte
}

// NewClient creates a client. BaseURL may carry a path prefix such as
// /api; endpoint paths are appended to it.
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https: %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		userID:         cfg.UserID,
		httpClient:     httpClient,
		onReachability: cfg.OnReachability,
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	c.cb = newBreaker(cfg.Breaker, cfg.Events)
	return c, nil
}

// UserID returns the user the client acts for.
func (c *Client) UserID() string {
	return c.userID
}

// requestConfig describes one call. route is the templated path used as
// the metrics label, e.g. /points/:id/confirm.
type requestConfig struct {
	method string
	path   string
	route  string
	query  url.Values
	body   any
}

// do executes the request and decodes a JSON body into result when non-nil.
func (c *Client) do(ctx context.Context, cfg requestConfig, result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var payload []byte
	if cfg.body != nil {
		var err error
		if payload, err = json.Marshal(cfg.body); err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.execute(func() (*response, error) {
		return c.roundTrip(ctx, cfg, payload)
	})
	status := 0
	if resp != nil {
		status = resp.status
	}
	metrics.RecordAPIRequest(cfg.method, cfg.route, status, time.Since(start))
	c.reportReachability(ctx, err)
	if err != nil {
		return err
	}

	if result != nil && len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, result); err != nil {
			return fmt.Errorf("decode %s response: %w", cfg.route, err)
		}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, cfg requestConfig, payload []byte) (*response, error) {
	reqURL := c.baseURL + cfg.path
	if len(cfg.query) > 0 {
		reqURL += "?" + cfg.query.Encode()
	}

	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, cfg.method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s %s: %w", ErrOffline, cfg.method, cfg.route, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		resp := &response{status: httpResp.StatusCode}
		return resp, &HTTPError{
			Method:     cfg.method,
			Path:       cfg.path,
			StatusCode: httpResp.StatusCode,
			Message:    errorMessage(msg),
		}
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s body: %w", ErrOffline, cfg.route, err)
	}
	return &response{status: httpResp.StatusCode, body: data}, nil
}

func (c *Client) reportReachability(ctx context.Context, err error) {
	if c.onReachability == nil || errors.Is(err, context.Canceled) {
		return
	}
	reachable := err == nil || !errors.Is(err, ErrOffline)
	if !reachable {
		logging.Ctx(ctx).Debug().Err(err).Msg("[api] server unreachable")
	}
	c.onReachability(reachable)
}

// errorMessage pulls {"error": "..."} or {"message": "..."} out of an
// error body, falling back to the trimmed text.
func errorMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return strings.TrimSpace(string(body))
}
