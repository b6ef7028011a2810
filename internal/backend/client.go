// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

// Package backend is the REST client for the remote time-tracking service.
//
// Every call is throttled by a token bucket, guarded by a circuit breaker,
// and authenticated with a bearer credential fetched per request. Non-2xx
// responses are returned as *APIError so callers can classify them.
package backend

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
	"golang.org/x/time/rate"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tkhieu/worktime/internal/config"
)

const maxErrorBodySize = 4096

// TokenSource supplies the bearer credential. BearerToken may block while
// the credential is refreshed.
type TokenSource interface {
	BearerToken(ctx context.Context) (string, error)
}

// Client talks to the remote backend.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[any]
	name    string
	now     func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBreakerSettings replaces the default circuit breaker settings.
func WithBreakerSettings(s BreakerSettings) Option {
	return func(c *Client) { c.cb = newBreaker(c.name, s) }
}

// BreakerSettingsFromConfig maps the backend config section.
func BreakerSettingsFromConfig(cfg *config.BackendConfig) BreakerSettings {
	s := DefaultBreakerSettings()
	if cfg.BreakerMaxRequests > 0 {
		s.MaxRequests = cfg.BreakerMaxRequests
	}
	if cfg.BreakerInterval > 0 {
		s.Interval = cfg.BreakerInterval
	}
	if cfg.BreakerTimeout > 0 {
		s.Timeout = cfg.BreakerTimeout
	}
	if cfg.BreakerFailureRatio > 0 {
		s.FailureRatio = cfg.BreakerFailureRatio
	}
	if cfg.BreakerMinRequests > 0 {
		s.MinRequests = cfg.BreakerMinRequests
	}
	return s
}

// NewClient creates a backend client.
func NewClient(cfg *config.BackendConfig, tokens TokenSource, opts ...Option) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    "worktime-api",
		now:     time.Now,
	}
	c.cb = newBreaker(c.name, BreakerSettingsFromConfig(cfg))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartSession creates a remote session for a subject.
func (c *Client) StartSession(ctx context.Context, req StartSessionRequest) (StartSessionResponse, error) {
	var out StartSessionResponse
	if err := c.call(ctx, http.MethodPost, "/sessions/start", req, &out, true); err != nil {
		return StartSessionResponse{}, err
	}
	if out.SessionID == "" {
		return StartSessionResponse{}, fmt.Errorf("%w: empty session_id", ErrInvalidResponse)
	}
	return out, nil
}

// EndSession records the final duration of a remote session. The backend
// treats repeated calls with the same duration as one.
func (c *Client) EndSession(ctx context.Context, sessionID string, durationSeconds int64) (EndSessionResponse, error) {
	if sessionID == "" {
		return EndSessionResponse{}, fmt.Errorf("%w: empty session id", ErrInvalidResponse)
	}
	var out EndSessionResponse
	path := "/sessions/" + url.PathEscape(sessionID) + "/end"
	if err := c.call(ctx, http.MethodPatch, path, EndSessionRequest{DurationSeconds: durationSeconds}, &out, true); err != nil {
		return EndSessionResponse{}, err
	}
	return out, nil
}

// CreateActivity records one activity.
func (c *Client) CreateActivity(ctx context.Context, req ActivityRequest) (ActivityResponse, error) {
	var out ActivityResponse
	if err := c.call(ctx, http.MethodPost, "/activities", req, &out, true); err != nil {
		return ActivityResponse{}, err
	}
	return out, nil
}

// CreateActivities records up to MaxBatchSize activities in one call.
func (c *Client) CreateActivities(ctx context.Context, reqs []ActivityRequest) (BatchResponse, error) {
	if len(reqs) == 0 {
		return BatchResponse{}, ErrEmptyBatch
	}
	if len(reqs) > MaxBatchSize {
		return BatchResponse{}, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(reqs), MaxBatchSize)
	}
	var out BatchResponse
	if err := c.call(ctx, http.MethodPost, "/activities/batch", BatchRequest{Activities: reqs}, &out, true); err != nil {
		return BatchResponse{}, err
	}
	return out, nil
}

// Ping checks that the backend is reachable. It is not authenticated and
// does not go through the breaker, so it can observe recovery while the
// breaker is open.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp)
	}
	return nil
}

// call performs one JSON request through the limiter and the breaker.
func (c *Client) call(ctx context.Context, method, path string, in, out any, authed bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var token string
	if authed {
		t, err := c.tokens.BearerToken(ctx)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnauthenticated, err.Error())
		}
		if t == "" {
			return ErrUnauthenticated
		}
		token = t
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	_, err = c.execute(func() (any, error) {
		return nil, c.do(ctx, method, path, token, body, out)
	})
	return err
}

func (c *Client) do(ctx context.Context, method, path, token string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrInvalidResponse)
		}
		return fmt.Errorf("%w: %s", ErrInvalidResponse, err.Error())
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) apiError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	msg := strings.TrimSpace(string(raw))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		if eb.Message != "" {
			msg = eb.Message
		} else if eb.Error != "" {
			msg = eb.Error
		}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
	}
}
