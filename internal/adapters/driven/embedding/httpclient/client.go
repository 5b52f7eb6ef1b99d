// Package httpclient sends JSON requests to remote embedding APIs. Rate
// limits, server errors and dropped connections are retried with
// exponential backoff; other failures are returned at once.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Defaults.
const (
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 500 * time.Millisecond
	maxInterval            = 10 * time.Second
	maxErrorBody           = 4 << 10
)

// Config configures a Client.
type Config struct {
	// Timeout bounds each attempt, not the whole call.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt
	// (default: 3). Negative disables retries.
	MaxRetries int

	// InitialInterval is the first backoff wait (default: 500ms).
	InitialInterval time.Duration

	// Header is sent with every request.
	Header http.Header
}

// Client is a JSON client for one remote service.
type Client struct {
	service    string
	http       *http.Client
	header     http.Header
	maxRetries int
	initial    time.Duration
}

// New creates a client. service prefixes error messages.
func New(service string, cfg Config) *Client {
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultInitialInterval
	}
	return &Client{
		service:    service,
		http:       &http.Client{Timeout: cfg.Timeout},
		header:     cfg.Header.Clone(),
		maxRetries: cfg.MaxRetries,
		initial:    cfg.InitialInterval,
	}
}

// StatusError is a non-2xx response.
type StatusError struct {
	Service string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s error (status %d)", e.Service, e.Code)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Service, e.Code, e.Message)
}

// Temporary reports whether retrying may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// PostJSON posts in as JSON and decodes a 2xx response into out.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.retry(ctx, func() error {
		return c.send(ctx, http.MethodPost, url, body, out)
	})
}

// Probe sends one GET and reports whether it answered 2xx. It never retries.
func (c *Client) Probe(ctx context.Context, url string) error {
	return c.send(ctx, http.MethodGet, url, nil, nil)
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

func (c *Client) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err == nil || retryable(ctx, err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx),
		func(err error, wait time.Duration) {
			logger.Debug("%s request failed (attempt %d), retrying in %s: %v", c.service, attempt, wait, err)
		})
}

// retryable is true for rate limits, server errors and transport failures
// that did not come from the caller giving up.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var de *decodeError
	return !errors.As(err, &de)
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *Client) send(ctx context.Context, method, url string, body []byte, out any) error {
	var r io.Reader = http.NoBody
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.service, err)
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", c.service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Service: c.service, Code: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

// errorMessage extracts a message from {"error":{"message":...}},
// {"error":"..."} or a plain-text body.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && len(payload.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if json.Unmarshal(payload.Error, &flat) == nil {
			return flat
		}
	}
	return strings.TrimSpace(string(raw))
}
