// Package qdrant provides a vector index backed by a Qdrant server, spoken
// to over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// Default configuration values.
const (
	DefaultURL     = "http://localhost:6333"
	DefaultTimeout = 30 * time.Second
)

// errNotFound is returned by do for a 404 response.
var errNotFound = errors.New("qdrant: not found")

// client is a minimal Qdrant REST client.
type client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// envelope is the response wrapper of every Qdrant endpoint.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

func newClient(rawURL, apiKey string, timeout time.Duration) (*client, error) {
	if rawURL == "" {
		rawURL = DefaultURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: qdrant url %q", domain.ErrInvalidInput, rawURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(rawURL, "/"),
		apiKey:  apiKey,
	}, nil
}

// do sends a JSON request and decodes the result field into out.
// Transport failures and 5xx responses wrap domain.ErrIndexUnavailable.
func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	body := io.Reader(http.NoBody)
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %w", domain.ErrIndexUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", domain.ErrIndexUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: status %d: %s",
			domain.ErrIndexUnavailable, method, path, resp.StatusCode, errorText(data))
	case resp.StatusCode >= 300:
		return fmt.Errorf("qdrant: %s %s: status %d: %s", method, path, resp.StatusCode, errorText(data))
	}

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// errorText extracts status.error from an error body, falling back to the
// start of the raw body.
func errorText(data []byte) string {
	var env struct {
		Status struct {
			Error string `json:"error"`
		} `json:"status"`
	}
	if json.Unmarshal(data, &env) == nil && env.Status.Error != "" {
		return env.Status.Error
	}
	return domain.Truncate(strings.TrimSpace(string(data)), 200)
}

// health calls the liveness endpoint, which returns plain text.
func (c *client) health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}
