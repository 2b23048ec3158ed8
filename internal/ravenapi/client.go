// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package ravenapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/travisgrayraven/ravenbridge/internal/metrics"
)

// Client provides typed access to the Raven vendor API endpoints on top of
// an authenticated Session.
//
// Resilience mechanisms:
//   - Outbound rate limiting (token bucket) so bulk operations cannot
//     flood the vendor
//   - Exponential backoff on HTTP 429 (1s, 2s, 4s, 8s, 16s), honoring the
//     Retry-After header, up to 5 retries
//   - Token refresh on 401 (handled by the Session)
//
// Thread safety: safe for concurrent use.
type Client struct {
	session        *Session
	limiter        *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimit sets the outbound requests-per-second limit and burst.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithRetryPolicy sets the 429 retry count and base backoff delay.
func WithRetryPolicy(maxRetries int, baseDelay time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryBaseDelay = baseDelay
	}
}

// NewClient creates a vendor API client over the given session.
func NewClient(session *Session, opts ...ClientOption) *Client {
	c := &Client{
		session:        session,
		limiter:        rate.NewLimiter(rate.Limit(10), 20),
		maxRetries:     5,
		retryBaseDelay: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the underlying session.
func (c *Client) Session() *Session {
	return c.session
}

// do performs a request with rate limiting and automatic 429 backoff.
// The context is used for cancellation during backoff waits.
func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.session.Do(ctx, req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		if attempt == c.maxRetries {
			return nil, fmt.Errorf("%s %s: rate limit exceeded after %d retries (HTTP 429)", req.Method, req.Path, c.maxRetries)
		}

		metrics.VendorRateLimitHits.WithLabelValues(req.Path).Inc()

		// Exponential backoff: 1s, 2s, 4s, 8s, 16s.
		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))

		// Retry-After overrides the computed delay.
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if d, ok := parseRetryAfter(retryAfter); ok {
				delay = d
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// parseRetryAfter interprets a Retry-After header value. RFC 7231 allows
// either delta-seconds or an HTTP-date; a date in the past yields zero
// delay. On unparseable values the caller keeps its computed backoff.
func parseRetryAfter(value string) (time.Duration, bool) {
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// getJSON issues a GET and decodes the JSON response into result.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, result interface{}) error {
	resp, err := c.do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}
	return decodeResponse(http.MethodGet, path, resp, result)
}

// sendJSON issues a request with a JSON body and decodes the response into
// result (which may be nil for endpoints with no useful body).
func (c *Client) sendJSON(ctx context.Context, method, path string, payload, result interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s request: %w", method, path, err)
		}
	}

	resp, err := c.do(ctx, Request{Method: method, Path: path, Body: body})
	if err != nil {
		return err
	}
	return decodeResponse(method, path, resp, result)
}

// delete issues a DELETE request.
func (c *Client) delete(ctx context.Context, path string) error {
	resp, err := c.do(ctx, Request{Method: http.MethodDelete, Path: path})
	if err != nil {
		return err
	}
	return decodeResponse(http.MethodDelete, path, resp, nil)
}

// decodeResponse checks the HTTP status and decodes the body.
func decodeResponse(method, path string, resp *Response, result interface{}) error {
	if !resp.OK {
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, apiErrorMessage(resp.Body))
	}
	if result == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, result); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
