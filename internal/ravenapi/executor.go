// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package ravenapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/travisgrayraven/ravenbridge/internal/logging"
	"github.com/travisgrayraven/ravenbridge/internal/metrics"
)

// maxResponseBodySize limits how much of a vendor response is read.
// Vendor JSON payloads are small; media bytes are never proxied through
// this client, only their signed URLs.
const maxResponseBodySize = 4 << 20 // 4MB

// Request describes one vendor API call. The Authorization header is
// attached by the session; callers must not set it themselves.
type Request struct {
	Method string
	Path   string // e.g. "/vehicles", joined onto the session base URL
	Query  url.Values
	Body   []byte
	Header http.Header
}

// Response is a completed vendor API exchange.
type Response struct {
	StatusCode int
	OK         bool // true for 2xx
	Header     http.Header
	Body       []byte
}

// Do performs one authenticated request with a one-shot refresh-and-retry
// on HTTP 401:
//
//  1. The current bearer token is attached and the request issued.
//  2. On 401 the refresh capability runs (single-flight). If it succeeds,
//     the original request is reissued exactly once with the new token and
//     that second response is returned whatever its status. If it fails,
//     the ORIGINAL 401 response is returned with a nil error and the
//     session is marked terminated; callers treat a surfaced 401 as
//     "session ended".
//  3. Any other status is returned as-is.
//
// Transport-level failures (no response at all) return a non-nil error and
// are never retried here. Each completed exchange, including the retry, is
// reported to the audit sink exactly once with secrets masked.
func (s *Session) Do(ctx context.Context, req Request) (*Response, error) {
	resp, err := s.roundTrip(ctx, req, false)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	if s.refresh == nil || s.terminated.Load() {
		return resp, nil
	}

	if err := s.refreshToken(ctx); err != nil {
		// Surface the original 401, not the refresh error: the caller's
		// single signal channel is response inspection, and a 401 means
		// the session is over.
		s.terminated.Store(true)
		return resp, nil
	}

	retry, err := s.roundTrip(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return retry, nil
}

// roundTrip issues a single HTTP exchange with the current bearer token
// and reports the completed exchange to the audit sink.
func (s *Session) roundTrip(ctx context.Context, req Request, isRetry bool) (*Response, error) {
	creds := s.Credentials()

	reqURL := creds.BaseURL + req.Path
	if len(req.Query) > 0 {
		reqURL += "?" + req.Query.Encode()
	}

	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s %s request: %w", req.Method, req.Path, err)
	}

	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if creds.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	}

	start := time.Now()
	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		metrics.VendorRequestErrors.WithLabelValues(req.Path).Inc()
		return nil, fmt.Errorf("%s %s failed: %w", req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBodySize))
	if err != nil {
		metrics.VendorRequestErrors.WithLabelValues(req.Path).Inc()
		return nil, fmt.Errorf("failed to read %s %s response: %w", req.Method, req.Path, err)
	}

	duration := time.Since(start)
	metrics.VendorRequestsTotal.WithLabelValues(req.Method, req.Path, strconv.Itoa(httpResp.StatusCode)).Inc()
	metrics.VendorRequestDuration.WithLabelValues(req.Method, req.Path).Observe(duration.Seconds())

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		OK:         httpResp.StatusCode >= 200 && httpResp.StatusCode < 300,
		Header:     httpResp.Header,
		Body:       respBody,
	}

	s.recordExchange(req, httpReq.Header, resp, isRetry, duration)

	return resp, nil
}

// recordExchange sanitizes and reports one completed exchange.
func (s *Session) recordExchange(req Request, sentHeaders http.Header, resp *Response, isRetry bool, duration time.Duration) {
	logging.Debug().
		Str("method", req.Method).
		Str("endpoint", req.Path).
		Int("status", resp.StatusCode).
		Bool("retry", isRetry).
		Dur("duration", duration).
		Msg("Vendor API exchange")

	if s.sink == nil {
		return
	}

	s.sink.RecordExchange(ExchangeRecord{
		Method:         req.Method,
		Endpoint:       req.Path,
		StatusCode:     resp.StatusCode,
		Retry:          isRetry,
		RequestHeaders: logging.SanitizeHeaders(sentHeaders),
		RequestBody:    logging.SanitizeBody(req.Body),
		ResponseBody:   logging.SanitizeBody(resp.Body),
		Duration:       duration,
	})
}
