// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package ravenapi

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/travisgrayraven/ravenbridge/internal/logging"
	"github.com/travisgrayraven/ravenbridge/internal/metrics"
)

// Credentials identifies the vendor API endpoint and the current bearer
// token. The value is owned by the Session and replaced wholesale on
// refresh; it is never partially mutated.
type Credentials struct {
	BaseURL     string
	AccessToken string
}

// RefreshFunc obtains a new access token when the current one is rejected.
// It is supplied per-session by the host application and may itself fail,
// which terminates the session.
type RefreshFunc func(ctx context.Context) (string, error)

// ExchangeRecord captures one completed HTTP exchange for audit logging.
/// Bodies and headers are sanitized before the record is built: bearer
// tokens and API secrets are wholly replaced by a fixed placeholder.
type ExchangeRecord struct {
	Method         string
	Endpoint       string
	StatusCode     int
	Retry          bool // true for the post-refresh reissue of a request
	RequestHeaders map[string]string
	RequestBody    string
	ResponseBody   string
	Duration       time.Duration
}

// AuditSink receives exchange records fire-and-forget.
type AuditSink interface {
	RecordExchange(rec ExchangeRecord)
}

// SinkFunc adapts a function to the AuditSink interface.
type SinkFunc func(ExchangeRecord)

// RecordExchange implements AuditSink.
func (f SinkFunc) RecordExchange(rec ExchangeRecord) { f(rec) }

// Session performs authenticated exchanges against the vendor API with a
// one-shot refresh-and-retry on authorization failure.
//
// Thread safety: all methods are safe for concurrent use. The credentials
// pointer is swapped atomically, and concurrent 401s share a single
// refresh call through the single-flight group.
type Session struct {
	creds      atomic.Pointer[Credentials]
	httpClient *http.Client
	refresh    RefreshFunc
	sf         singleflight.Group
	terminated atomic.Bool
	sink       AuditSink
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) SessionOption {
	return func(s *Session) { s.httpClient = c }
}

// WithAuditSink attaches an audit sink for exchange records.
func WithAuditSink(sink AuditSink) SessionOption {
	return func(s *Session) { s.sink = sink }
}

// NewSession creates a session with the given credentials and refresh
// capability. A nil refresh disables the retry path; 401 responses are
// then surfaced directly.
func NewSession(creds Credentials, refresh RefreshFunc, opts ...SessionOption) *Session {
	s := &Session{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		refresh:    refresh,
	}
	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")
	s.creds.Store(&creds)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Credentials returns a copy of the current credentials.
func (s *Session) Credentials() Credentials {
	return *s.creds.Load()
}

// SetCredentials replaces the credentials wholesale and clears the
// terminated flag. Used after a fresh login.
func (s *Session) SetCredentials(creds Credentials) {
	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")
	s.creds.Store(&creds)
	s.terminated.Store(false)
}

// Terminated reports whether a refresh has failed since the last login.
// A terminated session keeps returning 401 responses without further
// refresh attempts; callers should treat this as "session ended" and
// re-authenticate.
func (s *Session) Terminated() bool {
	return s.terminated.Load()
}

// refreshToken runs the refresh capability behind a single-flight guard so
// parallel 401s trigger exactly one underlying refresh. On success the
// credentials are replaced with the new token.
func (s *Session) refreshToken(ctx context.Context) error {
	_, err, shared := s.sf.Do("refresh", func() (interface{}, error) {
		token, err := s.refresh(ctx)
		if err != nil {
			return nil, err
		}
		creds := s.Credentials()
		creds.AccessToken = token
		s.creds.Store(&creds)
		return nil, nil
	})

	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		logging.Warn().Bool("shared", shared).Str("error", logging.SanitizeError(err.Error())).Msg("Token refresh failed")
		return err
	}

	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	logging.Debug().Bool("shared", shared).Msg("Token refreshed")
	return nil
}
