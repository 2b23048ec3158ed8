// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package ravenapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/travisgrayraven/ravenbridge/internal/logging"
)

// recordingSink captures exchange records for assertions.
type recordingSink struct {
	mu      sync.Mutex
	records []ExchangeRecord
}

func (s *recordingSink) RecordExchange(rec ExchangeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *recordingSink) all() []ExchangeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ExchangeRecord, len(s.records))
	copy(out, s.records)
	return out
}

func TestDoRefreshesTokenOn401(t *testing.T) {
	var calls atomic.Int64
	var tokens []string
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		mu.Lock()
		tokens = append(tokens, token)
		mu.Unlock()

		if token != "fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	var refreshes atomic.Int64
	session := NewSession(
		Credentials{BaseURL: server.URL, AccessToken: "stale-token"},
		func(ctx context.Context) (string, error) {
			refreshes.Add(1)
			return "fresh-token", nil
		},
	)

	resp, err := session.Do(context.Background(), Request{Method: http.MethodGet, Path: "/ravens"})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after refresh, got %d", resp.StatusCode)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected exactly 2 transport calls, got %d", n)
	}
	if n := refreshes.Load(); n != 1 {
		t.Errorf("expected exactly 1 refresh, got %d", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(tokens) != 2 || tokens[0] != "stale-token" || tokens[1] != "fresh-token" {
		t.Errorf("unexpected token sequence: %v", tokens)
	}

	// The credentials holder was replaced wholesale.
	if got := session.Credentials().AccessToken; got != "fresh-token" {
		t.Errorf("credentials not updated, token = %q", got)
	}
}

func TestDoRefreshFailureSurfacesOriginal401(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"token expired"}`))
	}))
	defer server.Close()

	errRefresh := errors.New("refresh endpoint down")
	session := NewSession(
		Credentials{BaseURL: server.URL, AccessToken: "stale-token"},
		func(ctx context.Context) (string, error) {
			return "", errRefresh
		},
	)

	resp, err := session.Do(context.Background(), Request{Method: http.MethodGet, Path: "/ravens"})

	// Resolves, not rejects: the refresh error is not surfaced directly.
	if err != nil {
		t.Fatalf("Do must return the original 401 with nil error, got %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected original 401, got %d", resp.StatusCode)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected exactly 1 transport call, got %d", n)
	}
	if !session.Terminated() {
		t.Error("session should be terminated after refresh failure")
	}

	// A terminated session surfaces 401s without further refresh attempts.
	resp2, err := session.Do(context.Background(), Request{Method: http.MethodGet, Path: "/ravens"})
	if err != nil {
		t.Fatalf("Do on terminated session failed: %v", err)
	}
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 from terminated session, got %d", resp2.StatusCode)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("terminated session must not retry, expected 2 total calls, got %d", n)
	}
}

func TestDoNoDoubleRetry(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	var refreshes atomic.Int64
	session := NewSession(
		Credentials{BaseURL: server.URL, AccessToken: "stale-token"},
		func(ctx context.Context) (string, error) {
			refreshes.Add(1)
			return "still-rejected-token", nil
		},
	)

	resp, err := session.Do(context.Background(), Request{Method: http.MethodGet, Path: "/ravens"})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected the second 401 to be returned, got %d", resp.StatusCode)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected exactly 2 transport calls (initial + one retry), got %d", n)
	}
	if n := refreshes.Load(); n != 1 {
		t.Errorf("expected exactly 1 refresh, got %d", n)
	}
}

func TestDoOtherStatusesPassThrough(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "server error", status: http.StatusInternalServerError},
		{name: "not found", status: http.StatusNotFound},
		{name: "forbidden", status: http.StatusForbidden},
		{name: "success", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int64
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			refreshCalled := false
			session := NewSession(
				Credentials{BaseURL: server.URL, AccessToken: "token"},
				func(ctx context.Context) (string, error) {
					refreshCalled = true
					return "new", nil
				},
			)

			resp, err := session.Do(context.Background(), Request{Method: http.MethodGet, Path: "/ravens"})
			if err != nil {
				t.Fatalf("Do failed: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, resp.StatusCode)
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("expected 1 transport call, got %d", n)
			}
			if refreshCalled {
				t.Error("refresh must not run for non-401 statuses")
			}
		})
	}
}

func TestDoTransportFailurePropagates(t *testing.T) {
	// Closed server: connection refused, no response at all.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	session := NewSession(Credentials{BaseURL: server.URL, AccessToken: "token"}, nil)

	_, err := session.Do(context.Background(), Request{Method: http.MethodGet, Path: "/ravens"})
	if err == nil {
		t.Fatal("expected transport error, got nil")
	}
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	const parallel = 5

	// Hold every first-attempt response until all workers have arrived so
	// the 401s land concurrently.
	var arrived sync.WaitGroup
	arrived.Add(parallel)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token != "fresh-token" {
			arrived.Done()
			arrived.Wait()
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var refreshes atomic.Int64
	session := NewSession(
		Credentials{BaseURL: server.URL, AccessToken: "stale-token"},
		func(ctx context.Context) (string, error) {
			refreshes.Add(1)
			time.Sleep(20 * time.Millisecond)
			return "fresh-token", nil
		},
	)

	var wg sync.WaitGroup
	errs := make([]error, parallel)
	statuses := make([]int, parallel)
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := session.Do(context.Background(), Request{Method: http.MethodGet, Path: "/ravens"})
			errs[i] = err
			if resp != nil {
				statuses[i] = resp.StatusCode
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < parallel; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d failed: %v", i, errs[i])
		}
		if statuses[i] != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, statuses[i])
		}
	}

	if n := refreshes.Load(); n != 1 {
		t.Errorf("expected a single shared refresh, got %d", n)
	}
}

func TestDoAuditsEveryCompletedExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != "fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := &recordingSink{}
	session := NewSession(
		Credentials{BaseURL: server.URL, AccessToken: "stale-token"},
		func(ctx context.Context) (string, error) { return "fresh-token", nil },
		WithAuditSink(sink),
	)

	if _, err := session.Do(context.Background(), Request{Method: http.MethodGet, Path: "/ravens"}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	records := sink.all()
	if len(records) != 2 {
		t.Fatalf("expected 2 exchange records (attempt + retry), got %d", len(records))
	}
	if records[0].Retry || records[0].StatusCode != http.StatusUnauthorized {
		t.Errorf("first record should be the non-retry 401: %+v", records[0])
	}
	if !records[1].Retry || records[1].StatusCode != http.StatusOK {
		t.Errorf("second record should be the retried 200: %+v", records[1])
	}

	// Bearer tokens never reach the sink.
	for i, rec := range records {
		if got := rec.RequestHeaders["Authorization"]; got != logging.Redacted {
			t.Errorf("record %d: Authorization not redacted: %q", i, got)
		}
		for _, leaked := range []string{"stale-token", "fresh-token"} {
			if strings.Contains(rec.RequestBody, leaked) || strings.Contains(rec.ResponseBody, leaked) {
				t.Errorf("record %d leaks token %q", i, leaked)
			}
		}
	}
}
