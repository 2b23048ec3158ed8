// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package ravenapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/travisgrayraven/ravenbridge/internal/models/raven"
)

// newTestClient builds a client against the given handler with fast retry
// timing so backoff tests run in milliseconds.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	session := NewSession(Credentials{BaseURL: server.URL, AccessToken: "test-token"}, nil)
	client := NewClient(session,
		WithRateLimit(1000, 1000),
		WithRetryPolicy(3, time.Millisecond),
	)
	return client, server
}

func TestClientRetriesOn429(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ravens":[],"cursor":""}`))
	})

	list, err := client.ListVehicles(context.Background(), "")
	if err != nil {
		t.Fatalf("ListVehicles failed: %v", err)
	}
	if len(list.Vehicles) != 0 {
		t.Errorf("expected empty vehicle list, got %+v", list.Vehicles)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 calls (2 rate-limited + success), got %d", n)
	}
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.ListVehicles(context.Background(), "")
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("unexpected error: %v", err)
	}
	// maxRetries=3 means 4 attempts total.
	if n := calls.Load(); n != 4 {
		t.Errorf("expected 4 attempts, got %d", n)
	}
}

func TestClientHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int64
	var gap time.Duration
	var first time.Time

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			first = time.Now()
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			gap = time.Since(first)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ravens":[]}`))
		}
	})

	if _, err := client.ListVehicles(context.Background(), ""); err != nil {
		t.Fatalf("ListVehicles failed: %v", err)
	}
	// Retry-After: 0 should override the computed backoff and retry
	// immediately rather than waiting.
	if gap > 500*time.Millisecond {
		t.Errorf("Retry-After not honored, waited %v", gap)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		min   time.Duration
		max   time.Duration
		ok    bool
	}{
		{name: "delta seconds", value: "7", min: 7 * time.Second, max: 7 * time.Second, ok: true},
		{name: "zero seconds", value: "0", min: 0, max: 0, ok: true},
		{name: "http date ahead", value: time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat), min: 5 * time.Second, max: 10 * time.Second, ok: true},
		{name: "http date past", value: time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat), min: 0, max: 0, ok: true},
		{name: "negative seconds", value: "-3", ok: false},
		{name: "garbage", value: "soon", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := parseRetryAfter(tt.value)
			if ok != tt.ok {
				t.Fatalf("parseRetryAfter(%q) ok = %v, want %v", tt.value, ok, tt.ok)
			}
			if !ok {
				return
			}
			if d < tt.min || d > tt.max {
				t.Errorf("parseRetryAfter(%q) = %v, want in [%v, %v]", tt.value, d, tt.min, tt.max)
			}
		})
	}
}

func TestClientDecodesVehicles(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ravens" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"ravens": [
				{"uuid":"r-1","name":"Van 12","status":"driving","enabled":true,
				 "last_known_location":{"latitude":45.5,"longitude":-73.6,"speed_kmh":42.0,"heading":270,"timestamp":"2026-08-30T12:00:00Z"}},
				{"uuid":"r-2","name":"Truck 3","status":"offline","enabled":false}
			],
			"cursor": "next-page"
		}`))
	})

	list, err := client.ListVehicles(context.Background(), "")
	if err != nil {
		t.Fatalf("ListVehicles failed: %v", err)
	}
	if len(list.Vehicles) != 2 {
		t.Fatalf("expected 2 vehicles, got %d", len(list.Vehicles))
	}
	if list.Cursor != "next-page" {
		t.Errorf("cursor = %q", list.Cursor)
	}

	v := list.Vehicles[0]
	if v.UUID != "r-1" || v.Name != "Van 12" || v.Status != "driving" {
		t.Errorf("unexpected vehicle: %+v", v)
	}
	if v.LastLocation == nil || v.LastLocation.Latitude != 45.5 {
		t.Errorf("location not decoded: %+v", v.LastLocation)
	}
	if list.Vehicles[1].LastLocation != nil {
		t.Error("absent location should decode to nil")
	}
}

func TestClientErrorEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"not_found","message":"raven does not exist"}`))
	})

	_, err := client.GetVehicle(context.Background(), "missing-uuid")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "raven does not exist") {
		t.Errorf("error should carry vendor message: %v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error should carry status code: %v", err)
	}
}

func TestClientUpdateSettingsPatch(t *testing.T) {
	var gotBody string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"raven_uuid":"r-1","privacy_mode":true,"cabin_camera_enabled":false,"road_camera_enabled":true,"audio_recording":false,"live_stream_enabled":false}`))
	})

	privacy := true
	settings, err := client.UpdateSettings(context.Background(), "r-1", raven.SettingsPatch{PrivacyMode: &privacy})
	if err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	if !settings.PrivacyMode {
		t.Errorf("expected privacy mode enabled in response: %+v", settings)
	}

	// Nil patch fields must stay off the wire so the vendor leaves them
	// unchanged.
	if !strings.Contains(gotBody, "privacy_mode") {
		t.Errorf("patch body missing set field: %s", gotBody)
	}
	if strings.Contains(gotBody, "cabin_camera_enabled") {
		t.Errorf("patch body should omit unset fields: %s", gotBody)
	}
}
