// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/travisgrayraven/ravenbridge/internal/logging"
	"github.com/travisgrayraven/ravenbridge/internal/ravenapi"
)

func newTestLogger(t *testing.T, config *Config) (*Logger, *MemoryStore) {
	t.Helper()

	store := NewMemoryStore(100)
	logger := NewLogger(store, config)
	t.Cleanup(func() {
		_ = logger.Close()
	})
	return logger, store
}

func TestLoggerWritesEventsToStore(t *testing.T) {
	logger, store := newTestLogger(t, nil)

	logger.Log(&Event{
		Type:        EventTypeOperatorLogin,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       "carol",
		Action:      "login",
		Description: "Operator authenticated successfully",
	})

	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	events, err := store.Query(context.Background(), DefaultQueryFilter())
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	event := events[0]
	if event.ID == "" {
		t.Error("event ID was not generated")
	}
	if event.Timestamp.IsZero() {
		t.Error("event timestamp was not set")
	}
	if event.Actor != "carol" {
		t.Errorf("actor = %q, want %q", event.Actor, "carol")
	}
}

func TestLoggerSeverityFiltering(t *testing.T) {
	config := DefaultConfig()
	config.LogLevel = SeverityWarning
	logger, store := newTestLogger(t, config)

	logger.Log(&Event{Type: EventTypeVendorRequest, Severity: SeverityInfo})
	logger.Log(&Event{Type: EventTypeSessionEnded, Severity: SeverityError})

	_ = logger.Close()

	events, err := store.Query(context.Background(), DefaultQueryFilter())
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Type != EventTypeSessionEnded {
		t.Errorf("kept event type = %q, want %q", events[0].Type, EventTypeSessionEnded)
	}
}

func TestLoggerDisabledDropsEvents(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = false
	logger, store := newTestLogger(t, config)

	logger.Log(&Event{Type: EventTypeOperatorLogin, Severity: SeverityInfo})
	_ = logger.Close()

	if store.Len() != 0 {
		t.Errorf("store has %d events, want 0", store.Len())
	}
}

func TestLoggerDefaultsActorToSystem(t *testing.T) {
	logger, store := newTestLogger(t, nil)

	logger.LogTokenRefresh(true)
	_ = logger.Close()

	events, err := store.Query(context.Background(), DefaultQueryFilter())
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Actor != SystemActor {
		t.Errorf("actor = %q, want %q", events[0].Actor, SystemActor)
	}
}

func TestExchangeSinkRecordsVendorExchanges(t *testing.T) {
	logger, store := newTestLogger(t, nil)
	sink := logger.ExchangeSink()

	sink(ravenapi.ExchangeRecord{
		Method:     "GET",
		Endpoint:   "/ravens",
		StatusCode: 200,
		RequestHeaders: map[string]string{
			"Authorization": logging.Redacted,
		},
		Duration: 25 * time.Millisecond,
	})
	sink(ravenapi.ExchangeRecord{
		Method:     "GET",
		Endpoint:   "/ravens",
		StatusCode: 401,
		Retry:      false,
	})
	sink(ravenapi.ExchangeRecord{
		Method:     "GET",
		Endpoint:   "/ravens",
		StatusCode: 200,
		Retry:      true,
	})

	_ = logger.Close()

	events, err := store.Query(context.Background(), DefaultQueryFilter())
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	// Newest first: retry, 401, initial success
	if events[0].Type != EventTypeVendorRetry {
		t.Errorf("events[0].Type = %q, want %q", events[0].Type, EventTypeVendorRetry)
	}
	if events[1].Outcome != OutcomeFailure {
		t.Errorf("events[1].Outcome = %q, want %q", events[1].Outcome, OutcomeFailure)
	}
	if events[2].Outcome != OutcomeSuccess {
		t.Errorf("events[2].Outcome = %q, want %q", events[2].Outcome, OutcomeSuccess)
	}

	// Sanitized headers survive into metadata verbatim
	if !strings.Contains(string(events[2].Metadata), logging.Redacted) {
		t.Error("expected redaction placeholder in exchange metadata")
	}
}

func TestLoggerRequestIDFromContext(t *testing.T) {
	logger, store := newTestLogger(t, nil)

	ctx := ContextWithRequestID(context.Background(), "req-42")
	logger.LogOperatorLogin(ctx, "carol", "198.51.100.7")
	_ = logger.Close()

	events, err := store.Query(context.Background(), DefaultQueryFilter())
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].RequestID != "req-42" {
		t.Errorf("RequestID = %q, want %q", events[0].RequestID, "req-42")
	}
}
