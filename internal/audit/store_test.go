// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package audit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// storeFactory lets the same contract tests run against every Store
// implementation.
type storeFactory func(t *testing.T) Store

func memoryFactory(t *testing.T) Store {
	t.Helper()
	return NewMemoryStore(1000)
}

func badgerFactory(t *testing.T) Store {
	t.Helper()
	store, err := OpenBadgerStore("")
	if err != nil {
		t.Fatalf("OpenBadgerStore() error = %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func storeImplementations() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": memoryFactory,
		"badger": badgerFactory,
	}
}

func saveEvents(t *testing.T, store Store, events ...*Event) {
	t.Helper()
	ctx := context.Background()
	for _, e := range events {
		if err := store.Save(ctx, e); err != nil {
			t.Fatalf("Save(%s) error = %v", e.ID, err)
		}
	}
}

func TestStoreQueryNewestFirst(t *testing.T) {
	for name, factory := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			base := time.Now().Add(-time.Hour)

			for i := 0; i < 5; i++ {
				saveEvents(t, store, &Event{
					ID:        fmt.Sprintf("evt-%d", i),
					Timestamp: base.Add(time.Duration(i) * time.Minute),
					Type:      EventTypeVendorRequest,
					Severity:  SeverityInfo,
					Outcome:   OutcomeSuccess,
					Actor:     SystemActor,
				})
			}

			events, err := store.Query(context.Background(), QueryFilter{Limit: 3})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(events) != 3 {
				t.Fatalf("got %d events, want 3", len(events))
			}
			if events[0].ID != "evt-4" || events[2].ID != "evt-2" {
				t.Errorf("order = [%s %s %s], want newest first", events[0].ID, events[1].ID, events[2].ID)
			}
		})
	}
}

func TestStoreQueryFilters(t *testing.T) {
	for name, factory := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			now := time.Now()

			saveEvents(t, store,
				&Event{ID: "a", Timestamp: now.Add(-3 * time.Hour), Type: EventTypeVendorRequest, Severity: SeverityInfo, Outcome: OutcomeSuccess, Actor: SystemActor},
				&Event{ID: "b", Timestamp: now.Add(-2 * time.Hour), Type: EventTypeOperatorLogin, Severity: SeverityInfo, Outcome: OutcomeSuccess, Actor: "carol"},
				&Event{ID: "c", Timestamp: now.Add(-1 * time.Hour), Type: EventTypeOperatorDenied, Severity: SeverityWarning, Outcome: OutcomeFailure, Actor: "mallory"},
			)

			tests := []struct {
				name    string
				filter  QueryFilter
				wantIDs []string
			}{
				{
					name:    "by type",
					filter:  QueryFilter{Types: []EventType{EventTypeOperatorLogin}},
					wantIDs: []string{"b"},
				},
				{
					name:    "by severity",
					filter:  QueryFilter{Severities: []Severity{SeverityWarning}},
					wantIDs: []string{"c"},
				},
				{
					name:    "by outcome",
					filter:  QueryFilter{Outcomes: []Outcome{OutcomeSuccess}},
					wantIDs: []string{"b", "a"},
				},
				{
					name:    "by actor",
					filter:  QueryFilter{Actor: "carol"},
					wantIDs: []string{"b"},
				},
				{
					name:    "by time range",
					filter:  QueryFilter{StartTime: timePtr(now.Add(-150 * time.Minute))},
					wantIDs: []string{"c", "b"},
				},
				{
					name:    "offset pagination",
					filter:  QueryFilter{Limit: 1, Offset: 1},
					wantIDs: []string{"b"},
				},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					events, err := store.Query(context.Background(), tt.filter)
					if err != nil {
						t.Fatalf("Query() error = %v", err)
					}
					if len(events) != len(tt.wantIDs) {
						t.Fatalf("got %d events, want %d", len(events), len(tt.wantIDs))
					}
					for i, id := range tt.wantIDs {
						if events[i].ID != id {
							t.Errorf("events[%d].ID = %q, want %q", i, events[i].ID, id)
						}
					}
				})
			}
		})
	}
}

func TestStoreSubSecondOrdering(t *testing.T) {
	// Sub-second timestamps whose nanosecond renderings differ in digit
	// count. A trimmed encoding would sort .1 after .15 and break both
	// the newest-first scan and the retention cutoff.
	for name, factory := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			base := time.Now().Truncate(time.Second)

			saveEvents(t, store,
				&Event{ID: "first", Timestamp: base.Add(100 * time.Millisecond), Type: EventTypeVendorRequest, Severity: SeverityInfo, Outcome: OutcomeSuccess, Actor: SystemActor},
				&Event{ID: "second", Timestamp: base.Add(150 * time.Millisecond), Type: EventTypeVendorRequest, Severity: SeverityInfo, Outcome: OutcomeSuccess, Actor: SystemActor},
			)

			events, err := store.Query(context.Background(), QueryFilter{Limit: 10})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(events) != 2 {
				t.Fatalf("got %d events, want 2", len(events))
			}
			if events[0].ID != "second" || events[1].ID != "first" {
				t.Errorf("order = %v, want newest first", eventIDs(events))
			}

			removed, err := store.Delete(context.Background(), base.Add(120*time.Millisecond))
			if err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if removed != 1 {
				t.Errorf("Delete() removed = %d, want 1", removed)
			}

			events, err = store.Query(context.Background(), QueryFilter{Limit: 10})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(events) != 1 || events[0].ID != "second" {
				t.Errorf("surviving events = %v, want only %q", eventIDs(events), "second")
			}
		})
	}
}

func TestStoreCount(t *testing.T) {
	for name, factory := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			now := time.Now()

			saveEvents(t, store,
				&Event{ID: "a", Timestamp: now, Type: EventTypeVendorRequest, Severity: SeverityInfo, Outcome: OutcomeSuccess, Actor: SystemActor},
				&Event{ID: "b", Timestamp: now, Type: EventTypeVendorRequest, Severity: SeverityInfo, Outcome: OutcomeFailure, Actor: SystemActor},
			)

			count, err := store.Count(context.Background(), QueryFilter{Outcomes: []Outcome{OutcomeFailure}})
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if count != 1 {
				t.Errorf("Count() = %d, want 1", count)
			}
		})
	}
}

func TestStoreDeleteRetention(t *testing.T) {
	for name, factory := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			now := time.Now()

			saveEvents(t, store,
				&Event{ID: "old", Timestamp: now.Add(-48 * time.Hour), Type: EventTypeVendorRequest, Severity: SeverityInfo, Outcome: OutcomeSuccess, Actor: SystemActor},
				&Event{ID: "recent", Timestamp: now, Type: EventTypeVendorRequest, Severity: SeverityInfo, Outcome: OutcomeSuccess, Actor: SystemActor},
			)

			removed, err := store.Delete(context.Background(), now.Add(-24*time.Hour))
			if err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if removed != 1 {
				t.Errorf("Delete() removed = %d, want 1", removed)
			}

			events, err := store.Query(context.Background(), DefaultQueryFilter())
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(events) != 1 || events[0].ID != "recent" {
				t.Errorf("surviving events = %v, want only %q", eventIDs(events), "recent")
			}
		})
	}
}

func TestMemoryStoreEviction(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		err := store.Save(ctx, &Event{
			ID:        fmt.Sprintf("evt-%d", i),
			Timestamp: time.Now(),
			Type:      EventTypeVendorRequest,
			Severity:  SeverityInfo,
			Outcome:   OutcomeSuccess,
			Actor:     SystemActor,
		})
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	if store.Len() != 10 {
		t.Errorf("Len() = %d, want 10", store.Len())
	}

	// Oldest event was evicted
	if _, err := store.Get(ctx, "evt-0"); err == nil {
		t.Error("expected evt-0 to be evicted")
	}
	if _, err := store.Get(ctx, "evt-10"); err != nil {
		t.Errorf("Get(evt-10) error = %v", err)
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func eventIDs(events []Event) []string {
	ids := make([]string, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	return ids
}
