// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/travisgrayraven/ravenbridge/internal/metrics"
)

// inflightTracker records the maximum number of simultaneously running
// processor invocations.
type inflightTracker struct {
	current atomic.Int64
	max     atomic.Int64
}

func (t *inflightTracker) enter() {
	cur := t.current.Add(1)
	for {
		max := t.max.Load()
		if cur <= max || t.max.CompareAndSwap(max, cur) {
			return
		}
	}
}

func (t *inflightTracker) exit() {
	t.current.Add(-1)
}

func TestRunPreservesOrder(t *testing.T) {
	// Earlier items get longer delays so they complete after later ones;
	// output order must still match input order.
	items := []int{50, 40, 30, 20, 10, 5, 1, 0}

	for limit := 1; limit <= len(items); limit++ {
		t.Run(fmt.Sprintf("limit_%d", limit), func(t *testing.T) {
			out, err := Run(context.Background(), items, func(ctx context.Context, delayMs int) (string, error) {
				time.Sleep(time.Duration(delayMs) * time.Millisecond)
				return fmt.Sprintf("done-%d", delayMs), nil
			}, limit)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if len(out) != len(items) {
				t.Fatalf("expected %d results, got %d", len(items), len(out))
			}
			for i, item := range items {
				want := fmt.Sprintf("done-%d", item)
				if out[i] != want {
					t.Errorf("out[%d] = %q, want %q", i, out[i], want)
				}
			}
		})
	}
}

func TestRunConcurrencyBound(t *testing.T) {
	tests := []struct {
		name        string
		items       int
		limit       int
		wantMax     int64
		wantAtLeast int64
	}{
		{name: "limit below item count", items: 20, limit: 3, wantMax: 3, wantAtLeast: 3},
		{name: "limit one is sequential", items: 10, limit: 1, wantMax: 1, wantAtLeast: 1},
		{name: "limit above item count", items: 4, limit: 16, wantMax: 4, wantAtLeast: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]int, tt.items)
			for i := range items {
				items[i] = i
			}

			var tracker inflightTracker
			_, err := Run(context.Background(), items, func(ctx context.Context, _ int) (struct{}, error) {
				tracker.enter()
				defer tracker.exit()
				time.Sleep(20 * time.Millisecond)
				return struct{}{}, nil
			}, tt.limit)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}

			max := tracker.max.Load()
			if max > tt.wantMax {
				t.Errorf("max in-flight %d exceeds limit %d", max, tt.wantMax)
			}
			if max < tt.wantAtLeast {
				t.Errorf("max in-flight %d, expected sustained load of %d", max, tt.wantAtLeast)
			}
		})
	}
}

func TestRunSequentialOrderWithLimitOne(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}
	var seen []int

	_, err := Run(context.Background(), items, func(ctx context.Context, i int) (int, error) {
		seen = append(seen, i) // safe: limit 1 means no concurrent appends
		return i, nil
	}, 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for i, v := range seen {
		if v != i {
			t.Fatalf("sequential processing out of order: %v", seen)
		}
	}
}

func TestRunFailFast(t *testing.T) {
	errBoom := errors.New("boom")
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}

	var processed atomic.Int64
	_, err := Run(context.Background(), items, func(ctx context.Context, i int) (int, error) {
		processed.Add(1)
		if i == 7 {
			return 0, errBoom
		}
		time.Sleep(5 * time.Millisecond)
		return i, nil
	}, 4)

	if !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped errBoom, got %v", err)
	}
	// Fail-fast: the batch must stop claiming well before the end.
	if n := processed.Load(); n >= int64(len(items)) {
		t.Errorf("all %d items processed despite failure at item 7", n)
	}
}

func TestRunEmptyInput(t *testing.T) {
	called := false
	out, err := Run(context.Background(), []int{}, func(ctx context.Context, _ int) (int, error) {
		called = true
		return 0, nil
	}, 5)
	if err != nil {
		t.Fatalf("Run failed on empty input: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty output, got %d results", len(out))
	}
	if called {
		t.Error("processor invoked for empty input")
	}
}

func TestRunInvalidConcurrency(t *testing.T) {
	for _, limit := range []int{0, -1, -100} {
		_, err := Run(context.Background(), []int{1, 2}, func(ctx context.Context, i int) (int, error) {
			return i, nil
		}, limit)
		if !errors.Is(err, ErrInvalidConcurrency) {
			t.Errorf("limit %d: expected ErrInvalidConcurrency, got %v", limit, err)
		}
	}
}

func TestRunContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	items := make([]int, 100)

	var processed atomic.Int64
	done := make(chan struct{})
	var runErr error
	go func() {
		defer close(done)
		_, runErr = Run(ctx, items, func(ctx context.Context, _ int) (int, error) {
			processed.Add(1)
			time.Sleep(10 * time.Millisecond)
			return 0, nil
		}, 2)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()
	<-done

	if !errors.Is(runErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", runErr)
	}
	if n := processed.Load(); n >= 100 {
		t.Errorf("cancellation did not stop the batch: %d processed", n)
	}
}

func TestPartialCollectsPerItemErrors(t *testing.T) {
	errMissing := errors.New("media not found")
	items := []string{"evt-1", "evt-2", "evt-3", "evt-4"}

	out, err := Run(context.Background(), items, Partial(func(ctx context.Context, id string) (string, error) {
		if id == "evt-2" {
			return "", errMissing
		}
		return "media/" + id, nil
	}), 2)
	if err != nil {
		t.Fatalf("partial-success run must not fail the batch: %v", err)
	}
	if len(out) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(out))
	}

	for i, r := range out {
		if items[i] == "evt-2" {
			if r.Ok() || !errors.Is(r.Err, errMissing) {
				t.Errorf("out[%d]: expected captured errMissing, got %+v", i, r)
			}
			continue
		}
		if !r.Ok() {
			t.Errorf("out[%d]: unexpected error %v", i, r.Err)
		}
		if want := "media/" + items[i]; r.Value != want {
			t.Errorf("out[%d] = %q, want %q", i, r.Value, want)
		}
	}
}

func TestRunTracksInFlightGauge(t *testing.T) {
	var seen atomic.Int64

	_, err := Run(context.Background(), []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		if v := int64(testutil.ToFloat64(metrics.PoolInFlight)); v > seen.Load() {
			seen.Store(v)
		}
		return n, nil
	}, 2)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if seen.Load() < 1 {
		t.Error("gauge never reflected an in-flight item")
	}
	if got := testutil.ToFloat64(metrics.PoolInFlight); got != 0 {
		t.Errorf("gauge = %v after completion, want 0", got)
	}
}
