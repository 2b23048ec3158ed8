// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

// Package pool provides a bounded-concurrency task runner used to throttle
// parallel vendor API and media requests.
//
// Run executes a processor over a slice of items with a fixed number of
// workers, preserving input order in the output slice regardless of
// completion order. The first processor error aborts the batch (fail-fast).
// Callers that want partial-success semantics instead wrap their processor
// with Partial so per-item failures are returned as tagged Results rather
// than failing the batch; this is a processor-level convention, there is no
// second runner variant.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/travisgrayraven/ravenbridge/internal/metrics"
)

// ErrInvalidConcurrency is returned when Run is called with a non-positive
// concurrency limit.
var ErrInvalidConcurrency = errors.New("pool: concurrency limit must be positive")

// Run executes processor over items with at most limit invocations in
// flight simultaneously, returning results in input order: out[i] is the
// result of processor(ctx, items[i]) for every i.
//
// Exactly min(limit, len(items)) workers are started. Workers claim the
// next unclaimed index from a shared cursor, so limit == 1 processes items
// strictly sequentially and limit >= len(items) is full parallelism.
//
// Failure policy is fail-fast: if any processor returns an error, Run
// returns that error (wrapped with the item index) and no further items
// are claimed. Already-in-flight siblings are signalled through the
// derived context but not forcibly cancelled; their results are discarded.
//
// A cancelled ctx stops further claims and Run returns ctx.Err().
// An empty items slice returns an empty result without invoking processor.
func Run[T, R any](ctx context.Context, items []T, processor func(context.Context, T) (R, error), limit int) ([]R, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, limit)
	}
	if len(items) == 0 {
		return []R{}, nil
	}

	workers := limit
	if workers > len(items) {
		workers = len(items)
	}

	out := make([]R, len(items))

	// Shared cursor: each worker atomically claims the next unclaimed index.
	var cursor atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				// A failed sibling (or cancelled caller) stops further claims.
				if err := gctx.Err(); err != nil {
					return err
				}

				i := int(cursor.Add(1)) - 1
				if i >= len(items) {
					return nil
				}

				metrics.PoolInFlight.Inc()
				result, err := processor(gctx, items[i])
				metrics.PoolInFlight.Dec()
				if err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
				out[i] = result
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Result is a tagged per-item outcome for partial-success batches.
// A processor that catches its own errors and returns Result values keeps
// the batch alive past individual failures.
type Result[R any] struct {
	Value R
	Err   error
}

// Ok reports whether the item succeeded.
func (r Result[R]) Ok() bool {
	return r.Err == nil
}

// Partial adapts a fallible processor into one that never fails the batch:
// per-item errors are captured in the returned Result instead of
// propagating. Use with Run for collect-all-including-errors semantics,
// e.g. bulk event media fetches where one missing clip must not abort the
// rest of the batch.
func Partial[T, R any](processor func(context.Context, T) (R, error)) func(context.Context, T) (Result[R], error) {
	return func(ctx context.Context, item T) (Result[R], error) {
		value, err := processor(ctx, item)
		return Result[R]{Value: value, Err: err}, nil
	}
}
