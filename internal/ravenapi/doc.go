// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

// Package ravenapi implements the client side of the Raven vendor REST API.
//
// The package is layered:
//
//   - Session holds the bearer credentials and performs single HTTP
//     exchanges with transparent refresh-and-retry on HTTP 401. Every
//     completed exchange is reported to an audit sink with secrets masked.
//   - Client builds on Session with request rate limiting, HTTP 429
//     backoff and typed endpoint methods (vehicles, events, media,
//     geofences, settings).
//   - BreakerClient wraps Client with a circuit breaker so a failing
//     vendor API cannot cascade into the bridge.
//
// Credentials are replaced wholesale on refresh, never mutated in place;
// concurrent readers observe either the old or the new token atomically.
// Parallel requests that hit 401 at the same time share one refresh call
// through a single-flight guard.
package ravenapi
