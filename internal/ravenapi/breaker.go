// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package ravenapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/travisgrayraven/ravenbridge/internal/logging"
	"github.com/travisgrayraven/ravenbridge/internal/metrics"
	"github.com/travisgrayraven/ravenbridge/internal/models/raven"
)

// BreakerClient wraps Client with a circuit breaker so a failing vendor
// API cannot cascade into the bridge.
//
// DETERMINISM NOTE: the breaker uses real time (via sony/gobreaker) for
// its interval and timeout calculations. Tests should mock the underlying
// client or test it directly rather than racing breaker timing.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewBreakerClient creates a vendor client with circuit breaker
// protection. Configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 2 minute timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
func NewBreakerClient(client *Client) *BreakerClient {
	cbName := "raven-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6

			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}

			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := breakerStateString(from)
			toStr := breakerStateString(to)

			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()

			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &BreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

// execute wraps a vendor API call with circuit breaker protection.
func (bc *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := bc.cb.Execute(fn)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "failure").Inc()
			counts := bc.cb.Counts()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(bc.name).Set(float64(counts.ConsecutiveFailures))
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(bc.name).Set(0)

	return result, nil
}

// castResult safely type-casts the circuit breaker result.
func castResult[T any](result interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func breakerStateFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func breakerStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Ping verifies connectivity with circuit breaker protection.
func (bc *BreakerClient) Ping(ctx context.Context) error {
	_, err := bc.execute(func() (interface{}, error) {
		return nil, bc.client.Ping(ctx)
	})
	return err
}

// ListVehicles retrieves a page of Raven units with breaker protection.
func (bc *BreakerClient) ListVehicles(ctx context.Context, cursor string) (*raven.VehicleList, error) {
	return castResult[raven.VehicleList](bc.execute(func() (interface{}, error) {
		return bc.client.ListVehicles(ctx, cursor)
	}))
}

// GetVehicle retrieves a single Raven unit with breaker protection.
func (bc *BreakerClient) GetVehicle(ctx context.Context, uuid string) (*raven.Vehicle, error) {
	return castResult[raven.Vehicle](bc.execute(func() (interface{}, error) {
		return bc.client.GetVehicle(ctx, uuid)
	}))
}

// ListEvents retrieves telematics events with breaker protection.
func (bc *BreakerClient) ListEvents(ctx context.Context, ravenUUID string, since, until time.Time, cursor string, limit int) (*raven.EventList, error) {
	return castResult[raven.EventList](bc.execute(func() (interface{}, error) {
		return bc.client.ListEvents(ctx, ravenUUID, since, until, cursor, limit)
	}))
}

// GetEventMedia retrieves event media descriptors with breaker protection.
func (bc *BreakerClient) GetEventMedia(ctx context.Context, eventID string) ([]raven.Media, error) {
	result, err := bc.execute(func() (interface{}, error) {
		return bc.client.GetEventMedia(ctx, eventID)
	})
	if err != nil {
		return nil, err
	}
	media, ok := result.([]raven.Media)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return media, nil
}

// ListGeofences retrieves all geofences with breaker protection.
func (bc *BreakerClient) ListGeofences(ctx context.Context) (*raven.GeofenceList, error) {
	return castResult[raven.GeofenceList](bc.execute(func() (interface{}, error) {
		return bc.client.ListGeofences(ctx)
	}))
}

// CreateGeofence creates a geofence with breaker protection.
func (bc *BreakerClient) CreateGeofence(ctx context.Context, fence raven.Geofence) (*raven.Geofence, error) {
	return castResult[raven.Geofence](bc.execute(func() (interface{}, error) {
		return bc.client.CreateGeofence(ctx, fence)
	}))
}

// UpdateGeofence replaces a geofence with breaker protection.
func (bc *BreakerClient) UpdateGeofence(ctx context.Context, fence raven.Geofence) (*raven.Geofence, error) {
	return castResult[raven.Geofence](bc.execute(func() (interface{}, error) {
		return bc.client.UpdateGeofence(ctx, fence)
	}))
}

// DeleteGeofence removes a geofence with breaker protection.
func (bc *BreakerClient) DeleteGeofence(ctx context.Context, id string) error {
	_, err := bc.execute(func() (interface{}, error) {
		return nil, bc.client.DeleteGeofence(ctx, id)
	})
	return err
}

// GetSettings retrieves device settings with breaker protection.
func (bc *BreakerClient) GetSettings(ctx context.Context, ravenUUID string) (*raven.Settings, error) {
	return castResult[raven.Settings](bc.execute(func() (interface{}, error) {
		return bc.client.GetSettings(ctx, ravenUUID)
	}))
}

// UpdateSettings applies a settings patch with breaker protection.
func (bc *BreakerClient) UpdateSettings(ctx context.Context, ravenUUID string, patch raven.SettingsPatch) (*raven.Settings, error) {
	return castResult[raven.Settings](bc.execute(func() (interface{}, error) {
		return bc.client.UpdateSettings(ctx, ravenUUID, patch)
	}))
}
