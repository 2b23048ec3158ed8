// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

// Package fleet composes the vendor API client with bounded batch
// operations over whole fleets of vehicles.
package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/travisgrayraven/ravenbridge/internal/logging"
	"github.com/travisgrayraven/ravenbridge/internal/metrics"
	"github.com/travisgrayraven/ravenbridge/internal/models/raven"
	"github.com/travisgrayraven/ravenbridge/internal/pool"
)

// VehicleAPI is the slice of the vendor client the fleet service uses.
// Satisfied by both ravenapi.Client and ravenapi.BreakerClient.
type VehicleAPI interface {
	ListVehicles(ctx context.Context, cursor string) (*raven.VehicleList, error)
	GetVehicle(ctx context.Context, uuid string) (*raven.Vehicle, error)
	ListEvents(ctx context.Context, ravenUUID string, since, until time.Time, cursor string, limit int) (*raven.EventList, error)
	GetEventMedia(ctx context.Context, eventID string) ([]raven.Media, error)
	CreateGeofence(ctx context.Context, fence raven.Geofence) (*raven.Geofence, error)
}

// Config bounds the service's batch concurrency.
type Config struct {
	// SnapshotConcurrency bounds per-vehicle fan-out during snapshots.
	SnapshotConcurrency int

	// MediaConcurrency bounds concurrent event media fetches.
	MediaConcurrency int

	// GeofenceConcurrency bounds concurrent geofence uploads.
	GeofenceConcurrency int

	// EventLookback is the default event listing window.
	EventLookback time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SnapshotConcurrency: 8,
		MediaConcurrency:    4,
		GeofenceConcurrency: 4,
		EventLookback:       24 * time.Hour,
	}
}

// Service provides fleet-wide operations on top of the vendor API.
type Service struct {
	api VehicleAPI
	cfg Config
}

// NewService creates a fleet service.
func NewService(api VehicleAPI, cfg Config) *Service {
	if cfg.SnapshotConcurrency <= 0 {
		cfg.SnapshotConcurrency = 8
	}
	if cfg.MediaConcurrency <= 0 {
		cfg.MediaConcurrency = 4
	}
	if cfg.GeofenceConcurrency <= 0 {
		cfg.GeofenceConcurrency = 4
	}
	if cfg.EventLookback <= 0 {
		cfg.EventLookback = 24 * time.Hour
	}
	return &Service{api: api, cfg: cfg}
}

// MediaResult pairs an event ID with its fetched media or the error
// that prevented the fetch.
type MediaResult struct {
	EventID string        `json:"event_id"`
	Media   []raven.Media `json:"media,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// FetchEventMedia retrieves media for a batch of events. Results come
// back in the order of eventIDs. A failure on one event is recorded in
// its result and does not abort the rest of the batch.
func (s *Service) FetchEventMedia(ctx context.Context, eventIDs []string) ([]MediaResult, error) {
	fetch := pool.Partial(func(ctx context.Context, eventID string) ([]raven.Media, error) {
		return s.api.GetEventMedia(ctx, eventID)
	})

	results, err := pool.Run(ctx, eventIDs, fetch, s.cfg.MediaConcurrency)
	if err != nil {
		metrics.BatchOperations.WithLabelValues("media_fetch", "failure").Inc()
		return nil, err
	}

	out := make([]MediaResult, len(results))
	failed := 0
	for i, r := range results {
		out[i] = MediaResult{EventID: eventIDs[i]}
		if r.Ok() {
			out[i].Media = r.Value
		} else {
			out[i].Error = logging.SanitizeError(r.Err.Error())
			failed++
		}
	}

	metrics.BatchOperations.WithLabelValues("media_fetch", "success").Inc()
	metrics.BatchItemsProcessed.WithLabelValues("media_fetch", "success").Add(float64(len(eventIDs) - failed))
	metrics.BatchItemsProcessed.WithLabelValues("media_fetch", "failure").Add(float64(failed))
	if failed > 0 {
		logging.Warn().
			Int("total", len(eventIDs)).
			Int("failed", failed).
			Msg("event media batch completed with failures")
	}
	return out, nil
}

// UploadGeofences pushes a batch of geofence definitions to the vendor.
// The upload is all-or-nothing from the caller's perspective: the first
// failure aborts the batch and is returned with the offending index.
// Created geofences come back in input order.
func (s *Service) UploadGeofences(ctx context.Context, fences []raven.Geofence) ([]raven.Geofence, error) {
	create := func(ctx context.Context, fence raven.Geofence) (raven.Geofence, error) {
		created, err := s.api.CreateGeofence(ctx, fence)
		if err != nil {
			return raven.Geofence{}, err
		}
		return *created, nil
	}

	created, err := pool.Run(ctx, fences, create, s.cfg.GeofenceConcurrency)
	if err != nil {
		metrics.BatchOperations.WithLabelValues("geofence_upload", "failure").Inc()
		return nil, fmt.Errorf("geofence upload: %w", err)
	}

	metrics.BatchOperations.WithLabelValues("geofence_upload", "success").Inc()
	metrics.BatchItemsProcessed.WithLabelValues("geofence_upload", "success").Add(float64(len(fences)))
	return created, nil
}

// FleetSnapshot holds the current positions of the whole fleet plus
// the vehicles whose detail fetch failed.
type FleetSnapshot struct {
	Taken    time.Time       `json:"taken"`
	Vehicles []raven.Vehicle `json:"ravens"`
	Failed   []string        `json:"failed,omitempty"`
}

// Snapshot lists the fleet and fans out bounded detail fetches so each
// vehicle's latest position and status is current. Vehicles whose
// detail fetch fails keep their listing data and are reported in
// Failed.
func (s *Service) Snapshot(ctx context.Context) (*FleetSnapshot, error) {
	vehicles, err := s.listAllVehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list fleet: %w", err)
	}

	fetch := pool.Partial(func(ctx context.Context, v raven.Vehicle) (raven.Vehicle, error) {
		detail, err := s.api.GetVehicle(ctx, v.UUID)
		if err != nil {
			return raven.Vehicle{}, err
		}
		return *detail, nil
	})

	results, err := pool.Run(ctx, vehicles, fetch, s.cfg.SnapshotConcurrency)
	if err != nil {
		return nil, err
	}

	snapshot := &FleetSnapshot{
		Taken:    time.Now().UTC(),
		Vehicles: make([]raven.Vehicle, len(results)),
	}
	for i, r := range results {
		if r.Ok() {
			snapshot.Vehicles[i] = r.Value
		} else {
			// Keep the listing data when the detail fetch fails
			snapshot.Vehicles[i] = vehicles[i]
			snapshot.Failed = append(snapshot.Failed, vehicles[i].UUID)
		}
	}

	metrics.BatchItemsProcessed.WithLabelValues("snapshot", "success").Add(float64(len(vehicles) - len(snapshot.Failed)))
	metrics.BatchItemsProcessed.WithLabelValues("snapshot", "failure").Add(float64(len(snapshot.Failed)))
	return snapshot, nil
}

// ListFleetEvents lists recent events for one vehicle, following
// pagination until the vendor reports no further pages.
func (s *Service) ListFleetEvents(ctx context.Context, ravenUUID string, since, until time.Time) ([]raven.Event, error) {
	if until.IsZero() {
		until = time.Now().UTC()
	}
	if since.IsZero() {
		since = until.Add(-s.cfg.EventLookback)
	}

	var events []raven.Event
	cursor := ""
	for {
		page, err := s.api.ListEvents(ctx, ravenUUID, since, until, cursor, 0)
		if err != nil {
			return nil, fmt.Errorf("list events for %s: %w", ravenUUID, err)
		}
		events = append(events, page.Events...)
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	return events, nil
}

// listAllVehicles follows pagination to collect the whole fleet.
func (s *Service) listAllVehicles(ctx context.Context) ([]raven.Vehicle, error) {
	var vehicles []raven.Vehicle
	cursor := ""
	for {
		page, err := s.api.ListVehicles(ctx, cursor)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, page.Vehicles...)
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	return vehicles, nil
}
