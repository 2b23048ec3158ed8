// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package fleet

import (
	"context"
	"time"

	"github.com/travisgrayraven/ravenbridge/internal/logging"
	"github.com/travisgrayraven/ravenbridge/internal/metrics"
	"github.com/travisgrayraven/ravenbridge/internal/models/raven"
)

// Broadcaster receives fresh fleet snapshots. Satisfied by
// *websocket.Hub without importing it here.
type Broadcaster interface {
	BroadcastFleetSnapshot(vehicles []raven.Vehicle, failed []string)
}

// Poller periodically refreshes the fleet snapshot and pushes it to
// dashboard clients. It implements suture.Service.
type Poller struct {
	service     *Service
	broadcaster Broadcaster
	interval    time.Duration
	name        string
}

// NewPoller creates a poller that refreshes every interval.
func NewPoller(service *Service, broadcaster Broadcaster, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		service:     service,
		broadcaster: broadcaster,
		interval:    interval,
		name:        "fleet-poller",
	}
}

// Serve implements suture.Service. It polls immediately on start, then
// on every tick, until the context is canceled.
func (p *Poller) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", p.name).Msg("fleet poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll takes one snapshot and broadcasts it. A failed poll is logged
// and counted; the poller keeps running and tries again next tick.
func (p *Poller) poll(ctx context.Context) {
	start := time.Now()
	snapshot, err := p.service.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.PollerRuns.WithLabelValues("failure").Inc()
		logging.Error().Err(err).Msg("fleet snapshot poll failed")
		return
	}

	metrics.PollerRuns.WithLabelValues("success").Inc()
	logging.Debug().
		Int("vehicles", len(snapshot.Vehicles)).
		Int("failed", len(snapshot.Failed)).
		Dur("duration", time.Since(start)).
		Msg("fleet snapshot refreshed")

	if p.broadcaster != nil {
		p.broadcaster.BroadcastFleetSnapshot(snapshot.Vehicles, snapshot.Failed)
	}
}

// String implements fmt.Stringer for supervisor logging.
func (p *Poller) String() string {
	return p.name
}
