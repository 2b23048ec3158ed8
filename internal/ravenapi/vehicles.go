// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package ravenapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/travisgrayraven/ravenbridge/internal/models/raven"
)

// Ping verifies connectivity and token validity against the vendor API.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, Request{Method: http.MethodGet, Path: "/ping"})
	if err != nil {
		return fmt.Errorf("failed to ping vendor API: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("vendor API ping failed with status %d", resp.StatusCode)
	}
	return nil
}

// ListVehicles retrieves a page of Raven units. An empty cursor requests
// the first page; the returned cursor is empty on the last page.
func (c *Client) ListVehicles(ctx context.Context, cursor string) (*raven.VehicleList, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var list raven.VehicleList
	if err := c.getJSON(ctx, "/ravens", query, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetVehicle retrieves a single Raven unit by UUID, including its
// last-known location and status.
func (c *Client) GetVehicle(ctx context.Context, uuid string) (*raven.Vehicle, error) {
	var vehicle raven.Vehicle
	if err := c.getJSON(ctx, "/ravens/"+url.PathEscape(uuid), nil, &vehicle); err != nil {
		return nil, err
	}
	return &vehicle, nil
}
