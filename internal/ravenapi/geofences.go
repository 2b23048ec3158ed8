// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package ravenapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/travisgrayraven/ravenbridge/internal/models/raven"
)

// ListGeofences retrieves all geofences configured for the account.
func (c *Client) ListGeofences(ctx context.Context) (*raven.GeofenceList, error) {
	var list raven.GeofenceList
	if err := c.getJSON(ctx, "/geofences", nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// CreateGeofence creates one geofence and returns the stored record with
// its vendor-assigned ID.
func (c *Client) CreateGeofence(ctx context.Context, fence raven.Geofence) (*raven.Geofence, error) {
	var created raven.Geofence
	if err := c.sendJSON(ctx, http.MethodPost, "/geofences", fence, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateGeofence replaces a geofence by ID.
func (c *Client) UpdateGeofence(ctx context.Context, fence raven.Geofence) (*raven.Geofence, error) {
	var updated raven.Geofence
	if err := c.sendJSON(ctx, http.MethodPut, "/geofences/"+url.PathEscape(fence.ID), fence, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteGeofence removes a geofence by ID.
func (c *Client) DeleteGeofence(ctx context.Context, id string) error {
	return c.delete(ctx, "/geofences/"+url.PathEscape(id))
}
