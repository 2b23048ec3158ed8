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

// GetSettings retrieves the device settings for a Raven unit.
func (c *Client) GetSettings(ctx context.Context, ravenUUID string) (*raven.Settings, error) {
	var settings raven.Settings
	if err := c.getJSON(ctx, "/ravens/"+url.PathEscape(ravenUUID)+"/settings", nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateSettings applies a partial settings update to a Raven unit and
// returns the resulting settings document. Nil patch fields are left
// unchanged by the vendor.
func (c *Client) UpdateSettings(ctx context.Context, ravenUUID string, patch raven.SettingsPatch) (*raven.Settings, error) {
	var settings raven.Settings
	if err := c.sendJSON(ctx, http.MethodPatch, "/ravens/"+url.PathEscape(ravenUUID)+"/settings", patch, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}
