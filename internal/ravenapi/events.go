// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package ravenapi

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/travisgrayraven/ravenbridge/internal/models/raven"
)

// ListEvents retrieves telematics events for a Raven unit within a time
// window. An empty ravenUUID queries the whole fleet.
func (c *Client) ListEvents(ctx context.Context, ravenUUID string, since, until time.Time, cursor string, limit int) (*raven.EventList, error) {
	query := url.Values{}
	if ravenUUID != "" {
		query.Set("raven_uuid", ravenUUID)
	}
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}
	if !until.IsZero() {
		query.Set("until", until.UTC().Format(time.RFC3339))
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var list raven.EventList
	if err := c.getJSON(ctx, "/events", query, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetEventMedia retrieves the media descriptors (signed clip URLs) for one
// event. Returns the vendor's 404 as an error when no media exists; bulk
// callers wrap this with pool.Partial so a missing clip does not abort the
// batch.
func (c *Client) GetEventMedia(ctx context.Context, eventID string) ([]raven.Media, error) {
	var media []raven.Media
	if err := c.getJSON(ctx, "/events/"+url.PathEscape(eventID)+"/media", nil, &media); err != nil {
		return nil, err
	}
	return media, nil
}
