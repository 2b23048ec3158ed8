// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

// Package audit provides security audit logging functionality.
// It records vendor API exchanges and operator actions for compliance and
// forensic analysis.
package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventType categorizes audit events.
type EventType string

const (
	// Vendor API exchange events
	EventTypeVendorRequest EventType = "vendor.request"
	EventTypeVendorRetry   EventType = "vendor.retry"

	// Authentication events
	EventTypeAuthLogin       EventType = "auth.login"
	EventTypeAuthLoginFailed EventType = "auth.login_failed"
	EventTypeTokenRefresh    EventType = "auth.token_refresh"
	EventTypeSessionEnded    EventType = "auth.session_ended"
	EventTypeOperatorLogin   EventType = "operator.login"
	EventTypeOperatorDenied  EventType = "operator.denied"

	// Fleet data events
	EventTypeGeofenceCreated EventType = "geofence.created"
	EventTypeGeofenceUpdated EventType = "geofence.updated"
	EventTypeGeofenceDeleted EventType = "geofence.deleted"
	EventTypeSettingsChanged EventType = "settings.changed"
	EventTypeMediaFetched    EventType = "media.fetched"

	// Administrative events
	EventTypeConfigChanged EventType = "config.changed"
)

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Outcome indicates whether an action succeeded or failed.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeUnknown Outcome = "unknown"
)

// Event represents one audit event.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// Severity of the event.
	Severity Severity `json:"severity"`

	// Outcome indicates success or failure.
	Outcome Outcome `json:"outcome"`

	// Actor who performed the action ("system" for vendor exchanges
	// issued by the bridge itself).
	Actor string `json:"actor"`

	// Action describes what was done.
	Action string `json:"action"`

	// Description provides human-readable details.
	Description string `json:"description"`

	// Metadata contains event-specific details. Values placed here have
	// already been sanitized by the producer; the audit layer never sees
	// raw secrets.
	Metadata json.RawMessage `json:"metadata,omitempty"`

	// RequestID from the originating HTTP request, if any.
	RequestID string `json:"request_id,omitempty"`
}

// Store defines the interface for audit event persistence.
type Store interface {
	// Save persists an audit event.
	Save(ctx context.Context, event *Event) error

	// Query retrieves events matching the filter, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Delete removes events older than the cutoff, returning how many
	// were removed.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)

	// Close releases store resources.
	Close() error
}

// QueryFilter defines filtering options for audit queries.
type QueryFilter struct {
	// Types filters by event types.
	Types []EventType `json:"types,omitempty"`

	// Severities filters by severity levels.
	Severities []Severity `json:"severities,omitempty"`

	// Outcomes filters by outcome.
	Outcomes []Outcome `json:"outcomes,omitempty"`

	// Actor filters by actor.
	Actor string `json:"actor,omitempty"`

	// StartTime is the beginning of the time range.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime is the end of the time range.
	EndTime *time.Time `json:"end_time,omitempty"`

	// Limit is the maximum number of results.
	Limit int `json:"limit,omitempty"`

	// Offset for pagination.
	Offset int `json:"offset,omitempty"`
}

// DefaultQueryFilter returns a sensible default filter.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{Limit: 100}
}

// matchesFilter reports whether an event passes all filter conditions.
func matchesFilter(event *Event, filter *QueryFilter) bool {
	if len(filter.Types) > 0 && !containsType(filter.Types, event.Type) {
		return false
	}
	if len(filter.Severities) > 0 && !containsSeverity(filter.Severities, event.Severity) {
		return false
	}
	if len(filter.Outcomes) > 0 && !containsOutcome(filter.Outcomes, event.Outcome) {
		return false
	}
	if filter.Actor != "" && event.Actor != filter.Actor {
		return false
	}
	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}
	return true
}

func containsType(list []EventType, v EventType) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsSeverity(list []Severity, v Severity) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsOutcome(list []Outcome, v Outcome) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
