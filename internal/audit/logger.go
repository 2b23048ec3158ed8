// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/travisgrayraven/ravenbridge/internal/logging"
	"github.com/travisgrayraven/ravenbridge/internal/metrics"
	"github.com/travisgrayraven/ravenbridge/internal/ravenapi"
)

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool `json:"enabled"`

	// LogLevel filters events by minimum severity.
	LogLevel Severity `json:"log_level"`

	// RetentionDays is how long to keep audit events.
	RetentionDays int `json:"retention_days"`

	// CleanupInterval is how often to run retention cleanup.
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// BufferSize is the size of the async write buffer.
	BufferSize int `json:"buffer_size"`

	// LogToStdout also writes events to the application log.
	LogToStdout bool `json:"log_to_stdout"`

	// IncludeDebug includes debug-level events.
	IncludeDebug bool `json:"include_debug"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		LogLevel:        SeverityInfo,
		RetentionDays:   90,
		CleanupInterval: 24 * time.Hour,
		BufferSize:      1000,
		LogToStdout:     false,
		IncludeDebug:    false,
	}
}

// Logger is the main audit logging service. Events are buffered and
// written asynchronously so producers never block on storage.
type Logger struct {
	config    *Config
	store     Store
	eventChan chan *Event
	mu        sync.RWMutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewLogger creates a new audit logger backed by store.
func NewLogger(store Store, config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	l := &Logger{
		config:    config,
		store:     store,
		eventChan: make(chan *Event, config.BufferSize),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

// asyncWriter processes events from the buffer.
func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			// Drain remaining events
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

// writeEvent persists an event to the store.
func (l *Logger) writeEvent(event *Event) {
	l.mu.RLock()
	config := l.config
	l.mu.RUnlock()

	if config.LogToStdout {
		l.logToStdout(event)
	}

	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.store.Save(ctx, event); err != nil {
			logging.Error().Err(err).Msg("Failed to save audit event")
		}
	}
}

// logToStdout writes an event to the application log in JSON format.
func (l *Logger) logToStdout(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal audit event")
		return
	}
	logging.Info().RawJSON("event", data).Msg("Audit event")
}

// Log records an audit event. If the buffer is full the event is
// dropped and counted rather than blocking the caller.
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	config := l.config
	l.mu.RUnlock()

	if !config.Enabled {
		return
	}

	if !l.shouldLog(event.Severity, config) {
		return
	}

	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Actor == "" {
		event.Actor = SystemActor
	}

	select {
	case l.eventChan <- event:
		metrics.AuditEventsTotal.WithLabelValues(string(event.Type)).Inc()
	default:
		metrics.AuditEventsDropped.Inc()
		logging.Warn().Str("event_id", event.ID).Msg("Audit event buffer full, dropping event")
	}
}

// shouldLog returns true if the event severity meets the minimum level.
func (l *Logger) shouldLog(severity Severity, config *Config) bool {
	if severity == SeverityDebug && !config.IncludeDebug {
		return false
	}

	severityOrder := map[Severity]int{
		SeverityDebug:    0,
		SeverityInfo:     1,
		SeverityWarning:  2,
		SeverityError:    3,
		SeverityCritical: 4,
	}

	return severityOrder[severity] >= severityOrder[config.LogLevel]
}

// Close shuts down the logger gracefully, flushing buffered events.
func (l *Logger) Close() error {
	close(l.stopChan)
	l.wg.Wait()
	return nil
}

// StartCleanupRoutine starts the retention cleanup routine.
func (l *Logger) StartCleanupRoutine(ctx context.Context) {
	l.mu.RLock()
	interval := l.config.CleanupInterval
	retention := l.config.RetentionDays
	l.mu.RUnlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().AddDate(0, 0, -retention)
				count, err := l.store.Delete(ctx, cutoff)
				if err != nil {
					logging.Error().Err(err).Msg("Audit cleanup error")
				} else if count > 0 {
					logging.Info().Int64("count", count).Msg("Cleaned up old audit events")
				}
			}
		}
	}()
}

// Query retrieves events matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of events matching the filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// SetEnabled enables or disables audit logging.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Enabled = enabled
}

// Enabled returns whether audit logging is enabled.
func (l *Logger) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Enabled
}

// SystemActor identifies actions issued by the bridge itself.
const SystemActor = "system"

// generateEventID generates a unique event ID.
func generateEventID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}

// Helper methods for common audit events

// ExchangeSink returns a sink that records vendor API exchanges as
// audit events. The records it receives carry pre-sanitized headers
// and bodies, so they can be stored verbatim.
func (l *Logger) ExchangeSink() ravenapi.SinkFunc {
	return func(rec ravenapi.ExchangeRecord) {
		outcome := OutcomeSuccess
		severity := SeverityInfo
		if rec.StatusCode >= 400 {
			outcome = OutcomeFailure
			severity = SeverityWarning
		}

		eventType := EventTypeVendorRequest
		if rec.Retry {
			eventType = EventTypeVendorRetry
		}

		l.Log(&Event{
			Type:        eventType,
			Severity:    severity,
			Outcome:     outcome,
			Actor:       SystemActor,
			Action:      rec.Method + " " + rec.Endpoint,
			Description: fmt.Sprintf("Vendor API exchange completed with status %d", rec.StatusCode),
			Metadata:    mustJSON(rec),
		})
	}
}

// LogOperatorLogin logs a successful dashboard operator login.
func (l *Logger) LogOperatorLogin(ctx context.Context, username, remoteAddr string) {
	l.Log(&Event{
		Type:        EventTypeOperatorLogin,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       username,
		Action:      "login",
		Description: "Operator authenticated successfully",
		Metadata:    mustJSON(map[string]string{"remote_addr": remoteAddr}),
		RequestID:   getRequestID(ctx),
	})
}

// LogOperatorDenied logs a failed dashboard operator login or a
// rejected privileged request.
func (l *Logger) LogOperatorDenied(ctx context.Context, username, remoteAddr, reason string) {
	l.Log(&Event{
		Type:        EventTypeOperatorDenied,
		Severity:    SeverityWarning,
		Outcome:     OutcomeFailure,
		Actor:       username,
		Action:      "login",
		Description: "Operator access denied: " + reason,
		Metadata: mustJSON(map[string]string{
			"remote_addr": remoteAddr,
			"reason":      reason,
		}),
		RequestID: getRequestID(ctx),
	})
}

// LogTokenRefresh logs a vendor token refresh attempt.
func (l *Logger) LogTokenRefresh(success bool) {
	outcome := OutcomeSuccess
	severity := SeverityInfo
	desc := "Vendor access token refreshed"
	if !success {
		outcome = OutcomeFailure
		severity = SeverityError
		desc = "Vendor token refresh failed, session ended"
	}
	l.Log(&Event{
		Type:        EventTypeTokenRefresh,
		Severity:    severity,
		Outcome:     outcome,
		Actor:       SystemActor,
		Action:      "token_refresh",
		Description: desc,
	})
}

// LogSessionEnded logs termination of the vendor session.
func (l *Logger) LogSessionEnded(reason string) {
	l.Log(&Event{
		Type:        EventTypeSessionEnded,
		Severity:    SeverityError,
		Outcome:     OutcomeFailure,
		Actor:       SystemActor,
		Action:      "session_ended",
		Description: "Vendor session terminated: " + reason,
	})
}

// LogGeofenceChange logs a geofence create, update, or delete.
func (l *Logger) LogGeofenceChange(ctx context.Context, eventType EventType, actor, geofenceID string, success bool) {
	outcome := OutcomeSuccess
	severity := SeverityInfo
	if !success {
		outcome = OutcomeFailure
		severity = SeverityWarning
	}
	l.Log(&Event{
		Type:        eventType,
		Severity:    severity,
		Outcome:     outcome,
		Actor:       actor,
		Action:      "geofence_change",
		Description: "Geofence " + geofenceID + " modified",
		Metadata:    mustJSON(map[string]string{"geofence_id": geofenceID}),
		RequestID:   getRequestID(ctx),
	})
}

// LogSettingsChange logs a modification to vehicle settings.
func (l *Logger) LogSettingsChange(ctx context.Context, actor, ravenUUID string, changed []string) {
	l.Log(&Event{
		Type:        EventTypeSettingsChanged,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Action:      "settings_change",
		Description: "Vehicle settings updated",
		Metadata: mustJSON(map[string]interface{}{
			"raven_uuid": ravenUUID,
			"fields":     changed,
		}),
		RequestID: getRequestID(ctx),
	})
}

// mustJSON marshals a value, returning null on failure.
func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}

// requestIDKey is the context key used by the API middleware.
type requestIDKey struct{}

// ContextWithRequestID returns a context carrying the request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// getRequestID extracts the request ID from the context, if present.
func getRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
