// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

// Package api provides the HTTP surface of the bridge: fleet data,
// geofence management, audit queries, and the dashboard websocket.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/travisgrayraven/ravenbridge/internal/audit"
	"github.com/travisgrayraven/ravenbridge/internal/auth"
	"github.com/travisgrayraven/ravenbridge/internal/fleet"
	"github.com/travisgrayraven/ravenbridge/internal/logging"
	"github.com/travisgrayraven/ravenbridge/internal/models/raven"
	"github.com/travisgrayraven/ravenbridge/internal/websocket"
)

var validate = validator.New()

// VendorClient is the slice of the vendor API the handlers use.
// Satisfied by ravenapi.BreakerClient.
type VendorClient interface {
	Ping(ctx context.Context) error
	ListVehicles(ctx context.Context, cursor string) (*raven.VehicleList, error)
	GetVehicle(ctx context.Context, uuid string) (*raven.Vehicle, error)
	ListGeofences(ctx context.Context) (*raven.GeofenceList, error)
	CreateGeofence(ctx context.Context, fence raven.Geofence) (*raven.Geofence, error)
	UpdateGeofence(ctx context.Context, fence raven.Geofence) (*raven.Geofence, error)
	DeleteGeofence(ctx context.Context, id string) error
	GetSettings(ctx context.Context, ravenUUID string) (*raven.Settings, error)
	UpdateSettings(ctx context.Context, ravenUUID string, patch raven.SettingsPatch) (*raven.Settings, error)
}

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	client      VendorClient
	fleet       *fleet.Service
	hub         *websocket.Hub
	auditLogger *audit.Logger
	jwt         *auth.JWTManager
	checker     *auth.CredentialChecker
	upgrader    gorillaws.Upgrader
}

// NewHandler creates the handler set.
func NewHandler(client VendorClient, fleetSvc *fleet.Service, hub *websocket.Hub, auditLogger *audit.Logger, jwt *auth.JWTManager, checker *auth.CredentialChecker) *Handler {
	return &Handler{
		client:      client,
		fleet:       fleetSvc,
		hub:         hub,
		auditLogger: auditLogger,
		jwt:         jwt,
		checker:     checker,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// loginRequest is the login payload.
type loginRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=256"`
}

// loginResponse carries the issued operator token.
type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body", nil)
		return
	}
	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "username and password are required", nil)
		return
	}

	if !h.checker.Check(req.Username, req.Password) {
		h.auditLogger.LogOperatorDenied(r.Context(), sanitizeLogValue(req.Username), r.RemoteAddr, "invalid credentials")
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid username or password", nil)
		return
	}

	token, err := h.jwt.GenerateToken(req.Username, "operator")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TOKEN_ERROR", "failed to issue token", err)
		return
	}

	h.auditLogger.LogOperatorLogin(r.Context(), req.Username, r.RemoteAddr)
	respondData(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.jwt.TokenTTL()),
	}, 0)
}

// ListRavens handles GET /api/v1/ravens.
func (h *Handler) ListRavens(w http.ResponseWriter, r *http.Request) {
	list, err := h.client.ListVehicles(r.Context(), r.URL.Query().Get("cursor"))
	if err != nil {
		respondError(w, http.StatusBadGateway, "VENDOR_ERROR", "failed to list vehicles", err)
		return
	}
	respondData(w, http.StatusOK, list, len(list.Vehicles))
}

// GetRaven handles GET /api/v1/ravens/{uuid}.
func (h *Handler) GetRaven(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")
	vehicle, err := h.client.GetVehicle(r.Context(), uuid)
	if err != nil {
		respondError(w, http.StatusBadGateway, "VENDOR_ERROR", "failed to fetch vehicle", err)
		return
	}
	respondData(w, http.StatusOK, vehicle, 0)
}

// Snapshot handles GET /api/v1/ravens/snapshot: the whole fleet with
// current positions.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.fleet.Snapshot(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "VENDOR_ERROR", "failed to snapshot fleet", err)
		return
	}
	respondData(w, http.StatusOK, snapshot, len(snapshot.Vehicles))
}

// parseTimeWindow reads optional since/until RFC 3339 query params.
func parseTimeWindow(r *http.Request) (since, until time.Time, err error) {
	if v := r.URL.Query().Get("since"); v != "" {
		since, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("since must be RFC 3339")
		}
	}
	if v := r.URL.Query().Get("until"); v != "" {
		until, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("until must be RFC 3339")
		}
	}
	return since, until, nil
}

// ListRavenEvents handles GET /api/v1/ravens/{uuid}/events.
func (h *Handler) ListRavenEvents(w http.ResponseWriter, r *http.Request) {
	h.listEvents(w, r, chi.URLParam(r, "uuid"))
}

// ListEvents handles GET /api/v1/events?raven_uuid=...
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	uuid := r.URL.Query().Get("raven_uuid")
	if uuid == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "raven_uuid is required", nil)
		return
	}
	h.listEvents(w, r, uuid)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request, uuid string) {
	since, until, err := parseTimeWindow(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	events, err := h.fleet.ListFleetEvents(r.Context(), uuid, since, until)
	if err != nil {
		respondError(w, http.StatusBadGateway, "VENDOR_ERROR", "failed to list events", err)
		return
	}
	respondData(w, http.StatusOK, events, len(events))
}

// mediaRequest is the bulk media fetch payload.
type mediaRequest struct {
	EventIDs []string `json:"event_ids" validate:"required,min=1,max=100,dive,required"`
}

// FetchEventMedia handles POST /api/v1/events/media. Per-event
// failures are reported inline; the batch itself succeeds.
func (h *Handler) FetchEventMedia(w http.ResponseWriter, r *http.Request) {
	var req mediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body", nil)
		return
	}
	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "event_ids must contain 1-100 entries", nil)
		return
	}

	results, err := h.fleet.FetchEventMedia(r.Context(), req.EventIDs)
	if err != nil {
		respondError(w, http.StatusBadGateway, "VENDOR_ERROR", "failed to fetch media", err)
		return
	}
	respondData(w, http.StatusOK, results, len(results))
}

// ListGeofences handles GET /api/v1/geofences.
func (h *Handler) ListGeofences(w http.ResponseWriter, r *http.Request) {
	list, err := h.client.ListGeofences(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "VENDOR_ERROR", "failed to list geofences", err)
		return
	}
	respondData(w, http.StatusOK, list, len(list.Geofences))
}

// geofenceRequest validates a single geofence definition.
type geofenceRequest struct {
	Name    string              `json:"name" validate:"required,max=128"`
	Shape   raven.GeofenceShape `json:"shape" validate:"required"`
	Enabled bool                `json:"enabled"`

	Triggers []raven.EventType `json:"triggers,omitempty"`
	Vehicles []string          `json:"raven_uuids,omitempty"`
}

func (g *geofenceRequest) model() raven.Geofence {
	return raven.Geofence{
		Name:     g.Name,
		Shape:    g.Shape,
		Enabled:  g.Enabled,
		Triggers: g.Triggers,
		Vehicles: g.Vehicles,
	}
}

// CreateGeofence handles POST /api/v1/geofences.
func (h *Handler) CreateGeofence(w http.ResponseWriter, r *http.Request) {
	var req geofenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body", nil)
		return
	}
	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "geofence name and shape are required", nil)
		return
	}

	created, err := h.client.CreateGeofence(r.Context(), req.model())
	if err != nil {
		h.logGeofenceChange(r.Context(), audit.EventTypeGeofenceCreated, "", false)
		respondError(w, http.StatusBadGateway, "VENDOR_ERROR", "failed to create geofence", err)
		return
	}

	h.logGeofenceChange(r.Context(), audit.EventTypeGeofenceCreated, created.ID, true)
	respondData(w, http.StatusCreated, created, 0)
}

// bulkGeofenceRequest is the bulk upload payload.
type bulkGeofenceRequest struct {
	Geofences []geofenceRequest `json:"geofences" validate:"required,min=1,max=200,dive"`
}

// BulkCreateGeofences handles POST /api/v1/geofences/bulk. The upload
// is all-or-nothing: the first vendor rejection aborts the batch.
func (h *Handler) BulkCreateGeofences(w http.ResponseWriter, r *http.Request) {
	var req bulkGeofenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body", nil)
		return
	}
	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "geofences must contain 1-200 valid entries", nil)
		return
	}

	fences := make([]raven.Geofence, len(req.Geofences))
	for i := range req.Geofences {
		fences[i] = req.Geofences[i].model()
	}

	created, err := h.fleet.UploadGeofences(r.Context(), fences)
	if err != nil {
		h.logGeofenceChange(r.Context(), audit.EventTypeGeofenceCreated, "", false)
		respondError(w, http.StatusBadGateway, "VENDOR_ERROR", "bulk geofence upload failed", err)
		return
	}

	for _, fence := range created {
		h.logGeofenceChange(r.Context(), audit.EventTypeGeofenceCreated, fence.ID, true)
	}
	respondData(w, http.StatusCreated, created, len(created))
}

// UpdateGeofence handles PUT /api/v1/geofences/{id}.
func (h *Handler) UpdateGeofence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req geofenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body", nil)
		return
	}
	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "geofence name and shape are required", nil)
		return
	}

	fence := req.model()
	fence.ID = id
	updated, err := h.client.UpdateGeofence(r.Context(), fence)
	if err != nil {
		h.logGeofenceChange(r.Context(), audit.EventTypeGeofenceUpdated, id, false)
		respondError(w, http.StatusBadGateway, "VENDOR_ERROR", "failed to update geofence", err)
		return
	}

	h.logGeofenceChange(r.Context(), audit.EventTypeGeofenceUpdated, id, true)
	respondData(w, http.StatusOK, updated, 0)
}

// DeleteGeofence handles DELETE /api/v1/geofences/{id}.
func (h *Handler) DeleteGeofence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.client.DeleteGeofence(r.Context(), id); err != nil {
		h.logGeofenceChange(r.Context(), audit.EventTypeGeofenceDeleted, id, false)
		respondError(w, http.StatusBadGateway, "VENDOR_ERROR", "failed to delete geofence", err)
		return
	}

	h.logGeofenceChange(r.Context(), audit.EventTypeGeofenceDeleted, id, true)
	respondData(w, http.StatusOK, map[string]string{"deleted": id}, 0)
}

func (h *Handler) logGeofenceChange(ctx context.Context, eventType audit.EventType, id string, success bool) {
	actor := audit.SystemActor
	if claims, ok := ClaimsFromContext(ctx); ok {
		actor = claims.Username
	}
	h.auditLogger.LogGeofenceChange(ctx, eventType, actor, id, success)
}

// GetSettings handles GET /api/v1/ravens/{uuid}/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")
	settings, err := h.client.GetSettings(r.Context(), uuid)
	if err != nil {
		respondError(w, http.StatusBadGateway, "VENDOR_ERROR", "failed to fetch settings", err)
		return
	}
	respondData(w, http.StatusOK, settings, 0)
}

// UpdateSettings handles PATCH /api/v1/ravens/{uuid}/settings. Only
// fields present in the body are changed.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")

	var patch raven.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body", nil)
		return
	}

	updated, err := h.client.UpdateSettings(r.Context(), uuid, patch)
	if err != nil {
		respondError(w, http.StatusBadGateway, "VENDOR_ERROR", "failed to update settings", err)
		return
	}

	actor := audit.SystemActor
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		actor = claims.Username
	}
	h.auditLogger.LogSettingsChange(r.Context(), actor, uuid, patchedFields(patch))
	respondData(w, http.StatusOK, updated, 0)
}

// patchedFields names the settings fields a patch modifies, for the
// audit trail.
func patchedFields(patch raven.SettingsPatch) []string {
	var fields []string
	if patch.CabinCameraEnabled != nil {
		fields = append(fields, "cabin_camera_enabled")
	}
	if patch.RoadCameraEnabled != nil {
		fields = append(fields, "road_camera_enabled")
	}
	if patch.PrivacyMode != nil {
		fields = append(fields, "privacy_mode")
	}
	if patch.SpeedAlertThreshold != nil {
		fields = append(fields, "speed_alert_threshold_kmh")
	}
	if patch.AudioRecording != nil {
		fields = append(fields, "audio_recording")
	}
	if patch.LiveStreamEnabled != nil {
		fields = append(fields, "live_stream_enabled")
	}
	return fields
}

// AuditEvents handles GET /api/v1/audit/events.
func (h *Handler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	filter := audit.DefaultQueryFilter()

	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 && limit <= 1000 {
			filter.Limit = limit
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}
	for _, t := range r.URL.Query()["type"] {
		filter.Types = append(filter.Types, audit.EventType(t))
	}
	for _, s := range r.URL.Query()["severity"] {
		filter.Severities = append(filter.Severities, audit.Severity(s))
	}
	for _, o := range r.URL.Query()["outcome"] {
		filter.Outcomes = append(filter.Outcomes, audit.Outcome(o))
	}
	if v := r.URL.Query().Get("actor"); v != "" {
		filter.Actor = v
	}
	if v := r.URL.Query().Get("start"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.StartTime = &t
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.EndTime = &t
		}
	}

	events, err := h.auditLogger.Query(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "AUDIT_ERROR", "failed to query audit events", err)
		return
	}
	respondData(w, http.StatusOK, events, len(events))
}

// Health handles GET /healthz. It reports vendor connectivity without
// failing the endpoint: a broken vendor link is a degraded state, not
// a dead bridge.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	vendor := "ok"

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.client.Ping(ctx); err != nil {
		vendor = "unreachable"
		status = "degraded"
	}

	respondData(w, http.StatusOK, map[string]string{
		"status": status,
		"vendor": vendor,
	}, 0)
}

// WebSocket handles GET /api/v1/ws, upgrading the connection and
// registering the client with the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}
