// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

// Package raven defines the response structures of the Raven vendor API.
//
// The schema is vendor-controlled and not under this project's influence;
// these structs mirror the wire format and carry no behavior. Fields the
// dashboard never reads are omitted.
package raven

import "time"

// VehicleStatus is the coarse operational state reported for a Raven unit.
type VehicleStatus string

const (
	StatusOnline  VehicleStatus = "online"
	StatusOffline VehicleStatus = "offline"
	StatusParked  VehicleStatus = "parked"
	StatusDriving VehicleStatus = "driving"
)

// Location is a GPS fix reported by a Raven unit.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	SpeedKmh  float64   `json:"speed_kmh"`
	Heading   float64   `json:"heading"`
	Accuracy  float64   `json:"accuracy_m,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Vehicle is a Raven telematics unit and the vehicle it is installed in.
type Vehicle struct {
	UUID          string        `json:"uuid"`
	Name          string        `json:"name"`
	VIN           string        `json:"vin,omitempty"`
	LicensePlate  string        `json:"license_plate,omitempty"`
	Enabled       bool          `json:"enabled"`
	Status        VehicleStatus `json:"status"`
	LastLocation  *Location     `json:"last_known_location,omitempty"`
	OdometerKm    float64       `json:"odometer_km,omitempty"`
	BatteryVolts  float64       `json:"battery_volts,omitempty"`
	FirmwareBuild string        `json:"firmware_build,omitempty"`
}

// VehicleList is the paged response of the vehicles endpoint.
type VehicleList struct {
	Vehicles []Vehicle `json:"ravens"`
	Cursor   string    `json:"cursor,omitempty"`
}

// EventType categorizes telematics events.
type EventType string

const (
	EventHarshBraking EventType = "harsh_braking"
	EventAcceleration EventType = "rapid_acceleration"
	EventSpeeding     EventType = "speeding"
	EventGeofenceIn   EventType = "geofence_enter"
	EventGeofenceOut  EventType = "geofence_exit"
	EventIgnitionOn   EventType = "ignition_on"
	EventIgnitionOff  EventType = "ignition_off"
	EventImpact       EventType = "impact"
)

// Event is a single telematics event recorded by a Raven unit.
type Event struct {
	ID             string    `json:"id"`
	RavenUUID      string    `json:"raven_uuid"`
	Type           EventType `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	Location       *Location `json:"location,omitempty"`
	MediaAvailable bool      `json:"media_available"`
}

// EventList is the paged response of the events endpoint.
type EventList struct {
	Events []Event `json:"events"`
	Cursor string  `json:"cursor,omitempty"`
}

// MediaCamera identifies which camera recorded a clip.
type MediaCamera string

const (
	CameraRoad  MediaCamera = "road"
	CameraCabin MediaCamera = "cabin"
)

// Media describes a video clip or still associated with an event. The URL
// is a short-lived signed link served by the vendor CDN; playback itself is
// delegated to opaque viewer components.
type Media struct {
	EventID   string      `json:"event_id"`
	Type      string      `json:"type"` // "video" or "image"
	Camera    MediaCamera `json:"camera"`
	URL       string      `json:"url"`
	SizeBytes int64       `json:"size_bytes,omitempty"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Geofence is a named geographic boundary with trigger configuration.
// Geometry editing happens in the vendor tools; the bridge passes shapes
// through opaquely.
type Geofence struct {
	ID       string        `json:"id,omitempty"`
	Name     string        `json:"name"`
	Shape    GeofenceShape `json:"shape"`
	Enabled  bool          `json:"enabled"`
	Triggers []EventType   `json:"triggers,omitempty"`
	Vehicles []string      `json:"raven_uuids,omitempty"`
}

// GeofenceShape is the opaque geometry payload.
type GeofenceShape struct {
	Type        string      `json:"type"` // "circle" or "polygon"
	Coordinates [][]float64 `json:"coordinates"`
	RadiusM     float64     `json:"radius_m,omitempty"`
}

// GeofenceList is the response of the geofences endpoint.
type GeofenceList struct {
	Geofences []Geofence `json:"geofences"`
}

// Settings is the device settings document for one Raven unit.
type Settings struct {
	RavenUUID           string  `json:"raven_uuid"`
	CabinCameraEnabled  bool    `json:"cabin_camera_enabled"`
	RoadCameraEnabled   bool    `json:"road_camera_enabled"`
	PrivacyMode         bool    `json:"privacy_mode"`
	SpeedAlertThreshold float64 `json:"speed_alert_threshold_kmh,omitempty"`
	AudioRecording      bool    `json:"audio_recording"`
	LiveStreamEnabled   bool    `json:"live_stream_enabled"`
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged
// by the vendor.
type SettingsPatch struct {
	CabinCameraEnabled  *bool    `json:"cabin_camera_enabled,omitempty"`
	RoadCameraEnabled   *bool    `json:"road_camera_enabled,omitempty"`
	PrivacyMode         *bool    `json:"privacy_mode,omitempty"`
	SpeedAlertThreshold *float64 `json:"speed_alert_threshold_kmh,omitempty"`
	AudioRecording      *bool    `json:"audio_recording,omitempty"`
	LiveStreamEnabled   *bool    `json:"live_stream_enabled,omitempty"`
}

// TokenResponse is the vendor token endpoint response, returned by both the
// credentials grant and the refresh grant.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// APIError is the vendor error envelope.
type APIError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
