// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

// Package websocket pushes live fleet updates to dashboard clients.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/travisgrayraven/ravenbridge/internal/logging"
	"github.com/travisgrayraven/ravenbridge/internal/metrics"
	"github.com/travisgrayraven/ravenbridge/internal/models/raven"
)

// Message types for WebSocket communication
const (
	MessageTypeFleetSnapshot = "fleet_snapshot"
	MessageTypeVehicleEvent  = "vehicle_event"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeSubscribe     = "subscribe"
)

// Message represents a WebSocket message.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to
// them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Serve runs the hub until the context is canceled. Designed for use
// with suture supervision: on return all clients have been closed, so
// a restarted hub starts clean.
//
// Lifecycle events are drained before broadcasts so client state is
// consistent when a message goes out.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Drain pending lifecycle events first
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (h *Hub) String() string {
	return "websocket-hub"
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebsocketConnections.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebsocketConnections.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("websocket client disconnected")
}

// shutdown closes all clients and logs the stop. Context cancellation
// is expected behavior, so it is not logged as an error.
func (h *Hub) shutdown(ctx context.Context) {
	clientCount := h.ClientCount()
	h.closeAllClients()

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

// broadcastToClients sends a message to all connected clients. Clients
// are visited in ID order so delivery order is reproducible; a client
// with a full send buffer is dropped.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}

	metrics.WebsocketBroadcasts.Inc()
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	logging.Info().Msg("closed all websocket clients during shutdown")
}

// FleetSnapshotData is sent with fleet_snapshot messages.
type FleetSnapshotData struct {
	Timestamp string          `json:"timestamp"`
	Vehicles  []raven.Vehicle `json:"ravens"`
	Failed    []string        `json:"failed,omitempty"`
}

// BroadcastFleetSnapshot pushes a fresh fleet position snapshot to all
// connected clients.
func (h *Hub) BroadcastFleetSnapshot(vehicles []raven.Vehicle, failed []string) {
	message := Message{
		Type: MessageTypeFleetSnapshot,
		Data: FleetSnapshotData{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Vehicles:  vehicles,
			Failed:    failed,
		},
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Msg("broadcast channel full, dropping fleet snapshot")
	}
}

// BroadcastVehicleEvent pushes a single telematics event to all
// connected clients.
func (h *Hub) BroadcastVehicleEvent(event *raven.Event) {
	message := Message{
		Type: MessageTypeVehicleEvent,
		Data: event,
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Msg("broadcast channel full, dropping vehicle event")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
