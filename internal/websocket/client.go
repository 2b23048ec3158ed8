// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/travisgrayraven/ravenbridge/internal/logging"
	"github.com/travisgrayraven/ravenbridge/internal/models/raven"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB, dashboard clients only send control messages
)

// clientIDCounter generates unique, monotonically increasing IDs so
// clients can be visited in a stable order during broadcasts.
var clientIDCounter atomic.Uint64

// controlMessage is what dashboard clients send upstream: pings and
// subscription changes. Anything else is ignored.
type controlMessage struct {
	Type       string   `json:"type"`
	RavenUUIDs []string `json:"raven_uuids,omitempty"`
}

// Client is a middleman between the websocket connection and the hub.
// Each client optionally watches a subset of the fleet; broadcasts are
// trimmed to the watched vehicles before they go over the wire.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	mu    sync.Mutex
	watch map[string]struct{}
}

// NewClient creates a new Client with a unique ID. A fresh client
// watches the whole fleet until it sends a subscribe message.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		conn: conn,
		send: make(chan Message, 256),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// setWatch replaces the client's watched vehicle set. An empty list
// resets the client to following the whole fleet.
func (c *Client) setWatch(uuids []string) {
	var watch map[string]struct{}
	if len(uuids) > 0 {
		watch = make(map[string]struct{}, len(uuids))
		for _, uuid := range uuids {
			watch[uuid] = struct{}{}
		}
	}

	c.mu.Lock()
	c.watch = watch
	c.mu.Unlock()
}

// filter applies the client's watch set to an outbound message. Fleet
// snapshots are trimmed to watched vehicles; vehicle events for
// unwatched vehicles are suppressed entirely. With no watch set every
// message passes through unchanged.
func (c *Client) filter(message Message) (Message, bool) {
	c.mu.Lock()
	watch := c.watch
	c.mu.Unlock()

	if len(watch) == 0 {
		return message, true
	}

	switch message.Type {
	case MessageTypeFleetSnapshot:
		snap, ok := message.Data.(FleetSnapshotData)
		if !ok {
			return message, true
		}
		kept := make([]raven.Vehicle, 0, len(watch))
		for _, v := range snap.Vehicles {
			if _, watched := watch[v.UUID]; watched {
				kept = append(kept, v)
			}
		}
		snap.Vehicles = kept
		return Message{Type: message.Type, Data: snap}, true

	case MessageTypeVehicleEvent:
		event, ok := message.Data.(*raven.Event)
		if !ok {
			return message, true
		}
		_, watched := watch[event.RavenUUID]
		return message, watched

	default:
		return message, true
	}
}

// readPump pumps control messages from the websocket connection: pings
// are answered and subscription changes update the watch set.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg controlMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("unexpected websocket close error")
			}
			break
		}

		switch msg.Type {
		case MessageTypePing:
			pong := Message{Type: MessageTypePong}
			select {
			case c.send <- pong:
			default:
			}
		case MessageTypeSubscribe:
			c.setWatch(msg.RavenUUIDs)
			logging.Debug().
				Uint64("client_id", c.id).
				Int("watched", len(msg.RavenUUIDs)).
				Msg("websocket subscription updated")
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Error().Err(err).Msg("failed to write close message")
				}
				return
			}

			message, deliver := c.filter(message)
			if !deliver {
				continue
			}

			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Msg("failed to write JSON message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
