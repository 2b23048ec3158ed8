// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

package websocket

import (
	"testing"

	"github.com/travisgrayraven/ravenbridge/internal/models/raven"
)

func snapshotMessage(uuids ...string) Message {
	vehicles := make([]raven.Vehicle, len(uuids))
	for i, uuid := range uuids {
		vehicles[i] = raven.Vehicle{UUID: uuid, Name: "unit-" + uuid}
	}
	return Message{
		Type: MessageTypeFleetSnapshot,
		Data: FleetSnapshotData{Vehicles: vehicles},
	}
}

func TestClientWatchTrimsSnapshots(t *testing.T) {
	client := NewClient(NewHub(), nil)
	client.setWatch([]string{"rv-2"})

	msg, deliver := client.filter(snapshotMessage("rv-1", "rv-2", "rv-3"))
	if !deliver {
		t.Fatal("snapshot must always be delivered")
	}

	snap, ok := msg.Data.(FleetSnapshotData)
	if !ok {
		t.Fatalf("Data = %T, want FleetSnapshotData", msg.Data)
	}
	if len(snap.Vehicles) != 1 || snap.Vehicles[0].UUID != "rv-2" {
		t.Errorf("watched snapshot = %+v, want only rv-2", snap.Vehicles)
	}
}

func TestClientWatchSuppressesForeignEvents(t *testing.T) {
	client := NewClient(NewHub(), nil)
	client.setWatch([]string{"rv-1"})

	watched := Message{Type: MessageTypeVehicleEvent, Data: &raven.Event{ID: "evt-1", RavenUUID: "rv-1"}}
	if _, deliver := client.filter(watched); !deliver {
		t.Error("event for watched vehicle was suppressed")
	}

	foreign := Message{Type: MessageTypeVehicleEvent, Data: &raven.Event{ID: "evt-2", RavenUUID: "rv-9"}}
	if _, deliver := client.filter(foreign); deliver {
		t.Error("event for unwatched vehicle was delivered")
	}
}

func TestClientEmptyWatchFollowsWholeFleet(t *testing.T) {
	client := NewClient(NewHub(), nil)

	msg, deliver := client.filter(snapshotMessage("rv-1", "rv-2"))
	if !deliver {
		t.Fatal("snapshot must always be delivered")
	}
	snap := msg.Data.(FleetSnapshotData)
	if len(snap.Vehicles) != 2 {
		t.Errorf("unwatched client got %d vehicles, want 2", len(snap.Vehicles))
	}

	// Subscribing then resetting with an empty list restores fleet-wide
	// delivery.
	client.setWatch([]string{"rv-1"})
	client.setWatch(nil)

	msg, _ = client.filter(snapshotMessage("rv-1", "rv-2"))
	snap = msg.Data.(FleetSnapshotData)
	if len(snap.Vehicles) != 2 {
		t.Errorf("reset client got %d vehicles, want 2", len(snap.Vehicles))
	}
}

func TestClientControlMessagesIgnorePongs(t *testing.T) {
	client := NewClient(NewHub(), nil)
	client.setWatch([]string{"rv-1"})

	pong := Message{Type: MessageTypePong}
	if _, deliver := client.filter(pong); !deliver {
		t.Error("non-fleet message was suppressed by the watch filter")
	}
}
