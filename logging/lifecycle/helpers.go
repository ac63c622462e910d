package lifecycle

import (
	"context"

	"driftrace/logging"
)

const (
	// EventPlayerJoined is emitted when a player joins a room.
	EventPlayerJoined logging.EventType = "lifecycle.player_joined"
	// EventPlayerDisconnected is emitted when a player leaves a room.
	EventPlayerDisconnected logging.EventType = "lifecycle.player_disconnected"
	// EventRoomOpened is emitted when the registry creates a room.
	EventRoomOpened logging.EventType = "lifecycle.room_opened"
	// EventRoomClosed is emitted when a room shuts down.
	EventRoomClosed logging.EventType = "lifecycle.room_closed"
)

// PlayerJoinedPayload captures spawn metadata for a new player.
type PlayerJoinedPayload struct {
	Vehicle string  `json:"vehicle"`
	SpawnX  float64 `json:"spawnX"`
	SpawnZ  float64 `json:"spawnZ"`
}

// PlayerDisconnectedPayload captures the reason a player left.
type PlayerDisconnectedPayload struct {
	Reason string `json:"reason"`
}

// RoomPayload describes a room at open or close.
type RoomPayload struct {
	TrackID string `json:"trackId"`
	Players int    `json:"players"`
}

// PlayerJoined publishes a player join event.
func PlayerJoined(ctx context.Context, pub logging.Publisher, tick uint64, roomID string, actor logging.EntityRef, payload PlayerJoinedPayload) {
	publish(ctx, pub, EventPlayerJoined, tick, roomID, actor, payload)
}

// PlayerDisconnected publishes a player disconnect event.
func PlayerDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, roomID string, actor logging.EntityRef, payload PlayerDisconnectedPayload) {
	publish(ctx, pub, EventPlayerDisconnected, tick, roomID, actor, payload)
}

// RoomOpened publishes a room creation event.
func RoomOpened(ctx context.Context, pub logging.Publisher, roomID string, payload RoomPayload) {
	publish(ctx, pub, EventRoomOpened, 0, roomID, logging.RoomRef(roomID), payload)
}

// RoomClosed publishes a room shutdown event.
func RoomClosed(ctx context.Context, pub logging.Publisher, tick uint64, roomID string, payload RoomPayload) {
	publish(ctx, pub, EventRoomClosed, tick, roomID, logging.RoomRef(roomID), payload)
}

func publish(ctx context.Context, pub logging.Publisher, t logging.EventType, tick uint64, roomID string, actor logging.EntityRef, payload any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     t,
		Tick:     tick,
		RoomID:   roomID,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}
