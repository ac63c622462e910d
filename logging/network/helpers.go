package network

import (
	"context"

	"driftrace/logging"
)

const (
	// EventJoinRejected is emitted when a join handshake fails.
	EventJoinRejected logging.EventType = "network.join_rejected"
	// EventFrameDropped is emitted when an inbound frame is dropped before reaching a room.
	EventFrameDropped logging.EventType = "network.frame_dropped"
)

// JoinRejectedPayload captures why a join failed.
type JoinRejectedPayload struct {
	Reason string `json:"reason"`
	RoomID string `json:"roomId,omitempty"`
}

// FrameDroppedPayload captures why an inbound frame was dropped.
type FrameDroppedPayload struct {
	Reason string `json:"reason"`
	Type   string `json:"type,omitempty"`
	Bytes  int    `json:"bytes"`
}

// JoinRejected publishes a warning for a failed handshake.
func JoinRejected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload JoinRejectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventJoinRejected,
		RoomID:   payload.RoomID,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// FrameDropped publishes a debug event for a dropped frame. Drops are
// expected under load, so they stay below the default threshold.
func FrameDropped(ctx context.Context, pub logging.Publisher, roomID string, actor logging.EntityRef, payload FrameDroppedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFrameDropped,
		RoomID:   roomID,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
