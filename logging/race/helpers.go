package race

import (
	"context"

	"driftrace/logging"
)

const (
	// EventRace wraps a gameplay event emitted by a room (lap, finish, ability, collision...).
	EventRace logging.EventType = "race.event"
	// EventRaceFinished is emitted when a room's race ends.
	EventRaceFinished logging.EventType = "race.finished"
)

// RacePayload carries the room's own event kind and metadata.
type RacePayload struct {
	Kind string         `json:"kind"`
	Data map[string]any `json:"data,omitempty"`
}

// RaceFinishedPayload summarises a finished race.
type RaceFinishedPayload struct {
	WinnerID string `json:"winnerId"`
	Players  int    `json:"players"`
	Laps     int    `json:"laps"`
	TrackID  string `json:"trackId"`
}

// Race publishes a gameplay event for actor. Rejections are raised to warn so
// they survive an info threshold.
func Race(ctx context.Context, pub logging.Publisher, tick uint64, roomID string, actor logging.EntityRef, payload RacePayload) {
	if pub == nil {
		return
	}
	severity := logging.SeverityInfo
	switch payload.Kind {
	case "ability_rejected", "restart_rejected":
		severity = logging.SeverityWarn
	case "checkpoint", "hazard_triggered", "powerup_collected", "nitro", "drift_boost":
		severity = logging.SeverityDebug
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRace,
		Tick:     tick,
		RoomID:   roomID,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryRace,
		Payload:  payload,
	})
}

// RaceFinished publishes the end of a race.
func RaceFinished(ctx context.Context, pub logging.Publisher, tick uint64, roomID string, payload RaceFinishedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRaceFinished,
		Tick:     tick,
		RoomID:   roomID,
		Actor:    logging.PlayerRef(payload.WinnerID),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryRace,
		Payload:  payload,
	})
}
