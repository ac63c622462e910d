package sim

import (
	"time"

	"driftrace/internal/telemetry"
)

// EventKind names a race event.
type EventKind string

const (
	EventCountdown        EventKind = "countdown"
	EventRaceStart        EventKind = "race_start"
	EventCheckpoint       EventKind = "checkpoint"
	EventLap              EventKind = "lap"
	EventFinish           EventKind = "finish"
	EventRaceFinished     EventKind = "race_finished"
	EventAbilityActivated EventKind = "ability_activated"
	EventAbilityRejected  EventKind = "ability_rejected"
	EventHazardTriggered  EventKind = "hazard_triggered"
	EventPowerupCollected EventKind = "powerup_collected"
	EventCollision        EventKind = "collision"
	EventProjectileHit    EventKind = "projectile_hit"
	EventDriftBoost       EventKind = "drift_boost"
	EventNitro            EventKind = "nitro"
	EventPlayerJoined     EventKind = "player_joined"
	EventPlayerLeft       EventKind = "player_left"
	EventRestartRejected  EventKind = "restart_rejected"
)

// Event is one race event. Events are appended during a tick and drained by
// the transport independently of snapshots.
type Event struct {
	Kind     EventKind      `json:"kind"`
	PlayerID string         `json:"playerId,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	At       time.Time      `json:"-"`
}

func (r *Room) emit(kind EventKind, playerID string, now time.Time, data map[string]any) {
	r.events = append(r.events, Event{Kind: kind, PlayerID: playerID, Data: data, At: now})
	r.metrics.AddReason(telemetry.KeyRaceEvents, string(kind), 1)
}

// DrainEvents returns and clears the events emitted since the last drain.
func (r *Room) DrainEvents() []Event {
	if len(r.events) == 0 {
		return nil
	}
	out := r.events
	r.events = nil
	return out
}
