package sim

import (
	"time"

	"driftrace/internal/motion"
)

// RaceState is the race-level part of a snapshot.
type RaceState struct {
	Status      Status `json:"status"`
	TrackID     string `json:"trackId"`
	Laps        int    `json:"laps"`
	WinnerID    string `json:"winnerId"`
	RaceStartMs int64  `json:"raceStartMs"`
}

// PlayerState is one car in a snapshot.
type PlayerState struct {
	ID           string  `json:"id"`
	Vehicle      string  `json:"vehicle"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Z            float64 `json:"z"`
	Yaw          float64 `json:"yaw"`
	Speed        float64 `json:"speed"`
	Lap          int     `json:"lap"`
	Checkpoint   int     `json:"checkpoint"`
	Rank         int     `json:"rank"`
	DriftPhase   int     `json:"driftPhase"`
	DriftTier    int     `json:"driftTier"`
	EffectMask   uint32  `json:"effectMask"`
	Nitro        int     `json:"nitro"`
	FinishedAtMs int64   `json:"finishedAtMs"`
	LastInputSeq uint64  `json:"lastInputSeq"`
}

// Motion returns the kinematic part of the state.
func (p PlayerState) Motion() motion.State {
	return motion.State{Speed: p.Speed, Yaw: p.Yaw, X: p.X, Z: p.Z}
}

// PickupState is one hazard or powerup in a snapshot.
type PickupState struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Z      float64 `json:"z"`
	Radius float64 `json:"radius"`
	Active bool    `json:"active"`
}

// ProjectileState is one projectile in a snapshot.
type ProjectileState struct {
	ID      string  `json:"id"`
	OwnerID string  `json:"ownerId"`
	X       float64 `json:"x"`
	Z       float64 `json:"z"`
	Yaw     float64 `json:"yaw"`
}

// RoomSnapshot is the full room state at one instant. It is built fresh and
// never mutated afterwards.
type RoomSnapshot struct {
	Seq          uint64            `json:"seq"`
	ServerTimeMs int64             `json:"serverTimeMs"`
	Race         RaceState         `json:"race"`
	Players      []PlayerState     `json:"players"`
	Hazards      []PickupState     `json:"hazards"`
	Powerups     []PickupState     `json:"powerups"`
	Projectiles  []ProjectileState `json:"projectiles"`
}

// FindPlayer returns the state of player id.
func (s *RoomSnapshot) FindPlayer(id string) (PlayerState, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return PlayerState{}, false
}

// Snapshot builds the next sequenced snapshot.
func (r *Room) Snapshot(now time.Time) RoomSnapshot {
	r.sequence++
	snap := RoomSnapshot{
		Seq:          r.sequence,
		ServerTimeMs: now.UnixMilli(),
		Race: RaceState{
			Status:   r.status,
			TrackID:  r.track.ID,
			Laps:     r.laps,
			WinnerID: r.winnerID,
		},
		Players:     make([]PlayerState, 0, len(r.order)),
		Hazards:     pickupStates(r.hazards),
		Powerups:    pickupStates(r.powerups),
		Projectiles: make([]ProjectileState, 0, len(r.projectiles)),
	}
	if !r.raceStartAt.IsZero() {
		snap.Race.RaceStartMs = r.raceStartAt.UnixMilli()
	}
	for _, id := range r.order {
		p := r.players[id]
		state := motion.Sanitize(p.State)
		ps := PlayerState{
			ID:           p.ID,
			Vehicle:      p.Vehicle,
			X:            state.X,
			Y:            finiteOrZero(p.Y),
			Z:            state.Z,
			Yaw:          state.Yaw,
			Speed:        state.Speed,
			Lap:          p.Progress.Lap,
			Checkpoint:   p.Progress.CheckpointIndex,
			Rank:         p.Rank,
			DriftPhase:   int(p.Drift.Phase),
			DriftTier:    p.Drift.Tier,
			EffectMask:   p.Effects.Mask(now),
			Nitro:        p.Nitro,
			LastInputSeq: p.LastInputSeq,
		}
		if p.Progress.Finished() {
			ps.FinishedAtMs = p.Progress.FinishedAt.UnixMilli()
		}
		snap.Players = append(snap.Players, ps)
	}
	for _, projectile := range r.projectiles {
		snap.Projectiles = append(snap.Projectiles, ProjectileState{
			ID:      projectile.ID,
			OwnerID: projectile.OwnerID,
			X:       finiteOrZero(projectile.X),
			Z:       finiteOrZero(projectile.Z),
			Yaw:     finiteOrZero(projectile.Yaw),
		})
	}
	return snap
}

func pickupStates(pickups []*Pickup) []PickupState {
	out := make([]PickupState, 0, len(pickups))
	for _, pickup := range pickups {
		out = append(out, PickupState{
			ID:     pickup.ID,
			Type:   pickup.Type,
			X:      pickup.X,
			Z:      pickup.Z,
			Radius: pickup.Radius,
			Active: pickup.Active,
		})
	}
	return out
}

func finiteOrZero(v float64) float64 {
	if !motion.Finite(v) {
		return 0
	}
	return v
}
