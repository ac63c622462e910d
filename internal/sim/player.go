package sim

import (
	"time"

	"driftrace/internal/drift"
	"driftrace/internal/effects"
	"driftrace/internal/motion"
	"driftrace/internal/track"
)

const (
	carRadius     = 1.2
	maxNitro      = 3
	nitroBonus    = 12.0
	nitroDuration = 1500 * time.Millisecond
	gridSpacingX  = 4.0
	gridSpacingZ  = 6.0
	gridColumns   = 4
)

// Player is the authoritative state of one car in a room.
type Player struct {
	ID      string
	Name    string
	Vehicle string
	Color   string
	Class   motion.VehicleClass

	State    motion.State
	Y        float64
	Controls motion.Controls
	Cruise   bool

	LastInputSeq   uint64
	LastAckSeq     uint64
	LastAbilitySeq uint64

	Effects  effects.Set
	Drift    drift.Context
	Progress track.Progress
	Rank     int

	Nitro      int
	BoostUntil time.Time
	boostHeld  bool
	onWall     bool

	Violations int
	JoinedAt   time.Time

	slot      int
	abilities map[string]*abilityState
}

func (p *Player) nitroActive(now time.Time) bool {
	return now.Before(p.BoostUntil)
}

func (p *Player) resetForRace(slot int, m *track.Manifest, now time.Time) {
	p.slot = slot
	p.State = gridPosition(slot, m)
	p.Y = m.ElevationAt(p.State.Z)
	p.Controls = motion.Controls{}
	p.Cruise = false
	p.Effects.Clear()
	p.Drift.Reset(now)
	p.Progress = track.NewProgress()
	p.Rank = 0
	p.Nitro = 0
	p.BoostUntil = time.Time{}
	p.boostHeld = false
	p.onWall = false
	p.abilities = nil
}

// gridPosition lines cars up behind the start line in rows of four.
func gridPosition(slot int, m *track.Manifest) motion.State {
	col := slot % gridColumns
	row := slot / gridColumns
	x := (float64(col) - float64(gridColumns-1)/2) * gridSpacingX
	if m != nil {
		x, _ = m.ClampLateral(x, carRadius)
	}
	return motion.State{X: x, Z: -gridSpacingZ * float64(row+1)}
}

// RosterEntry is the public description of a player.
type RosterEntry struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Vehicle string `json:"vehicle"`
	Color   string `json:"color,omitempty"`
}
