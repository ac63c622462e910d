package sim

import (
	"math"
	"time"
)

// AntiCheatConfig bounds how far one car may change in a single tick. The
// position and rotation deltas are given for a step of AntiCheatReferenceTick.
type AntiCheatConfig struct {
	MaxPositionDelta float64
	MaxRotationDelta float64
	MaxMovementSpeed float64
}

// AntiCheatReferenceTick is the step length the per-tick deltas are given for.
const AntiCheatReferenceTick = time.Second / 60

// ForStep returns the bounds for a step of dt seconds. Longer steps widen the
// deltas in proportion; shorter steps keep the reference bounds.
func (c AntiCheatConfig) ForStep(dt float64) AntiCheatConfig {
	scale := dt / AntiCheatReferenceTick.Seconds()
	if !(scale > 1) || math.IsInf(scale, 0) {
		return c
	}
	c.MaxPositionDelta *= scale
	c.MaxRotationDelta *= scale
	return c
}

// Config tunes one room.
type Config struct {
	MaxPlayers int
	// DefaultTrack is used when a room is opened without a track.
	DefaultTrack  string
	Laps          int
	Countdown     time.Duration
	FinishGrace   time.Duration
	AntiCheat     AntiCheatConfig
	CommandBuffer int
	// PerActorLimit caps how many commands one player may stage per tick.
	PerActorLimit int
}

// DefaultConfig returns the room defaults.
func DefaultConfig() Config {
	return Config{
		MaxPlayers:  8,
		Laps:        0,
		Countdown:   3 * time.Second,
		FinishGrace: 30 * time.Second,
		AntiCheat: AntiCheatConfig{
			MaxPositionDelta: 4,
			MaxRotationDelta: 0.5,
			MaxMovementSpeed: 120,
		},
		CommandBuffer: 1024,
		PerActorLimit: 16,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = def.MaxPlayers
	}
	if c.Laps < 0 {
		c.Laps = 0
	}
	if c.Countdown < 0 {
		c.Countdown = 0
	}
	if c.FinishGrace <= 0 {
		c.FinishGrace = def.FinishGrace
	}
	if !positive(c.AntiCheat.MaxPositionDelta) {
		c.AntiCheat.MaxPositionDelta = def.AntiCheat.MaxPositionDelta
	}
	if !positive(c.AntiCheat.MaxRotationDelta) {
		c.AntiCheat.MaxRotationDelta = def.AntiCheat.MaxRotationDelta
	}
	if !positive(c.AntiCheat.MaxMovementSpeed) {
		c.AntiCheat.MaxMovementSpeed = def.AntiCheat.MaxMovementSpeed
	}
	if c.CommandBuffer <= 0 {
		c.CommandBuffer = def.CommandBuffer
	}
	if c.PerActorLimit <= 0 {
		c.PerActorLimit = def.PerActorLimit
	}
	return c
}

func positive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
