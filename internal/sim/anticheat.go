package sim

import (
	"context"
	"math"

	"driftrace/internal/motion"
	"driftrace/internal/telemetry"
	"driftrace/logging"
	"driftrace/logging/simulation"
)

// Clamp kinds reported to metrics.
const (
	clampPosition = "position"
	clampRotation = "rotation"
	clampSpeed    = "speed"
)

// enforceBounds pulls a car's end-of-tick state back within the configured
// per-tick limits relative to its start-of-tick state. It returns the kinds
// of clamp applied.
func enforceBounds(before motion.State, after *motion.State, bounds AntiCheatConfig) []string {
	var clamped []string

	if math.Abs(after.Speed) > bounds.MaxMovementSpeed {
		after.Speed = math.Copysign(bounds.MaxMovementSpeed, after.Speed)
		clamped = append(clamped, clampSpeed)
	}

	turn := motion.AngleDelta(before.Yaw, after.Yaw)
	if math.Abs(turn) > bounds.MaxRotationDelta {
		after.Yaw = motion.WrapAngle(before.Yaw + math.Copysign(bounds.MaxRotationDelta, turn))
		clamped = append(clamped, clampRotation)
	}

	dx := after.X - before.X
	dz := after.Z - before.Z
	if dist := math.Hypot(dx, dz); dist > bounds.MaxPositionDelta {
		scale := bounds.MaxPositionDelta / dist
		after.X = before.X + dx*scale
		after.Z = before.Z + dz*scale
		clamped = append(clamped, clampPosition)
	}
	return clamped
}

func (r *Room) applyAntiCheat(p *Player, before motion.State, dt float64) {
	clamped := enforceBounds(before, &p.State, r.cfg.AntiCheat.ForStep(dt))
	if len(clamped) == 0 {
		return
	}
	p.Violations += len(clamped)
	for _, kind := range clamped {
		r.metrics.AddReason(telemetry.KeyAntiCheatClamp, kind, 1)
	}
	r.sampled.Warn().
		Str("room", r.id).
		Str("player", p.ID).
		Strs("clamped", clamped).
		Int("violations", p.Violations).
		Msg("anti-cheat clamp")
	simulation.AntiCheatClamp(context.Background(), r.publisher, r.tick, r.id, logging.PlayerRef(p.ID), simulation.AntiCheatClampPayload{
		Clamped:    clamped,
		Violations: p.Violations,
	})
}
