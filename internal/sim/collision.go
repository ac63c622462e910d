package sim

import (
	"math"
	"time"

	"driftrace/internal/effects"
	"driftrace/internal/motion"
)

const (
	restitution        = 0.3
	driveLockThreshold = 8.0
	stunThreshold      = 15.0
	flipThreshold      = 25.0
)

// collisionEffect maps a closing speed onto the effect applied to the loser.
func collisionEffect(closing float64) effects.Type {
	switch {
	case closing >= flipThreshold:
		return effects.Flipped
	case closing >= stunThreshold:
		return effects.Stun
	case closing >= driveLockThreshold:
		return effects.DriveLock
	default:
		return ""
	}
}

func (r *Room) lapDistanceBetween(a, b *Player) float64 {
	dz := r.track.WrapDelta(r.track.LapDistance(a.State.Z), r.track.LapDistance(b.State.Z))
	return math.Hypot(b.State.X-a.State.X, dz)
}

// resolveCollisions separates overlapping cars and exchanges a mass-weighted
// impulse along the contact normal.
func (r *Room) resolveCollisions(now time.Time) {
	for i := 0; i < len(r.order); i++ {
		a := r.players[r.order[i]]
		for j := i + 1; j < len(r.order); j++ {
			b := r.players[r.order[j]]
			r.collide(a, b, now)
		}
	}
}

func (r *Room) collide(a, b *Player, now time.Time) {
	dx := b.State.X - a.State.X
	dz := r.track.WrapDelta(r.track.LapDistance(a.State.Z), r.track.LapDistance(b.State.Z))
	dist := math.Hypot(dx, dz)
	if dist >= 2*carRadius {
		return
	}
	nx, nz := 0.0, 1.0
	if dist > 1e-9 {
		nx, nz = dx/dist, dz/dist
	}

	invA := inverseMass(a.Class.Mass)
	invB := inverseMass(b.Class.Mass)
	invSum := invA + invB

	overlap := 2*carRadius - dist
	a.State.X -= nx * overlap * invA / invSum
	a.State.Z -= nz * overlap * invA / invSum
	b.State.X += nx * overlap * invB / invSum
	b.State.Z += nz * overlap * invB / invSum

	ahx, ahz := motion.Heading(a.State.Yaw)
	bhx, bhz := motion.Heading(b.State.Yaw)
	avx, avz := ahx*a.State.Speed, ahz*a.State.Speed
	bvx, bvz := bhx*b.State.Speed, bhz*b.State.Speed
	relative := (bvx-avx)*nx + (bvz-avz)*nz
	if relative >= 0 {
		return
	}
	closing := -relative
	impulse := (1 + restitution) * closing / invSum
	avx -= impulse * invA * nx
	avz -= impulse * invA * nz
	bvx += impulse * invB * nx
	bvz += impulse * invB * nz
	a.State.Speed = avx*ahx + avz*ahz
	b.State.Speed = bvx*bhx + bvz*bhz

	data := map[string]any{"otherId": b.ID, "closingSpeed": closing}
	if effect := collisionEffect(closing); effect != "" {
		var losers []*Player
		switch {
		case a.Class.Mass < b.Class.Mass:
			losers = []*Player{a}
		case b.Class.Mass < a.Class.Mass:
			losers = []*Player{b}
		default:
			losers = []*Player{a, b}
		}
		var affected []string
		for _, loser := range losers {
			if loser.Effects.Has(effects.Shielded, now) {
				continue
			}
			loser.Effects.Apply(effect, "collision", 1, now)
			affected = append(affected, loser.ID)
		}
		data["effect"] = string(effect)
		data["affected"] = affected
	}
	r.emit(EventCollision, a.ID, now, data)
}

func inverseMass(mass float64) float64 {
	if !positive(mass) {
		return 1
	}
	return 1 / mass
}
