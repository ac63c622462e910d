package sim

import (
	"math"
	"time"

	"driftrace/internal/effects"
	"driftrace/internal/motion"
)

const (
	projectileSpeed    = 90.0
	projectileLifetime = 3 * time.Second
	projectileRadius   = 1.5
	projectileTurnRate = 3.0
	projectileLaunch   = 3.0
	missileSlowdown    = 0.3
)

// Projectile is a missile in flight.
type Projectile struct {
	ID        string
	OwnerID   string
	TargetID  string
	X, Z, Yaw float64
	ExpiresAt time.Time
}

func (r *Room) spawnProjectile(owner *Player, target *Player, now time.Time) *Projectile {
	hx, hz := motion.Heading(owner.State.Yaw)
	projectile := &Projectile{
		ID:        r.newID(),
		OwnerID:   owner.ID,
		X:         owner.State.X + hx*projectileLaunch,
		Z:         owner.State.Z + hz*projectileLaunch,
		Yaw:       owner.State.Yaw,
		ExpiresAt: now.Add(projectileLifetime),
	}
	if target != nil {
		projectile.TargetID = target.ID
	}
	r.projectiles = append(r.projectiles, projectile)
	return projectile
}

func (r *Room) advanceProjectiles(now time.Time, dt float64) {
	kept := r.projectiles[:0]
	for _, projectile := range r.projectiles {
		if !now.Before(projectile.ExpiresAt) {
			continue
		}
		if target, ok := r.players[projectile.TargetID]; ok {
			dx := target.State.X - projectile.X
			dz := r.track.WrapDelta(r.track.LapDistance(projectile.Z), r.track.LapDistance(target.State.Z))
			desired := math.Atan2(dx, dz)
			turn := motion.AngleDelta(projectile.Yaw, desired)
			limit := projectileTurnRate * dt
			turn = math.Max(-limit, math.Min(limit, turn))
			projectile.Yaw = motion.WrapAngle(projectile.Yaw + turn)
		}
		hx, hz := motion.Heading(projectile.Yaw)
		projectile.X += hx * projectileSpeed * dt
		projectile.Z += hz * projectileSpeed * dt

		if victim := r.projectileVictim(projectile); victim != nil {
			r.hitWithProjectile(projectile, victim, now)
			continue
		}
		kept = append(kept, projectile)
	}
	for i := len(kept); i < len(r.projectiles); i++ {
		r.projectiles[i] = nil
	}
	r.projectiles = kept
}

func (r *Room) projectileVictim(projectile *Projectile) *Player {
	for _, id := range r.order {
		p := r.players[id]
		if p.ID == projectile.OwnerID {
			continue
		}
		dz := r.track.WrapDelta(r.track.LapDistance(projectile.Z), r.track.LapDistance(p.State.Z))
		dx := p.State.X - projectile.X
		if math.Hypot(dx, dz) <= projectileRadius+carRadius {
			return p
		}
	}
	return nil
}

func (r *Room) hitWithProjectile(projectile *Projectile, victim *Player, now time.Time) {
	data := map[string]any{"projectileId": projectile.ID, "ownerId": projectile.OwnerID}
	if victim.Effects.Has(effects.Shielded, now) {
		victim.Effects.Remove(effects.Shielded)
		data["blocked"] = true
	} else {
		victim.Effects.Apply(effects.Stun, projectile.OwnerID, 1, now)
		victim.State.Speed *= missileSlowdown
	}
	r.emit(EventProjectileHit, victim.ID, now, data)
}

func (r *Room) removeProjectilesOf(ownerID string) {
	kept := r.projectiles[:0]
	for _, projectile := range r.projectiles {
		if projectile.OwnerID != ownerID {
			kept = append(kept, projectile)
		}
	}
	for i := len(kept); i < len(r.projectiles); i++ {
		r.projectiles[i] = nil
	}
	r.projectiles = kept
}
