package sim

import (
	"math"
	"time"

	"driftrace/internal/effects"
	"driftrace/internal/track"
)

const (
	hazardRearm    = 1500 * time.Millisecond
	powerupRespawn = 8 * time.Second
)

// Pickup is a hazard or powerup placed on the track.
type Pickup struct {
	track.Spawn
	Active    bool
	RespawnAt time.Time
	rearm     map[string]time.Time
}

func newPickups(spawns []track.Spawn, kind string) []*Pickup {
	var out []*Pickup
	for _, spawn := range spawns {
		if spawn.Kind != kind {
			continue
		}
		out = append(out, &Pickup{Spawn: spawn, Active: true})
	}
	return out
}

func (r *Room) touches(p *Player, pickup *Pickup) bool {
	dz := r.track.WrapDelta(r.track.LapDistance(p.State.Z), pickup.Z)
	dx := pickup.X - p.State.X
	return math.Hypot(dx, dz) <= pickup.Radius+carRadius
}

func (r *Room) resolveHazards(p *Player, now time.Time) {
	for _, hazard := range r.hazards {
		if !r.touches(p, hazard) {
			continue
		}
		if until, ok := hazard.rearm[p.ID]; ok && now.Before(until) {
			continue
		}
		if hazard.rearm == nil {
			hazard.rearm = make(map[string]time.Time)
		}
		hazard.rearm[p.ID] = now.Add(hazardRearm)

		data := map[string]any{"hazardId": hazard.ID, "type": hazard.Type}
		var effect effects.Type
		switch hazard.Type {
		case track.HazardOil:
			effect = effects.OilSlick
		case track.HazardSpikes:
			effect = effects.FlatTire
		case track.HazardBoostPad:
			effect = effects.Slipstream
		}
		if effect != effects.Slipstream && p.Effects.Has(effects.Shielded, now) {
			data["blocked"] = true
		} else if effect != "" {
			p.Effects.Apply(effect, hazard.ID, 1, now)
			data["effect"] = string(effect)
		}
		r.emit(EventHazardTriggered, p.ID, now, data)
	}
}

func (r *Room) resolvePowerups(p *Player, now time.Time) {
	for _, powerup := range r.powerups {
		if !powerup.Active || !r.touches(p, powerup) {
			continue
		}
		powerup.Active = false
		powerup.RespawnAt = now.Add(powerupRespawn)

		data := map[string]any{"powerupId": powerup.ID, "type": powerup.Type}
		switch powerup.Type {
		case track.PowerupNitro:
			if p.Nitro < maxNitro {
				p.Nitro++
			}
			data["nitro"] = p.Nitro
		case track.PowerupShield:
			p.Effects.Apply(effects.Shielded, powerup.ID, 1, now)
		case track.PowerupMissile:
			p.restoreUse(AbilityMissile)
			data["usesLeft"] = p.UsesLeft(AbilityMissile)
		}
		r.emit(EventPowerupCollected, p.ID, now, data)
	}
}

func (r *Room) respawnPowerups(now time.Time) {
	for _, powerup := range r.powerups {
		if !powerup.Active && !now.Before(powerup.RespawnAt) {
			powerup.Active = true
			powerup.RespawnAt = time.Time{}
		}
	}
}
