package sim

import (
	"time"

	"driftrace/internal/effects"
)

// Ability ids.
const (
	AbilityNitroBurst = "nitro_burst"
	AbilityMissile    = "missile"
	AbilityShockwave  = "shockwave"
	AbilityShield     = "shield"
)

// Ability rejection reasons.
const (
	RejectUnknownAbility = "unknown_ability"
	RejectCooldown       = "cooldown"
	RejectNoUses         = "no_uses"
	RejectNotRacing      = "not_racing"
	RejectInvalidTarget  = "invalid_target"
	RejectDuplicate      = "duplicate"
)

const shockwaveRadius = 8.0

// AbilityDefinition describes one activatable ability.
type AbilityDefinition struct {
	ID       string
	Cooldown time.Duration
	// UsesPerRace of zero means unlimited.
	UsesPerRace int
	Targeted    bool
}

var abilityCatalog = map[string]AbilityDefinition{
	AbilityNitroBurst: {ID: AbilityNitroBurst, Cooldown: 6 * time.Second},
	AbilityMissile:    {ID: AbilityMissile, Cooldown: 2 * time.Second, UsesPerRace: 3, Targeted: true},
	AbilityShockwave:  {ID: AbilityShockwave, Cooldown: 10 * time.Second, UsesPerRace: 1},
	AbilityShield:     {ID: AbilityShield, Cooldown: 12 * time.Second, UsesPerRace: 2},
}

// LookupAbility returns the definition for id.
func LookupAbility(id string) (AbilityDefinition, bool) {
	def, ok := abilityCatalog[id]
	return def, ok
}

type abilityState struct {
	lastUsed time.Time
	used     int
}

func (p *Player) ability(id string) *abilityState {
	if p.abilities == nil {
		p.abilities = make(map[string]*abilityState)
	}
	state, ok := p.abilities[id]
	if !ok {
		state = &abilityState{}
		p.abilities[id] = state
	}
	return state
}

// UsesLeft reports remaining uses of a limited ability, or -1 if unlimited.
func (p *Player) UsesLeft(id string) int {
	def, ok := abilityCatalog[id]
	if !ok {
		return 0
	}
	if def.UsesPerRace == 0 {
		return -1
	}
	used := 0
	if state, ok := p.abilities[id]; ok {
		used = state.used
	}
	return def.UsesPerRace - used
}

// restoreUse gives back one use of a limited ability, up to its cap.
func (p *Player) restoreUse(id string) {
	state := p.ability(id)
	if state.used > 0 {
		state.used--
	}
}

func (r *Room) activateAbility(p *Player, cmd *AbilityCommand, now time.Time) {
	reject := func(reason string) {
		r.emit(EventAbilityRejected, p.ID, now, map[string]any{"ability": cmd.AbilityID, "reason": reason, "seq": cmd.Seq})
	}
	if cmd.Seq <= p.LastAbilitySeq {
		reject(RejectDuplicate)
		return
	}
	p.LastAbilitySeq = cmd.Seq
	def, ok := abilityCatalog[cmd.AbilityID]
	if !ok {
		reject(RejectUnknownAbility)
		return
	}
	if !r.racing(now) || p.Progress.Finished() {
		reject(RejectNotRacing)
		return
	}
	state := p.ability(def.ID)
	if !state.lastUsed.IsZero() && now.Sub(state.lastUsed) < def.Cooldown {
		reject(RejectCooldown)
		return
	}
	if def.UsesPerRace > 0 && state.used >= def.UsesPerRace {
		reject(RejectNoUses)
		return
	}
	var target *Player
	if cmd.TargetID != "" {
		if !def.Targeted {
			reject(RejectInvalidTarget)
			return
		}
		target, ok = r.players[cmd.TargetID]
		if !ok || target == p {
			reject(RejectInvalidTarget)
			return
		}
	}

	state.lastUsed = now
	state.used++
	data := map[string]any{"ability": def.ID}
	switch def.ID {
	case AbilityNitroBurst:
		p.BoostUntil = now.Add(nitroDuration)
	case AbilityMissile:
		projectile := r.spawnProjectile(p, target, now)
		data["projectileId"] = projectile.ID
		if target != nil {
			data["targetId"] = target.ID
		}
	case AbilityShockwave:
		var hit []string
		for _, id := range r.order {
			other := r.players[id]
			if other == p || r.lapDistanceBetween(p, other) > shockwaveRadius {
				continue
			}
			if other.Effects.Has(effects.Shielded, now) {
				continue
			}
			other.Effects.Apply(effects.Stun, p.ID, 1, now)
			hit = append(hit, other.ID)
		}
		data["hit"] = hit
	case AbilityShield:
		p.Effects.Apply(effects.Shielded, p.ID, 1, now)
	}
	if def.UsesPerRace > 0 {
		data["usesLeft"] = def.UsesPerRace - state.used
	}
	r.emit(EventAbilityActivated, p.ID, now, data)
}
