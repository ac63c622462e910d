package sim

import (
	"math"
	"sort"
	"time"

	"driftrace/internal/drift"
	"driftrace/internal/effects"
	"driftrace/internal/motion"
	"driftrace/internal/track"
)

// maxTickSeconds caps dt after a stall so cars do not jump.
const maxTickSeconds = 0.25

// Step advances the room by dt seconds at now: it drains staged commands,
// moves every car, resolves pickups, projectiles and collisions, and updates
// ranking and race status.
func (r *Room) Step(now time.Time, dt float64) {
	r.tick++
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		dt = 0
	}
	if dt > maxTickSeconds {
		dt = maxTickSeconds
	}

	r.applyCommands(r.drainCommands(), now)

	if r.status == StatusRunning && !r.startAnnounced && !now.Before(r.raceStartAt) {
		r.startAnnounced = true
		r.emit(EventRaceStart, "", now, nil)
	}
	racing := r.racing(now)
	r.respawnPowerups(now)

	before := make([]motion.State, len(r.order))
	for i, id := range r.order {
		p := r.players[id]
		before[i] = p.State
		r.stepPlayer(p, now, dt, racing)
	}
	r.advanceProjectiles(now, dt)
	r.resolveCollisions(now)

	for i, id := range r.order {
		p := r.players[id]
		r.applyAntiCheat(p, before[i], dt)
		p.State = motion.Sanitize(p.State)
		p.Y = r.track.ElevationAt(p.State.Z)
		r.advanceProgress(p, before[i].Z, now)
		if racing && !p.Progress.Finished() {
			r.resolveHazards(p, now)
			r.resolvePowerups(p, now)
		}
	}

	r.rank()
	r.checkFinish(now)
}

// Tick returns the number of steps taken.
func (r *Room) Tick() uint64 { return r.tick }

func (r *Room) applyCommands(commands []Command, now time.Time) {
	latest := make(map[string]*InputCommand)
	for _, cmd := range commands {
		p, ok := r.players[cmd.ActorID]
		if !ok {
			continue
		}
		switch cmd.Type {
		case CommandInput:
			if cmd.Input == nil || cmd.Input.Seq <= p.LastInputSeq {
				continue
			}
			if current := latest[p.ID]; current == nil || cmd.Input.Seq > current.Seq {
				latest[p.ID] = cmd.Input
			}
		case CommandAbility:
			if cmd.Ability != nil {
				r.activateAbility(p, cmd.Ability, now)
			}
		case CommandRestart:
			r.restart(p.ID, now)
		}
	}
	for _, id := range r.order {
		input, ok := latest[id]
		if !ok {
			continue
		}
		p := r.players[id]
		p.Controls = motion.SanitizeControls(input.Controls)
		p.Cruise = input.Cruise
		p.LastInputSeq = input.Seq
		if input.AckSnapshot > p.LastAckSeq {
			p.LastAckSeq = input.AckSnapshot
		}
	}
}

func (r *Room) effectiveControls(p *Player, mods effects.Modifiers, racing bool) motion.Controls {
	if p.Progress.Finished() {
		return motion.Controls{Brake: true}
	}
	if !racing {
		return motion.Controls{}
	}
	c := p.Controls
	if p.Cruise && !c.Brake {
		c.Throttle = 1
	}
	if mods.ThrottleLocked {
		c.Throttle = 0
	}
	return c
}

func (r *Room) stepPlayer(p *Player, now time.Time, dt float64, racing bool) {
	p.Effects.Prune(now)
	mods := p.Effects.Modifiers(now)
	controls := r.effectiveControls(p, mods, racing)

	result := p.Drift.Step(drift.Input{
		Speed:     p.State.Speed,
		Steering:  controls.Steering,
		Handbrake: controls.Handbrake,
	}, now, r.driftCfg)
	if result.Boosted {
		r.emit(EventDriftBoost, p.ID, now, map[string]any{"tier": result.Tier, "impulse": result.Impulse})
	}

	if racing && controls.Boost && !p.boostHeld && p.Nitro > 0 && !p.nitroActive(now) {
		p.Nitro--
		p.BoostUntil = now.Add(nitroDuration)
		r.emit(EventNitro, p.ID, now, map[string]any{"nitro": p.Nitro})
	}
	p.boostHeld = controls.Boost

	cfg := p.Class.PhysicsConfig.
		Scaled(mods.Movement, mods.Steering*p.Drift.TurnFactor(r.driftCfg)).
		WithSurface(r.track.FrictionAt(p.State.Z))
	bonus := p.Drift.BoostBonus(now)
	if p.nitroActive(now) {
		bonus += nitroBonus
	}
	if bonus > 0 {
		cfg.MaxForwardSpeed += bonus * mods.Movement
		cfg.Acceleration += bonus * mods.Movement
	}

	next := motion.Step(p.State, controls, dt, cfg)
	if p.Drift.Angle != 0 {
		lateral := 1 - p.Drift.LateralFriction(r.driftCfg)
		slide := math.Sin(p.Drift.Angle) * next.Speed * dt * lateral
		next.X += math.Cos(next.Yaw) * slide
		next.Z -= math.Sin(next.Yaw) * slide
	}

	x, onWall := r.track.ClampLateral(next.X, carRadius)
	if onWall {
		next.X = x
		if !p.onWall {
			next.Speed *= 0.5
		}
	}
	p.onWall = onWall
	p.State = next
}

func (r *Room) advanceProgress(p *Player, prevZ float64, now time.Time) {
	if p.Progress.Finished() {
		return
	}
	update := track.AdvanceRaceProgress(&p.Progress, prevZ, p.State.Z, r.track, r.laps, now)
	if update.Checkpoint >= 0 {
		r.emit(EventCheckpoint, p.ID, now, map[string]any{"checkpoint": update.Checkpoint, "lap": p.Progress.Lap})
	}
	if update.LapCompleted {
		r.emit(EventLap, p.ID, now, map[string]any{"lap": p.Progress.Lap, "laps": r.laps})
	}
	if update.JustFinished {
		finishers := 0
		for _, id := range r.order {
			if r.players[id].Progress.Finished() {
				finishers++
			}
		}
		if r.winnerID == "" {
			r.winnerID = p.ID
			r.firstFinishAt = now
		}
		r.emit(EventFinish, p.ID, now, map[string]any{
			"position":   finishers,
			"raceTimeMs": now.Sub(r.raceStartAt).Milliseconds(),
		})
	}
}

// rank orders players: finishers by finish time, then by lap, checkpoint
// and distance.
func (r *Room) rank() {
	ranked := append([]string(nil), r.order...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := r.players[ranked[i]].Progress, r.players[ranked[j]].Progress
		if a.Finished() != b.Finished() {
			return a.Finished()
		}
		if a.Finished() {
			if !a.FinishedAt.Equal(b.FinishedAt) {
				return a.FinishedAt.Before(b.FinishedAt)
			}
			return ranked[i] < ranked[j]
		}
		if a.Lap != b.Lap {
			return a.Lap > b.Lap
		}
		if a.CheckpointIndex != b.CheckpointIndex {
			return a.CheckpointIndex > b.CheckpointIndex
		}
		if a.Distance != b.Distance {
			return a.Distance > b.Distance
		}
		return ranked[i] < ranked[j]
	})
	for i, id := range ranked {
		r.players[id].Rank = i + 1
	}
}

func (r *Room) checkFinish(now time.Time) {
	if r.status != StatusRunning || r.firstFinishAt.IsZero() {
		return
	}
	allDone := true
	for _, id := range r.order {
		if !r.players[id].Progress.Finished() {
			allDone = false
			break
		}
	}
	if !allDone && now.Before(r.firstFinishAt.Add(r.cfg.FinishGrace)) {
		return
	}
	r.status = StatusFinished
	results := make([]map[string]any, 0, len(r.order))
	for _, id := range r.order {
		p := r.players[id]
		entry := map[string]any{"playerId": id, "rank": p.Rank}
		if p.Progress.Finished() {
			entry["finishedAtMs"] = p.Progress.FinishedAt.UnixMilli()
		}
		results = append(results, entry)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i]["rank"].(int) < results[j]["rank"].(int)
	})
	r.emit(EventRaceFinished, r.winnerID, now, map[string]any{"winnerId": r.winnerID, "results": results})
	r.logger.Info().Str("winner", r.winnerID).Bool("allFinished", allDone).Msg("race finished")
}
