package client

import "driftrace/internal/motion"

// maxPending bounds unacknowledged inputs kept for replay.
const maxPending = 256

type pendingInput struct {
	seq      uint64
	controls motion.Controls
	elapsed  float64
}

// Surface reports the friction multiplier of the track at lap distance z.
type Surface func(z float64) float64

// Conditions are the server-reported influences on the local car that the
// vehicle tuning alone does not capture.
type Conditions struct {
	Movement       float64
	Steering       float64
	ThrottleLocked bool
}

// Predictor runs the motion model on local input ahead of the server.
// Inputs the server has not acknowledged are kept so a correction can replay
// them on top of the authoritative state.
type Predictor struct {
	physics    motion.PhysicsConfig
	conditions Conditions
	surface    Surface
	state      motion.State
	pending    []pendingInput
}

// NewPredictor starts prediction from state.
func NewPredictor(physics motion.PhysicsConfig, state motion.State) *Predictor {
	return &Predictor{
		physics:    physics,
		conditions: Conditions{Movement: 1, Steering: 1},
		state:      motion.Sanitize(state),
	}
}

// State is the current predicted state.
func (p *Predictor) State() motion.State { return p.state }

// SetPhysics replaces the vehicle tuning, e.g. after the roster resolves the
// local vehicle.
func (p *Predictor) SetPhysics(physics motion.PhysicsConfig) { p.physics = physics }

// SetConditions replaces the modifiers applied on top of the vehicle tuning.
func (p *Predictor) SetConditions(c Conditions) { p.conditions = c }

// SetSurface sets the track friction lookup. A nil surface is uniform grip.
func (p *Predictor) SetSurface(surface Surface) { p.surface = surface }

// Physics is the tuning a step from state integrates under.
func (p *Predictor) Physics(state motion.State) motion.PhysicsConfig {
	cfg := p.physics.Scaled(p.conditions.Movement, p.conditions.Steering)
	if p.surface != nil {
		cfg = cfg.WithSurface(p.surface(state.Z))
	}
	return cfg
}

func (p *Predictor) step(state motion.State, controls motion.Controls, dt float64) motion.State {
	if p.conditions.ThrottleLocked {
		controls.Throttle = 0
	}
	return motion.Step(state, controls, dt, p.Physics(state))
}

// Record starts a new input frame. Subsequent Step calls integrate under it
// until the next Record.
func (p *Predictor) Record(seq uint64, controls motion.Controls) {
	p.pending = append(p.pending, pendingInput{seq: seq, controls: controls})
	if len(p.pending) > maxPending {
		overflow := len(p.pending) - maxPending
		copy(p.pending, p.pending[overflow:])
		p.pending = p.pending[:maxPending]
	}
}

// Step advances the prediction by dt seconds under the latest recorded input.
func (p *Predictor) Step(dt float64) motion.State {
	if !motion.Finite(dt) || dt <= 0 {
		return p.state
	}
	var controls motion.Controls
	if n := len(p.pending); n > 0 {
		p.pending[n-1].elapsed += dt
		controls = p.pending[n-1].controls
	}
	p.state = p.step(p.state, controls, dt)
	return p.state
}

// Pending returns the number of unacknowledged inputs.
func (p *Predictor) Pending() int { return len(p.pending) }

// Reconcile drops inputs up to ackSeq, replays the rest on authoritative and
// pulls the prediction toward that target.
func (p *Predictor) Reconcile(authoritative motion.State, ackSeq uint64, cfg ReconcileConfig) Reconciliation {
	keep := 0
	for keep < len(p.pending) && p.pending[keep].seq <= ackSeq {
		keep++
	}
	if keep > 0 {
		copy(p.pending, p.pending[keep:])
		p.pending = p.pending[:len(p.pending)-keep]
	}

	target := motion.Sanitize(authoritative)
	for _, in := range p.pending {
		if in.elapsed > 0 {
			target = p.step(target, in.controls, in.elapsed)
		}
	}

	result := Reconcile(p.state, target, cfg)
	p.state = result.State
	return result
}

// Reset discards pending input and jumps to state.
func (p *Predictor) Reset(state motion.State) {
	p.state = motion.Sanitize(state)
	p.pending = p.pending[:0]
}
