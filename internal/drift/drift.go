package drift

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Phase is the drift state of one car.
type Phase uint8

const (
	Gripping Phase = iota
	Initiating
	Drifting
	Recovering
)

func (p Phase) String() string {
	switch p {
	case Gripping:
		return "gripping"
	case Initiating:
		return "initiating"
	case Drifting:
		return "drifting"
	case Recovering:
		return "recovering"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// MaxTier is the highest boost tier a drift can charge.
const MaxTier = 3

// Config tunes the drift state machine.
type Config struct {
	MinSpeed    float64
	MinSteering float64

	InitiateHold    time.Duration
	InitiateTimeout time.Duration
	MinDriftDwell   time.Duration
	RecoverDwell    time.Duration

	// TierThresholds are ascending drift durations for tiers 1..3.
	TierThresholds [MaxTier]time.Duration
	// TierImpulse is the boost in m/s per tier; index 0 is always zero.
	TierImpulse   [MaxTier + 1]float64
	BoostDuration time.Duration

	// LateralFriction is indexed by Phase.
	LateralFriction [4]float64
	MaxAngle        float64
	AngleRate       float64
	TurnBonus       float64
}

// DefaultConfig returns the tuning used by every vehicle class.
func DefaultConfig() Config {
	return Config{
		MinSpeed:        12,
		MinSteering:     0.6,
		InitiateHold:    150 * time.Millisecond,
		InitiateTimeout: 600 * time.Millisecond,
		MinDriftDwell:   200 * time.Millisecond,
		RecoverDwell:    250 * time.Millisecond,
		TierThresholds:  [MaxTier]time.Duration{800 * time.Millisecond, 1600 * time.Millisecond, 2600 * time.Millisecond},
		TierImpulse:     [MaxTier + 1]float64{0, 6, 10, 15},
		BoostDuration:   1200 * time.Millisecond,
		LateralFriction: [4]float64{Gripping: 0.95, Initiating: 0.45, Drifting: 0.15, Recovering: 0.65},
		MaxAngle:        0.6,
		AngleRate:       2.5,
		TurnBonus:       0.5,
	}
}

// Validate reports every inconsistency in the config.
func (c Config) Validate() error {
	var errs []error
	if !finite(c.MinSpeed) || c.MinSpeed <= 0 {
		errs = append(errs, fmt.Errorf("drift: minSpeed must be positive, got %v", c.MinSpeed))
	}
	if !finite(c.MinSteering) || c.MinSteering <= 0 || c.MinSteering > 1 {
		errs = append(errs, fmt.Errorf("drift: minSteering must be in (0, 1], got %v", c.MinSteering))
	}
	if c.InitiateHold <= 0 || c.InitiateTimeout <= c.InitiateHold {
		errs = append(errs, fmt.Errorf("drift: initiate hold %v must be positive and below timeout %v", c.InitiateHold, c.InitiateTimeout))
	}
	if c.MinDriftDwell < 0 || c.RecoverDwell < 0 {
		errs = append(errs, errors.New("drift: dwell times must not be negative"))
	}
	prev := time.Duration(0)
	for i, threshold := range c.TierThresholds {
		if threshold <= prev {
			errs = append(errs, fmt.Errorf("drift: tier %d threshold %v must exceed %v", i+1, threshold, prev))
		}
		prev = threshold
	}
	if c.TierImpulse[0] != 0 {
		errs = append(errs, fmt.Errorf("drift: tier 0 impulse must be zero, got %v", c.TierImpulse[0]))
	}
	for i := 1; i < len(c.TierImpulse); i++ {
		if !finite(c.TierImpulse[i]) || c.TierImpulse[i] <= c.TierImpulse[i-1] {
			errs = append(errs, fmt.Errorf("drift: tier %d impulse must exceed tier %d", i, i-1))
		}
	}
	if c.BoostDuration <= 0 {
		errs = append(errs, fmt.Errorf("drift: boost duration must be positive, got %v", c.BoostDuration))
	}
	lf := c.LateralFriction
	for phase, v := range lf {
		if !finite(v) || v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("drift: lateral friction for %s must be in [0, 1], got %v", Phase(phase), v))
		}
	}
	if !(lf[Drifting] < lf[Initiating] && lf[Initiating] < lf[Recovering] && lf[Recovering] < lf[Gripping]) {
		errs = append(errs, fmt.Errorf("drift: lateral friction must order drifting < initiating < recovering < gripping, got %v", lf))
	}
	if !finite(c.MaxAngle) || c.MaxAngle <= 0 || c.MaxAngle >= math.Pi/2 {
		errs = append(errs, fmt.Errorf("drift: max angle must be in (0, pi/2), got %v", c.MaxAngle))
	}
	if !finite(c.AngleRate) || c.AngleRate <= 0 {
		errs = append(errs, fmt.Errorf("drift: angle rate must be positive, got %v", c.AngleRate))
	}
	if !finite(c.TurnBonus) || c.TurnBonus < 0 {
		errs = append(errs, fmt.Errorf("drift: turn bonus must not be negative, got %v", c.TurnBonus))
	}
	return errors.Join(errs...)
}

// TierFor maps an accumulated drift duration to a boost tier.
func (c Config) TierFor(d time.Duration) int {
	tier := 0
	for _, threshold := range c.TierThresholds {
		if d >= threshold {
			tier++
		}
	}
	return tier
}

// Input is what the FSM reads from a car each tick.
type Input struct {
	Speed     float64
	Steering  float64
	Handbrake bool
}

// Context is the per-car drift state. The zero value is a gripping car.
type Context struct {
	Phase       Phase
	EnteredAt   time.Time
	Accumulated time.Duration
	Angle       float64
	// Tier is the tier charged by the current drift, or awarded by the last one
	// while its boost is active.
	Tier         int
	BoostUntil   time.Time
	BoostImpulse float64

	lastStep time.Time
}

// Result reports transitions that happened during one Step.
type Result struct {
	From, To Phase
	// Boosted is set when a drift ended with a non-zero tier.
	Boosted bool
	Tier    int
	Impulse float64
}

// Changed reports whether the phase changed.
func (r Result) Changed() bool { return r.From != r.To }

// Reset returns the context to gripping at now.
func (c *Context) Reset(now time.Time) {
	*c = Context{EnteredAt: now, lastStep: now}
}

// Step advances the FSM once. It must be called once per simulation tick.
func (c *Context) Step(in Input, now time.Time, cfg Config) Result {
	dt := time.Duration(0)
	if !c.lastStep.IsZero() && now.After(c.lastStep) {
		dt = now.Sub(c.lastStep)
	}
	c.lastStep = now
	if c.EnteredAt.IsZero() {
		c.EnteredAt = now
	}

	speed := math.Abs(sanitize(in.Speed))
	steering := clampUnit(sanitize(in.Steering))
	qualifies := speed >= cfg.MinSpeed &&
		(math.Abs(steering) >= cfg.MinSteering || (in.Handbrake && steering != 0))
	elapsed := now.Sub(c.EnteredAt)

	result := Result{From: c.Phase, To: c.Phase}
	switch c.Phase {
	case Gripping:
		c.Angle = 0
		if qualifies {
			c.enter(Initiating, now)
		}
	case Initiating:
		switch {
		case qualifies && elapsed >= cfg.InitiateHold:
			c.enter(Drifting, now)
			c.Accumulated = 0
		case !qualifies && elapsed >= cfg.InitiateTimeout:
			c.enter(Gripping, now)
		}
		c.Angle = approach(c.Angle, 0.5*cfg.MaxAngle*steering, cfg.AngleRate*dt.Seconds())
	case Drifting:
		c.Accumulated += dt
		c.Tier = cfg.TierFor(c.Accumulated)
		c.Angle = approach(c.Angle, cfg.MaxAngle*steering, cfg.AngleRate*dt.Seconds())
		if !qualifies && elapsed >= cfg.MinDriftDwell {
			tier := cfg.TierFor(c.Accumulated)
			c.enter(Recovering, now)
			c.Tier = tier
			if tier > 0 {
				c.BoostImpulse = cfg.TierImpulse[tier]
				c.BoostUntil = now.Add(cfg.BoostDuration)
				result.Boosted = true
				result.Tier = tier
				result.Impulse = c.BoostImpulse
			}
		}
	case Recovering:
		c.Angle = approach(c.Angle, 0, cfg.AngleRate*dt.Seconds())
		if elapsed >= cfg.RecoverDwell {
			c.enter(Gripping, now)
			c.Accumulated = 0
			c.Angle = 0
		}
	default:
		c.Reset(now)
	}
	if !c.BoostActive(now) && c.Phase != Drifting {
		c.Tier = 0
		c.BoostImpulse = 0
	}
	result.To = c.Phase
	return result
}

func (c *Context) enter(phase Phase, now time.Time) {
	c.Phase = phase
	c.EnteredAt = now
}

// BoostActive reports whether a drift boost is running at now.
func (c *Context) BoostActive(now time.Time) bool {
	return c.BoostImpulse > 0 && now.Before(c.BoostUntil)
}

// BoostBonus returns the extra top speed granted at now.
func (c *Context) BoostBonus(now time.Time) float64 {
	if !c.BoostActive(now) {
		return 0
	}
	return c.BoostImpulse
}

// LateralFriction returns the sideways grip for the current phase.
func (c *Context) LateralFriction(cfg Config) float64 {
	if int(c.Phase) >= len(cfg.LateralFriction) {
		return cfg.LateralFriction[Gripping]
	}
	return cfg.LateralFriction[c.Phase]
}

// TurnFactor scales the turn rate; lower lateral friction turns tighter.
func (c *Context) TurnFactor(cfg Config) float64 {
	return cfg.TurnFactor(c.Phase)
}

// TurnFactor is the turn rate scale for a car in phase.
func (c Config) TurnFactor(phase Phase) float64 {
	grip := c.LateralFriction[Gripping]
	if grip <= 0 {
		return 1
	}
	friction := grip
	if int(phase) < len(c.LateralFriction) {
		friction = c.LateralFriction[phase]
	}
	loss := 1 - friction/grip
	if loss < 0 {
		loss = 0
	}
	return 1 + c.TurnBonus*loss
}

func approach(v, target, step float64) float64 {
	if step <= 0 {
		return v
	}
	if v < target {
		return math.Min(target, v+step)
	}
	return math.Max(target, v-step)
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

func sanitize(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
