package client

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"driftrace/internal/drift"
	"driftrace/internal/effects"
	"driftrace/internal/interp"
	"driftrace/internal/motion"
	"driftrace/internal/net/proto"
	"driftrace/internal/sim"
	"driftrace/internal/track"
)

// DefaultInterpolationDelay trades latency for smoothness on remote cars.
const DefaultInterpolationDelay = 100 * time.Millisecond

// SessionConfig tunes a client race session.
type SessionConfig struct {
	Reconcile          ReconcileConfig
	Camera             CameraConfig
	InterpolationDelay time.Duration
	BufferCapacity     int
	Vehicles           *motion.Catalog
	// Tracks resolves the joined track for surface friction. Nil predicts on
	// uniform grip.
	Tracks *track.Catalog
	Drift  drift.Config
	Logger zerolog.Logger
}

func (c SessionConfig) normalized() SessionConfig {
	c.Reconcile = c.Reconcile.normalized()
	c.Camera = c.Camera.normalized()
	if c.InterpolationDelay <= 0 {
		c.InterpolationDelay = DefaultInterpolationDelay
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = interp.DefaultCapacity
	}
	if c.Drift.LateralFriction[drift.Gripping] <= 0 {
		c.Drift = drift.DefaultConfig()
	}
	return c
}

// Session is the client side of one race: it predicts the local car,
// reconciles it against snapshots and interpolates remote cars. It is driven
// from a single frame loop and is not safe for concurrent use.
type Session struct {
	cfg    SessionConfig
	logger zerolog.Logger

	joined   bool
	playerID string
	roomID   string
	seed     string

	predictor *Predictor
	camera    *Camera
	remotes   map[string]*interp.Buffer[sim.PlayerState]
	roster    map[string]sim.RosterEntry

	limiter    *rate.Limiter
	inputSeq   uint64
	controls   motion.Controls
	cruise     bool
	lastSeq    uint64
	lastRecvAt time.Time
	latest     *sim.RoomSnapshot
	offsetMs   float64
	correction Reconciliation
	events     []proto.RaceEvent
}

// NewSession returns a session waiting for room_joined.
func NewSession(cfg SessionConfig) *Session {
	cfg = cfg.normalized()
	s := &Session{cfg: cfg, logger: cfg.Logger.With().Str("component", "client").Logger()}
	s.Reset()
	return s
}

// Reset discards all buffers and race state. The session resumes from the
// next room_joined.
func (s *Session) Reset() {
	s.joined = false
	s.playerID, s.roomID, s.seed = "", "", ""
	s.predictor = NewPredictor(motion.PhysicsConfig{}, motion.State{})
	s.camera = NewCamera(s.cfg.Camera)
	s.remotes = make(map[string]*interp.Buffer[sim.PlayerState])
	s.roster = make(map[string]sim.RosterEntry)
	s.limiter = nil
	s.inputSeq = 0
	s.controls = motion.Controls{}
	s.cruise = false
	s.lastSeq = 0
	s.lastRecvAt = time.Time{}
	s.latest = nil
	s.offsetMs = 0
	s.correction = Reconciliation{}
	s.events = nil
}

// Handle applies one decoded server message received at now.
func (s *Session) Handle(msg proto.ServerMessage, now time.Time) {
	switch {
	case msg.Joined != nil:
		s.HandleJoined(*msg.Joined, now)
	case msg.Snapshot != nil:
		s.HandleSnapshot(*msg.Snapshot, now)
	case msg.Event != nil:
		if s.joined {
			s.events = append(s.events, *msg.Event)
		}
	case msg.JoinError != nil:
		s.logger.Warn().Str("reason", msg.JoinError.Reason).Msg("join rejected")
		s.Reset()
	}
}

// HandleJoined starts a fresh race session.
func (s *Session) HandleJoined(joined proto.RoomJoined, now time.Time) {
	s.Reset()
	s.joined = true
	s.playerID = joined.PlayerID
	s.roomID = joined.RoomID
	s.seed = joined.Seed
	for _, entry := range joined.Roster {
		s.roster[entry.ID] = entry
	}
	if joined.MaxInputHz > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Second/time.Duration(joined.MaxInputHz)), 1)
	}
	s.predictor.SetPhysics(s.physicsFor(s.roster[s.playerID].Vehicle))
	if s.cfg.Tracks != nil {
		if m := s.cfg.Tracks.Resolve(joined.TrackID); m != nil {
			s.predictor.SetSurface(m.FrictionAt)
		}
	}

	if len(joined.Snapshot) > 0 {
		snap, err := proto.SnapshotFromTuple(joined.Snapshot)
		if err != nil {
			s.logger.Debug().Err(err).Msg("ignoring join snapshot")
			return
		}
		s.HandleSnapshot(snap, now)
	}
}

func (s *Session) physicsFor(vehicle string) motion.PhysicsConfig {
	if s.cfg.Vehicles == nil {
		return motion.PhysicsConfig{}
	}
	return s.cfg.Vehicles.Resolve(vehicle).PhysicsConfig
}

// HandleSnapshot applies snap and reports whether it became the latest one.
// A late snapshot still fills gaps in the remote buffers, but never rewinds
// the local reconciliation or the race state.
func (s *Session) HandleSnapshot(snap sim.RoomSnapshot, now time.Time) bool {
	if !s.joined {
		return false
	}
	if snap.Seq <= s.lastSeq {
		s.bufferLate(snap)
		return false
	}
	first := s.lastSeq == 0
	s.lastSeq = snap.Seq
	s.lastRecvAt = now
	s.offsetMs = float64(snap.ServerTimeMs) - float64(now.UnixMilli())
	s.latest = &snap

	seen := make(map[string]struct{}, len(snap.Players))
	for _, p := range snap.Players {
		seen[p.ID] = struct{}{}
		if p.ID == s.playerID {
			s.reconcileLocal(p, first)
			continue
		}
		buf, ok := s.remotes[p.ID]
		if !ok {
			buf = interp.NewBuffer(s.cfg.BufferCapacity, LerpPlayer)
			s.remotes[p.ID] = buf
		}
		buf.Push(interp.Sample[sim.PlayerState]{Seq: snap.Seq, TimeMs: float64(snap.ServerTimeMs), State: p})
	}
	for id := range s.remotes {
		if _, ok := seen[id]; !ok {
			delete(s.remotes, id)
		}
	}
	return true
}

// bufferLate adds remote samples from an out-of-order snapshot. Players that
// already left are not revived; repeated sequences are ignored by the buffer.
func (s *Session) bufferLate(snap sim.RoomSnapshot) {
	for _, p := range snap.Players {
		if p.ID == s.playerID {
			continue
		}
		if buf, ok := s.remotes[p.ID]; ok {
			buf.Push(interp.Sample[sim.PlayerState]{Seq: snap.Seq, TimeMs: float64(snap.ServerTimeMs), State: p})
		}
	}
}

func (s *Session) reconcileLocal(p sim.PlayerState, first bool) {
	if entry, ok := s.roster[p.ID]; !ok || entry.Vehicle != p.Vehicle {
		entry.ID, entry.Vehicle = p.ID, p.Vehicle
		s.roster[p.ID] = entry
		s.predictor.SetPhysics(s.physicsFor(p.Vehicle))
	}
	s.predictor.SetConditions(s.conditionsFor(p))
	if first {
		s.predictor.Reset(p.Motion())
		s.camera.Reset()
		return
	}
	s.correction = s.predictor.Reconcile(p.Motion(), p.LastInputSeq, s.cfg.Reconcile)
	if s.correction.Kind == CorrectionHardSnap {
		s.logger.Debug().
			Float64("error", s.correction.PositionError).
			Uint64("seq", s.lastSeq).
			Msg("prediction snapped to server state")
	}
}

// conditionsFor mirrors the server's per-car physics scaling from the fields a
// snapshot carries. Effect intensity is not sent, so effects count in full.
func (s *Session) conditionsFor(p sim.PlayerState) Conditions {
	mods := effects.MaskModifiers(p.EffectMask)
	return Conditions{
		Movement:       mods.Movement,
		Steering:       mods.Steering * s.cfg.Drift.TurnFactor(drift.Phase(p.DriftPhase)),
		ThrottleLocked: mods.ThrottleLocked,
	}
}

// Input captures controls for the next frame. It returns the frame to send
// when the input rate allows one. A throttled frame is neither sent nor
// predicted; the car keeps driving under the last sent frame, as the server
// does.
func (s *Session) Input(controls motion.Controls, cruise bool, now time.Time) (proto.InputMessage, bool) {
	s.controls = motion.SanitizeControls(controls)
	s.cruise = cruise
	if !s.joined || (s.limiter != nil && !s.limiter.AllowN(now, 1)) {
		return proto.InputMessage{}, false
	}
	s.inputSeq++
	s.predictor.Record(s.inputSeq, s.effectiveControls())
	return proto.InputMessage{
		Version:     proto.Version,
		Seq:         s.inputSeq,
		ClientTime:  now.UnixMilli(),
		Throttle:    s.controls.Throttle,
		Steering:    s.controls.Steering,
		Brake:       s.controls.Brake,
		Boost:       s.controls.Boost,
		Handbrake:   s.controls.Handbrake,
		Cruise:      s.cruise,
		AckSnapshot: s.lastSeq,
	}, true
}

func (s *Session) effectiveControls() motion.Controls {
	c := s.controls
	if s.cruise && !c.Brake {
		c.Throttle = 1
	}
	return c
}

// Advance steps local prediction by dt and moves the camera. Before the race
// starts the car is held, matching the server.
func (s *Session) Advance(dt time.Duration, now time.Time) motion.State {
	if !s.joined {
		return motion.State{}
	}
	if s.racing(now) {
		s.predictor.Step(dt.Seconds())
	}
	s.camera.Follow(s.predictor.State())
	return s.predictor.State()
}

func (s *Session) racing(now time.Time) bool {
	if s.latest == nil || s.latest.Race.Status != sim.StatusRunning {
		return false
	}
	if s.latest.Race.RaceStartMs > 0 && s.serverNowMs(now) < float64(s.latest.Race.RaceStartMs) {
		return false
	}
	if local, ok := s.latest.FindPlayer(s.playerID); ok && local.FinishedAtMs > 0 {
		return false
	}
	return true
}

func (s *Session) serverNowMs(now time.Time) float64 {
	return float64(now.UnixMilli()) + s.offsetMs
}

// Remote samples player id at the delayed render time.
func (s *Session) Remote(id string, now time.Time) (sim.PlayerState, bool) {
	buf, ok := s.remotes[id]
	if !ok {
		return sim.PlayerState{}, false
	}
	renderAt := s.serverNowMs(now) - float64(s.cfg.InterpolationDelay.Milliseconds())
	return buf.At(renderAt)
}

// RemoteIDs lists the remote players currently buffered.
func (s *Session) RemoteIDs() []string {
	ids := make([]string, 0, len(s.remotes))
	for id := range s.remotes {
		ids = append(ids, id)
	}
	return ids
}

// Staleness is the time since the last accepted snapshot. It is false until
// one arrives.
func (s *Session) Staleness(now time.Time) (time.Duration, bool) {
	if s.lastRecvAt.IsZero() {
		return 0, false
	}
	return now.Sub(s.lastRecvAt), true
}

// DrainEvents returns race events received since the last call.
func (s *Session) DrainEvents() []proto.RaceEvent {
	events := s.events
	s.events = nil
	return events
}

func (s *Session) Joined() bool                   { return s.joined }
func (s *Session) PlayerID() string               { return s.playerID }
func (s *Session) RoomID() string                 { return s.roomID }
func (s *Session) Seed() string                   { return s.seed }
func (s *Session) LastSnapshotSeq() uint64        { return s.lastSeq }
func (s *Session) Local() motion.State            { return s.predictor.State() }
func (s *Session) Camera() *Camera                { return s.camera }
func (s *Session) LastCorrection() Reconciliation { return s.correction }

// LerpPlayer interpolates the continuous fields of two snapshot states and
// takes discrete fields from the later one.
func LerpPlayer(a, b sim.PlayerState, f float64) sim.PlayerState {
	out := b
	out.X = interp.Lerp(a.X, b.X, f)
	out.Y = interp.Lerp(a.Y, b.Y, f)
	out.Z = interp.Lerp(a.Z, b.Z, f)
	out.Speed = interp.Lerp(a.Speed, b.Speed, f)
	out.Yaw = motion.WrapAngle(a.Yaw + motion.AngleDelta(a.Yaw, b.Yaw)*f)
	return out
}
