package sim

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"driftrace/internal/drift"
	"driftrace/internal/effects"
	"driftrace/internal/motion"
	"driftrace/internal/track"
)

const testDT = 1.0 / 60

var t0 = time.Unix(1000, 0)

func newTestRoom(t *testing.T, cfg Config, metrics *countingMetrics) *Room {
	t.Helper()
	vehicles, err := motion.DefaultCatalog()
	if err != nil {
		t.Fatalf("vehicles: %v", err)
	}
	tracks, err := track.DefaultCatalog()
	if err != nil {
		t.Fatalf("tracks: %v", err)
	}
	n := 0
	deps := Deps{
		Logger:   zerolog.Nop(),
		Vehicles: vehicles,
		Tracks:   tracks,
		Drift:    drift.DefaultConfig(),
		IDs: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	}
	if metrics != nil {
		deps.Metrics = metrics
	}
	room, err := NewRoom("test-room", "harbor-loop", cfg, deps)
	if err != nil {
		t.Fatalf("new room: %v", err)
	}
	return room
}

func mustJoin(t *testing.T, r *Room, id string, now time.Time) *Player {
	t.Helper()
	p, err := r.AddPlayer(JoinRequest{PlayerID: id, Name: id}, now)
	if err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
	return p
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func findEvents(events []Event, kind EventKind) []Event {
	var out []Event
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

var raceStart = t0.Add(3 * time.Second)

// startedRoom returns a running room past its countdown with the given players.
func startedRoom(t *testing.T, cfg Config, ids ...string) *Room {
	t.Helper()
	r := newTestRoom(t, cfg, nil)
	for _, id := range ids {
		mustJoin(t, r, id, t0)
	}
	r.Step(raceStart, testDT)
	r.DrainEvents()
	return r
}

func TestFirstJoinStartsCountdown(t *testing.T) {
	r := newTestRoom(t, DefaultConfig(), nil)
	if r.Status() != StatusCreated {
		t.Fatalf("expected created status, got %s", r.Status())
	}
	p := mustJoin(t, r, "p1", t0)
	if r.Status() != StatusRunning {
		t.Fatalf("expected running after first join, got %s", r.Status())
	}
	events := r.DrainEvents()
	if len(findEvents(events, EventPlayerJoined)) != 1 || len(findEvents(events, EventCountdown)) != 1 {
		t.Fatalf("expected join and countdown events, got %v", kinds(events))
	}

	r.QueueInput("p1", InputCommand{Seq: 1, Controls: motion.Controls{Throttle: 1}}, t0)
	r.Step(t0.Add(time.Second), testDT)
	if p.State.Speed != 0 {
		t.Fatalf("car must not move during countdown, speed %v", p.State.Speed)
	}

	r.Step(raceStart, testDT)
	if len(findEvents(r.DrainEvents(), EventRaceStart)) != 1 {
		t.Fatalf("expected race_start once countdown elapses")
	}
	if p.State.Speed <= 0 {
		t.Fatalf("expected car to accelerate after start, speed %v", p.State.Speed)
	}
	r.Step(raceStart.Add(time.Second), testDT)
	if len(findEvents(r.DrainEvents(), EventRaceStart)) != 0 {
		t.Fatalf("race_start must be emitted once")
	}
}

func TestJoinErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPlayers = 1
	r := newTestRoom(t, cfg, nil)
	mustJoin(t, r, "p1", t0)
	if _, err := r.AddPlayer(JoinRequest{PlayerID: "p2"}, t0); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}

	r = newTestRoom(t, DefaultConfig(), nil)
	mustJoin(t, r, "p1", t0)
	if _, err := r.AddPlayer(JoinRequest{PlayerID: "p1"}, t0); !errors.Is(err, ErrDuplicatePlayer) {
		t.Fatalf("expected ErrDuplicatePlayer, got %v", err)
	}
	if err := r.RemovePlayer("ghost", t0); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}
}

func TestUnknownVehicleFallsBackToDefault(t *testing.T) {
	r := newTestRoom(t, DefaultConfig(), nil)
	p, err := r.AddPlayer(JoinRequest{PlayerID: "p1", Vehicle: "hovercraft"}, t0)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if p.Vehicle != "sedan" {
		t.Fatalf("expected default vehicle, got %q", p.Vehicle)
	}
}

func TestLatestInputWinsAndStaleFramesDrop(t *testing.T) {
	r := startedRoom(t, DefaultConfig(), "p1")
	p, _ := r.Player("p1")

	now := raceStart.Add(time.Second)
	r.QueueInput("p1", InputCommand{Seq: 1, Controls: motion.Controls{Throttle: 1}}, now)
	r.QueueInput("p1", InputCommand{Seq: 3, Controls: motion.Controls{Throttle: -1}}, now)
	r.QueueInput("p1", InputCommand{Seq: 2, Controls: motion.Controls{Throttle: 0.5}}, now)
	r.Step(now, testDT)
	if p.LastInputSeq != 3 || p.Controls.Throttle != -1 {
		t.Fatalf("expected seq 3 to win, got seq %d throttle %v", p.LastInputSeq, p.Controls.Throttle)
	}

	r.QueueInput("p1", InputCommand{Seq: 2, Controls: motion.Controls{Throttle: 1}}, now)
	r.QueueInput("p1", InputCommand{Seq: 3, Controls: motion.Controls{Throttle: 1}}, now)
	r.Step(now.Add(time.Second/60), testDT)
	if p.LastInputSeq != 3 || p.Controls.Throttle != -1 {
		t.Fatalf("stale and duplicate frames must be dropped, got seq %d throttle %v", p.LastInputSeq, p.Controls.Throttle)
	}
}

func TestEnqueueEnforcesPerActorLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerActorLimit = 2
	r := newTestRoom(t, cfg, nil)
	mustJoin(t, r, "p1", t0)
	for i := 1; i <= 2; i++ {
		if ok, reason := r.QueueInput("p1", InputCommand{Seq: uint64(i)}, t0); !ok {
			t.Fatalf("push %d rejected: %s", i, reason)
		}
	}
	if ok, reason := r.QueueInput("p1", InputCommand{Seq: 3}, t0); ok || reason != CommandRejectQueueLimit {
		t.Fatalf("expected queue_limit, got %v %q", ok, reason)
	}
	if ok, _ := r.QueueInput("p2", InputCommand{Seq: 1}, t0); !ok {
		t.Fatalf("other actors must not be throttled")
	}
	r.Step(t0, testDT)
	if ok, _ := r.QueueInput("p1", InputCommand{Seq: 4}, t0); !ok {
		t.Fatalf("limit must reset after drain")
	}
}

func TestCruiseControlHoldsThrottle(t *testing.T) {
	r := startedRoom(t, DefaultConfig(), "p1")
	p, _ := r.Player("p1")
	now := raceStart
	r.QueueInput("p1", InputCommand{Seq: 1, Cruise: true}, now)
	for i := 0; i < 30; i++ {
		now = now.Add(time.Second / 60)
		r.Step(now, testDT)
	}
	if p.State.Speed <= 0 {
		t.Fatalf("cruise control should accelerate, speed %v", p.State.Speed)
	}
}

func rejectionReasons(events []Event) []string {
	var reasons []string
	for _, e := range findEvents(events, EventAbilityRejected) {
		reasons = append(reasons, e.Data["reason"].(string))
	}
	return reasons
}

func TestAbilityGates(t *testing.T) {
	r := newTestRoom(t, DefaultConfig(), nil)
	mustJoin(t, r, "p1", t0)
	mustJoin(t, r, "p2", t0)

	r.QueueAbility("p1", AbilityCommand{AbilityID: AbilityShield, Seq: 1}, t0)
	r.Step(t0.Add(time.Second), testDT)
	if got := rejectionReasons(r.DrainEvents()); len(got) != 1 || got[0] != RejectNotRacing {
		t.Fatalf("expected not_racing during countdown, got %v", got)
	}

	now := raceStart
	r.QueueAbility("p1", AbilityCommand{AbilityID: "warp", Seq: 2}, now)
	r.QueueAbility("p1", AbilityCommand{AbilityID: AbilityShockwave, Seq: 3}, now)
	r.QueueAbility("p1", AbilityCommand{AbilityID: AbilityShockwave, Seq: 4}, now)
	r.QueueAbility("p1", AbilityCommand{AbilityID: AbilityShockwave, Seq: 4}, now)
	r.QueueAbility("p1", AbilityCommand{AbilityID: AbilityMissile, Seq: 5, TargetID: "p1"}, now)
	r.QueueAbility("p1", AbilityCommand{AbilityID: AbilityShield, Seq: 6, TargetID: "p2"}, now)
	r.Step(now, testDT)
	events := r.DrainEvents()
	want := []string{RejectUnknownAbility, RejectCooldown, RejectDuplicate, RejectInvalidTarget, RejectInvalidTarget}
	got := rejectionReasons(events)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("rejections = %v, want %v", got, want)
	}
	activated := findEvents(events, EventAbilityActivated)
	if len(activated) != 1 || activated[0].Data["ability"] != AbilityShockwave {
		t.Fatalf("expected one shockwave activation, got %+v", activated)
	}
	p2, _ := r.Player("p2")
	if !p2.Effects.Has(effects.Stun, now) {
		t.Fatalf("shockwave should stun the neighbouring car")
	}

	later := now.Add(11 * time.Second)
	r.QueueAbility("p1", AbilityCommand{AbilityID: AbilityShockwave, Seq: 7}, later)
	r.Step(later, testDT)
	if got := rejectionReasons(r.DrainEvents()); len(got) != 1 || got[0] != RejectNoUses {
		t.Fatalf("expected no_uses, got %v", got)
	}
}

func TestMissileHitsTarget(t *testing.T) {
	r := startedRoom(t, DefaultConfig(), "shooter", "target")
	shooter, _ := r.Player("shooter")
	target, _ := r.Player("target")
	shooter.State = motion.State{Z: 10}
	target.State = motion.State{Z: 40}

	now := raceStart
	r.QueueAbility("shooter", AbilityCommand{AbilityID: AbilityMissile, Seq: 1, TargetID: "target"}, now)
	var hits []Event
	for i := 0; i < 60 && len(hits) == 0; i++ {
		now = now.Add(time.Second / 60)
		r.Step(now, testDT)
		hits = findEvents(r.DrainEvents(), EventProjectileHit)
	}
	if len(hits) != 1 || hits[0].PlayerID != "target" {
		t.Fatalf("expected missile to hit target, got %+v", hits)
	}
	if !target.Effects.Has(effects.Stun, now) {
		t.Fatalf("target should be stunned")
	}
	if snap := r.Snapshot(now); len(snap.Projectiles) != 0 {
		t.Fatalf("projectile should be consumed, got %+v", snap.Projectiles)
	}
	if left := shooter.UsesLeft(AbilityMissile); left != 2 {
		t.Fatalf("expected 2 missiles left, got %d", left)
	}
}

func TestShieldBlocksMissile(t *testing.T) {
	r := startedRoom(t, DefaultConfig(), "shooter", "target")
	shooter, _ := r.Player("shooter")
	target, _ := r.Player("target")
	shooter.State = motion.State{Z: 10}
	target.State = motion.State{Z: 30}
	now := raceStart
	target.Effects.Apply(effects.Shielded, "test", 1, now)

	r.QueueAbility("shooter", AbilityCommand{AbilityID: AbilityMissile, Seq: 1}, now)
	var hits []Event
	for i := 0; i < 60 && len(hits) == 0; i++ {
		now = now.Add(time.Second / 60)
		r.Step(now, testDT)
		hits = findEvents(r.DrainEvents(), EventProjectileHit)
	}
	if len(hits) != 1 || hits[0].Data["blocked"] != true {
		t.Fatalf("expected blocked hit, got %+v", hits)
	}
	if target.Effects.Has(effects.Shielded, now) || target.Effects.Has(effects.Stun, now) {
		t.Fatalf("shield should be consumed and stun avoided")
	}
}

func TestCollisionExchangesImpulse(t *testing.T) {
	r := newTestRoom(t, DefaultConfig(), nil)
	a := mustJoin(t, r, "a", t0)
	b := mustJoin(t, r, "b", t0)
	a.State = motion.State{Z: 100, Speed: 20}
	b.State = motion.State{Z: 102}
	r.DrainEvents()

	now := t0.Add(time.Second)
	r.Step(now, testDT)
	collisions := findEvents(r.DrainEvents(), EventCollision)
	if len(collisions) != 1 {
		t.Fatalf("expected one collision, got %d", len(collisions))
	}
	if a.State.Speed >= b.State.Speed {
		t.Fatalf("impulse should slow the rear car below the front car: %v vs %v", a.State.Speed, b.State.Speed)
	}
	if collisions[0].Data["effect"] != string(effects.Stun) {
		t.Fatalf("expected stun for closing speed ~20, got %v", collisions[0].Data["effect"])
	}
	if !a.Effects.Has(effects.Stun, now) || !b.Effects.Has(effects.Stun, now) {
		t.Fatalf("equal masses should both be stunned")
	}
	if gap := math.Abs(b.State.Z - a.State.Z); gap < 2*carRadius-1e-9 {
		t.Fatalf("cars should be separated, gap %v", gap)
	}
}

func TestCollisionEffectThresholds(t *testing.T) {
	cases := map[float64]effects.Type{
		5:  "",
		8:  effects.DriveLock,
		15: effects.Stun,
		25: effects.Flipped,
	}
	for closing, want := range cases {
		if got := collisionEffect(closing); got != want {
			t.Fatalf("collisionEffect(%v) = %q, want %q", closing, got, want)
		}
	}
}

func TestHazardTriggersOncePerRearm(t *testing.T) {
	r := startedRoom(t, DefaultConfig(), "p1")
	p, _ := r.Player("p1")
	p.State = motion.State{X: -4, Z: 420}

	now := raceStart.Add(time.Second)
	r.Step(now, testDT)
	triggered := findEvents(r.DrainEvents(), EventHazardTriggered)
	if len(triggered) != 1 || triggered[0].Data["effect"] != string(effects.OilSlick) {
		t.Fatalf("expected oil slick, got %+v", triggered)
	}
	if !p.Effects.Has(effects.OilSlick, now) {
		t.Fatalf("oil slick should be active")
	}
	r.Step(now.Add(time.Second/60), testDT)
	if len(findEvents(r.DrainEvents(), EventHazardTriggered)) != 0 {
		t.Fatalf("hazard must not retrigger before re-arm")
	}
}

func TestPowerupCollectAndRespawn(t *testing.T) {
	r := startedRoom(t, DefaultConfig(), "p1")
	p, _ := r.Player("p1")
	p.State = motion.State{X: 6, Z: 260}

	now := raceStart.Add(time.Second)
	r.Step(now, testDT)
	if p.Nitro != 1 {
		t.Fatalf("expected one nitro charge, got %d", p.Nitro)
	}
	if len(findEvents(r.DrainEvents(), EventPowerupCollected)) != 1 {
		t.Fatalf("expected powerup_collected event")
	}
	snap := r.Snapshot(now)
	for _, pu := range snap.Powerups {
		if pu.ID == "nitro-1" && pu.Active {
			t.Fatalf("collected powerup should be inactive")
		}
	}

	p.State = motion.State{X: -6, Z: 50}
	now = now.Add(powerupRespawn)
	r.Step(now, testDT)
	snap = r.Snapshot(now)
	for _, pu := range snap.Powerups {
		if pu.ID == "nitro-1" && !pu.Active {
			t.Fatalf("powerup should respawn after %v", powerupRespawn)
		}
	}

	r.QueueInput("p1", InputCommand{Seq: 1, Controls: motion.Controls{Boost: true}}, now)
	r.Step(now.Add(time.Second/60), testDT)
	if p.Nitro != 0 || len(findEvents(r.DrainEvents(), EventNitro)) != 1 {
		t.Fatalf("boost should spend the nitro charge, nitro %d", p.Nitro)
	}
}

func TestFinishRestartCycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Laps = 1
	r := startedRoom(t, cfg, "p1")
	p, _ := r.Player("p1")

	now := raceStart.Add(time.Second)
	r.RequestRestart("p1", now)
	r.Step(now, testDT)
	if len(findEvents(r.DrainEvents(), EventRestartRejected)) != 1 || r.Status() != StatusRunning {
		t.Fatalf("restart must be rejected while running")
	}

	p.Progress = track.Progress{CheckpointIndex: r.Track().LastCheckpoint()}
	p.State = motion.State{Z: r.Track().Length - 0.5, Speed: 50}
	now = now.Add(time.Second / 60)
	r.Step(now, testDT)
	events := r.DrainEvents()
	for _, kind := range []EventKind{EventLap, EventFinish, EventRaceFinished} {
		if len(findEvents(events, kind)) != 1 {
			t.Fatalf("expected one %s event, got %v", kind, kinds(events))
		}
	}
	if r.Status() != StatusFinished || r.WinnerID() != "p1" {
		t.Fatalf("expected finished with winner p1, got %s %q", r.Status(), r.WinnerID())
	}

	now = now.Add(time.Second)
	r.RequestRestart("p1", now)
	r.Step(now, testDT)
	if r.Status() != StatusRunning || r.WinnerID() != "" {
		t.Fatalf("expected running after restart, got %s", r.Status())
	}
	if len(findEvents(r.DrainEvents(), EventCountdown)) != 1 {
		t.Fatalf("restart should announce a new countdown")
	}
	if p.Progress.Lap != 0 || p.Progress.CheckpointIndex != -1 || p.State.Z != -gridSpacingZ {
		t.Fatalf("player should be back on the grid, got %+v %+v", p.Progress, p.State)
	}
}

func TestFinishGraceEndsRace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Laps = 1
	cfg.FinishGrace = 5 * time.Second
	r := startedRoom(t, cfg, "p1", "p2")
	p1, _ := r.Player("p1")
	p1.Progress = track.Progress{CheckpointIndex: r.Track().LastCheckpoint()}
	p1.State = motion.State{Z: r.Track().Length - 0.5, Speed: 50}

	now := raceStart.Add(time.Second)
	r.Step(now, testDT)
	if r.Status() != StatusRunning {
		t.Fatalf("race should wait for other players within grace")
	}
	r.Step(now.Add(cfg.FinishGrace), testDT)
	if r.Status() != StatusFinished {
		t.Fatalf("race should finish once grace elapses")
	}
	p2, _ := r.Player("p2")
	if p1.Rank != 1 || p2.Rank != 2 {
		t.Fatalf("unexpected ranks p1=%d p2=%d", p1.Rank, p2.Rank)
	}
}

func TestSnapshotIsSequencedAndFinite(t *testing.T) {
	r := startedRoom(t, DefaultConfig(), "p1", "p2")
	p, _ := r.Player("p1")
	p.State.Speed = math.NaN()
	p.State.Yaw = math.Inf(1)
	r.QueueInput("p1", InputCommand{Seq: 1, Controls: motion.Controls{Throttle: math.NaN(), Steering: math.Inf(-1)}}, raceStart)
	r.Step(raceStart.Add(time.Second), testDT)

	first := r.Snapshot(raceStart)
	second := r.Snapshot(raceStart)
	if second.Seq != first.Seq+1 {
		t.Fatalf("snapshot sequence must increase: %d then %d", first.Seq, second.Seq)
	}
	if first.Race.Status != StatusRunning || first.Race.TrackID != "harbor-loop" || first.Race.Laps != 3 {
		t.Fatalf("unexpected race state %+v", first.Race)
	}
	if len(first.Players) != 2 || len(first.Hazards) != 3 || len(first.Powerups) != 3 {
		t.Fatalf("unexpected snapshot sizes %d/%d/%d", len(first.Players), len(first.Hazards), len(first.Powerups))
	}
	for _, ps := range first.Players {
		for _, v := range []float64{ps.X, ps.Y, ps.Z, ps.Yaw, ps.Speed} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("non-finite value reached snapshot: %+v", ps)
			}
		}
	}
	if _, ok := first.FindPlayer("p2"); !ok {
		t.Fatalf("expected to find p2")
	}
}

func TestRemovePlayerDropsOwnedProjectiles(t *testing.T) {
	r := startedRoom(t, DefaultConfig(), "p1", "p2")
	r.QueueAbility("p1", AbilityCommand{AbilityID: AbilityMissile, Seq: 1}, raceStart)
	r.Step(raceStart, testDT)
	if len(r.Snapshot(raceStart).Projectiles) != 1 {
		t.Fatalf("expected projectile in flight")
	}
	if err := r.RemovePlayer("p1", raceStart); err != nil {
		t.Fatalf("remove: %v", err)
	}
	snap := r.Snapshot(raceStart)
	if len(snap.Projectiles) != 0 || len(snap.Players) != 1 {
		t.Fatalf("expected owner projectiles removed, got %+v", snap)
	}
	if len(findEvents(r.DrainEvents(), EventPlayerLeft)) != 1 {
		t.Fatalf("expected player_left event")
	}
}

func TestEnforceBoundsClampsEveryAxis(t *testing.T) {
	before := motion.State{Speed: 10}
	after := motion.State{X: 30, Z: 40, Yaw: 2, Speed: 500}
	clamped := enforceBounds(before, &after, AntiCheatConfig{MaxPositionDelta: 5, MaxRotationDelta: 0.5, MaxMovementSpeed: 120})
	if len(clamped) != 3 {
		t.Fatalf("expected three clamps, got %v", clamped)
	}
	if after.Speed != 120 || math.Abs(after.Yaw-0.5) > 1e-12 {
		t.Fatalf("unexpected clamped speed/yaw %+v", after)
	}
	if math.Abs(after.X-3) > 1e-9 || math.Abs(after.Z-4) > 1e-9 {
		t.Fatalf("unexpected clamped position %+v", after)
	}

	within := motion.State{X: 1, Z: 1, Yaw: 0.1, Speed: 20}
	if got := enforceBounds(before, &within, DefaultConfig().AntiCheat); len(got) != 0 {
		t.Fatalf("legal movement must not be clamped, got %v", got)
	}
}

func TestAntiCheatCountsViolations(t *testing.T) {
	metrics := newCountingMetrics()
	r := newTestRoom(t, DefaultConfig(), metrics)
	p := mustJoin(t, r, "p1", t0)
	before := p.State
	p.State.Z += 50
	r.applyAntiCheat(p, before, testDT)
	if p.Violations != 1 {
		t.Fatalf("expected one violation, got %d", p.Violations)
	}
	if got := metrics.added("sim_anticheat_clamp_total/position"); got != 1 {
		t.Fatalf("expected clamp metric, got %d", got)
	}
	if d := p.State.Z - before.Z; math.Abs(d-DefaultConfig().AntiCheat.MaxPositionDelta) > 1e-9 {
		t.Fatalf("expected position clamped to max delta, moved %v", d)
	}
}

func TestAntiCheatBoundsScaleWithStepLength(t *testing.T) {
	catchUp := 4.0 / 60
	bounds := DefaultConfig().AntiCheat
	before := motion.State{Speed: 63}
	moved := motion.State{Z: 63 * catchUp, Speed: 63}

	if got := enforceBounds(before, &moved, bounds.ForStep(catchUp)); len(got) != 0 {
		t.Fatalf("honest catch-up step must not be clamped, got %v", got)
	}
	short := motion.State{Z: 63 * catchUp, Speed: 63}
	if got := enforceBounds(before, &short, bounds.ForStep(testDT)); len(got) != 1 || got[0] != clampPosition {
		t.Fatalf("same distance in one reference tick must be clamped, got %v", got)
	}
	if tiny := bounds.ForStep(testDT / 4); tiny != bounds {
		t.Fatalf("short steps keep the reference bounds, got %+v", tiny)
	}

	r := newTestRoom(t, DefaultConfig(), nil)
	p := mustJoin(t, r, "p1", t0)
	start := p.State
	p.State.Z += 63 * catchUp
	r.applyAntiCheat(p, start, catchUp)
	if p.Violations != 0 {
		t.Fatalf("expected no violation on a catch-up step, got %d", p.Violations)
	}
	if d := p.State.Z - start.Z; math.Abs(d-63*catchUp) > 1e-9 {
		t.Fatalf("expected full movement kept, moved %v", d)
	}
}

// scriptedRace drives r through a fixed input script and returns the
// snapshots taken along the way.
func scriptedRace(t *testing.T, r *Room, ids []string) []RoomSnapshot {
	t.Helper()
	for _, id := range ids {
		mustJoin(t, r, id, t0)
	}
	var snaps []RoomSnapshot
	now := t0
	for tick := 0; tick < 900; tick++ {
		now = now.Add(time.Second / 60)
		for i, id := range ids {
			phase := float64(tick+i*37) / 45
			r.QueueInput(id, InputCommand{
				Seq: uint64(tick + 1),
				Controls: motion.Controls{
					Throttle:  1,
					Steering:  math.Sin(phase),
					Handbrake: tick%120 > 80,
					Boost:     tick%300 == 250+i,
				},
			}, now)
		}
		switch tick {
		case 240:
			r.QueueAbility(ids[0], AbilityCommand{AbilityID: AbilityShockwave, Seq: 1}, now)
		case 300:
			r.QueueAbility(ids[1], AbilityCommand{AbilityID: AbilityMissile, Seq: 1, TargetID: ids[2]}, now)
		case 360:
			r.QueueAbility(ids[2], AbilityCommand{AbilityID: AbilityShield, Seq: 1}, now)
		}
		r.Step(now, testDT)
		r.DrainEvents()
		if tick%6 == 0 {
			snaps = append(snaps, r.Snapshot(now))
		}
	}
	return snaps
}

func TestStepIsDeterministicAcrossRooms(t *testing.T) {
	ids := []string{"p1", "p2", "p3"}
	first := scriptedRace(t, newTestRoom(t, DefaultConfig(), nil), ids)
	second := scriptedRace(t, newTestRoom(t, DefaultConfig(), nil), ids)

	if len(first) != len(second) {
		t.Fatalf("snapshot counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		a, b := first[i], second[i]
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("snapshot %d diverged:\n%+v\n%+v", a.Seq, a, b)
		}
		for j := range a.Players {
			pa, pb := a.Players[j], b.Players[j]
			for k, pair := range [][2]float64{{pa.X, pb.X}, {pa.Y, pb.Y}, {pa.Z, pb.Z}, {pa.Yaw, pb.Yaw}, {pa.Speed, pb.Speed}} {
				if math.Float64bits(pair[0]) != math.Float64bits(pair[1]) {
					t.Fatalf("snapshot %d player %s field %d: %v vs %v", a.Seq, pa.ID, k, pair[0], pair[1])
				}
			}
		}
	}
	start, end := first[0].Players[0], first[len(first)-1].Players[0]
	if start.X == end.X && start.Z == end.Z {
		t.Fatalf("script never moved a car")
	}
}
