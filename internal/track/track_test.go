package track

import (
	"math"
	"strings"
	"testing"
	"time"
)

func mustHarbor(t *testing.T) *Manifest {
	t.Helper()
	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	m := catalog.Resolve("harbor-loop")
	if m == nil || m.ID != "harbor-loop" {
		t.Fatalf("expected harbor-loop, got %+v", m)
	}
	return m
}

func ptr(v float64) *float64 { return &v }

func validManifest() Manifest {
	return Manifest{
		ID:          "test",
		Length:      100,
		Width:       10,
		Laps:        2,
		Checkpoints: []float64{0, 50},
		Segments: []Segment{
			{Length: 60, ElevationStart: ptr(0), ElevationEnd: ptr(4)},
			{Length: 40, ElevationStart: ptr(4), ElevationEnd: ptr(0), Bank: 10},
		},
	}
}

func TestDefaultCatalogResolvesWithFallback(t *testing.T) {
	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	if got := catalog.IDs(); len(got) != 2 || got[0] != "harbor-loop" || got[1] != "alpine-pass" {
		t.Fatalf("unexpected ids %v", got)
	}
	if m := catalog.Resolve("moon-base"); m == nil || m.ID != catalog.DefaultID() {
		t.Fatalf("unknown id should resolve to default, got %+v", m)
	}
	if m := catalog.Resolve("alpine-pass"); m.Laps != 2 {
		t.Fatalf("expected alpine laps 2, got %d", m.Laps)
	}
}

func TestValidateRejectsBrokenManifests(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(m *Manifest)
		want   string
	}{
		{"non-positive length", func(m *Manifest) { m.Length = 0 }, "length must be positive"},
		{"too few checkpoints", func(m *Manifest) { m.Checkpoints = []float64{0} }, "at least 2 checkpoints"},
		{"unordered checkpoints", func(m *Manifest) { m.Checkpoints = []float64{50, 10} }, "is not after checkpoint"},
		{"checkpoint 0 off the lap line", func(m *Manifest) { m.Checkpoints = []float64{20, 50} }, "checkpoint 0 must be on the lap line"},
		{"length sum", func(m *Manifest) { m.Segments[1].Length = 39 }, "segment lengths sum to 99"},
		{"zero segment", func(m *Manifest) { m.Segments[1].Length = 0 }, "segment 1 length must be positive"},
		{"elevation seam", func(m *Manifest) { m.Segments[1].ElevationStart = ptr(3) }, "at segments 0 and 1"},
		{"elevation wrap", func(m *Manifest) { m.Segments[1].ElevationEnd = ptr(1) }, "lap wrap-around"},
		{"bank", func(m *Manifest) { m.Segments[0].Bank = 46 }, "exceeds 45 degrees"},
		{"negative friction", func(m *Manifest) { m.Segments[0].Friction = ptr(-0.1) }, "friction must be a non-negative number"},
		{"nan friction", func(m *Manifest) { m.Segments[0].Friction = ptr(math.NaN()) }, "friction must be a non-negative number"},
		{"spawn type", func(m *Manifest) {
			m.Spawns = []Spawn{{ID: "x", Kind: KindHazard, Type: "lava", Z: 10, Radius: 1}}
		}, `unknown hazard type "lava"`},
		{"spawn off track", func(m *Manifest) {
			m.Spawns = []Spawn{{ID: "x", Kind: KindPowerup, Type: PowerupNitro, X: 20, Z: 10, Radius: 1}}
		}, "outside the track width"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := validManifest()
			tc.mutate(&m)
			err := Validate(&m)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}

	m := validManifest()
	if err := Validate(&m); err != nil {
		t.Fatalf("baseline manifest should be valid: %v", err)
	}
}

func TestValidateAllRejectsDuplicateIDs(t *testing.T) {
	err := ValidateAll("test", []Manifest{validManifest(), validManifest()})
	if err == nil || !strings.Contains(err.Error(), `track "test": duplicate id`) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
	if _, err := LoadCatalog([]byte("tracks: [")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSegmentLookupsWrapAroundTheLap(t *testing.T) {
	m := mustHarbor(t)
	cases := []struct {
		z                   float64
		friction, elevation float64
	}{
		{100, 1, 0},
		{325, 1, 3},
		{500, 1.3, 6},
		{1700, 1.3, 6},
		{-700, 1.3, 6},
		{650, 0.8, 6 - 4.0*50/300},
		{1050, 1, 1},
	}
	for _, tc := range cases {
		if got := m.FrictionAt(tc.z); math.Abs(got-tc.friction) > 1e-9 {
			t.Fatalf("FrictionAt(%v) = %v, want %v", tc.z, got, tc.friction)
		}
		if got := m.ElevationAt(tc.z); math.Abs(got-tc.elevation) > 1e-9 {
			t.Fatalf("ElevationAt(%v) = %v, want %v", tc.z, got, tc.elevation)
		}
	}
	if got := m.BankAngleAt(325); math.Abs(got-10) > 1e-9 {
		t.Fatalf("BankAngleAt(325) = %v, want 10", got)
	}
	if got := m.BankAngleAt(0); got != 0 {
		t.Fatalf("BankAngleAt(0) = %v, want 0", got)
	}
}

func TestElevationIsContinuousAcrossLapLine(t *testing.T) {
	m := mustHarbor(t)
	before := m.ElevationAt(m.Length - 1e-9)
	after := m.ElevationAt(0)
	if math.Abs(before-after) > 1e-6 {
		t.Fatalf("elevation jumps across lap line: %v vs %v", before, after)
	}
}

func drive(p *Progress, m *Manifest, from, to float64, laps int, now time.Time) []Update {
	var updates []Update
	for z := from; z < to; z++ {
		u := AdvanceRaceProgress(p, z, z+1, m, laps, now)
		updates = append(updates, u)
	}
	return updates
}

func TestFullRaceCompletesAfterEveryLap(t *testing.T) {
	m := mustHarbor(t)
	p := NewProgress()
	now := time.Unix(50, 0)

	updates := drive(&p, m, -10, 0, 0, now)
	last := updates[len(updates)-1]
	if !last.WrapIgnored || last.LapCompleted || last.Checkpoint != 0 {
		t.Fatalf("crossing the line from the grid should only validate checkpoint 0, got %+v", last)
	}
	if p.Lap != 0 || p.CheckpointIndex != 0 {
		t.Fatalf("unexpected progress after start %+v", p)
	}

	laps := 0
	finished := 0
	for _, u := range drive(&p, m, 0, 3*m.Length, 0, now) {
		if u.LapCompleted {
			laps++
		}
		if u.JustFinished {
			finished++
		}
	}
	if laps != 3 || p.Lap != 3 {
		t.Fatalf("expected 3 laps, counted %d (progress %d)", laps, p.Lap)
	}
	if finished != 1 || !p.Finished() || !p.FinishedAt.Equal(now) {
		t.Fatalf("expected a single finish at %v, got %d %+v", now, finished, p)
	}

	u := AdvanceRaceProgress(&p, 3*m.Length, 3*m.Length+400, m, 0, now.Add(time.Second))
	if !u.Finished || u.JustFinished || p.Lap != 3 {
		t.Fatalf("finished progress must not change, got %+v %+v", u, p)
	}
}

func TestCheckpointsCannotBeSkipped(t *testing.T) {
	m := mustHarbor(t)
	p := NewProgress()
	now := time.Unix(0, 0)
	AdvanceRaceProgress(&p, -1, 1, m, 0, now)
	if p.CheckpointIndex != 0 {
		t.Fatalf("expected checkpoint 0, got %d", p.CheckpointIndex)
	}

	// teleport past checkpoint 2 without touching checkpoint 1
	u := AdvanceRaceProgress(&p, 590, 610, m, 0, now)
	if u.Checkpoint != -1 || p.CheckpointIndex != 0 {
		t.Fatalf("out of order checkpoint must not count, got %+v index %d", u, p.CheckpointIndex)
	}

	// one move across two checkpoints only validates the next expected one
	u = AdvanceRaceProgress(&p, 250, 650, m, 0, now)
	if u.Checkpoint != 1 || p.CheckpointIndex != 1 {
		t.Fatalf("expected exactly checkpoint 1, got %+v index %d", u, p.CheckpointIndex)
	}

	u = AdvanceRaceProgress(&p, 1199, 1201, m, 0, now)
	if !u.WrapIgnored || u.LapCompleted || p.Lap != 0 {
		t.Fatalf("lap must not count without final checkpoint, got %+v lap %d", u, p.Lap)
	}
}

func TestReversingOverTheLineDoesNothing(t *testing.T) {
	m := mustHarbor(t)
	p := Progress{Lap: 1, CheckpointIndex: 0}
	u := AdvanceRaceProgress(&p, 1201, 1199, m, 0, time.Unix(0, 0))
	if u.LapCompleted || u.WrapIgnored || u.Checkpoint != -1 || p.Lap != 1 || p.CheckpointIndex != 0 {
		t.Fatalf("reverse movement must not change progress, got %+v %+v", u, p)
	}
}

func TestLapOverrideFinishesEarly(t *testing.T) {
	m := mustHarbor(t)
	p := NewProgress()
	now := time.Unix(0, 0)
	drive(&p, m, -1, m.Length, 1, now)
	if !p.Finished() || p.Lap != 1 {
		t.Fatalf("expected finish after one lap with override, got %+v", p)
	}
}

func TestDistanceIsContinuousAcrossLaps(t *testing.T) {
	m := mustHarbor(t)
	p := NewProgress()
	now := time.Unix(0, 0)
	prev := -10.0
	AdvanceRaceProgress(&p, prev-1, prev, m, 0, now)
	last := p.Distance
	for z := prev; z < 2*m.Length+50; z++ {
		AdvanceRaceProgress(&p, z, z+1, m, 0, now)
		if d := p.Distance - last; math.Abs(d-1) > 1e-9 {
			t.Fatalf("distance jumped by %v at z=%v (lap %d, checkpoint %d)", d, z+1, p.Lap, p.CheckpointIndex)
		}
		last = p.Distance
	}
	if p.Lap != 2 {
		t.Fatalf("expected two completed laps, got %d", p.Lap)
	}
}
