package sim

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"driftrace/internal/drift"
	"driftrace/internal/motion"
	"driftrace/internal/telemetry"
	"driftrace/internal/track"
	"driftrace/logging"
)

// Status is the race state of a room.
type Status string

const (
	StatusCreated  Status = "created"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
)

var (
	ErrRoomFull        = errors.New("sim: room is full")
	ErrDuplicatePlayer = errors.New("sim: player already in room")
	ErrUnknownPlayer   = errors.New("sim: unknown player")
	ErrMissingCatalogs = errors.New("sim: vehicle and track catalogs are required")
)

// JoinRequest describes a player entering a room.
type JoinRequest struct {
	PlayerID string
	Name     string
	Vehicle  string
	Color    string
}

// Room is the authoritative simulation of one race. Enqueue is safe for
// concurrent use; every other method must be called from the goroutine that
// owns the room.
type Room struct {
	id    string
	seed  string
	cfg   Config
	track *track.Manifest
	laps  int

	vehicles *motion.Catalog
	driftCfg drift.Config
	newID    func() string

	logger    zerolog.Logger
	sampled   zerolog.Logger
	metrics   telemetry.Metrics
	publisher logging.Publisher

	status         Status
	raceStartAt    time.Time
	startAnnounced bool
	firstFinishAt  time.Time
	winnerID       string

	players     map[string]*Player
	order       []string
	hazards     []*Pickup
	powerups    []*Pickup
	projectiles []*Projectile
	events      []Event

	tick     uint64
	sequence uint64

	commands *CommandQueue
}

// NewRoom creates an empty room on the given track. An unknown track id falls
// back to the default track.
func NewRoom(id, trackID string, cfg Config, deps Deps) (*Room, error) {
	if deps.Vehicles == nil || deps.Tracks == nil {
		return nil, ErrMissingCatalogs
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("sim: room id is required")
	}
	cfg = cfg.normalized()
	if strings.TrimSpace(trackID) == "" {
		trackID = cfg.DefaultTrack
	}
	manifest := deps.Tracks.Resolve(trackID)
	if manifest == nil {
		return nil, fmt.Errorf("sim: no track available for %q", trackID)
	}
	driftCfg := deps.Drift
	if err := driftCfg.Validate(); err != nil {
		driftCfg = drift.DefaultConfig()
	}
	newID := deps.IDs
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	metrics := telemetry.OrNop(deps.Metrics)
	logger := deps.Logger.With().Str("room", id).Logger()

	laps := cfg.Laps
	if laps <= 0 {
		laps = manifest.Laps
	}

	r := &Room{
		id:        id,
		seed:      newID(),
		cfg:       cfg,
		track:     manifest,
		laps:      laps,
		vehicles:  deps.Vehicles,
		driftCfg:  driftCfg,
		newID:     newID,
		logger:    logger,
		sampled:   telemetry.Sampled(logger),
		metrics:   metrics,
		publisher: logging.OrNop(deps.Publisher),
		status:    StatusCreated,
		players:   make(map[string]*Player),
		hazards:   newPickups(manifest.Spawns, track.KindHazard),
		powerups:  newPickups(manifest.Spawns, track.KindPowerup),
		commands:  NewCommandQueue(cfg.CommandBuffer, cfg.PerActorLimit, metrics),
	}
	return r, nil
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// Seed returns the room seed shared with clients on join.
func (r *Room) Seed() string { return r.seed }

// Track returns the room's track.
func (r *Room) Track() *track.Manifest { return r.track }

// Laps returns the number of laps to finish.
func (r *Room) Laps() int { return r.laps }

// Status returns the race status.
func (r *Room) Status() Status { return r.status }

// WinnerID returns the first finisher, if any.
func (r *Room) WinnerID() string { return r.winnerID }

// PlayerCount returns the number of players in the room.
func (r *Room) PlayerCount() int { return len(r.order) }

// Player returns the player with id.
func (r *Room) Player(id string) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// Roster lists players in join order.
func (r *Room) Roster() []RosterEntry {
	roster := make([]RosterEntry, 0, len(r.order))
	for _, id := range r.order {
		p := r.players[id]
		roster = append(roster, RosterEntry{ID: p.ID, Name: p.Name, Vehicle: p.Vehicle, Color: p.Color})
	}
	return roster
}

// AddPlayer places a new car on the grid. The first player starts the
// countdown.
func (r *Room) AddPlayer(req JoinRequest, now time.Time) (*Player, error) {
	if len(r.order) >= r.cfg.MaxPlayers {
		return nil, ErrRoomFull
	}
	id := strings.TrimSpace(req.PlayerID)
	if id == "" {
		id = r.newID()
	}
	if _, exists := r.players[id]; exists {
		return nil, ErrDuplicatePlayer
	}
	class := r.vehicles.Resolve(req.Vehicle)
	p := &Player{
		ID:       id,
		Name:     strings.TrimSpace(req.Name),
		Vehicle:  class.ID,
		Color:    req.Color,
		Class:    class,
		JoinedAt: now,
	}
	p.resetForRace(r.freeSlot(), r.track, now)
	r.players[id] = p
	r.order = append(r.order, id)
	r.emit(EventPlayerJoined, id, now, map[string]any{"name": p.Name, "vehicle": p.Vehicle})
	r.logger.Info().Str("player", id).Str("vehicle", p.Vehicle).Int("players", len(r.order)).Msg("player joined")

	if r.status == StatusCreated {
		r.startRace(now)
	}
	return p, nil
}

// RemovePlayer drops a player and everything it owns.
func (r *Room) RemovePlayer(id string, now time.Time) error {
	if _, ok := r.players[id]; !ok {
		return ErrUnknownPlayer
	}
	delete(r.players, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.removeProjectilesOf(id)
	r.commands.Forget(id)
	r.emit(EventPlayerLeft, id, now, nil)
	r.logger.Info().Str("player", id).Int("players", len(r.order)).Msg("player left")
	return nil
}

func (r *Room) freeSlot() int {
	used := make(map[int]bool, len(r.order))
	for _, id := range r.order {
		used[r.players[id].slot] = true
	}
	for slot := 0; ; slot++ {
		if !used[slot] {
			return slot
		}
	}
}

// Enqueue stages a command for the next tick, enforcing per-actor throttling
// and capacity limits.
func (r *Room) Enqueue(cmd Command) (bool, string) {
	if r == nil {
		return false, CommandRejectQueueFull
	}
	return r.commands.Stage(cmd)
}

// QueueInput stages an input frame.
func (r *Room) QueueInput(playerID string, input InputCommand, now time.Time) (bool, string) {
	return r.Enqueue(Command{ActorID: playerID, Type: CommandInput, IssuedAt: now, Input: &input})
}

// QueueAbility stages an ability activation.
func (r *Room) QueueAbility(playerID string, ability AbilityCommand, now time.Time) (bool, string) {
	return r.Enqueue(Command{ActorID: playerID, Type: CommandAbility, IssuedAt: now, Ability: &ability})
}

// RequestRestart stages a restart request.
func (r *Room) RequestRestart(playerID string, now time.Time) (bool, string) {
	return r.Enqueue(Command{ActorID: playerID, Type: CommandRestart, IssuedAt: now})
}

func (r *Room) drainCommands() []Command {
	return r.commands.Take()
}

func (r *Room) startRace(now time.Time) {
	r.status = StatusRunning
	r.raceStartAt = now.Add(r.cfg.Countdown)
	r.startAnnounced = false
	r.firstFinishAt = time.Time{}
	r.winnerID = ""
	r.emit(EventCountdown, "", now, map[string]any{
		"startsAtMs": r.raceStartAt.UnixMilli(),
		"seconds":    r.cfg.Countdown.Seconds(),
	})
}

func (r *Room) restart(playerID string, now time.Time) {
	if r.status != StatusFinished {
		r.emit(EventRestartRejected, playerID, now, map[string]any{"status": string(r.status)})
		return
	}
	for i, id := range r.order {
		r.players[id].resetForRace(i, r.track, now)
	}
	r.hazards = newPickups(r.track.Spawns, track.KindHazard)
	r.powerups = newPickups(r.track.Spawns, track.KindPowerup)
	r.projectiles = nil
	r.logger.Info().Str("by", playerID).Msg("race restarted")
	r.startRace(now)
}

// racing reports whether cars may drive at now.
func (r *Room) racing(now time.Time) bool {
	return r.status == StatusRunning && !now.Before(r.raceStartAt)
}
