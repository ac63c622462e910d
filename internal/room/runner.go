package room

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"driftrace/internal/net/proto"
	"driftrace/internal/sim"
	"driftrace/internal/telemetry"
	"driftrace/logging"
	"driftrace/logging/lifecycle"
	"driftrace/logging/race"
	"driftrace/logging/simulation"
)

// Config tunes the room loop.
type Config struct {
	SimHz      int
	SnapshotHz int
	// MaxInputHz is advertised to clients on join.
	MaxInputHz int
	// CatchupMaxTicks bounds the step size after a stall, in ticks.
	CatchupMaxTicks int
	InboxSize       int
	Sim             sim.Config
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		SimHz:           60,
		SnapshotHz:      20,
		MaxInputHz:      60,
		CatchupMaxTicks: 4,
		InboxSize:       64,
		Sim:             sim.DefaultConfig(),
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.SimHz <= 0 {
		c.SimHz = def.SimHz
	}
	if c.SnapshotHz <= 0 {
		c.SnapshotHz = def.SnapshotHz
	}
	if c.SnapshotHz > c.SimHz {
		c.SnapshotHz = c.SimHz
	}
	if c.MaxInputHz <= 0 {
		c.MaxInputHz = def.MaxInputHz
	}
	if c.CatchupMaxTicks < 1 {
		c.CatchupMaxTicks = 1
	}
	if c.InboxSize <= 0 {
		c.InboxSize = def.InboxSize
	}
	return c
}

// broadcastEvery returns how many sim ticks pass between snapshots.
func (c Config) broadcastEvery() uint64 {
	every := c.SimHz / c.SnapshotHz
	if every < 1 {
		every = 1
	}
	return uint64(every)
}

type joinRequest struct {
	req   sim.JoinRequest
	conn  Conn
	reply chan joinReply
}

type joinReply struct {
	playerID string
	err      error
}

type leaveRequest struct {
	playerID string
	reason   string
}

type request struct {
	join  *joinRequest
	leave *leaveRequest
	// reap closes the room if nobody is in it.
	reap bool
}

// Runner owns one room. A single goroutine steps the simulation on a fixed
// tick, broadcasts snapshots every few ticks and serves joins and leaves from
// its inbox; the simulation is never touched from anywhere else. Enqueue is
// the one exception and is safe for concurrent use.
type Runner struct {
	id    string
	room  *sim.Room
	cfg   Config
	clock logging.Clock

	logger    zerolog.Logger
	metrics   telemetry.Metrics
	publisher logging.Publisher

	inbox    chan request
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	onClosed func(*Runner)
	onChange func()

	players atomic.Int32

	// Owned by the loop goroutine.
	conns         map[string]Conn
	last          time.Time
	steps         uint64
	overrunStreak int
}

type runnerHooks struct {
	onClosed func(*Runner)
	onChange func()
}

func newRunner(id, trackID string, cfg Config, deps sim.Deps, clock logging.Clock, hooks runnerHooks) (*Runner, error) {
	cfg = cfg.normalized()
	room, err := sim.NewRoom(id, trackID, cfg.Sim, deps)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = logging.ClockFunc(time.Now)
	}
	return &Runner{
		id:        id,
		room:      room,
		cfg:       cfg,
		clock:     clock,
		logger:    deps.Logger.With().Str("room", id).Logger(),
		metrics:   telemetry.OrNop(deps.Metrics),
		publisher: logging.OrNop(deps.Publisher),
		inbox:     make(chan request, cfg.InboxSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		onClosed:  hooks.onClosed,
		onChange:  hooks.onChange,
		conns:     make(map[string]Conn),
	}, nil
}

// ID returns the room id.
func (r *Runner) ID() string { return r.id }

// TrackID returns the id of the track being raced.
func (r *Runner) TrackID() string { return r.room.Track().ID }

// Players returns the number of connected players.
func (r *Runner) Players() int { return int(r.players.Load()) }

// Done is closed once the loop has exited.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Enqueue stages a command for the next tick.
func (r *Runner) Enqueue(cmd sim.Command) (bool, string) {
	return r.room.Enqueue(cmd)
}

// Join adds a player and registers conn for broadcasts. The room_joined
// frame is queued on conn before the call returns, ahead of any snapshot.
func (r *Runner) Join(ctx context.Context, req sim.JoinRequest, conn Conn) (string, error) {
	reply := make(chan joinReply, 1)
	select {
	case r.inbox <- request{join: &joinRequest{req: req, conn: conn, reply: reply}}:
	case <-r.done:
		return "", ErrRoomClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case rep := <-reply:
		return rep.playerID, rep.err
	case <-r.done:
		return "", ErrRoomClosed
	case <-ctx.Done():
		// The loop may still admit the player; release the slot if so.
		go func() {
			select {
			case rep := <-reply:
				if rep.err == nil {
					r.Leave(rep.playerID, "abandoned")
				}
			case <-r.done:
			}
		}()
		return "", ctx.Err()
	}
}

// Leave removes a player. It is a no-op once the room has closed.
func (r *Runner) Leave(playerID, reason string) {
	select {
	case r.inbox <- request{leave: &leaveRequest{playerID: playerID, reason: reason}}:
	case <-r.done:
	}
}

// reapIfEmpty asks the loop to close the room when it has no players.
func (r *Runner) reapIfEmpty() {
	select {
	case r.inbox <- request{reap: true}:
	case <-r.done:
	}
}

// Close stops the loop and waits for it to exit.
func (r *Runner) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Runner) start() {
	lifecycle.RoomOpened(context.Background(), r.publisher, r.id, lifecycle.RoomPayload{TrackID: r.TrackID()})
	r.logger.Info().Str("track", r.TrackID()).Int("simHz", r.cfg.SimHz).Int("snapshotHz", r.cfg.SnapshotHz).Msg("room opened")
	go r.run()
}

func (r *Runner) run() {
	defer r.shutdown()

	ticker := time.NewTicker(time.Second / time.Duration(r.cfg.SimHz))
	defer ticker.Stop()
	r.last = r.clock.Now()

	for {
		select {
		case <-r.stop:
			return
		case req := <-r.inbox:
			if r.handle(req) {
				return
			}
		case <-ticker.C:
			r.advance(r.clock.Now())
		}
	}
}

// handle serves one inbox request and reports whether the room emptied.
func (r *Runner) handle(req request) bool {
	switch {
	case req.join != nil:
		r.handleJoin(req.join)
	case req.leave != nil:
		return r.handleLeave(req.leave)
	case req.reap:
		return r.room.PlayerCount() == 0 && len(r.inbox) == 0
	}
	return false
}

func (r *Runner) handleJoin(jr *joinRequest) {
	now := r.clock.Now()
	player, err := r.room.AddPlayer(jr.req, now)
	if err != nil {
		jr.reply <- joinReply{err: err}
		return
	}
	r.conns[player.ID] = jr.conn
	r.setPlayers()

	joined := proto.RoomJoined{
		PlayerID:   player.ID,
		RoomID:     r.id,
		Seed:       r.room.Seed(),
		Version:    proto.Version,
		TrackID:    r.TrackID(),
		Laps:       r.room.Laps(),
		SimHz:      r.cfg.SimHz,
		SnapshotHz: r.cfg.SnapshotHz,
		MaxInputHz: r.cfg.MaxInputHz,
		Roster:     r.room.Roster(),
		Snapshot:   proto.SnapshotTuple(r.room.Snapshot(now)),
	}
	frame, err := proto.EncodeMessage(jr.conn.Codec(), proto.TypeRoomJoined, joined)
	if err != nil {
		r.logger.Error().Err(err).Str("player", player.ID).Msg("failed to encode room_joined")
	} else if !jr.conn.Send(frame) {
		r.metrics.Add(telemetry.KeyOutboundDropped, 1)
	}

	lifecycle.PlayerJoined(context.Background(), r.publisher, r.room.Tick(), r.id, logging.PlayerRef(player.ID), lifecycle.PlayerJoinedPayload{
		Vehicle: player.Vehicle,
		SpawnX:  player.State.X,
		SpawnZ:  player.State.Z,
	})
	jr.reply <- joinReply{playerID: player.ID}

	// The join emits lifecycle events of its own; deliver them now rather
	// than on the next tick.
	r.flushEvents()
}

func (r *Runner) handleLeave(lr *leaveRequest) bool {
	if _, ok := r.conns[lr.playerID]; !ok {
		return false
	}
	delete(r.conns, lr.playerID)
	if err := r.room.RemovePlayer(lr.playerID, r.clock.Now()); err != nil {
		r.logger.Warn().Err(err).Str("player", lr.playerID).Msg("leave for unknown player")
	}
	r.setPlayers()
	lifecycle.PlayerDisconnected(context.Background(), r.publisher, r.room.Tick(), r.id, logging.PlayerRef(lr.playerID), lifecycle.PlayerDisconnectedPayload{
		Reason: lr.reason,
	})
	r.flushEvents()
	return r.room.PlayerCount() == 0 && len(r.inbox) == 0
}

// advance runs one fixed step. The step size is measured from the previous
// tick and clamped so a stalled loop catches up in bounded steps.
func (r *Runner) advance(now time.Time) {
	budget := time.Second / time.Duration(r.cfg.SimHz)
	budgetSeconds := budget.Seconds()
	maxDt := budgetSeconds * float64(r.cfg.CatchupMaxTicks)

	dt := now.Sub(r.last).Seconds()
	if dt <= 0 {
		dt = budgetSeconds
	} else if dt > maxDt {
		dt = maxDt
	}
	r.last = now

	start := r.clock.Now()
	r.room.Step(now, dt)
	r.flushEvents()
	r.steps++
	if r.steps%r.cfg.broadcastEvery() == 0 {
		r.broadcastSnapshot(now)
	}
	r.recordTick(r.clock.Now().Sub(start), budget)
}

func (r *Runner) recordTick(duration, budget time.Duration) {
	r.metrics.Record(telemetry.KeyTickSeconds, duration.Seconds())
	if duration <= budget {
		r.overrunStreak = 0
		return
	}
	r.overrunStreak++
	r.metrics.Add(telemetry.KeyTickOverrun, 1)
	streak := r.overrunStreak
	if streak&(streak-1) != 0 {
		return
	}
	simulation.TickBudgetOverrun(context.Background(), r.publisher, r.room.Tick(), r.id, simulation.TickBudgetOverrunPayload{
		DurationMillis: float64(duration) / float64(time.Millisecond),
		BudgetMillis:   float64(budget) / float64(time.Millisecond),
		Ratio:          float64(duration) / float64(budget),
		Streak:         uint64(streak),
	})
}

func (r *Runner) broadcastSnapshot(now time.Time) {
	if len(r.conns) == 0 {
		return
	}
	snap := r.room.Snapshot(now)
	cache := newFrameCache(func(c proto.Codec) ([]byte, error) {
		return proto.EncodeSnapshotMessage(c, snap)
	})
	for playerID, conn := range r.conns {
		frame, err := cache.frame(conn.Codec())
		if err != nil {
			r.logger.Error().Err(err).Str("encoding", string(conn.Codec().Encoding())).Msg("failed to encode snapshot")
			continue
		}
		if !conn.Send(frame) {
			r.metrics.Add(telemetry.KeyOutboundDropped, 1)
			r.logger.Debug().Str("player", playerID).Uint64("seq", snap.Seq).Msg("snapshot dropped for slow connection")
			continue
		}
		r.metrics.Add(telemetry.KeySnapshotsSent, 1)
		r.metrics.Add(telemetry.KeySnapshotBytes, uint64(len(frame)))
	}
}

// flushEvents sends drained race events to every connection.
func (r *Runner) flushEvents() {
	events := r.room.DrainEvents()
	for _, event := range events {
		r.observe(event)
		if len(r.conns) == 0 {
			continue
		}
		msg := proto.NewRaceEvent(event)
		cache := newFrameCache(func(c proto.Codec) ([]byte, error) {
			return proto.EncodeMessage(c, proto.TypeRaceEvent, msg)
		})
		for _, conn := range r.conns {
			frame, err := cache.frame(conn.Codec())
			if err != nil {
				r.logger.Error().Err(err).Str("kind", msg.Kind).Msg("failed to encode race event")
				break
			}
			if !conn.Send(frame) {
				r.metrics.Add(telemetry.KeyOutboundDropped, 1)
			}
		}
	}
}

func (r *Runner) observe(event sim.Event) {
	ctx := context.Background()
	tick := r.room.Tick()
	if event.Kind == sim.EventRaceFinished {
		race.RaceFinished(ctx, r.publisher, tick, r.id, race.RaceFinishedPayload{
			WinnerID: r.room.WinnerID(),
			Players:  r.room.PlayerCount(),
			Laps:     r.room.Laps(),
			TrackID:  r.TrackID(),
		})
		return
	}
	race.Race(ctx, r.publisher, tick, r.id, logging.PlayerRef(event.PlayerID), race.RacePayload{
		Kind: string(event.Kind),
		Data: event.Data,
	})
}

func (r *Runner) setPlayers() {
	r.players.Store(int32(r.room.PlayerCount()))
	if r.onChange != nil {
		r.onChange()
	}
}

func (r *Runner) shutdown() {
	for playerID, conn := range r.conns {
		conn.Close()
		delete(r.conns, playerID)
	}
	r.players.Store(0)
	lifecycle.RoomClosed(context.Background(), r.publisher, r.room.Tick(), r.id, lifecycle.RoomPayload{
		TrackID: r.TrackID(),
		Players: r.room.PlayerCount(),
	})
	r.logger.Info().Uint64("tick", r.room.Tick()).Msg("room closed")
	close(r.done)
	if r.onClosed != nil {
		r.onClosed(r)
	}
}
