package intake

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"driftrace/internal/net/proto"
	"driftrace/internal/sim"
	"driftrace/internal/telemetry"
	"driftrace/logging"
	"driftrace/logging/network"
)

// DropRateLimited marks an input frame that arrived sooner than the minimum
// inter-frame interval allows.
const DropRateLimited = "rate_limited"

// EndsSession reports whether a drop reason ends the session. A frame in an
// unsupported protocol version is answered with a rejection, not ignored.
func EndsSession(reason string) bool {
	return reason == proto.ReasonUnsupportedProtocol
}

// DefaultMaxInputHz is used when a gate is built without a rate.
const DefaultMaxInputHz = 60

// Stager accepts commands for the next tick. *sim.Room satisfies it.
type Stager interface {
	Enqueue(cmd sim.Command) (bool, string)
}

// Config carries the per-connection limits and observers of a Gate.
type Config struct {
	MaxInputHz int
	Metrics    telemetry.Metrics
	Publisher  logging.Publisher
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Gate admits the frames of one connection into a room. Every frame passes
// the decoder; input frames are additionally held to the configured rate.
// Rejected frames are dropped without a reply and never touch room state.
type Gate struct {
	decoder  *proto.Decoder
	room     Stager
	roomID   string
	playerID string

	limiter   *rate.Limiter
	now       func() time.Time
	metrics   telemetry.Metrics
	publisher logging.Publisher
	sampled   zerolog.Logger
}

// NewGate builds the admission gate for playerID in the given room.
func NewGate(decoder *proto.Decoder, room Stager, roomID, playerID string, cfg Config) *Gate {
	hz := cfg.MaxInputHz
	if hz <= 0 {
		hz = DefaultMaxInputHz
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger.With().Str("room", roomID).Str("player", playerID).Logger()
	return &Gate{
		decoder:   decoder,
		room:      room,
		roomID:    roomID,
		playerID:  playerID,
		limiter:   rate.NewLimiter(rate.Every(time.Second/time.Duration(hz)), 1),
		now:       now,
		metrics:   telemetry.OrNop(cfg.Metrics),
		publisher: logging.OrNop(cfg.Publisher),
		sampled:   telemetry.Sampled(logger),
	}
}

// Admit decodes one raw frame and stages the resulting command. It returns
// the staged command, or false with the drop reason. Check EndsSession on the
// reason before reading the next frame.
func (g *Gate) Admit(data []byte) (sim.Command, bool, string) {
	var zero sim.Command

	in, err := g.decoder.Decode(data)
	if err != nil {
		reason := proto.Reason(err)
		g.drop(reason, in.Type, len(data), err)
		return zero, false, reason
	}

	now := g.now()
	command := sim.Command{ActorID: g.playerID, IssuedAt: now}
	switch in.Type {
	case proto.TypeInput:
		if !g.limiter.AllowN(now, 1) {
			g.drop(DropRateLimited, in.Type, len(data), nil)
			return zero, false, DropRateLimited
		}
		command.Type = sim.CommandInput
		command.Input = InputCommand(in.Input)
	case proto.TypeAbility:
		command.Type = sim.CommandAbility
		command.Ability = &sim.AbilityCommand{
			AbilityID: in.Ability.AbilityID,
			Seq:       in.Ability.Seq,
			TargetID:  in.Ability.TargetID,
		}
	case proto.TypeRestart:
		command.Type = sim.CommandRestart
	}

	if ok, reason := g.room.Enqueue(command); !ok {
		g.drop(reason, in.Type, len(data), nil)
		return zero, false, reason
	}
	return command, true, ""
}

// InputCommand maps a decoded input frame onto a simulation command.
func InputCommand(msg *proto.InputMessage) *sim.InputCommand {
	if msg == nil {
		return nil
	}
	cmd := &sim.InputCommand{
		Seq:         msg.Seq,
		ClientTime:  msg.ClientTime,
		Cruise:      msg.Cruise,
		AckSnapshot: msg.AckSnapshot,
	}
	cmd.Controls.Throttle = msg.Throttle
	cmd.Controls.Steering = msg.Steering
	cmd.Controls.Brake = msg.Brake
	cmd.Controls.Boost = msg.Boost
	cmd.Controls.Handbrake = msg.Handbrake
	return cmd
}

func (g *Gate) drop(reason, msgType string, size int, err error) {
	g.metrics.AddReason(telemetry.KeyInboundDropped, reason, 1)
	entry := g.sampled.Debug().Str("reason", reason).Str("type", msgType).Int("bytes", size)
	if err != nil {
		entry = entry.Err(err)
	}
	entry.Msg("inbound frame dropped")
	network.FrameDropped(context.Background(), g.publisher, g.roomID, logging.PlayerRef(g.playerID), network.FrameDroppedPayload{
		Reason: reason,
		Type:   msgType,
		Bytes:  size,
	})
}
