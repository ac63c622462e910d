package ws

import (
	"context"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"driftrace/internal/net/intake"
	"driftrace/internal/net/proto"
	"driftrace/internal/room"
	"driftrace/internal/sim"
	"driftrace/internal/telemetry"
	"driftrace/logging"
	"driftrace/logging/network"
)

// DropBinaryFrame marks an inbound binary frame; clients always send text.
const DropBinaryFrame = "binary_frame"

// readLimitSlack lets oversized frames reach the decoder, which rejects them
// with a reason, instead of gorilla closing the socket outright.
const readLimitSlack = 4

// HandlerConfig tunes websocket sessions.
type HandlerConfig struct {
	Logger    zerolog.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Decoder   *proto.Decoder
	// MaxInputHz caps how often a connection may send input frames.
	MaxInputHz int
	// OutboundQueue is the per-connection frame buffer.
	OutboundQueue int
	JoinTimeout   time.Duration
	WriteTimeout  time.Duration
	PongWait      time.Duration
	MaxJoinBytes  int
}

func (c HandlerConfig) normalized() HandlerConfig {
	if c.Decoder == nil {
		c.Decoder = proto.NewDecoder(0, c.MaxJoinBytes)
	}
	if c.MaxJoinBytes <= 0 {
		c.MaxJoinBytes = proto.DefaultMaxJoinBytes
	}
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = 64
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 30 * time.Second
	}
	c.Metrics = telemetry.OrNop(c.Metrics)
	c.Publisher = logging.OrNop(c.Publisher)
	return c
}

// Handler upgrades requests to websocket race sessions.
type Handler struct {
	rooms    *room.Manager
	cfg      HandlerConfig
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHandler constructs a websocket session handler over the room registry.
func NewHandler(rooms *room.Manager, cfg HandlerConfig) *Handler {
	cfg = cfg.normalized()
	if cfg.MaxInputHz <= 0 && rooms != nil {
		cfg.MaxInputHz = rooms.Config().MaxInputHz
	}
	return &Handler{
		rooms:  rooms,
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *nethttp.Request) bool {
				return true
			},
		},
	}
}

// Handle runs one session: join handshake, then the read loop until the
// client goes away or the room closes.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}
	limit := h.cfg.MaxJoinBytes
	if p := h.cfg.Decoder.MaxPayloadBytes(); p > limit {
		limit = p
	}
	conn.SetReadLimit(int64(limit * readLimitSlack))

	join, ok := h.readJoin(conn)
	if !ok {
		return
	}

	codec := proto.CodecFor(proto.ParseEncoding(join.Encoding))
	logger := h.logger.With().Str("room", join.RoomID).Logger()
	sess := newSession(conn, codec, h.cfg.OutboundQueue, h.cfg.WriteTimeout, h.pingInterval(), logger)

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.JoinTimeout)
	runner, playerID, err := h.rooms.Join(ctx, join.RoomID, join.Track, sim.JoinRequest{
		Name:    join.Name,
		Vehicle: join.Vehicle,
		Color:   join.Color,
	}, sess)
	cancel()
	if err != nil {
		h.rejectJoin(conn, join.RoomID, err)
		return
	}

	sess.logger = logger.With().Str("player", playerID).Logger()
	sess.startWriter()
	reason := h.readLoop(conn, sess, runner, playerID)
	runner.Leave(playerID, reason)
	sess.Close()
	sess.wait()
	sess.logger.Info().Str("reason", reason).Msg("session ended")
}

func (h *Handler) pingInterval() time.Duration {
	return h.cfg.PongWait * 9 / 10
}

// readJoin reads and validates the handshake frame, answering failures with
// join_error.
func (h *Handler) readJoin(conn *websocket.Conn) (proto.JoinMessage, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.JoinTimeout))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		h.logger.Debug().Err(err).Msg("no join received")
		conn.Close()
		return proto.JoinMessage{}, false
	}
	if msgType != websocket.TextMessage {
		h.rejectJoin(conn, "", proto.ErrMalformed)
		return proto.JoinMessage{}, false
	}
	join, err := h.cfg.Decoder.DecodeJoin(data)
	if err != nil {
		h.rejectJoin(conn, join.RoomID, err)
		return proto.JoinMessage{}, false
	}
	return join, true
}

// rejection reports a refused join or session and builds the join_error
// frame, always JSON text, with its close code.
func (h *Handler) rejection(roomID, playerID string, err error) ([]byte, int, string) {
	msg := proto.NewJoinError(err)
	actor := logging.EntityRef{Kind: logging.EntityKindConnection}
	if playerID != "" {
		actor = logging.PlayerRef(playerID)
	}
	network.JoinRejected(context.Background(), h.cfg.Publisher, actor, network.JoinRejectedPayload{
		Reason: msg.Reason,
		RoomID: roomID,
	})
	level := zerolog.InfoLevel
	if msg.Reason == proto.ReasonServerError {
		level = zerolog.ErrorLevel
	}
	h.logger.WithLevel(level).Err(err).Str("reason", msg.Reason).Str("room", roomID).Str("player", playerID).Msg("session rejected")

	code := websocket.ClosePolicyViolation
	if errors.Is(err, proto.ErrUnsupportedProtocol) {
		code = websocket.CloseProtocolError
	}
	frame, encErr := proto.EncodeMessage(proto.CodecFor(proto.EncodingJSON), proto.TypeJoinError, msg)
	if encErr != nil {
		return nil, code, msg.Reason
	}
	return frame, code, msg.Reason
}

// rejectJoin answers a failed handshake. The session writer is not running
// yet, so it writes to conn directly.
func (h *Handler) rejectJoin(conn *websocket.Conn, roomID string, err error) {
	defer conn.Close()

	frame, code, reason := h.rejection(roomID, "", err)
	h.cfg.Metrics.AddReason(telemetry.KeyInboundDropped, reason, 1)
	if frame == nil {
		return
	}
	deadline := time.Now().Add(h.cfg.WriteTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if writeErr := conn.WriteMessage(websocket.TextMessage, frame); writeErr != nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// readLoop feeds frames through the admission gate until the socket fails or
// a frame ends the session. It returns the disconnect reason.
func (h *Handler) readLoop(conn *websocket.Conn, sess *session, runner *room.Runner, playerID string) string {
	gate := intake.NewGate(h.cfg.Decoder, runner, runner.ID(), playerID, intake.Config{
		MaxInputHz: h.cfg.MaxInputHz,
		Metrics:    h.cfg.Metrics,
		Publisher:  h.cfg.Publisher,
		Logger:     h.logger,
	})

	extend := func() {
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "closed"
			}
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				return "timeout"
			}
			return "read_error"
		}
		extend()
		if msgType != websocket.TextMessage {
			h.cfg.Metrics.AddReason(telemetry.KeyInboundDropped, DropBinaryFrame, 1)
			continue
		}
		if _, ok, reason := gate.Admit(data); !ok && intake.EndsSession(reason) {
			frame, code, text := h.rejection(runner.ID(), playerID, proto.ErrUnsupportedProtocol)
			sess.Reject(frame, code, text)
			return reason
		}
	}
}
