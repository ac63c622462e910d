package net

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"driftrace/internal/net/proto"
	"driftrace/internal/net/ws"
	"driftrace/internal/observability"
	"driftrace/internal/room"
)

type HTTPHandlerConfig struct {
	Logger        zerolog.Logger
	Observability observability.Config
	// WS tunes websocket sessions. Its logger is replaced by Logger.
	WS ws.HandlerConfig
}

type roomsResponse struct {
	ServerTime int64           `json:"serverTime"`
	Version    int             `json:"version"`
	SimHz      int             `json:"simHz"`
	SnapshotHz int             `json:"snapshotHz"`
	Rooms      []room.RoomInfo `json:"rooms"`
}

func NewHTTPHandler(rooms *room.Manager, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	mux := nethttp.NewServeMux()

	cfg.WS.Logger = logger
	sessions := ws.NewHandler(rooms, cfg.WS)
	mux.HandleFunc("/ws", sessions.Handle)

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/rooms", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		loop := rooms.Config()
		writeJSON(w, logger, roomsResponse{
			ServerTime: time.Now().UnixMilli(),
			Version:    proto.Version,
			SimHz:      loop.SimHz,
			SnapshotHz: loop.SnapshotHz,
			Rooms:      rooms.List(),
		})
	})

	mux.HandleFunc("/protocol/schema", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, logger, proto.Schema())
	})

	observability.Register(mux, cfg.Observability)
	return mux
}

func writeJSON(w nethttp.ResponseWriter, logger zerolog.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
