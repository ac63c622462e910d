package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"driftrace/internal/config"
	"driftrace/internal/drift"
	"driftrace/internal/motion"
	servernet "driftrace/internal/net"
	"driftrace/internal/net/proto"
	"driftrace/internal/net/ws"
	"driftrace/internal/observability"
	"driftrace/internal/room"
	"driftrace/internal/sim"
	"driftrace/internal/telemetry"
	"driftrace/internal/track"
	"driftrace/logging"
	loggingSinks "driftrace/logging/sinks"
)

const shutdownTimeout = 10 * time.Second

// Server is a fully wired race server that has not started listening.
type Server struct {
	Logger  zerolog.Logger
	Rooms   *room.Manager
	Handler http.Handler

	router  *logging.Router
	closers []io.Closer
}

// New builds the server from cfg. Logs go to out.
func New(cfg config.Config, out io.Writer) (*Server, error) {
	logger, logCloser, err := telemetry.NewLogger(cfg.Telemetry(), out)
	if err != nil {
		return nil, err
	}
	s := &Server{Logger: logger, closers: []io.Closer{logCloser}}

	vehicles, err := motion.DefaultCatalog()
	if err != nil {
		s.closeAll()
		return nil, fmt.Errorf("load vehicles: %w", err)
	}
	tracks, err := track.DefaultCatalog()
	if err != nil {
		s.closeAll()
		return nil, fmt.Errorf("load tracks: %w", err)
	}
	if id := cfg.Race.DefaultTrack; id != "" && !tracks.Has(id) {
		logger.Warn().Str("track", id).Str("fallback", tracks.DefaultID()).Msg("unknown default track")
	}

	router, err := s.newRouter(cfg, logger)
	if err != nil {
		s.closeAll()
		return nil, err
	}
	s.router = router

	metrics := telemetry.NewOTelMetrics(otel.Meter("driftrace"))
	s.Rooms = room.NewManager(cfg.Room(), sim.Deps{
		Logger:    logger,
		Metrics:   metrics,
		Vehicles:  vehicles,
		Tracks:    tracks,
		Drift:     drift.DefaultConfig(),
		Publisher: router,
	}, nil)

	s.Handler = servernet.NewHTTPHandler(s.Rooms, servernet.HTTPHandlerConfig{
		Logger:        logger,
		Observability: observability.Config{EnablePprof: cfg.Server.EnablePprof},
		WS: ws.HandlerConfig{
			Metrics:       metrics,
			Publisher:     router,
			Decoder:       proto.NewDecoder(cfg.Net.MaxPayloadBytes, cfg.Net.MaxJoinBytes),
			MaxInputHz:    cfg.Net.MaxInputHz,
			OutboundQueue: cfg.Net.OutboundQueue,
			MaxJoinBytes:  cfg.Net.MaxJoinBytes,
		},
	})
	return s, nil
}

func (s *Server) newRouter(cfg config.Config, logger zerolog.Logger) (*logging.Router, error) {
	logConfig := logging.DefaultConfig()
	logConfig.MinimumSeverity = logging.ParseSeverity(cfg.Log.Level)
	sinks := []logging.NamedSink{
		{Name: logging.SinkConsole, Sink: loggingSinks.NewConsole(logger)},
	}

	if path := cfg.Log.EventsFile; path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open events file: %w", err)
		}
		// The JSON sink owns the file and closes it with the router.
		sinks = append(sinks, logging.NamedSink{
			Name: logging.SinkJSON,
			Sink: loggingSinks.NewJSON(file, logConfig.JSONFlushInterval),
		})
	}
	return logging.NewRouter(nil, logConfig, logger, sinks), nil
}

// Close stops every room, drains the event router and releases log outputs.
func (s *Server) Close(ctx context.Context) error {
	if s.Rooms != nil {
		s.Rooms.Close()
	}
	var errs []error
	if s.router != nil {
		if err := s.router.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close logging router: %w", err))
		}
	}
	errs = append(errs, s.closeAll())
	return errors.Join(errs...)
}

func (s *Server) closeAll() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Run serves until ctx is cancelled or the listener fails, then shuts down
// gracefully.
func Run(ctx context.Context, cfg config.Config) error {
	s, err := New(cfg, os.Stdout)
	if err != nil {
		return err
	}
	logger := s.Logger

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Int("simHz", cfg.Sim.TickHz).
			Int("snapshotHz", cfg.Sim.SnapshotHz).
			Msg("server listening")
		serveErr <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	if err := s.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("close server")
	}
	return runErr
}
