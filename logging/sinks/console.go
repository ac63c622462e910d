package sinks

import (
	"context"

	"github.com/rs/zerolog"

	"driftrace/logging"
)

// Console writes events through a zerolog logger.
type Console struct {
	logger zerolog.Logger
}

func NewConsole(logger zerolog.Logger) *Console {
	return &Console{logger: logger.With().Str("component", "events").Logger()}
}

func (s *Console) Write(event logging.Event) error {
	e := s.logger.WithLevel(level(event.Severity)).
		Str("type", string(event.Type)).
		Uint64("tick", event.Tick)
	if event.RoomID != "" {
		e = e.Str("room", event.RoomID)
	}
	if event.Actor.ID != "" {
		e = e.Str("actor", formatEntity(event.Actor))
	}
	if len(event.Targets) > 0 {
		targets := make([]string, 0, len(event.Targets))
		for _, target := range event.Targets {
			targets = append(targets, formatEntity(target))
		}
		e = e.Strs("targets", targets)
	}
	if event.Payload != nil {
		e = e.Interface("payload", event.Payload)
	}
	if len(event.Extra) > 0 {
		e = e.Fields(event.Extra)
	}
	e.Msg(event.Category)
	return nil
}

func (s *Console) Close(context.Context) error {
	return nil
}

func level(sev logging.Severity) zerolog.Level {
	switch sev {
	case logging.SeverityDebug:
		return zerolog.DebugLevel
	case logging.SeverityWarn:
		return zerolog.WarnLevel
	case logging.SeverityError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return string(ref.Kind) + ":" + ref.ID
}
