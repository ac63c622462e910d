package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"driftrace/logging"
)

// jsonLine is the on-disk shape of one event.
type jsonLine struct {
	Type     logging.EventType   `json:"type"`
	Tick     uint64              `json:"tick"`
	Time     string              `json:"time"`
	Severity string              `json:"severity"`
	Category string              `json:"category,omitempty"`
	RoomID   string              `json:"roomId,omitempty"`
	Actor    *logging.EntityRef  `json:"actor,omitempty"`
	Targets  []logging.EntityRef `json:"targets,omitempty"`
	Payload  any                 `json:"payload,omitempty"`
	Extra    map[string]any      `json:"extra,omitempty"`
}

// JSON writes one event per line. Lines are buffered and flushed after
// flushAfter, or immediately when flushAfter is zero. A writer that is also
// an io.Closer is owned by the sink.
type JSON struct {
	mu         sync.Mutex
	buf        *bufio.Writer
	enc        *json.Encoder
	owned      io.Closer
	flushAfter time.Duration
	pending    *time.Timer
	closed     bool
}

func NewJSON(w io.Writer, flushAfter time.Duration) *JSON {
	if w == nil {
		w = io.Discard
	}
	buf := bufio.NewWriter(w)
	s := &JSON{buf: buf, enc: json.NewEncoder(buf), flushAfter: flushAfter}
	if c, ok := w.(io.Closer); ok {
		s.owned = c
	}
	return s
}

func (s *JSON) Write(event logging.Event) error {
	line := jsonLine{
		Type:     event.Type,
		Tick:     event.Tick,
		Time:     event.Time.UTC().Format(time.RFC3339Nano),
		Severity: event.Severity.String(),
		Category: event.Category,
		RoomID:   event.RoomID,
		Targets:  event.Targets,
		Payload:  event.Payload,
		Extra:    event.Extra,
	}
	if event.Actor != (logging.EntityRef{}) {
		actor := event.Actor
		line.Actor = &actor
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("json sink closed")
	}
	if err := s.enc.Encode(line); err != nil {
		return err
	}
	if s.flushAfter <= 0 {
		return s.buf.Flush()
	}
	if s.pending == nil {
		s.pending = time.AfterFunc(s.flushAfter, s.flushPending)
	}
	return nil
}

func (s *JSON) flushPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	if !s.closed {
		_ = s.buf.Flush()
	}
}

// Close flushes buffered lines and closes an owned writer.
func (s *JSON) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	err := s.buf.Flush()
	if s.owned != nil {
		err = errors.Join(err, s.owned.Close())
	}
	return err
}
