package logging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Sink receives routed events on its own goroutine. Write is never called
// concurrently for one sink.
type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

type RouterStats struct {
	// Accepted counts events that passed the severity filter.
	Accepted uint64
	// Dropped counts per-sink deliveries lost to a full backlog or a
	// cooling-down sink.
	Dropped uint64
}

// Router fans events out to sinks. Publish never blocks the caller: each
// sink drains its own bounded backlog, and a full backlog drops the event.
type Router struct {
	clock    Clock
	minimum  Severity
	fields   map[string]any
	cooldown time.Duration
	fallback zerolog.Logger
	dropWarn *rate.Sometimes
	outlets  []*outlet

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	accepted atomic.Uint64
	dropped  atomic.Uint64
}

// NewRouter starts one goroutine per sink. Drops and sink failures are
// reported on fallback.
func NewRouter(clock Clock, cfg Config, fallback zerolog.Logger, sinks []NamedSink) *Router {
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	cfg = cfg.normalized()
	r := &Router{
		clock:    clock,
		minimum:  cfg.MinimumSeverity,
		fields:   cfg.Fields,
		cooldown: cfg.SinkCooldown,
		fallback: fallback.With().Str("component", "events").Logger(),
		dropWarn: &rate.Sometimes{First: 1, Interval: cfg.DropWarnInterval},
	}
	for _, named := range sinks {
		if named.Sink == nil {
			continue
		}
		o := &outlet{name: named.Name, sink: named.Sink, backlog: make(chan Event, cfg.QueueSize)}
		r.outlets = append(r.outlets, o)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.drainOutlet(o)
		}()
	}
	return r
}

// Publish stamps and routes event. Events without a type, below the minimum
// severity or published after Close are ignored.
func (r *Router) Publish(_ context.Context, event Event) {
	if r == nil || event.Type == "" || event.Severity < r.minimum {
		return
	}
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = event.withDefaults(r.fields)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.accepted.Add(1)
	for i, o := range r.outlets {
		if i > 0 {
			event = event.Clone()
		}
		select {
		case o.backlog <- event:
		default:
			r.drop(o.name, event, "backlog full")
		}
	}
}

func (r *Router) drop(sink string, event Event, reason string) {
	total := r.dropped.Add(1)
	r.dropWarn.Do(func() {
		r.fallback.Warn().
			Str("sink", sink).
			Str("type", string(event.Type)).
			Str("reason", reason).
			Uint64("dropped", total).
			Msg("dropping event")
	})
}

type outlet struct {
	name    string
	sink    Sink
	backlog chan Event
}

// drainOutlet writes events until the backlog is closed. After a failed write
// the sink is skipped for the cooldown instead of stalling its backlog.
func (r *Router) drainOutlet(o *outlet) {
	var resumeAt time.Time
	for event := range o.backlog {
		if !resumeAt.IsZero() && time.Now().Before(resumeAt) {
			r.drop(o.name, event, "sink cooling down")
			continue
		}
		if err := o.sink.Write(event); err != nil {
			resumeAt = time.Now().Add(r.cooldown)
			r.fallback.Error().Err(err).Str("sink", o.name).Dur("cooldown", r.cooldown).Msg("sink write failed")
			continue
		}
		resumeAt = time.Time{}
	}
}

// Close stops accepting events, waits for every backlog to drain and then
// closes the sinks. It is safe to call more than once.
func (r *Router) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, o := range r.outlets {
		close(o.backlog)
	}
	r.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return fmt.Errorf("drain event sinks: %w", ctx.Err())
	}

	var errs []error
	for _, o := range r.outlets {
		if err := o.sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close sink %s: %w", o.name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Router) Stats() RouterStats {
	return RouterStats{Accepted: r.accepted.Load(), Dropped: r.dropped.Load()}
}

// Sink returns the sink registered under name, or nil.
func (r *Router) Sink(name string) Sink {
	for _, o := range r.outlets {
		if o.name == name {
			return o.sink
		}
	}
	return nil
}
