package sinks

import (
	"context"
	"slices"
	"sync"

	"driftrace/logging"
)

// Memory records events for tests.
type Memory struct {
	mu     sync.Mutex
	events []logging.Event
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Write(event logging.Event) error {
	m.mu.Lock()
	m.events = append(m.events, event.Clone())
	m.mu.Unlock()
	return nil
}

// Events returns everything recorded so far, oldest first.
func (m *Memory) Events() []logging.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// OfType filters Events by type.
func (m *Memory) OfType(t logging.EventType) []logging.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []logging.Event
	for _, event := range m.events {
		if event.Type == t {
			out = append(out, event)
		}
	}
	return out
}

func (m *Memory) Reset() {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
}

func (m *Memory) Close(context.Context) error { return nil }
