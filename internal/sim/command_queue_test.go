package sim

import (
	"sync"
	"testing"

	"driftrace/internal/telemetry"
)

type countingMetrics struct {
	mu     sync.Mutex
	adds   map[string]uint64
	stores map[string]uint64
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{adds: map[string]uint64{}, stores: map[string]uint64{}}
}

func (m *countingMetrics) Add(key string, delta uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adds[key] += delta
}

func (m *countingMetrics) AddReason(key, reason string, delta uint64) {
	m.Add(key+"/"+reason, delta)
}

func (m *countingMetrics) Store(key string, value uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[key] = value
}

func (m *countingMetrics) Record(string, float64) {}

func (m *countingMetrics) added(key string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adds[key]
}

func (m *countingMetrics) stored(key string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stores[key]
}

func TestCommandQueueTakeKeepsArrivalOrder(t *testing.T) {
	q := NewCommandQueue(8, 0, nil)
	for _, id := range []string{"a", "b", "a", "c"} {
		if ok, reason := q.Stage(Command{ActorID: id, Type: CommandInput}); !ok {
			t.Fatalf("stage %s: %q", id, reason)
		}
	}
	batch := q.Take()
	if len(batch) != 4 || batch[0].ActorID != "a" || batch[1].ActorID != "b" || batch[3].ActorID != "c" {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	if q.Len() != 0 || q.Take() != nil {
		t.Fatalf("expected an empty queue after take")
	}
}

func TestCommandQueuePerActorQuotaResetsEachTick(t *testing.T) {
	q := NewCommandQueue(16, 2, nil)
	for i := 0; i < 2; i++ {
		if ok, _ := q.Stage(Command{ActorID: "flood"}); !ok {
			t.Fatalf("stage %d should fit the quota", i)
		}
	}
	if ok, reason := q.Stage(Command{ActorID: "flood"}); ok || reason != CommandRejectQueueLimit {
		t.Fatalf("expected queue_limit, got ok=%v reason=%q", ok, reason)
	}
	if ok, _ := q.Stage(Command{ActorID: "calm"}); !ok {
		t.Fatalf("another player must not be affected by the flooding one")
	}

	q.Take()
	if ok, _ := q.Stage(Command{ActorID: "flood"}); !ok {
		t.Fatalf("quota should reset on the next tick")
	}
}

func TestCommandQueueOverflowIsCounted(t *testing.T) {
	metrics := newCountingMetrics()
	q := NewCommandQueue(1, 0, metrics)
	if ok, _ := q.Stage(Command{ActorID: "one"}); !ok {
		t.Fatalf("expected initial stage to succeed")
	}
	if got := metrics.stored(telemetry.KeyCommandBufferDepth); got != 1 {
		t.Fatalf("expected depth 1, got %d", got)
	}
	if ok, reason := q.Stage(Command{ActorID: "two"}); ok || reason != CommandRejectQueueFull {
		t.Fatalf("expected queue_full, got ok=%v reason=%q", ok, reason)
	}
	if got := metrics.added(telemetry.KeyCommandOverflow); got != 1 {
		t.Fatalf("expected one overflow, got %d", got)
	}
	q.Take()
	if got := metrics.stored(telemetry.KeyCommandBufferDepth); got != 0 {
		t.Fatalf("expected depth 0 after take, got %d", got)
	}
}

func TestCommandQueueForgetDropsDepartedPlayer(t *testing.T) {
	q := NewCommandQueue(8, 1, nil)
	q.Stage(Command{ActorID: "gone"})
	q.Stage(Command{ActorID: "stays"})

	if dropped := q.Forget("gone"); dropped != 1 {
		t.Fatalf("expected one dropped command, got %d", dropped)
	}
	if ok, _ := q.Stage(Command{ActorID: "gone"}); !ok {
		t.Fatalf("a rejoining player starts with a fresh quota")
	}
	batch := q.Take()
	if len(batch) != 2 || batch[0].ActorID != "stays" {
		t.Fatalf("unexpected batch after forget: %+v", batch)
	}
}

func TestCommandQueueConcurrentProducers(t *testing.T) {
	q := NewCommandQueue(400, 0, nil)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Stage(Command{ActorID: "p"})
			}
		}()
	}
	wg.Wait()
	if got := len(q.Take()); got != 400 {
		t.Fatalf("expected 400 commands, got %d", got)
	}
}

func TestNilCommandQueue(t *testing.T) {
	var q *CommandQueue
	if ok, reason := q.Stage(Command{}); ok || reason != CommandRejectQueueFull {
		t.Fatalf("nil queue must refuse, got ok=%v reason=%q", ok, reason)
	}
	if q.Take() != nil || q.Len() != 0 || q.Forget("x") != 0 {
		t.Fatalf("nil queue must be empty")
	}
}
