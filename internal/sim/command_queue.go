package sim

import (
	"sync"

	"driftrace/internal/telemetry"
)

// Reasons a command is refused at staging time.
const (
	CommandRejectQueueLimit = "queue_limit"
	CommandRejectQueueFull  = "queue_full"
)

// CommandQueue stages commands between ticks. Connection goroutines stage;
// the room loop takes the whole batch once per tick. Each player gets a
// per-tick quota so one flooding client cannot starve the shared capacity.
type CommandQueue struct {
	mu       sync.Mutex
	staged   []Command
	capacity int
	perActor int
	counts   map[string]int
	metrics  telemetry.Metrics
}

// NewCommandQueue returns a queue holding at most capacity commands per tick,
// at most perActor of them from one player. perActor <= 0 disables the quota.
func NewCommandQueue(capacity, perActor int, metrics telemetry.Metrics) *CommandQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &CommandQueue{
		staged:   make([]Command, 0, capacity),
		capacity: capacity,
		perActor: perActor,
		counts:   make(map[string]int),
		metrics:  telemetry.OrNop(metrics),
	}
}

// Stage appends cmd for the next tick. On refusal it returns the reason.
func (q *CommandQueue) Stage(cmd Command) (bool, string) {
	if q == nil {
		return false, CommandRejectQueueFull
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.perActor > 0 && cmd.ActorID != "" && q.counts[cmd.ActorID] >= q.perActor {
		return false, CommandRejectQueueLimit
	}
	if len(q.staged) >= q.capacity {
		q.metrics.Add(telemetry.KeyCommandOverflow, 1)
		return false, CommandRejectQueueFull
	}
	q.staged = append(q.staged, cmd)
	if cmd.ActorID != "" {
		q.counts[cmd.ActorID]++
	}
	q.metrics.Store(telemetry.KeyCommandBufferDepth, uint64(len(q.staged)))
	return true, ""
}

// Take returns the staged batch in arrival order and opens a fresh tick.
func (q *CommandQueue) Take() []Command {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.staged) == 0 {
		return nil
	}
	batch := q.staged
	q.staged = make([]Command, 0, q.capacity)
	clear(q.counts)
	q.metrics.Store(telemetry.KeyCommandBufferDepth, 0)
	return batch
}

// Forget drops everything a departed player staged this tick.
func (q *CommandQueue) Forget(actorID string) int {
	if q == nil || actorID == "" {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.staged[:0]
	for _, cmd := range q.staged {
		if cmd.ActorID != actorID {
			kept = append(kept, cmd)
		}
	}
	dropped := len(q.staged) - len(kept)
	clear(q.staged[len(kept):])
	q.staged = kept
	delete(q.counts, actorID)
	if dropped > 0 {
		q.metrics.Store(telemetry.KeyCommandBufferDepth, uint64(len(q.staged)))
	}
	return dropped
}

// Len reports the number of staged commands.
func (q *CommandQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.staged)
}
