package hub

import (
	"sync"

	"github.com/nhle/workcal/internal/model"
)

// snapshotQueue is a bounded FIFO that never blocks the producer: pushing
// onto a full queue discards the oldest entry. Snapshots carry full state,
// so an evicted entry is always superseded by a newer one behind it.
type snapshotQueue struct {
	mu      sync.Mutex
	items   []model.Snapshot
	depth   int
	dropped uint64

	// ready holds at most one wake-up token for the consumer.
	ready chan struct{}
}

func newSnapshotQueue(depth int) *snapshotQueue {
	if depth < 1 {
		depth = 1
	}
	return &snapshotQueue{
		items: make([]model.Snapshot, 0, depth),
		depth: depth,
		ready: make(chan struct{}, 1),
	}
}

// push enqueues snap, evicting the oldest entry when full. It reports
// whether an entry was evicted.
func (q *snapshotQueue) push(snap model.Snapshot) bool {
	q.mu.Lock()
	evicted := false
	if len(q.items) == q.depth {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		q.dropped++
		evicted = true
	}
	q.items = append(q.items, snap)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return evicted
}

// pop dequeues the oldest entry.
func (q *snapshotQueue) pop() (model.Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return model.Snapshot{}, false
	}
	snap := q.items[0]
	copy(q.items, q.items[1:])
	q.items[len(q.items)-1] = model.Snapshot{}
	q.items = q.items[:len(q.items)-1]
	return snap, true
}

func (q *snapshotQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *snapshotQueue) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
