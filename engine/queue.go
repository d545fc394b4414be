package engine

import (
	"sync"

	"github.com/ftahirops/ptop/model"
)

// SnapshotQueue hands snapshots from the sampler goroutine to the render
// goroutine. It is unbounded: Push never blocks, and nothing is dropped.
type SnapshotQueue struct {
	mu    sync.Mutex
	items []*model.Snapshot
	ready chan struct{}
}

// NewSnapshotQueue creates an empty queue.
func NewSnapshotQueue() *SnapshotQueue {
	return &SnapshotQueue{ready: make(chan struct{}, 1)}
}

// Push appends snap and wakes a waiting consumer.
func (q *SnapshotQueue) Push(snap *model.Snapshot) {
	if snap == nil {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, snap)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default: // a wakeup is already pending
	}
}

// DrainAll removes and returns every queued snapshot in arrival order.
// It returns nil when the queue is empty.
func (q *SnapshotQueue) DrainAll() []*model.Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of snapshots waiting.
func (q *SnapshotQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ready receives a value after one or more Pushes. A receive does not
// guarantee data: a previous DrainAll may already have taken it.
func (q *SnapshotQueue) Ready() <-chan struct{} {
	return q.ready
}
