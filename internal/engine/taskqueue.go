package engine

import (
	"sync"

	"github.com/IshaanNene/quickscout/internal/types"
)

// LocationQueue is the shared queue of location tasks. Every task is handed
// out at most once and never re-enqueued.
type LocationQueue struct {
	mu     sync.Mutex
	tasks  []types.Task
	head   int
	closed bool
}

// NewLocationQueue creates a queue holding tasks in order.
func NewLocationQueue(tasks []types.Task) *LocationQueue {
	q := &LocationQueue{tasks: make([]types.Task, 0, len(tasks))}
	q.tasks = append(q.tasks, tasks...)
	return q
}

// TryPop claims the next task without blocking. ok is false when the queue
// is empty or closed.
func (q *LocationQueue) TryPop() (task types.Task, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.head >= len(q.tasks) {
		return types.Task{}, false
	}
	task = q.tasks[q.head]
	q.tasks[q.head] = types.Task{}
	q.head++
	return task, true
}

// Len returns the number of unclaimed tasks.
func (q *LocationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	return len(q.tasks) - q.head
}

// Close stops handing out tasks. Unclaimed tasks stay unprocessed.
func (q *LocationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// IsClosed returns true if the queue has been closed.
func (q *LocationQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Snapshot returns the unclaimed tasks without removing them.
func (q *LocationQueue) Snapshot() []types.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]types.Task(nil), q.tasks[q.head:]...)
}
