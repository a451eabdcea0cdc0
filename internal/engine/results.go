package engine

import (
	"sync"

	"github.com/IshaanNene/quickscout/internal/types"
)

// ResultQueue is an unbounded multi-producer, single-consumer queue of
// result batches terminated by one sentinel.
type ResultQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []types.ResultBatch
	sentinel bool
	dropped  int
}

// NewResultQueue creates an empty queue.
func NewResultQueue() *ResultQueue {
	q := &ResultQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a batch. It never blocks. Batches pushed after the sentinel
// are dropped and counted.
func (q *ResultQueue) Push(b types.ResultBatch) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sentinel {
		q.dropped++
		return
	}
	q.items = append(q.items, b)
	q.cond.Signal()
}

// Close enqueues the sentinel. Only the first call has an effect.
func (q *ResultQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sentinel = true
	q.cond.Broadcast()
}

// Take blocks until a batch is available and returns it. ok is false once
// the queue is drained and the sentinel has been reached.
func (q *ResultQueue) Take() (b types.ResultBatch, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.sentinel {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return types.ResultBatch{}, false
	}
	b = q.items[0]
	q.items[0] = types.ResultBatch{}
	q.items = q.items[1:]
	return b, true
}

// Len returns the number of batches waiting.
func (q *ResultQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the number of batches pushed after the sentinel.
func (q *ResultQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
