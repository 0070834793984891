// Package opqueue provides a per-entity FIFO that serializes mutating
// operations: one lazily-spawned worker per entity id drains its queue
// in arrival order, while distinct entities proceed independently.
package opqueue

import "sync"

// Queue applies operations of type T through apply, one at a time per
// entity id, in the order they were enqueued.
type Queue[T any] struct {
	apply func(entityID string, op T)

	mu      sync.Mutex
	pending map[string][]T
	active  map[string]bool
	wg      sync.WaitGroup
}

func New[T any](apply func(entityID string, op T)) *Queue[T] {
	return &Queue[T]{
		apply:   apply,
		pending: make(map[string][]T),
		active:  make(map[string]bool),
	}
}

// Enqueue appends op to the entity's queue and returns immediately; it
// never waits for the operation to apply. The first enqueue for an idle
// entity spawns its worker.
func (q *Queue[T]) Enqueue(entityID string, op T) {
	q.mu.Lock()
	q.pending[entityID] = append(q.pending[entityID], op)
	if !q.active[entityID] {
		q.active[entityID] = true
		q.wg.Add(1)
		go q.drain(entityID)
	}
	q.mu.Unlock()
}

// drain applies queued operations for one entity until its queue is
// observed empty. The retire decision happens under the same lock that
// observes emptiness, so it cannot race a concurrent Enqueue.
func (q *Queue[T]) drain(entityID string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		ops := q.pending[entityID]
		if len(ops) == 0 {
			delete(q.pending, entityID)
			q.active[entityID] = false
			q.mu.Unlock()
			return
		}
		op := ops[0]
		q.pending[entityID] = ops[1:]
		q.mu.Unlock()

		q.apply(entityID, op)
	}
}

// Wait blocks until every spawned worker has retired. Callers must stop
// producing before calling it.
func (q *Queue[T]) Wait() {
	q.wg.Wait()
}
