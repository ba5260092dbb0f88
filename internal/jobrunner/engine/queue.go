package engine

import (
	"context"
	"sync"
)

// workQueue is an unbounded FIFO of job ids with any number of producers and a single consumer.
// Push never blocks; Pop blocks until an id is available or ctx is done.
type workQueue struct {
	mu    sync.Mutex
	items []string
	// Holds at most one wake-up for the consumer.
	notify chan struct{}
}

func newWorkQueue() *workQueue {
	return &workQueue{
		notify: make(chan struct{}, 1),
	}
}

func (q *workQueue) Push(id string) {
	q.mu.Lock()
	q.items = append(q.items, id)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *workQueue) Pop(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			id := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			q.mu.Unlock()
			return id, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
