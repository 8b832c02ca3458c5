// Package memory provides the in-process crawl queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

// ErrClosed is returned once the queue has been shut down.
var ErrClosed = crawler.ErrQueueClosed

// Queue is a bounded in-memory queue of leased crawls.
type Queue struct {
	ch     chan crawler.QueueItem
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a queue holding at most capacity pending crawls.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan crawler.QueueItem, capacity),
	}
}

// Enqueue adds item, waiting for room until ctx ends. A queue that stays
// full past the deadline yields crawler.ErrQueueFull.
func (q *Queue) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- item:
		return nil
	default:
	}
	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", crawler.ErrQueueFull, ctx.Err())
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	select {
	case <-ctx.Done():
		return crawler.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return crawler.QueueItem{}, ErrClosed
		}
		return item, nil
	}
}

// Drain removes and returns every pending item without blocking. It works on
// both open and closed queues.
func (q *Queue) Drain() []crawler.QueueItem {
	var items []crawler.QueueItem
	for {
		select {
		case item, ok := <-q.ch:
			if !ok {
				return items
			}
			items = append(items, item)
		default:
			return items
		}
	}
}

// Len reports the number of pending items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting items. Pending items can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
