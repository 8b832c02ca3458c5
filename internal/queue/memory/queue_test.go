package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan crawler.QueueItem, 1)
	go func() {
		item, err := q.Dequeue(context.Background())
		if err == nil {
			result <- item
		}
	}()

	require.NoError(t, q.Enqueue(context.Background(), crawler.QueueItem{SourceID: "source-1"}))
	select {
	case got := <-result:
		require.Equal(t, "source-1", got.SourceID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueueFullReturnsErrQueueFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), crawler.QueueItem{SourceID: "primed"}))
	require.Equal(t, 1, q.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, crawler.QueueItem{SourceID: "overflow"})
	require.ErrorIs(t, err, crawler.ErrQueueFull)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueDequeueCanceled(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), crawler.QueueItem{SourceID: "pending"}))
	q.Close()
	q.Close()

	require.ErrorIs(t, q.Enqueue(context.Background(), crawler.QueueItem{}), ErrClosed)
	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "pending", item.SourceID)
	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestQueueDrainReturnsPendingItems(t *testing.T) {
	t.Parallel()

	q := NewQueue(3)
	require.Empty(t, q.Drain())
	require.NoError(t, q.Enqueue(context.Background(), crawler.QueueItem{SourceID: "a"}))
	require.NoError(t, q.Enqueue(context.Background(), crawler.QueueItem{SourceID: "b"}))

	q.Close()
	items := q.Drain()
	require.Len(t, items, 2)
	require.Equal(t, "a", items[0].SourceID)
	require.Equal(t, "b", items[1].SourceID)
	require.Zero(t, q.Len())
	require.Empty(t, q.Drain())
}
