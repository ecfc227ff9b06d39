package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_EnqueueDequeue(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "first"))
	require.NoError(t, q.Enqueue(ctx, "second"))

	items, err := q.Dequeue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"first", "second"}, items)
}

func TestMemoryQueue_BatchLimit(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.BatchSize = 5
	q := NewMemoryQueue(cfg)
	defer q.Close()
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		require.NoError(t, q.Enqueue(ctx, i))
	}

	items, err := q.Dequeue(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, items, 5)

	n, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestMemoryQueue_DequeueWithTimeout(t *testing.T) {
	q := NewMemoryQueue(nil)
	defer q.Close()
	ctx := context.Background()

	start := time.Now()
	items, err := q.DequeueWithTimeout(ctx, 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	require.NoError(t, q.Enqueue(ctx, "x"))
	items, err = q.DequeueWithTimeout(ctx, 10, time.Second)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestMemoryQueue_ContextCancelled(t *testing.T) {
	q := NewMemoryQueue(nil)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx, 1)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMemoryQueue_Concurrent(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = q.Enqueue(ctx, i)
			}
		}()
	}
	wg.Wait()

	total := 0
	for total < 200 {
		items, err := q.DequeueWithTimeout(ctx, 64, 100*time.Millisecond)
		require.NoError(t, err)
		require.NotEmpty(t, items)
		total += len(items)
	}
	assert.Equal(t, 200, total)
}

func TestMemoryQueue_Closed(t *testing.T) {
	q := NewMemoryQueue(nil)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Enqueue(context.Background(), 1), ErrQueueClosed)
	_, err := q.Length(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryDeadLetterQueue(t *testing.T) {
	dlq := NewMemoryDeadLetterQueue()
	ctx := context.Background()

	require.NoError(t, dlq.Add(ctx, "a", errors.New("boom")))
	require.NoError(t, dlq.Add(ctx, "b", nil))

	items, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "boom", items[0].Error)
	assert.Equal(t, "unknown error", items[1].Error)
	assert.NotEqual(t, items[0].ID, items[1].ID)

	require.NoError(t, dlq.Remove(ctx, items[0].ID))
	assert.ErrorIs(t, dlq.Remove(ctx, items[0].ID), ErrItemNotFound)

	items, err = dlq.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, dlq.Close())
	assert.ErrorIs(t, dlq.Add(ctx, "c", nil), ErrQueueClosed)
}
