package txtlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(8)
	for i := uint32(0); i < 5; i++ {
		require.NoError(t, q.Enqueue(Entry{Seq: i}))
	}
	ctx := context.Background()
	for i := uint32(0); i < 5; i++ {
		e, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, e.Seq)
	}
}

func TestQueueDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultQueueCapacity, NewQueue(0).Cap())
}

func TestQueueFullFailsFast(t *testing.T) {
	q := NewQueue(2)
	require.NoError(t, q.Enqueue(Entry{Seq: 0}))
	require.NoError(t, q.Enqueue(Entry{Seq: 1}))

	start := time.Now()
	err := q.Enqueue(Entry{Seq: 2})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 2, q.Len())
}

func TestQueueCloseDrainsThenReportsClosed(t *testing.T) {
	q := NewQueue(4)
	require.NoError(t, q.Enqueue(Entry{Seq: 0}))
	require.NoError(t, q.Enqueue(Entry{Seq: 1}))
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Enqueue(Entry{Seq: 2}), ErrClosed)

	ctx := context.Background()
	for i := uint32(0); i < 2; i++ {
		e, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, e.Seq)
	}
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewQueue(1)
	got := make(chan Entry, 1)
	go func() {
		e, err := q.Dequeue(context.Background())
		if err == nil {
			got <- e
		}
	}()

	select {
	case <-got:
		t.Fatal("dequeue returned before any entry was queued")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Enqueue(Entry{Seq: 9}))
	select {
	case e := <-got:
		assert.Equal(t, uint32(9), e.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for dequeue")
	}
}

func TestQueueDequeueContextCancel(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrClosed)
}

func TestQueueConcurrentProducers(t *testing.T) {
	const producers, perProducer = 8, 100
	q := NewQueue(producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, q.Enqueue(Entry{}))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, producers*perProducer, q.Len())
}
