package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopItem(subject string) Item {
	return Item{Subject: subject, Closure: func(context.Context) error { return nil }}
}

func TestEnqueueRejectsNilClosure(t *testing.T) {
	q := New(1)
	err := q.Enqueue(context.Background(), Item{Subject: "a"})
	require.Error(t, err)
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Enqueue(context.Background(), noopItem("a")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := q.Enqueue(ctx, noopItem("b"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnqueueUnblocksOnceSpaceFrees(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Enqueue(context.Background(), noopItem("a")))

	var wg sync.WaitGroup
	wg.Add(1)
	var enqueueErr error
	go func() {
		defer wg.Done()
		enqueueErr = q.Enqueue(context.Background(), noopItem("b"))
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	wg.Wait()
	assert.NoError(t, enqueueErr)
}

func TestDequeueCancellation(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReadBatchSingleItemIgnoresTimeout(t *testing.T) {
	q := New(4)
	require.NoError(t, q.Enqueue(context.Background(), noopItem("a")))
	require.NoError(t, q.Enqueue(context.Background(), noopItem("b")))

	batch, err := q.ReadBatch(context.Background(), 1, time.Hour)
	require.NoError(t, err)
	assert.Len(t, batch, 1)
}

func TestReadBatchZeroTimeoutReturnsOne(t *testing.T) {
	q := New(4)
	require.NoError(t, q.Enqueue(context.Background(), noopItem("a")))

	batch, err := q.ReadBatch(context.Background(), 4, 0)
	require.NoError(t, err)
	assert.Len(t, batch, 1)
}

func TestReadBatchFillsUpToMax(t *testing.T) {
	q := New(4)
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(context.Background(), noopItem(s)))
	}

	batch, err := q.ReadBatch(context.Background(), 3, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, batch, 3)
}

func TestReadBatchFirstReadHonorsCancellation(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.ReadBatch(ctx, 4, time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReadBatchPropagatesCancellationDuringSubsequentReads(t *testing.T) {
	q := New(4)
	require.NoError(t, q.Enqueue(context.Background(), noopItem("a")))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	batch, err := q.ReadBatch(ctx, 4, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, batch, 1)
}
