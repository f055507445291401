// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newQueue(t *testing.T, capacity int) *Queue {
	t.Helper()
	q, err := NewQueue(capacity)
	require.NoError(t, err)
	return q
}

func TestQueueDropsNewestWhenFull(t *testing.T) {
	q := newQueue(t, 2)
	var results []PushResult
	for seq := uint64(1); seq <= 5; seq++ {
		results = append(results, q.Push(Frame{Seq: seq}))
	}
	assert.Equal(t, []PushResult{Accepted, Accepted, Dropped, Dropped, Dropped}, results)

	st := q.Stats()
	assert.Equal(t, uint64(3), st.Dropped)
	assert.Equal(t, uint64(2), st.Pushed)
	assert.Equal(t, 2, st.Len)

	ctx := context.Background()
	f, err := q.Pop(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Seq)
	f, err = q.Pop(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.Seq)

	_, err = q.Pop(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestQueueOverflowCountsEveryExtraPush(t *testing.T) {
	for _, capacity := range []int{1, 4, 64} {
		q := newQueue(t, capacity)
		const extra = 7
		for i := 0; i < capacity+extra; i++ {
			q.Push(Frame{Seq: uint64(i + 1)})
		}
		assert.Equal(t, uint64(extra), q.Stats().Dropped, "capacity %d", capacity)
		assert.Equal(t, capacity, q.Len())
	}
}

func TestQueueCapacityBounds(t *testing.T) {
	_, err := NewQueue(0)
	assert.Error(t, err)
	_, err = NewQueue(MaxCapacity + 1)
	assert.Error(t, err)
}

func TestQueueRingWraps(t *testing.T) {
	q := newQueue(t, 3)
	ctx := context.Background()
	var got []uint64
	for seq := uint64(1); seq <= 10; seq++ {
		require.Equal(t, Accepted, q.Push(Frame{Seq: seq}))
		if seq%2 == 0 {
			for q.Len() > 0 {
				f, err := q.Pop(ctx, time.Millisecond)
				require.NoError(t, err)
				got = append(got, f.Seq)
			}
		}
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, got)
}

func TestQueuePopWakesOnPush(t *testing.T) {
	q := newQueue(t, 4)
	done := make(chan Frame, 1)
	go func() {
		f, _ := q.Pop(context.Background(), 5*time.Second)
		done <- f
	}()
	time.Sleep(10 * time.Millisecond)
	q.Push(Frame{Seq: 42})
	select {
	case f := <-done:
		assert.Equal(t, uint64(42), f.Seq)
	case <-time.After(time.Second):
		t.Fatal("pop not woken by push")
	}
}

func TestQueueFlushingInterruptsPop(t *testing.T) {
	q := newQueue(t, 4)
	q.Push(Frame{Seq: 1})

	var wg sync.WaitGroup
	errs := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Drain the queued frame, then block.
		_, _ = q.Pop(context.Background(), time.Second)
		_, err := q.Pop(context.Background(), 10*time.Second)
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	q.SetFlushing(true)
	wg.Wait()
	assert.ErrorIs(t, <-errs, ErrFlushing)
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, Flushing, q.Push(Frame{Seq: 2}))
	assert.Equal(t, uint64(0), q.Stats().Dropped, "flushing refusals are not drops")

	q.SetFlushing(false)
	assert.Equal(t, Accepted, q.Push(Frame{Seq: 3}))
	f, err := q.Pop(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), f.Seq)
}

func TestQueueSetFlushingDiscards(t *testing.T) {
	q := newQueue(t, 4)
	q.Push(Frame{Seq: 1, Data: []byte{1}})
	q.Push(Frame{Seq: 2, Data: []byte{2}})
	q.SetFlushing(true)
	assert.Equal(t, 0, q.Len())
	q.SetFlushing(false)
	_, err := q.Pop(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestQueuePopHonoursContext(t *testing.T) {
	q := newQueue(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Pop(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
