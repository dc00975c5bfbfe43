package queuepair

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePriorityOrdering(t *testing.T) {
	q := New[string]()
	q.Push("low-pri-a", 5)
	q.Push("high-pri", 1)
	q.Push("low-pri-b", 5)
	q.Push("mid-pri", 3)

	var got []string
	for {
		v, ok := q.TryPop()
		if !ok {
			break
		}
		got = append(got, v)
	}

	assert.Equal(t, []string{"high-pri", "mid-pri", "low-pri-a", "low-pri-b"}, got)
}

func TestQueueDisableDropsAndDrains(t *testing.T) {
	q := New[int]()
	q.Push(1, 3)
	q.Push(2, 3)
	require.Equal(t, 2, q.Len())

	q.Disable()
	assert.Equal(t, 0, q.Len())
	assert.True(t, q.Disabled())

	ok := q.Push(3, 3)
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())

	// Disable is idempotent.
	q.Disable()
	assert.True(t, q.Disabled())
}

func TestQueueDrainUpTo(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		q.Push(i, 3)
	}
	batch := q.DrainUpTo(3)
	assert.Equal(t, []int{0, 1, 2}, batch)
	assert.Equal(t, 2, q.Len())
}

func TestBroadcasterWakesAllWaiters(t *testing.T) {
	b := NewBroadcaster()
	const n = 8
	var wg sync.WaitGroup
	woke := make(chan int, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := b.Wait(ctx); err == nil {
				woke <- id
			}
		}(i)
	}

	time.Sleep(20 * time.Millisecond) // let all goroutines reach Wait
	b.Notify()
	wg.Wait()
	close(woke)

	count := 0
	for range woke {
		count++
	}
	assert.Equal(t, n, count)
}

func TestBroadcasterWaitRespectsContext(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := b.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
