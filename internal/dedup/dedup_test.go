package dedup

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFirstOccurrenceIsNotDuplicate(t *testing.T) {
	d := New(10*time.Minute, 10000, 0.0001, nil)
	assert.False(t, d.IsDuplicate("unique-key"))
}

func TestSecondOccurrenceIsDuplicate(t *testing.T) {
	d := New(10*time.Minute, 10000, 0.0001, nil)
	assert.False(t, d.IsDuplicate("repeat-key"))
	assert.True(t, d.IsDuplicate("repeat-key"))
}

func TestEmptyFingerprintNeverDuplicate(t *testing.T) {
	d := New(10*time.Minute, 10000, 0.0001, nil)
	assert.False(t, d.IsDuplicate(""))
	assert.False(t, d.IsDuplicate(""))
}

func TestRotatePreservesKeyInPrevious(t *testing.T) {
	d := New(10*time.Minute, 10000, 0.0001, nil)
	d.IsDuplicate("pre-rotation")
	d.Rotate()
	assert.True(t, d.IsDuplicate("pre-rotation"))
}

func TestDoubleRotateExpiresOldKey(t *testing.T) {
	d := New(10*time.Minute, 10000, 0.0001, nil)
	d.IsDuplicate("old-key")
	d.Rotate()
	d.IsDuplicate("new-key")
	d.Rotate()

	assert.False(t, d.IsDuplicate("old-key"))
	assert.True(t, d.IsDuplicate("new-key"))
}

func TestWindowDefaultsWhenUnset(t *testing.T) {
	d := New(0, 0, 0, nil)
	assert.Equal(t, DefaultWindow, d.Window())
}

func TestConcurrentAccessIsRaceFree(t *testing.T) {
	d := New(10*time.Minute, 100000, 0.0001, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.IsDuplicate(fmt.Sprintf("key-%d-%d", id, j))
			}
		}(i)
	}
	wg.Wait()
}

func TestStartStopRotatesOnSchedule(t *testing.T) {
	d := New(20*time.Millisecond, 1000, 0.0001, nil)
	d.IsDuplicate("will-expire")

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	defer func() {
		cancel()
		d.Stop()
	}()

	time.Sleep(60 * time.Millisecond) // several rotate intervals (window/2 = 10ms)
	assert.False(t, d.IsDuplicate("will-expire"))
}

func TestStopEndsRotationGoroutine(t *testing.T) {
	d := New(10*time.Minute, 1000, 0.0001, nil)
	ctx := context.Background()
	d.Start(ctx)
	d.Stop()
}
