package lease

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSerializesSameKey(t *testing.T) {
	guard := NewLocal()
	var running, maxRunning int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := guard.Acquire(context.Background(), "project-1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := atomic.AddInt32(&running, 1)
			for {
				m := atomic.LoadInt32(&maxRunning)
				if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&running, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxRunning)
	assert.Empty(t, guard.locks)
}

func TestLocalDifferentKeysDoNotBlock(t *testing.T) {
	guard := NewLocal()
	releaseA, err := guard.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := guard.Acquire(ctx, "b")
	require.NoError(t, err)
	releaseB()
}

func TestLocalAcquireHonoursContext(t *testing.T) {
	guard := NewLocal()
	release, err := guard.Acquire(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = guard.Acquire(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	// Releasing twice is harmless.
	release()

	release, err = guard.Acquire(context.Background(), "a")
	require.NoError(t, err)
	release()
	assert.Empty(t, guard.locks)
}

func TestNoop(t *testing.T) {
	release, err := Noop{}.Acquire(context.Background(), "x")
	require.NoError(t, err)
	release()
}
