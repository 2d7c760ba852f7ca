package auction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLocks_MutualExclusion(t *testing.T) {
	locks := newKeyedLocks()
	key := uuid.New()
	ctx := context.Background()

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, ok := locks.Acquire(ctx, key, time.Second)
			if !assert.True(t, ok) {
				return
			}
			defer release()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
	assert.Empty(t, locks.locks, "entries are reclaimed once released")
}

func TestKeyedLocks_IndependentKeys(t *testing.T) {
	locks := newKeyedLocks()
	ctx := context.Background()

	release1, ok := locks.Acquire(ctx, uuid.New(), 10*time.Millisecond)
	require.True(t, ok)
	defer release1()

	release2, ok := locks.Acquire(ctx, uuid.New(), 10*time.Millisecond)
	require.True(t, ok)
	defer release2()
}

func TestKeyedLocks_BoundedWait(t *testing.T) {
	locks := newKeyedLocks()
	key := uuid.New()
	ctx := context.Background()

	release, ok := locks.Acquire(ctx, key, time.Second)
	require.True(t, ok)

	start := time.Now()
	_, ok = locks.Acquire(ctx, key, 20*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	release()

	release, ok = locks.Acquire(ctx, key, 20*time.Millisecond)
	require.True(t, ok)
	release()
}

func TestKeyedLocks_ContextCancel(t *testing.T) {
	locks := newKeyedLocks()
	key := uuid.New()

	release, ok := locks.Acquire(context.Background(), key, time.Second)
	require.True(t, ok)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, ok = locks.Acquire(ctx, key, time.Minute)
	assert.False(t, ok)
}
