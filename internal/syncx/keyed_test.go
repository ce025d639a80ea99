package syncx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockUnlock(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	require.NoError(t, km.Lock(ctx, "a", 10*time.Millisecond))
	km.Unlock("a")
	require.NoError(t, km.Lock(ctx, "a", 10*time.Millisecond))
	km.Unlock("a")
}

func TestLockBusyTimeout(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	require.NoError(t, km.Lock(ctx, "a", 10*time.Millisecond))
	defer km.Unlock("a")

	err := km.Lock(ctx, "a", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestDifferentKeysDoNotContend(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	require.NoError(t, km.Lock(ctx, "a", 10*time.Millisecond))
	defer km.Unlock("a")

	assert.NoError(t, km.Lock(ctx, "b", 10*time.Millisecond))
	km.Unlock("b")
}

func TestLockContextCancelled(t *testing.T) {
	km := NewKeyedMutex()
	require.NoError(t, km.Lock(context.Background(), "a", 10*time.Millisecond))
	defer km.Unlock("a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := km.Lock(ctx, "a", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMutualExclusionUnderContention(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, km.Lock(ctx, "counter", time.Second))
			defer km.Unlock("counter")
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
