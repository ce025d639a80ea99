package syncx

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBusy is returned when a lock cannot be acquired within the wait window.
var ErrBusy = errors.New("lock wait timeout")

// KeyedMutex serializes critical sections per key. Operations on different
// keys proceed in parallel. Acquisition is bounded: a caller that cannot get
// the lock within its wait window gets ErrBusy instead of blocking forever.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]chan struct{})}
}

// Lock entries are kept for the lifetime of the mutex. Keys here are product
// and order ids, so the map stays proportional to the working set.
func (k *KeyedMutex) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	return ch
}

func (k *KeyedMutex) Lock(ctx context.Context, key string, wait time.Duration) error {
	ch := k.slot(key)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock must only be called after a successful Lock for the same key.
func (k *KeyedMutex) Unlock(key string) {
	<-k.slot(key)
}
