package auction

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// keyedLocks serializes writers per auction. Each key gets a one-slot
// channel acting as a mutex with a bounded wait; entries are reference
// counted and removed when the last holder or waiter leaves.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	slot chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[uuid.UUID]*lockEntry)}
}

// Acquire takes the lock for the given key, waiting at most maxWait.
// It returns a release function on success, or false when the wait
// elapsed or the context was canceled first.
func (k *keyedLocks) Acquire(ctx context.Context, key uuid.UUID, maxWait time.Duration) (func(), bool) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{slot: make(chan struct{}, 1)}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case entry.slot <- struct{}{}:
		return func() {
			<-entry.slot
			k.put(key, entry)
		}, true
	case <-timer.C:
	case <-ctx.Done():
	}

	k.put(key, entry)
	return nil, false
}

func (k *keyedLocks) put(key uuid.UUID, entry *lockEntry) {
	k.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
