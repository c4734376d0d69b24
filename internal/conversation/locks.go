// ABOUTME: Per-conversation keyed mutex serializing mutations to one thread
// ABOUTME: Locks are created on demand and reclaimed once the last holder leaves

package conversation

import "sync"

// keyedMutex hands out one mutex per key. Conversation mutations lock their
// conversation id so append/status/unread updates interleave consistently.
// Entries are refcounted and dropped when the last holder unlocks, keeping
// the map proportional to in-flight work rather than lifetime key count.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// lock acquires the mutex for key and returns its unlock func.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// len reports the number of live entries.
func (k *keyedMutex) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
