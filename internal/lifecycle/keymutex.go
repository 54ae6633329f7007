package lifecycle

import "sync"

// keyedMutex serializes lifecycle operations per key (tenant id, or normalized
// name before an id exists). Entries are reference-counted and removed when
// the last holder unlocks, so the map does not grow with tenant count.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*kmEntry
}

type kmEntry struct {
	lock sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*kmEntry)}
}

// acquire blocks until the key's lock is held and returns the release func.
func (k *keyedMutex) acquire(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &kmEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.lock.Lock()

	return func() {
		e.lock.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
