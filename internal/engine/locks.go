package engine

import "sync"

// tokenLocks hands out one mutex per token so settlement is serialized per
// curve regardless of the storage backend. Locks are never released from
// the map; the per-token footprint is one mutex for the curve's lifetime.
type tokenLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTokenLocks() *tokenLocks {
	return &tokenLocks{locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex for a token, creating it on first use.
func (t *tokenLocks) get(tokenID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[tokenID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[tokenID] = lock
	}
	return lock
}
