package orchestrator

import "sync"

// txLocks serializes Process calls per transaction reference (spec §5: a
// given tx_ref's legs execute strictly one at a time, never interleaved
// with a concurrent retry or requeue of the same transaction).
type txLocks struct {
	mu    sync.Mutex
	inUse map[string]*txLock
}

// txLock is one transaction reference's mutex plus the number of callers
// holding or waiting on it; the map entry is dropped when that reaches zero.
type txLock struct {
	sync.Mutex
	refs int
}

func newTxLocks() *txLocks {
	return &txLocks{inUse: make(map[string]*txLock)}
}

// acquire blocks until txRef's lock is free, then returns a release func.
func (t *txLocks) acquire(txRef string) func() {
	t.mu.Lock()
	lock, ok := t.inUse[txRef]
	if !ok {
		lock = &txLock{}
		t.inUse[txRef] = lock
	}
	lock.refs++
	t.mu.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()
		t.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(t.inUse, txRef)
		}
		t.mu.Unlock()
	}
}
