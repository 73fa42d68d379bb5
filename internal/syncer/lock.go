package syncer

import "sync/atomic"

// syncLock provides non-blocking lock semantics using atomic operations.
// A sync request that fails to acquire it coalesces with the run already
// in flight instead of queueing.
type syncLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// tryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *syncLock) tryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *syncLock) release() {
	l.state.Store(0)
}
