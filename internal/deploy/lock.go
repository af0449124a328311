package deploy

import "sync"

// LockManager manages per-app deploy locks to prevent concurrent deploys.
//
// This uses a two-level locking strategy:
//  1. The outer mutex (mu) protects the locks map itself from concurrent access
//  2. Each app has its own mutex for actual deploy locking
//
// This design allows different apps to deploy concurrently while ensuring
// that only one deploy can run for a given app at a time. Two webhook
// deliveries racing on the same source tree and service restart would
// otherwise corrupt each other.
type LockManager struct {
	mu    sync.Mutex             // Protects the locks map
	locks map[string]*sync.Mutex // Per-app locks
}

// NewLockManager creates a new lock manager.
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// TryLock attempts to acquire the deploy lock for the given app.
//
// Returns true if the lock was acquired (deploy can proceed).
// Returns false if the app is already locked (another deploy is in progress).
//
// This method is non-blocking - it returns immediately whether or not the
// lock was acquired.
func (lm *LockManager) TryLock(appName string) bool {
	lm.mu.Lock()
	lock, exists := lm.locks[appName]
	if !exists {
		lock = &sync.Mutex{}
		lm.locks[appName] = lock
	}
	lm.mu.Unlock()

	return lock.TryLock()
}

// Unlock releases the deploy lock for the given app.
//
// This should be called after a deploy completes (success or failure).
// Typically used with defer: defer lockManager.Unlock(appName)
//
// It is safe to call this even if the lock doesn't exist (no-op).
func (lm *LockManager) Unlock(appName string) {
	lm.mu.Lock()
	lock := lm.locks[appName]
	lm.mu.Unlock()

	if lock != nil {
		lock.Unlock()
	}
}
