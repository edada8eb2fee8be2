package storage

import "sync"

// LockRegistry hands out one RWMutex per (owner, repo) pair. Mutating
// operations on a working copy take the write lock; read-only operations take
// the read lock, so reads never observe a half-finished mutation. Pairs are
// independent: no cross-pair ordering is imposed.
//
// Locks are created lazily and never discarded. The registry grows by one
// mutex per pair ever touched, which is bounded by the number of working
// copies on disk.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewLockRegistry creates an empty lock registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*sync.RWMutex)}
}

// Get returns the mutex for the given pair, creating it on first use.
func (r *LockRegistry) Get(owner, repo string) *sync.RWMutex {
	key := owner + "/" + repo

	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[key]
	if !ok {
		l = &sync.RWMutex{}
		r.locks[key] = l
	}
	return l
}
