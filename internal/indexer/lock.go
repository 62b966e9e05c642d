package indexer

import (
	"sync"
	"sync/atomic"
)

// IndexLock provides non-blocking lock semantics using atomic operations.
type IndexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// FolderLocks hands out one IndexLock per repository folder, so that only one
// analysis of a folder runs at a time while different folders proceed in parallel
type FolderLocks struct {
	mu    sync.Mutex
	locks map[string]*IndexLock
}

// NewFolderLocks creates an empty lock set
func NewFolderLocks() *FolderLocks {
	return &FolderLocks{locks: make(map[string]*IndexLock)}
}

// TryAcquire attempts to lock folder without blocking
func (f *FolderLocks) TryAcquire(folder string) bool {
	f.mu.Lock()
	l, ok := f.locks[folder]
	if !ok {
		l = &IndexLock{}
		f.locks[folder] = l
	}
	f.mu.Unlock()
	return l.TryAcquire()
}

// Release unlocks folder
func (f *FolderLocks) Release(folder string) {
	f.mu.Lock()
	l, ok := f.locks[folder]
	f.mu.Unlock()
	if ok {
		l.Release()
	}
}

// Held reports whether folder is currently locked
func (f *FolderLocks) Held(folder string) bool {
	f.mu.Lock()
	l, ok := f.locks[folder]
	f.mu.Unlock()
	return ok && l.state.Load() == 1
}
