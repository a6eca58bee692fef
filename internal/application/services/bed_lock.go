package services

import (
	"sort"
	"sync"
)

// BedLocker hands out one mutex per bed key. Entries are reference counted
// and dropped when the last holder unlocks, so the map only holds beds that
// are currently contended.
type BedLocker struct {
	mu    sync.Mutex
	locks map[string]*bedLock
}

type bedLock struct {
	mu   sync.Mutex
	refs int
}

// NewBedLocker creates an empty locker
func NewBedLocker() *BedLocker {
	return &BedLocker{locks: make(map[string]*bedLock)}
}

// BedKey identifies a bed by room and bed number, the same pair admissions
// point at
func BedKey(roomID, bedNumber string) string {
	return roomID + "/" + bedNumber
}

// Lock blocks until key is held and returns the matching unlock func
func (l *BedLocker) Lock(key string) func() {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &bedLock{}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() { l.unlock(key, lk) }
}

// LockMany acquires every key in sorted order so two callers locking
// overlapping sets cannot deadlock
func (l *BedLocker) LockMany(keys []string) func() {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	unlocks := make([]func(), 0, len(sorted))
	for _, k := range sorted {
		unlocks = append(unlocks, l.Lock(k))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func (l *BedLocker) unlock(key string, lk *bedLock) {
	lk.mu.Unlock()

	l.mu.Lock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// held reports how many keys currently have holders or waiters
func (l *BedLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
