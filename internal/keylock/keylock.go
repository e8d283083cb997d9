// Package keylock provides a set of mutexes keyed by id.
//
// Posting holds the locks of every account it touches for the duration of the
// balance update, so two entries sharing an account are applied one after the
// other while entries on disjoint accounts proceed in parallel.
package keylock

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Locker hands out per-key mutexes and forgets keys nobody holds or waits on.
// The zero value is ready to use.
type Locker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

// New constructs an empty Locker.
func New() *Locker { return &Locker{locks: make(map[uuid.UUID]*lockEntry)} }

// Lock acquires the locks for all ids and returns a function releasing them.
// Keys are deduplicated and taken in ascending order so overlapping callers cannot deadlock.
func (l *Locker) Lock(ids ...uuid.UUID) (unlock func()) {
	keys := sortedUnique(ids)
	held := make([]*lockEntry, 0, len(keys))
	for _, k := range keys {
		e := l.acquire(k)
		e.mu.Lock()
		held = append(held, e)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
				l.release(keys[i])
			}
		})
	}
}

func (l *Locker) acquire(k uuid.UUID) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[uuid.UUID]*lockEntry)
	}
	e, ok := l.locks[k]
	if !ok {
		e = &lockEntry{}
		l.locks[k] = e
	}
	e.refs++
	return e
}

func (l *Locker) release(k uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[k]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.locks, k)
	}
}

// size returns the number of tracked keys; used by tests.
func (l *Locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func sortedUnique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}
