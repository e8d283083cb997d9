package keylock

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockSerializesSameKey(t *testing.T) {
	l := New()
	k := uuid.New()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock(k)
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, l.size())
}

func TestLockDisjointKeysDoNotBlock(t *testing.T) {
	l := New()
	a, b := uuid.New(), uuid.New()
	unlockA := l.Lock(a)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock(b)
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a disjoint key blocked")
	}
}

func TestLockOverlappingSetsInAnyOrder(t *testing.T) {
	l := New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); l.Lock(a, b, c)() }()
		go func() { defer wg.Done(); l.Lock(c, b, a, a)() }()
	}
	wg.Wait()
	require.Equal(t, 0, l.size())
}

func TestUnlockIsIdempotent(t *testing.T) {
	var l Locker
	k := uuid.New()
	unlock := l.Lock(k)
	unlock()
	unlock()
	l.Lock(k)()
	assert.Equal(t, 0, l.size())
}
