package calendar

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// PropertyLocker serializes work on a property within this process.
// Different properties never contend.
type PropertyLocker struct {
	mu    sync.Mutex
	locks map[string]*propertyLock
}

type propertyLock struct {
	sem  *semaphore.Weighted
	refs int
}

// NewPropertyLocker creates an empty locker.
func NewPropertyLocker() *PropertyLocker {
	return &PropertyLocker{locks: make(map[string]*propertyLock)}
}

// Lock blocks until the property is free or ctx is done. The returned
// function releases the lock and is safe to call more than once.
func (l *PropertyLocker) Lock(ctx context.Context, propertyID string) (func(), error) {
	l.mu.Lock()
	pl, ok := l.locks[propertyID]
	if !ok {
		pl = &propertyLock{sem: semaphore.NewWeighted(1)}
		l.locks[propertyID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	if err := pl.sem.Acquire(ctx, 1); err != nil {
		l.release(propertyID, pl)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			pl.sem.Release(1)
			l.release(propertyID, pl)
		})
	}, nil
}

// Held reports how many callers hold or wait for the property's lock.
func (l *PropertyLocker) Held(propertyID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pl, ok := l.locks[propertyID]; ok {
		return pl.refs
	}
	return 0
}

func (l *PropertyLocker) release(propertyID string, pl *propertyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl.refs--
	if pl.refs == 0 {
		delete(l.locks, propertyID)
	}
}
