package service

import (
	"context"
	"sync"
)

// OwnerLocks serializes writers per wallet. Entries are dropped once nobody holds or waits
// for them.
type OwnerLocks struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
}

type ownerLock struct {
	held chan struct{}
	refs int
}

func NewOwnerLocks() *OwnerLocks {
	return &OwnerLocks{locks: map[string]*ownerLock{}}
}

// Lock blocks until owner is free and returns the matching unlock.
func (l *OwnerLocks) Lock(owner string) func() {
	unlock, _ := l.LockContext(context.Background(), owner)
	return unlock
}

// LockContext is Lock that gives up with ctx.Err() once ctx is done.
func (l *OwnerLocks) LockContext(ctx context.Context, owner string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	ol := l.acquireRef(owner)
	select {
	case ol.held <- struct{}{}:
	case <-ctx.Done():
		l.releaseRef(owner, ol)
		return func() {}, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-ol.held
			l.releaseRef(owner, ol)
		})
	}, nil
}

func (l *OwnerLocks) acquireRef(owner string) *ownerLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = map[string]*ownerLock{}
	}
	ol, ok := l.locks[owner]
	if !ok {
		ol = &ownerLock{held: make(chan struct{}, 1)}
		l.locks[owner] = ol
	}
	ol.refs++
	return ol
}

func (l *OwnerLocks) releaseRef(owner string, ol *ownerLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ol.refs--
	if ol.refs == 0 {
		delete(l.locks, owner)
	}
}

func (l *OwnerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
