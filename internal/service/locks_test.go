package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestOwnerLocks_SerializesPerOwner(t *testing.T) {
	locks := NewOwnerLocks()
	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(testOwner)
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	if peak != 1 {
		t.Fatalf("peak=%d want=1", peak)
	}
	if n := locks.size(); n != 0 {
		t.Fatalf("entries=%d want=0 after release", n)
	}
}

func TestOwnerLocks_IndependentOwners(t *testing.T) {
	locks := NewOwnerLocks()
	unlockA := locks.Lock(testOwner)
	unlockB := locks.Lock(otherOwner)
	if n := locks.size(); n != 2 {
		t.Fatalf("entries=%d want=2", n)
	}
	unlockA()
	unlockA()
	unlockB()
	if n := locks.size(); n != 0 {
		t.Fatalf("entries=%d want=0", n)
	}
}

func TestOwnerLocks_NilIsNoop(t *testing.T) {
	var locks *OwnerLocks
	locks.Lock(testOwner)()
}

func TestOwnerLocks_LockContextGivesUp(t *testing.T) {
	locks := NewOwnerLocks()
	unlock := locks.Lock(testOwner)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locks.LockContext(ctx, testOwner); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v want=deadline exceeded", err)
	}
	if n := locks.size(); n != 1 {
		t.Fatalf("entries=%d want=1 while held", n)
	}

	unlock()
	again, err := locks.LockContext(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
	if n := locks.size(); n != 0 {
		t.Fatalf("entries=%d want=0", n)
	}
}
