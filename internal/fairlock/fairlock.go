// Package fairlock provides a mutual exclusion lock with strict
// FIFO handoff.
//
// sync.Mutex makes no fairness guarantee in its fast path: a
// goroutine that just released the lock can immediately reacquire it,
// starving waiters. Device channels cannot tolerate that; commands
// from concurrent clients must reach the hardware in arrival order.
// FairLock queues waiters and hands the lock to the head of the
// queue on every release.
//
// LockContext supports cancellation: a waiter whose context is done
// leaves the queue without disturbing the order of those behind it.
package fairlock

import (
	"context"
	"sync"
)

// FairLock is a mutual exclusion lock with FIFO acquisition order.
//
// The zero value is an unlocked lock. A FairLock must not be copied
// after first use.
type FairLock struct {
	mu      sync.Mutex
	locked  bool
	waiters []chan struct{}
}

// Lock acquires the lock, blocking behind earlier waiters.
func (l *FairLock) Lock() {
	l.mu.Lock()
	if !l.locked && len(l.waiters) == 0 {
		l.locked = true
		l.mu.Unlock()
		return
	}

	ticket := make(chan struct{})
	l.waiters = append(l.waiters, ticket)
	l.mu.Unlock()

	<-ticket
}

// LockContext acquires the lock, giving up if ctx is done first.
//
// Returns ctx.Err() without the lock when cancelled. Waiters behind
// a cancelled waiter keep their positions.
func (l *FairLock) LockContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if !l.locked && len(l.waiters) == 0 {
		l.locked = true
		l.mu.Unlock()
		return nil
	}

	ticket := make(chan struct{})
	l.waiters = append(l.waiters, ticket)
	l.mu.Unlock()

	select {
	case <-ticket:
		return nil
	case <-ctx.Done():
	}

	// Cancelled. The ticket may have been handed the lock in the
	// window before we removed ourselves; if so, pass it on.
	l.mu.Lock()
	for i, w := range l.waiters {
		if w == ticket {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			l.mu.Unlock()
			return ctx.Err()
		}
	}
	// Ticket already granted: we hold the lock, release it properly.
	l.handoffLocked()
	l.mu.Unlock()
	return ctx.Err()
}

// TryLock acquires the lock only if it is free with no waiters.
func (l *FairLock) TryLock() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked || len(l.waiters) > 0 {
		return false
	}
	l.locked = true
	return true
}

// Unlock releases the lock, handing it to the oldest waiter.
//
// Unlocking an unheld FairLock panics, matching sync.Mutex.
func (l *FairLock) Unlock() {
	l.mu.Lock()
	if !l.locked {
		l.mu.Unlock()
		panic("fairlock: unlock of unlocked FairLock")
	}
	l.handoffLocked()
	l.mu.Unlock()
}

// handoffLocked passes the lock to the head waiter or marks it free.
// Caller holds l.mu.
func (l *FairLock) handoffLocked() {
	if len(l.waiters) == 0 {
		l.locked = false
		return
	}
	head := l.waiters[0]
	l.waiters = l.waiters[1:]
	// locked stays true; ownership transfers to the head waiter.
	close(head)
}

// Waiters returns the current queue length. Intended for tests and
// diagnostics; the value is stale as soon as it returns.
func (l *FairLock) Waiters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}
