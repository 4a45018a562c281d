package call

import (
	"context"
	"sync"
)

// Locker serializes transitions on the same call id
type Locker interface {
	// Lock blocks until the call is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, callID string) (func(), error)
}

// LocalLocker is an in-process keyed mutex. It only serializes callers
// within one instance.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch      chan struct{}
	waiters int
}

// NewLocalLocker creates an empty LocalLocker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

// Lock implements Locker
func (l *LocalLocker) Lock(ctx context.Context, callID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[callID]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[callID] = lk
	}
	lk.waiters++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(callID, lk, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(callID, lk, true) })
	}, nil
}

func (l *LocalLocker) release(callID string, lk *localLock, held bool) {
	if held {
		<-lk.ch
	}
	l.mu.Lock()
	lk.waiters--
	if lk.waiters == 0 {
		delete(l.locks, callID)
	}
	l.mu.Unlock()
}
