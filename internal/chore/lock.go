package chore

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/dukerupert/choreflow/internal/model"
)

// lockSet hands out one weighted semaphore per instance key. Keys are
// compared field by field, so names containing separators cannot collide. Acquisition
// honors context cancellation, so a caller can give up waiting and retry.
// An entry lives only while someone holds or waits for it.
type lockSet struct {
	mu    sync.Mutex
	locks map[model.InstanceKey]*keyLock
}

type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newLockSet() *lockSet {
	return &lockSet{locks: make(map[model.InstanceKey]*keyLock)}
}

func (l *lockSet) ref(key model.InstanceKey) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: semaphore.NewWeighted(1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *lockSet) unref(key model.InstanceKey, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// acquire blocks until the key is free or ctx is done.
func (l *lockSet) acquire(ctx context.Context, key model.InstanceKey) (func(), error) {
	kl := l.ref(key)
	if err := kl.sem.Acquire(ctx, 1); err != nil {
		l.unref(key, kl)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			kl.sem.Release(1)
			l.unref(key, kl)
		})
	}, nil
}

func (l *lockSet) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
