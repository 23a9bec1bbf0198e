// Package lease serializes work per key, either inside one process or across processes
// sharing a Redis instance.
package lease

import (
	"context"
	"sync"
)

// Guard grants exclusive access to a key until the returned release func is called.
type Guard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Noop grants every request immediately.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// Local is an in-process keyed mutex. Waiting honours context cancellation.
type Local struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*localLock)}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, lk)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.ch
			l.unref(key, lk)
		})
	}, nil
}

func (l *Local) unref(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}
