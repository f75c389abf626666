// Package flatlock serializes writers per shared flat.
//
// Every operation that reads a flat's state and then writes based on it
// (ledger appends, join request transitions) holds the flat's lock for the
// whole read-then-write window. Two Locker implementations exist:
//
//   - Local: in-process keyed locks. Correct for a single instance.
//   - Redis: SET NX PX leases. Required when several instances share a
//     database.
//
// The storage layer keeps its own uniqueness backstops (see indexes), so a
// lease that expires mid-operation surfaces as a duplicate-key failure
// rather than a corrupted chain.
package flatlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotAcquired is returned when the context ends before the lock is taken.
var ErrNotAcquired = errors.New("flat lock not acquired")

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func()

// Locker hands out per-key exclusive locks.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// Key returns the lock key of a shared flat.
func Key(flatID primitive.ObjectID) string {
	return "flathub:lock:shared_flat:" + flatID.Hex()
}

// UserKey returns the lock key of a user. Operations that hold both take
// the user key first.
func UserKey(userID primitive.ObjectID) string {
	return "flathub:lock:user:" + userID.Hex()
}

// Local is an in-process Locker. Each key gets its own one-slot channel,
// created on first use and dropped when no goroutine holds or waits on it.
type Local struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns a ready Local locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*localEntry)}
}

func (l *Local) acquire(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *Local) release(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Lock blocks until key is free or ctx ends.
func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	e := l.acquire(key)
	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

// Bounded caps how long Lock may wait, regardless of the caller's deadline.
// A zero Wait leaves the caller's context in charge.
type Bounded struct {
	Locker
	Wait time.Duration
}

func (b Bounded) Lock(ctx context.Context, key string) (Unlock, error) {
	if b.Wait <= 0 {
		return b.Locker.Lock(ctx, key)
	}
	wctx, cancel := context.WithTimeout(ctx, b.Wait)
	defer cancel()
	return b.Locker.Lock(wctx, key)
}
