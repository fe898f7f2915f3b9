// Package lock provides per-key mutual exclusion for pipeline workers, with
// an in-process implementation and a Redis-backed one for multi-node
// deployments.
package lock

import (
	"context"
	"sync"
)

// Locker serializes work per key. Lock blocks until the key is held or the
// context is done, and returns the release function.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// KeyedMutex is an in-process Locker. Each key gets its own mutex slot;
// slots are reclaimed when the last holder releases.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch      chan struct{}
	waiters int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.waiters++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			k.mu.Lock()
			s.waiters--
			if s.waiters == 0 {
				delete(k.slots, key)
			}
			k.mu.Unlock()
		}, nil
	case <-ctx.Done():
		k.mu.Lock()
		s.waiters--
		if s.waiters == 0 {
			delete(k.slots, key)
		}
		k.mu.Unlock()
		return nil, ctx.Err()
	}
}
