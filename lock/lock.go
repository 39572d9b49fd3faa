// Package lock provides the mutual exclusion the engine takes around every
// mutating operation on a beneficiary.
//
// The in-process Memory locker is enough for a single engine; Redis-backed
// locking in the redislock package lets several engine instances share one
// database.
package lock

import (
	"context"
	"sync"
)

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func()

// Locker acquires named locks.
type Locker interface {
	// Lock blocks until key is held or ctx is done.
	Lock(ctx context.Context, key string) (Unlock, error)
}

// Memory is an in-process Locker. The zero value is ready to use.
type Memory struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewMemory creates an in-process locker.
func NewMemory() *Memory {
	return &Memory{}
}

// Lock implements Locker.
func (m *Memory) Lock(ctx context.Context, key string) (Unlock, error) {
	s := m.acquireSlot(key)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		m.releaseSlot(key)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			m.releaseSlot(key)
		})
	}, nil
}

func (m *Memory) acquireSlot(key string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slots == nil {
		m.slots = make(map[string]*slot)
	}
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s
}

func (m *Memory) releaseSlot(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.slots[key]
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

// Held reports how many keys currently have holders or waiters.
func (m *Memory) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
