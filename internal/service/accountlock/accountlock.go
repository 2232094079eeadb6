// Package accountlock serializes balance mutations per account.
// Locks are keyed by user id and honor context deadlines, so a
// transfer blocked behind a contended account fails with a retryable
// error instead of queueing indefinitely.
package accountlock

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/uuid"
)

// Manager hands out per-account locks. The zero value is not usable;
// call NewManager.
type Manager struct {
	mu    sync.Mutex
	locks map[uuid.UUID]chan struct{}
}

// NewManager creates an empty lock manager.
func NewManager() *Manager {
	return &Manager{locks: make(map[uuid.UUID]chan struct{})}
}

// lockChan returns the buffered channel acting as a mutex for id.
// A token in the channel means the lock is free.
func (m *Manager) lockChan(id uuid.UUID) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		ch <- struct{}{}
		m.locks[id] = ch
	}
	return ch
}

// Acquire takes the lock for id, blocking until it is granted or ctx
// expires. The returned release function must be called exactly once.
func (m *Manager) Acquire(ctx context.Context, id uuid.UUID) (release func(), err error) {
	ch := m.lockChan(id)
	select {
	case <-ch:
		return func() { ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AcquirePair takes both account locks in a fixed global order
// (ascending uuid bytes) so opposing transfers on the same pair
// cannot deadlock. On failure no lock is held.
func (m *Manager) AcquirePair(ctx context.Context, a, b uuid.UUID) (release func(), err error) {
	first, second := a, b
	if bytes.Compare(b[:], a[:]) < 0 {
		first, second = b, a
	}

	relFirst, err := m.Acquire(ctx, first)
	if err != nil {
		return nil, err
	}
	relSecond, err := m.Acquire(ctx, second)
	if err != nil {
		relFirst()
		return nil, err
	}
	return func() {
		relSecond()
		relFirst()
	}, nil
}
