package accountlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AcquireRelease(t *testing.T) {
	m := NewManager()
	id := uuid.New()

	release, err := m.Acquire(context.Background(), id)
	require.NoError(t, err)
	release()

	// Reacquirable after release.
	release, err = m.Acquire(context.Background(), id)
	require.NoError(t, err)
	release()
}

func TestManager_Acquire_TimesOutWhileHeld(t *testing.T) {
	m := NewManager()
	id := uuid.New()

	release, err := m.Acquire(context.Background(), id)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.Acquire(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_Acquire_IndependentAccounts(t *testing.T) {
	m := NewManager()

	relA, err := m.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	defer relA()

	// A different account is not blocked.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	relB, err := m.Acquire(ctx, uuid.New())
	require.NoError(t, err)
	relB()
}

func TestManager_AcquirePair_ReleasesFirstOnFailure(t *testing.T) {
	m := NewManager()
	a := uuid.New()
	b := uuid.New()

	// Hold one side so the pair acquisition fails on its second lock.
	relB, err := m.Acquire(context.Background(), b)
	require.NoError(t, err)
	defer relB()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.AcquirePair(ctx, a, b)
	require.Error(t, err)

	// The other account's lock must have been released again.
	relA, err := m.Acquire(context.Background(), a)
	require.NoError(t, err)
	relA()
}

func TestManager_AcquirePair_OpposingPairsNoDeadlock(t *testing.T) {
	m := NewManager()
	a := uuid.New()
	b := uuid.New()

	// Opposing transfers on the same pair, many times over. Ordered
	// acquisition means this finishes instead of deadlocking.
	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(2)

	worker := func(x, y uuid.UUID) {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			release, err := m.AcquirePair(context.Background(), x, y)
			if err != nil {
				t.Error(err)
				return
			}
			release()
		}
	}

	go worker(a, b)
	go worker(b, a)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("opposing pair acquisition deadlocked")
	}
}

func TestManager_AcquirePair_MutualExclusion(t *testing.T) {
	m := NewManager()
	a := uuid.New()
	b := uuid.New()

	var inside, total int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.AcquirePair(context.Background(), a, b)
			if err != nil {
				t.Error(err)
				return
			}
			defer release()

			// Both locks held: no other goroutine may be inside.
			if n := atomic.AddInt32(&inside, 1); n != 1 {
				t.Errorf("critical section entered %d times concurrently", n)
			}
			atomic.AddInt32(&total, 1)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(50), atomic.LoadInt32(&total))
}
