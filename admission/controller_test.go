package admission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/splitsend-go/types"
)

func TestTryEnterGlobal(t *testing.T) {
	c := New(2)

	assert.True(t, c.TryEnterGlobal())
	assert.True(t, c.TryEnterGlobal())
	assert.False(t, c.TryEnterGlobal(), "pool is exhausted")
	assert.Equal(t, 2, c.Outstanding())

	c.ExitGlobal()
	assert.Equal(t, 1, c.Outstanding())
	assert.True(t, c.TryEnterGlobal())
}

func TestEnterGlobalBlocksOneCallerBeyondCapacity(t *testing.T) {
	const capacity = 3
	c := New(capacity)

	var (
		entered atomic.Int32
		peak    atomic.Int32
		inside  atomic.Int32
		wg      sync.WaitGroup
	)
	release := make(chan struct{})

	for i := 0; i < capacity+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.EnterGlobal(context.Background()))
			n := inside.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			entered.Add(1)
			<-release
			inside.Add(-1)
			c.ExitGlobal()
		}()
	}

	require.Eventually(t, func() bool { return entered.Load() == capacity }, time.Second, 5*time.Millisecond)
	// the extra caller must still be waiting
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(capacity), entered.Load())
	assert.Equal(t, capacity, c.Outstanding())

	close(release)
	wg.Wait()

	assert.Equal(t, int32(capacity+1), entered.Load())
	assert.LessOrEqual(t, peak.Load(), int32(capacity))
	assert.Equal(t, 0, c.Outstanding())
}

func TestEnterGlobalCancelled(t *testing.T) {
	c := New(1)
	require.True(t, c.TryEnterGlobal())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.EnterGlobal(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, c.Outstanding(), "a cancelled wait takes no ticket")
}

func TestExitGlobalWithoutEnter(t *testing.T) {
	c := New(1)
	assert.NotPanics(t, c.ExitGlobal)
	assert.Equal(t, 0, c.Outstanding())
	assert.True(t, c.TryEnterGlobal())
	assert.False(t, c.TryEnterGlobal(), "unmatched exit must not grow the pool")
}

func TestWithActorExclusiveRejectsSecondRequest(t *testing.T) {
	c := New(4)
	started := make(chan struct{})
	finish := make(chan struct{})
	var running atomic.Int32

	done := make(chan error, 1)
	go func() {
		done <- c.WithActorExclusive(context.Background(), 7, func(context.Context) error {
			running.Add(1)
			close(started)
			<-finish
			running.Add(-1)
			return nil
		})
	}()
	<-started

	assert.True(t, c.IsActorBusy(7))
	assert.False(t, c.IsActorBusy(8))

	called := false
	err := c.WithActorExclusive(context.Background(), 7, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, types.ErrAdmissionBusy)
	assert.False(t, called)
	assert.Equal(t, int32(1), running.Load())

	// other actors are unaffected
	assert.NoError(t, c.WithActorExclusive(context.Background(), 8, func(context.Context) error { return nil }))

	close(finish)
	require.NoError(t, <-done)
	assert.False(t, c.IsActorBusy(7))
	assert.Equal(t, 0, c.ActiveActors())
}

func TestWithActorExclusiveConcurrentSameActor(t *testing.T) {
	c := New(10)
	var (
		wg      sync.WaitGroup
		ran     atomic.Int32
		busy    atomic.Int32
		overlap atomic.Int32
		inside  atomic.Int32
	)
	gate := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			err := c.WithActorExclusive(context.Background(), 1, func(context.Context) error {
				if inside.Add(1) > 1 {
					overlap.Add(1)
				}
				ran.Add(1)
				time.Sleep(10 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			if errors.Is(err, types.ErrAdmissionBusy) {
				busy.Add(1)
			}
		}()
	}
	close(gate)
	wg.Wait()

	assert.Zero(t, overlap.Load())
	assert.GreaterOrEqual(t, ran.Load(), int32(1))
	assert.Equal(t, int32(8), ran.Load()+busy.Load())
}

func TestWithActorExclusiveReleasesOnErrorAndPanic(t *testing.T) {
	c := New(1)
	boom := errors.New("boom")

	err := c.WithActorExclusive(context.Background(), 3, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.IsActorBusy(3))

	assert.Panics(t, func() {
		_ = c.WithActorExclusive(context.Background(), 3, func(context.Context) error { panic("bad") })
	})
	assert.False(t, c.IsActorBusy(3))
	assert.Equal(t, 0, c.ActiveActors())
}

func TestAdmitReleasesTicketAndLock(t *testing.T) {
	c := New(1)
	boom := errors.New("boom")

	err := c.Admit(context.Background(), 9, func(context.Context) error {
		assert.Equal(t, 1, c.Outstanding())
		assert.True(t, c.IsActorBusy(9))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Outstanding())
	assert.False(t, c.IsActorBusy(9))
}

func TestAdmitBusyActorTakesNoTicket(t *testing.T) {
	c := New(2)
	hold := make(chan struct{})
	in := make(chan struct{})
	go func() {
		_ = c.Admit(context.Background(), 5, func(context.Context) error {
			close(in)
			<-hold
			return nil
		})
	}()
	<-in

	err := c.Admit(context.Background(), 5, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, types.ErrAdmissionBusy)
	assert.Equal(t, 1, c.Outstanding())
	close(hold)
}

func TestForgetIdle(t *testing.T) {
	c := New(2)
	require.NoError(t, c.WithActorExclusive(context.Background(), 1, func(context.Context) error { return nil }))

	hold := make(chan struct{})
	in := make(chan struct{})
	go func() {
		_ = c.WithActorExclusive(context.Background(), 2, func(context.Context) error {
			close(in)
			<-hold
			return nil
		})
	}()
	<-in

	assert.Equal(t, 2, c.KnownActors())
	assert.Equal(t, 1, c.ForgetIdle())
	assert.Equal(t, 1, c.KnownActors())
	assert.True(t, c.IsActorBusy(2))
	close(hold)
}
