// Package admission bounds how many pipelines run at once and keeps each
// actor to a single pipeline at a time.
package admission

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

// Controller owns the global ticket pool and the per-actor lock registry.
// Construct one per process with New and pass it to every pipeline.
type Controller struct {
	capacity    int
	tickets     *semaphore.Weighted
	outstanding atomic.Int64
	busyActors  atomic.Int64

	mu     sync.Mutex // guards actors
	actors map[int64]*sync.Mutex
}

func New(capacity int) *Controller {
	if capacity <= 0 {
		capacity = 1
	}
	return &Controller{
		capacity: capacity,
		tickets:  semaphore.NewWeighted(int64(capacity)),
		actors:   make(map[int64]*sync.Mutex),
	}
}

// TryEnterGlobal takes a ticket if one is free.
func (c *Controller) TryEnterGlobal() bool {
	if !c.tickets.TryAcquire(1) {
		return false
	}
	c.outstanding.Add(1)
	return true
}

// EnterGlobal blocks until a ticket is free or ctx is done.
func (c *Controller) EnterGlobal(ctx context.Context) error {
	if err := c.tickets.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for a pipeline slot: %w", err)
	}
	c.outstanding.Add(1)
	return nil
}

// ExitGlobal returns a ticket taken by EnterGlobal or TryEnterGlobal.
func (c *Controller) ExitGlobal() {
	if c.outstanding.Add(-1) < 0 {
		c.outstanding.Add(1)
		tool.DefaultLogger.Errorf("[Admission] ExitGlobal called without a matching enter")
		return
	}
	c.tickets.Release(1)
}

// IsActorBusy reports whether actorID currently holds its lock.
func (c *Controller) IsActorBusy(actorID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.actors[actorID]
	if !ok {
		return false
	}
	if l.TryLock() {
		l.Unlock()
		return false
	}
	return true
}

// tryLockActor is the single check-and-acquire step. The lock is taken while
// the registry mutex is held so ForgetIdle can never drop a lock in use.
func (c *Controller) tryLockActor(actorID int64) (*sync.Mutex, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.actors[actorID]
	if !ok {
		l = &sync.Mutex{}
		c.actors[actorID] = l
	}
	if !l.TryLock() {
		return nil, false
	}
	c.busyActors.Add(1)
	return l, true
}

// WithActorExclusive runs fn while holding the actor's lock. A held lock
// fails immediately with types.ErrAdmissionBusy, nothing is queued.
func (c *Controller) WithActorExclusive(ctx context.Context, actorID int64, fn func(context.Context) error) error {
	l, ok := c.tryLockActor(actorID)
	if !ok {
		return fmt.Errorf("actor %d: %w", actorID, types.ErrAdmissionBusy)
	}
	defer func() {
		c.busyActors.Add(-1)
		l.Unlock()
	}()
	return fn(ctx)
}

// Admit takes the actor lock, then a global ticket, runs fn and gives both
// back exactly once.
func (c *Controller) Admit(ctx context.Context, actorID int64, fn func(context.Context) error) error {
	return c.WithActorExclusive(ctx, actorID, func(ctx context.Context) error {
		if err := c.EnterGlobal(ctx); err != nil {
			return err
		}
		defer c.ExitGlobal()
		return fn(ctx)
	})
}

// ForgetIdle drops registry entries for actors that are not running anything.
func (c *Controller) ForgetIdle() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for id, l := range c.actors {
		if l.TryLock() {
			delete(c.actors, id)
			l.Unlock()
			dropped++
		}
	}
	return dropped
}

func (c *Controller) Capacity() int {
	return c.capacity
}

func (c *Controller) Outstanding() int {
	return int(c.outstanding.Load())
}

func (c *Controller) ActiveActors() int {
	return int(c.busyActors.Load())
}

// KnownActors is the registry size, including idle actors.
func (c *Controller) KnownActors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actors)
}
