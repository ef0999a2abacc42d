package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/moyoez/splitsend-go/types"
)

const DefaultHistoryTTL = time.Hour

type entry struct {
	state  State
	snap   types.PipelineSnapshot
	cancel context.CancelFunc
}

// Registry tracks running pipelines and keeps finished ones for a while so
// their outcome can still be queried.
type Registry struct {
	mu      sync.RWMutex
	active  map[string]*entry
	history *ttlworker.Cache[string, *types.PipelineSnapshot]
	now     func() time.Time
}

func NewRegistry(historyTTL time.Duration) *Registry {
	if historyTTL <= 0 {
		historyTTL = DefaultHistoryTTL
	}
	return &Registry{
		active:  make(map[string]*entry),
		history: ttlworker.NewCache[string, *types.PipelineSnapshot](historyTTL),
		now:     time.Now,
	}
}

func (r *Registry) add(job types.Job, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[job.RequestID]; exists {
		return fmt.Errorf("pipeline %s is already running", job.RequestID)
	}
	now := r.now()
	r.active[job.RequestID] = &entry{
		state:  Idle,
		cancel: cancel,
		snap: types.PipelineSnapshot{
			RequestID: job.RequestID,
			ActorID:   job.ActorID,
			Title:     job.Title,
			URL:       job.URL,
			State:     Idle.String(),
			StartedAt: now,
			UpdatedAt: now,
		},
	}
	return nil
}

// transition moves the pipeline to next, refusing moves CanTransition forbids.
func (r *Registry) transition(id string, next State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.active[id]
	if !ok {
		return fmt.Errorf("pipeline %s is not registered", id)
	}
	if !e.state.CanTransition(next) {
		return fmt.Errorf("pipeline %s: illegal transition %s -> %s", id, e.state, next)
	}
	e.state = next
	e.snap.State = next.String()
	e.snap.UpdatedAt = r.now()
	return nil
}

func (r *Registry) update(id string, fn func(*types.PipelineSnapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.active[id]; ok {
		fn(&e.snap)
		e.snap.UpdatedAt = r.now()
	}
}

// observe folds a progress event into the snapshot.
func (r *Registry) observe(ev types.ProgressEvent) {
	r.update(ev.RequestID, func(s *types.PipelineSnapshot) {
		s.Stage = ev.Stage
		switch ev.Stage {
		case types.StageDownloading:
			s.Percent = ev.Percent
		case types.StageUploading:
			s.Sent = ev.Sent
			s.Total = ev.Total
		}
	})
}

// abandon marks a pipeline that never got a ticket as failed.
func (r *Registry) abandon(id, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.active[id]
	if !ok || e.state != Idle {
		return
	}
	e.state = Failed
	e.snap.State = Failed.String()
	e.snap.Stage = types.StageFailed
	e.snap.Error = msg
	e.snap.UpdatedAt = r.now()
}

// remove moves a pipeline from the active set to the history.
func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.active[id]
	if !ok {
		return
	}
	delete(r.active, id)
	snap := e.snap
	r.history.Set(id, &snap)
}

// Get returns a running pipeline, or a recently finished one.
func (r *Registry) Get(id string) (types.PipelineSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.active[id]; ok {
		return e.snap, true
	}
	if snap := r.history.Get(id); snap != nil {
		return *snap, true
	}
	return types.PipelineSnapshot{}, false
}

// State returns the state of a running pipeline.
func (r *Registry) State(id string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.active[id]
	if !ok {
		return Idle, false
	}
	return e.state, true
}

// Active lists running pipelines, oldest first.
func (r *Registry) Active() []types.PipelineSnapshot {
	r.mu.RLock()
	out := make([]types.PipelineSnapshot, 0, len(r.active))
	for _, e := range r.active {
		out = append(out, e.snap)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// Cancel aborts a running pipeline. It reports false when id is not running.
func (r *Registry) Cancel(id string) bool {
	r.mu.RLock()
	e, ok := r.active[id]
	r.mu.RUnlock()
	if !ok || e.cancel == nil {
		return false
	}
	e.cancel()
	return true
}

// CancelActor aborts every pipeline of actorID and returns how many.
func (r *Registry) CancelActor(actorID int64) int {
	r.mu.RLock()
	var cancels []context.CancelFunc
	for _, e := range r.active {
		if e.snap.ActorID == actorID && e.cancel != nil {
			cancels = append(cancels, e.cancel)
		}
	}
	r.mu.RUnlock()
	for _, c := range cancels {
		c()
	}
	return len(cancels)
}
