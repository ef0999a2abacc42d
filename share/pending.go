package share

import (
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

const (
	DefaultTTL = time.Hour
)

// PendingStore keeps extracted URLs until the user picks a format. Entries
// expire after the TTL; Take removes an entry so a button can only start one
// pipeline.
type PendingStore struct {
	mu    sync.Mutex
	cache *ttlworker.Cache[string, *types.PendingRequest]
}

func NewPendingStore(ttl time.Duration) *PendingStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PendingStore{
		cache: ttlworker.NewCache[string, *types.PendingRequest](ttl),
	}
}

func (s *PendingStore) Put(req *types.PendingRequest) {
	if req == nil || req.RequestID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(req.RequestID, req)
	tool.DefaultLogger.Debugf("[Share] pending request %s stored for actor %d", req.RequestID, req.ActorID)
}

func (s *PendingStore) Get(requestID string) (*types.PendingRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.cache.Get(requestID)
	return req, req != nil
}

// Take returns the request and removes it.
func (s *PendingStore) Take(requestID string) (*types.PendingRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.cache.Get(requestID)
	if req == nil {
		return nil, false
	}
	s.cache.Delete(requestID)
	return req, true
}

func (s *PendingStore) Delete(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(requestID)
}

// DeleteActor drops every pending request of actorID and returns how many.
func (s *PendingStore) DeleteActor(actorID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	err := s.cache.Range(func(k string, v *types.PendingRequest) error {
		if v != nil && v.ActorID == actorID {
			ids = append(ids, k)
		}
		return nil
	})
	if err != nil {
		return 0
	}
	for _, id := range ids {
		s.cache.Delete(id)
	}
	return len(ids)
}

func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	_ = s.cache.Range(func(string, *types.PendingRequest) error {
		n++
		return nil
	})
	return n
}
