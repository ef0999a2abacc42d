package share

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/splitsend-go/types"
)

func TestPendingStoreTakeOnce(t *testing.T) {
	s := NewPendingStore(time.Minute)
	s.Put(&types.PendingRequest{RequestID: "a1", ActorID: 1, URL: "https://example.com/v"})

	got, ok := s.Get("a1")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/v", got.URL)

	got, ok = s.Take("a1")
	require.True(t, ok)
	assert.Equal(t, int64(1), got.ActorID)

	_, ok = s.Take("a1")
	assert.False(t, ok, "a request starts at most one pipeline")
}

func TestPendingStoreDeleteActor(t *testing.T) {
	s := NewPendingStore(time.Minute)
	s.Put(&types.PendingRequest{RequestID: "a1", ActorID: 1})
	s.Put(&types.PendingRequest{RequestID: "a2", ActorID: 1})
	s.Put(&types.PendingRequest{RequestID: "b1", ActorID: 2})
	s.Put(&types.PendingRequest{})

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 2, s.DeleteActor(1))
	assert.Equal(t, 1, s.Len())
	_, ok := s.Get("b1")
	assert.True(t, ok)
}

func TestPendingStoreExpires(t *testing.T) {
	s := NewPendingStore(50 * time.Millisecond)
	s.Put(&types.PendingRequest{RequestID: "a1", ActorID: 1})

	time.Sleep(200 * time.Millisecond)
	_, ok := s.Get("a1")
	assert.False(t, ok)
}
