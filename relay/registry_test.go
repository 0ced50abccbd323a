package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnRegistry_RegisterLookup(t *testing.T) {
	r := newConnRegistry()
	p := &mockPeer{}

	entry := r.register(p)
	require.NotEmpty(t, entry.id)

	byID, ok := r.lookup(entry.id)
	require.True(t, ok)
	assert.Same(t, entry, byID)

	byPeer, ok := r.lookupPeer(p)
	require.True(t, ok)
	assert.Same(t, entry, byPeer)

	assert.Equal(t, 1, r.len())
}

func TestConnRegistry_UnregisterExactlyOnce(t *testing.T) {
	r := newConnRegistry()
	entry := r.register(&mockPeer{})

	_, ok := r.unregister(entry.id)
	require.True(t, ok)

	_, ok = r.unregister(entry.id)
	assert.False(t, ok, "second unregister must report the entry as gone")
	assert.Equal(t, 0, r.len())
}

func TestConnRegistry_Touch(t *testing.T) {
	r := newConnRegistry()
	entry := r.register(&mockPeer{})

	entry.lastActivity = time.Now().Add(-time.Hour)
	r.touch(entry.id)
	assert.WithinDuration(t, time.Now(), entry.lastActivity, time.Second)
}

func TestConnRegistry_Stale(t *testing.T) {
	r := newConnRegistry()
	fresh := r.register(&mockPeer{})
	old := r.register(&mockPeer{})
	old.lastActivity = time.Now().Add(-time.Minute)

	stale := r.stale(time.Now(), 30*time.Second)
	require.Len(t, stale, 1)
	assert.Same(t, old, stale[0])
	_ = fresh
}

func TestConnRegistry_Adopt(t *testing.T) {
	r := newConnRegistry()
	original := r.register(&mockPeer{})
	originalID := original.id
	r.unregister(originalID)

	newPeer := &mockPeer{}
	fresh := r.register(newPeer)

	adopted, ok := r.adopt(fresh.id, originalID)
	require.True(t, ok)
	assert.Equal(t, originalID, adopted.id)

	// The fresh id is gone; the peer now resolves to the original id.
	_, ok = r.lookup(fresh.id)
	assert.False(t, ok)
	byPeer, ok := r.lookupPeer(newPeer)
	require.True(t, ok)
	assert.Equal(t, originalID, byPeer.id)
}

func TestConnRegistry_AdoptMissing(t *testing.T) {
	r := newConnRegistry()
	_, ok := r.adopt("nope", "original")
	assert.False(t, ok)
}
