package relay

import "time"

// connEntry is one live connection's registry record.
type connEntry struct {
	id           string
	peer         Peer
	lastActivity time.Time
	sessionID    string
}

// connRegistry tracks every live connection. It is owned exclusively by the
// coordinator loop and therefore carries no locking.
type connRegistry struct {
	byID   map[string]*connEntry
	byPeer map[Peer]string
}

func newConnRegistry() *connRegistry {
	return &connRegistry{
		byID:   make(map[string]*connEntry),
		byPeer: make(map[Peer]string),
	}
}

// register assigns a fresh opaque id and records the connection.
func (r *connRegistry) register(peer Peer) *connEntry {
	entry := &connEntry{
		id:           newConnectionID(),
		peer:         peer,
		lastActivity: time.Now(),
	}
	r.byID[entry.id] = entry
	r.byPeer[peer] = entry.id
	return entry
}

func (r *connRegistry) lookup(id string) (*connEntry, bool) {
	entry, ok := r.byID[id]
	return entry, ok
}

func (r *connRegistry) lookupPeer(peer Peer) (*connEntry, bool) {
	id, ok := r.byPeer[peer]
	if !ok {
		return nil, false
	}
	return r.lookup(id)
}

// touch updates last-liveness. Called on receipt of any inbound message.
func (r *connRegistry) touch(id string) {
	if entry, ok := r.byID[id]; ok {
		entry.lastActivity = time.Now()
	}
}

// unregister removes the entry. This is the single cleanup choke point for
// both organic close and forced termination; a second call for the same id
// reports false so disconnect handling runs exactly once.
func (r *connRegistry) unregister(id string) (*connEntry, bool) {
	entry, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	delete(r.byPeer, entry.peer)
	return entry, true
}

// adopt re-registers a fresh connection's peer under an original connection
// id, the splice performed on successful reconnection.
func (r *connRegistry) adopt(freshID, originalID string) (*connEntry, bool) {
	fresh, ok := r.byID[freshID]
	if !ok {
		return nil, false
	}
	delete(r.byID, freshID)

	entry := &connEntry{
		id:           originalID,
		peer:         fresh.peer,
		lastActivity: time.Now(),
	}
	r.byID[originalID] = entry
	r.byPeer[fresh.peer] = originalID
	return entry, true
}

// stale returns every entry whose last activity is older than the threshold.
func (r *connRegistry) stale(now time.Time, threshold time.Duration) []*connEntry {
	var out []*connEntry
	for _, entry := range r.byID {
		if now.Sub(entry.lastActivity) > threshold {
			out = append(out, entry)
		}
	}
	return out
}

func (r *connRegistry) each(fn func(*connEntry)) {
	for _, entry := range r.byID {
		fn(entry)
	}
}

func (r *connRegistry) len() int {
	return len(r.byID)
}
