package relay

// Event is one unit of work for the coordinator loop. All transport events
// and timer expirations funnel through the same queue, so handlers never run
// concurrently.
type Event interface {
	isEvent()
}

// PeerConnected is posted by the transport after a successful handshake.
type PeerConnected struct {
	Peer Peer
}

// PeerMessage is one inbound frame from a connected peer.
type PeerMessage struct {
	Peer Peer
	Data []byte
}

// PeerDisconnected is posted by the transport on close or read error. The
// coordinator treats forced terminations and organic closes identically.
type PeerDisconnected struct {
	Peer Peer
}

// forfeitureDue is posted by a reconnection grant's timer when the window
// elapses unconsumed.
type forfeitureDue struct {
	connID string
}

func (PeerConnected) isEvent()    {}
func (PeerMessage) isEvent()      {}
func (PeerDisconnected) isEvent() {}
func (forfeitureDue) isEvent()    {}
