package relay

import "github.com/shivamani-yamana/checkbro/protocol"

// Peer is a live transport endpoint. The coordinator only ever talks to the
// transport through this interface; framing and retry live behind it.
type Peer interface {
	// Send enqueues one outbound frame. It must not block the caller.
	Send(msg protocol.Outbound) error
	// Close performs a graceful close with a reason.
	Close(reason string) error
	// Terminate force-closes the transport without a close handshake.
	Terminate() error
}
