package relay

// waitingEntry is the single pending connection awaiting pairing.
type waitingEntry struct {
	connID string
	name   string
}

type enqueueStatus int

const (
	// enqueueWaiting: no one was waiting; the connection was parked.
	enqueueWaiting enqueueStatus = iota
	// enqueueAlreadyWaiting: repeat request from the current waiter; no-op.
	enqueueAlreadyWaiting
	// enqueuePaired: matched with the waiter; caller creates the session.
	enqueuePaired
)

// matchmaker pairs waiting connections. It holds zero or one entries at any
// instant, which makes FIFO trivial: the waiter always takes slot A.
type matchmaker struct {
	waiting *waitingEntry
}

func newMatchmaker() *matchmaker {
	return &matchmaker{}
}

// enqueueOrPair either pairs connID with the current waiter (clearing the
// waiting slot and returning the waiter) or parks connID as the new waiter.
// A repeat request from the waiter itself is a no-op. The caller is
// responsible for rejecting connections already in an active session before
// calling.
func (m *matchmaker) enqueueOrPair(connID, name string) (waitingEntry, enqueueStatus) {
	if m.waiting != nil {
		if m.waiting.connID == connID {
			return *m.waiting, enqueueAlreadyWaiting
		}
		waiter := *m.waiting
		m.waiting = nil
		return waiter, enqueuePaired
	}

	m.waiting = &waitingEntry{connID: connID, name: name}
	return *m.waiting, enqueueWaiting
}

// withdraw clears the waiting entry if it belongs to connID. Called from the
// disconnect path so a dead connection is never paired.
func (m *matchmaker) withdraw(connID string) bool {
	if m.waiting != nil && m.waiting.connID == connID {
		m.waiting = nil
		return true
	}
	return false
}

func (m *matchmaker) hasWaiter() bool {
	return m.waiting != nil
}
