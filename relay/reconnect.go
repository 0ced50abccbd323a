package relay

import (
	"time"

	"github.com/shivamani-yamana/checkbro/game"
	"github.com/shivamani-yamana/checkbro/token"
)

// grant is the server-side half of a reconnection capability: the record
// that makes a bearer token consumable, plus the forfeiture timer it owns.
type grant struct {
	connID    string
	sessionID string
	slot      game.Slot
	name      string
	timer     *time.Timer
}

// reconnectManager issues bearer tokens, tracks outstanding grants, and owns
// every forfeiture timer. At most one live grant exists per original
// connection id.
type reconnectManager struct {
	signer    *token.Signer
	window    time.Duration
	rateLimit time.Duration
	grants    map[string]*grant    // keyed by original connection id
	lastIssue map[string]time.Time // connID+sessionID -> last token issuance
}

func newReconnectManager(signer *token.Signer, window, rateLimit time.Duration) *reconnectManager {
	return &reconnectManager{
		signer:    signer,
		window:    window,
		rateLimit: rateLimit,
		grants:    make(map[string]*grant),
		lastIssue: make(map[string]time.Time),
	}
}

func issueKey(connID, sessionID string) string {
	return connID + "/" + sessionID
}

// issueToken signs a fresh bearer token for the connection/session pair.
// Issuance within the rate-limit window of the previous one is silently
// suppressed (ok=false) to bound token churn from flapping connections; the
// client's previously stored token remains usable until it expires.
func (rm *reconnectManager) issueToken(connID, sessionID string, slot game.Slot, name string) (signed string, expiresIn int, ok bool) {
	key := issueKey(connID, sessionID)
	if last, seen := rm.lastIssue[key]; seen && time.Since(last) < rm.rateLimit {
		return "", 0, false
	}

	signed, err := rm.signer.Issue(connID, sessionID, int(slot), name)
	if err != nil {
		return "", 0, false
	}
	rm.lastIssue[key] = time.Now()
	// expiresIn advertises the token's own lifetime, not the forfeiture
	// window; the two coincide in production but are set independently.
	return signed, int(rm.signer.TTL().Seconds()), true
}

// verify checks a presented bearer token.
func (rm *reconnectManager) verify(tokenString string) (*token.Claims, error) {
	return rm.signer.Verify(tokenString)
}

// armForfeiture records a grant for a lost connection and starts its
// forfeiture countdown. The timer posts back into the coordinator loop, so
// expiry is serialized with every other event. Re-arming replaces any
// existing grant, preserving the one-live-grant invariant.
func (rm *reconnectManager) armForfeiture(connID, sessionID string, slot game.Slot, name string, post func(Event)) {
	if old, ok := rm.grants[connID]; ok {
		old.timer.Stop()
	}

	g := &grant{
		connID:    connID,
		sessionID: sessionID,
		slot:      slot,
		name:      name,
	}
	g.timer = time.AfterFunc(rm.window, func() {
		post(forfeitureDue{connID: connID})
	})
	rm.grants[connID] = g
}

// disarm removes and returns the outstanding grant for connID, stopping its
// timer. It is the single disarm path for consumption, expiry, and session
// teardown, and is idempotent: a second call reports false.
func (rm *reconnectManager) disarm(connID string) (*grant, bool) {
	g, ok := rm.grants[connID]
	if !ok {
		return nil, false
	}
	g.timer.Stop()
	delete(rm.grants, connID)
	return g, true
}

// forgetIssue drops the rate-limit record for a connection/session pair once
// the session is gone.
func (rm *reconnectManager) forgetIssue(connID, sessionID string) {
	delete(rm.lastIssue, issueKey(connID, sessionID))
}
