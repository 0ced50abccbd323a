// Package relay is the session/connection-lifecycle core: the matchmaking
// queue, the connection registry, the reconnection protocol, and the
// liveness monitor, all bound by a single-threaded coordinator loop.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shivamani-yamana/checkbro/game"
	"github.com/shivamani-yamana/checkbro/metrics"
	"github.com/shivamani-yamana/checkbro/protocol"
	"github.com/shivamani-yamana/checkbro/token"
)

// Config holds the coordinator's timing knobs.
type Config struct {
	PingInterval       time.Duration
	StalenessTimeout   time.Duration
	ReconnectionWindow time.Duration
	GrantRateLimit     time.Duration
}

// Coordinator routes every inbound event to the right component and fans
// resulting events out to the affected connections. All state below is
// mutated only from the Run loop: handlers run to completion one at a time,
// which is the whole concurrency model.
type Coordinator struct {
	cfg       Config
	validator game.Validator
	conns     *connRegistry
	sessions  map[string]*game.Session
	mm        *matchmaker
	rm        *reconnectManager
	events    chan Event
}

// New creates a coordinator. Call Run to start processing.
func New(cfg Config, validator game.Validator, signer *token.Signer) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		validator: validator,
		conns:     newConnRegistry(),
		sessions:  make(map[string]*game.Session),
		mm:        newMatchmaker(),
		rm:        newReconnectManager(signer, cfg.ReconnectionWindow, cfg.GrantRateLimit),
		events:    make(chan Event, 256),
	}
}

// Post enqueues an event for the coordinator loop. Safe for any goroutine.
func (c *Coordinator) Post(ev Event) {
	c.events <- ev
}

// Run processes events until the context is cancelled. Heartbeat emission
// and the staleness sweep share one ticker so they stay serialized with
// message handling.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case ev := <-c.events:
			c.dispatch(ev)
		case <-ticker.C:
			c.heartbeat()
			c.sweep()
		}
	}
}

// shutdown closes every live connection gracefully. Runs as the loop's last
// act, so no handler can race it.
func (c *Coordinator) shutdown() {
	log.Info().Int("connections", c.conns.len()).Msg("closing client connections")
	c.conns.each(func(entry *connEntry) {
		if err := entry.peer.Close("server shutting down"); err != nil {
			log.Debug().Str("connId", entry.id).Err(err).Msg("close failed")
		}
	})
}

// dispatch handles one event. A panic in a handler must not take down the
// loop or the other sessions, so it is caught and logged here.
func (c *Coordinator) dispatch(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from event handler panic")
		}
	}()

	switch e := ev.(type) {
	case PeerConnected:
		c.handleConnected(e.Peer)
	case PeerMessage:
		c.handleMessage(e.Peer, e.Data)
	case PeerDisconnected:
		c.handleDisconnected(e.Peer)
	case forfeitureDue:
		c.handleForfeiture(e.connID)
	}
}

func (c *Coordinator) handleConnected(peer Peer) {
	entry := c.conns.register(peer)
	metrics.ActiveConnections.Inc()
	metrics.TotalConnections.Inc()
	log.Info().Str("connId", entry.id).Msg("client connected")

	c.send(entry, protocol.KindConnectionEstablished, protocol.ConnectionEstablishedPayload{
		ConnectionID: entry.id,
	})
}

func (c *Coordinator) handleMessage(peer Peer, data []byte) {
	entry, ok := c.conns.lookupPeer(peer)
	if !ok {
		return
	}

	// Any inbound message counts as liveness, not only heartbeats.
	c.conns.touch(entry.id)
	metrics.MessagesReceived.Inc()

	env, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Str("connId", entry.id).Err(err).Msg("dropping malformed frame")
		return
	}

	switch env.Type {
	case protocol.KindPing:
		c.send(entry, protocol.KindPong, nil)
	case protocol.KindPong:
		// Liveness already recorded above.
	case protocol.KindInitGame:
		var p protocol.InitGamePayload
		if err := protocol.DecodePayload(env, &p); err != nil {
			log.Warn().Str("connId", entry.id).Err(err).Msg("dropping frame")
			return
		}
		c.handleInitGame(entry, p.PlayerName)
	case protocol.KindReconnectRequest:
		var p protocol.ReconnectRequestPayload
		if err := protocol.DecodePayload(env, &p); err != nil {
			log.Warn().Str("connId", entry.id).Err(err).Msg("dropping frame")
			return
		}
		c.handleReconnect(entry, p.Token)
	default:
		c.handleGameAction(entry, env)
	}
}

// handleGameAction dispatches move/resign/draw messages. Messages from
// connections with no active session are silently dropped.
func (c *Coordinator) handleGameAction(entry *connEntry, env protocol.Envelope) {
	sess := c.sessionFor(entry)
	if sess == nil {
		log.Debug().Str("connId", entry.id).Str("type", env.Type).Msg("game action without session, dropped")
		return
	}
	slot, ok := sess.SlotOf(entry.id)
	if !ok {
		return
	}

	switch env.Type {
	case protocol.KindMove:
		var p protocol.MovePayload
		if err := protocol.DecodePayload(env, &p); err != nil {
			log.Warn().Str("connId", entry.id).Err(err).Msg("dropping frame")
			return
		}
		c.handleMove(sess, slot, p)
	case protocol.KindResign:
		c.handleResign(sess, slot)
	case protocol.KindOfferDraw:
		opp := sess.Slot(slot.Other())
		c.sendTo(opp.ConnID, protocol.KindDrawOffer, protocol.DrawOfferPayload{
			Player: slot.Color().String(),
		})
	case protocol.KindDrawAccepted:
		c.handleDrawAccepted(sess)
	case protocol.KindDrawDeclined:
		c.broadcast(sess, protocol.KindDrawDeclined, nil)
	}
}

func (c *Coordinator) handleInitGame(entry *connEntry, name string) {
	if sess := c.sessionFor(entry); sess != nil {
		log.Debug().Str("connId", entry.id).Str("sessionId", sess.ID()).Msg("init-game rejected: already in a game")
		return
	}
	entry.sessionID = ""

	waiter, status := c.mm.enqueueOrPair(entry.id, name)
	switch status {
	case enqueueAlreadyWaiting:
		log.Debug().Str("connId", entry.id).Msg("already waiting for an opponent")
	case enqueueWaiting:
		log.Info().Str("connId", entry.id).Str("player", name).Msg("waiting for an opponent")
	case enqueuePaired:
		waiterEntry, ok := c.conns.lookup(waiter.connID)
		if !ok {
			// The waiter vanished without passing through the disconnect
			// path; park the current connection instead.
			c.mm.enqueueOrPair(entry.id, name)
			return
		}
		c.createSession(waiterEntry, waiter.name, entry, name)
	}
}

func (c *Coordinator) createSession(a *connEntry, aName string, b *connEntry, bName string) {
	sess := game.NewSession(newSessionID(),
		game.SlotBinding{ConnID: a.id, Name: aName},
		game.SlotBinding{ConnID: b.id, Name: bName},
		c.validator.NewPosition(),
	)
	c.sessions[sess.ID()] = sess
	a.sessionID = sess.ID()
	b.sessionID = sess.ID()

	metrics.SessionsCreated.Inc()
	metrics.ActiveSessions.Inc()
	log.Info().
		Str("sessionId", sess.ID()).
		Str("white", a.id).
		Str("black", b.id).
		Msg("session created")

	c.send(a, protocol.KindInitGame, protocol.InitGameAckPayload{Color: "white", OpponentName: bName})
	c.send(b, protocol.KindInitGame, protocol.InitGameAckPayload{Color: "black", OpponentName: aName})

	c.issueTokenTo(a, sess, game.SlotA)
	c.issueTokenTo(b, sess, game.SlotB)
}

func (c *Coordinator) handleMove(sess *game.Session, slot game.Slot, p protocol.MovePayload) {
	applied, err := sess.ApplyMove(slot, game.Move{From: p.From, To: p.To, Promotion: p.Promotion})
	if err != nil {
		// Rule violations are rejected silently: no state change, no
		// broadcast. The sender's board stands reaffirmed by the absence
		// of an update.
		reason := "illegal_move"
		switch {
		case errors.Is(err, game.ErrOutOfTurn):
			reason = "out_of_turn"
		case errors.Is(err, game.ErrSessionTerminal):
			reason = "terminal"
		}
		metrics.MovesRejected.WithLabelValues(reason).Inc()
		log.Debug().Str("sessionId", sess.ID()).Str("reason", reason).Msg("move rejected")
		return
	}

	metrics.MovesApplied.Inc()
	c.broadcast(sess, protocol.KindUpdateBoard, protocol.UpdateBoardPayload{
		Board:   applied.Snapshot.FEN,
		Move:    p,
		History: applied.Snapshot.MoveHistory,
	})

	if applied.Terminal != nil {
		c.broadcast(sess, protocol.KindGameOver, protocol.GameOverPayload{
			Winner:  applied.Terminal.Winner,
			WinType: applied.Terminal.WinType,
		})
		c.endSession(sess, applied.Terminal.WinType)
	}
}

func (c *Coordinator) handleResign(sess *game.Session, slot game.Slot) {
	term, ok := sess.Resign(slot)
	if !ok {
		return
	}
	c.broadcast(sess, protocol.KindResign, protocol.ResignPayload{Winner: term.Winner})
	c.endSession(sess, term.WinType)
}

func (c *Coordinator) handleDrawAccepted(sess *game.Session) {
	term, ok := sess.AcceptDraw()
	if !ok {
		return
	}
	c.broadcast(sess, protocol.KindGameOver, protocol.GameOverPayload{
		Winner:  term.Winner,
		WinType: term.WinType,
	})
	c.endSession(sess, term.WinType)
}

func (c *Coordinator) handleDisconnected(peer Peer) {
	entry, ok := c.conns.lookupPeer(peer)
	if !ok {
		// Already cleaned up, e.g. the sweep terminated this connection
		// before the transport noticed.
		return
	}
	c.disconnect(entry)
}

// disconnect is the one cleanup path for every kind of connection loss.
func (c *Coordinator) disconnect(entry *connEntry) {
	if _, ok := c.conns.unregister(entry.id); !ok {
		return
	}
	metrics.ActiveConnections.Dec()
	log.Info().Str("connId", entry.id).Msg("client disconnected")

	if c.mm.withdraw(entry.id) {
		log.Info().Str("connId", entry.id).Msg("waiting entry cleared")
		return
	}

	sess := c.sessionFor(entry)
	if sess == nil {
		return
	}
	slot, ok := sess.SlotOf(entry.id)
	if !ok {
		return
	}

	opp := sess.Slot(slot.Other())
	c.sendTo(opp.ConnID, protocol.KindOpponentDisconnected, protocol.OpponentDisconnectedPayload{
		ReconnectionWindowSeconds: int(c.cfg.ReconnectionWindow.Seconds()),
	})

	c.rm.armForfeiture(entry.id, sess.ID(), slot, sess.Slot(slot).Name, c.Post)
	log.Info().
		Str("connId", entry.id).
		Str("sessionId", sess.ID()).
		Dur("window", c.cfg.ReconnectionWindow).
		Msg("reconnection window armed")
}

func (c *Coordinator) handleForfeiture(connID string) {
	// The grant may have been consumed between the timer firing and this
	// event being handled; disarm reports whether it was still live.
	g, ok := c.rm.disarm(connID)
	if !ok {
		return
	}

	sess, exists := c.sessions[g.sessionID]
	if !exists {
		return
	}
	term, ok := sess.ForfeitBySlot(g.slot)
	if !ok {
		return
	}

	metrics.ForfeituresTotal.Inc()
	log.Info().
		Str("connId", connID).
		Str("sessionId", sess.ID()).
		Str("winner", term.Winner).
		Msg("reconnection window expired, session forfeited")

	opp := sess.Slot(g.slot.Other())
	c.sendTo(opp.ConnID, protocol.KindGameOver, protocol.GameOverPayload{
		Winner:  term.Winner,
		WinType: term.WinType,
	})
	c.endSession(sess, term.WinType)
}

func (c *Coordinator) handleReconnect(entry *connEntry, tokenString string) {
	fail := func(reason string) {
		metrics.ReconnectionAttempts.WithLabelValues("failure").Inc()
		c.send(entry, protocol.KindReconnectionFailed, protocol.ReconnectionFailedPayload{Reason: reason})
	}

	// A connection already seated in a live session cannot be spliced into
	// another one: adopting it would orphan its current slot without the
	// opponent ever seeing a disconnect.
	if sess := c.sessionFor(entry); sess != nil {
		log.Warn().
			Str("connId", entry.id).
			Str("sessionId", sess.ID()).
			Msg("reconnect request from a connection already in a session")
		fail(protocol.ReasonInvalidOrExpired)
		return
	}

	claims, err := c.rm.verify(tokenString)
	if err != nil {
		log.Warn().Str("connId", entry.id).Err(err).Msg("reconnection token rejected")
		fail(protocol.ReasonInvalidOrExpired)
		return
	}

	sess, exists := c.sessions[claims.SessionID]
	if !exists {
		fail(protocol.ReasonSessionGone)
		return
	}
	if _, terminal := sess.Terminal(); terminal {
		fail(protocol.ReasonAlreadyEnded)
		return
	}

	// Consuming the grant disarms the forfeiture timer. A token without an
	// outstanding grant was already consumed (or its subject never left),
	// so this is also what makes grants single-use.
	g, ok := c.rm.disarm(claims.ConnectionID)
	if !ok {
		fail(protocol.ReasonInvalidOrExpired)
		return
	}

	if !sess.RebindSlot(g.slot, g.connID) {
		fail(protocol.ReasonAlreadyEnded)
		return
	}

	// Splice the new transport in under the original connection id so
	// subsequent messages and heartbeats map to continuity.
	c.mm.withdraw(entry.id)
	adopted, ok := c.conns.adopt(entry.id, g.connID)
	if !ok {
		fail(protocol.ReasonInvalidOrExpired)
		return
	}
	adopted.sessionID = sess.ID()

	metrics.ReconnectionAttempts.WithLabelValues("success").Inc()
	log.Info().
		Str("connId", g.connID).
		Str("sessionId", sess.ID()).
		Msg("client reconnected into session")

	opp := sess.Slot(g.slot.Other())
	c.sendTo(opp.ConnID, protocol.KindOpponentReconnected, nil)

	c.send(adopted, protocol.KindReconnectionSuccess, protocol.ReconnectionSuccessPayload{
		GameState:    sess.Snapshot(),
		Color:        g.slot.Color().String(),
		OpponentName: opp.Name,
	})
	c.issueTokenTo(adopted, sess, g.slot)
}

// heartbeat emits a protocol-level ping to every registered connection.
func (c *Coordinator) heartbeat() {
	c.conns.each(func(entry *connEntry) {
		c.send(entry, protocol.KindPing, nil)
	})
}

// sweep force-closes connections whose liveness timestamp has gone stale.
// Termination funnels through the same disconnect path as an organic close.
func (c *Coordinator) sweep() {
	for _, entry := range c.conns.stale(time.Now(), c.cfg.StalenessTimeout) {
		log.Warn().Str("connId", entry.id).Time("lastActivity", entry.lastActivity).Msg("connection timed out")
		metrics.StaleConnectionsSwept.Inc()
		_ = entry.peer.Terminate()
		c.disconnect(entry)
	}
}

// endSession removes a terminal session from the registry and releases
// everything attached to it: slot back-references, outstanding grants, and
// rate-limit records.
func (c *Coordinator) endSession(sess *game.Session, reason string) {
	delete(c.sessions, sess.ID())

	for _, slot := range []game.Slot{game.SlotA, game.SlotB} {
		binding := sess.Slot(slot)
		if e, ok := c.conns.lookup(binding.ConnID); ok && e.sessionID == sess.ID() {
			e.sessionID = ""
		}
		c.rm.disarm(binding.ConnID)
		c.rm.forgetIssue(binding.ConnID, sess.ID())
	}

	metrics.ActiveSessions.Dec()
	metrics.SessionsEnded.WithLabelValues(reason).Inc()
	log.Info().Str("sessionId", sess.ID()).Str("reason", reason).Msg("session ended")
}

func (c *Coordinator) sessionFor(entry *connEntry) *game.Session {
	if entry.sessionID == "" {
		return nil
	}
	return c.sessions[entry.sessionID]
}

func (c *Coordinator) issueTokenTo(entry *connEntry, sess *game.Session, slot game.Slot) {
	signed, expiresIn, ok := c.rm.issueToken(entry.id, sess.ID(), slot, sess.Slot(slot).Name)
	if !ok {
		return
	}
	metrics.GrantsIssued.Inc()
	c.send(entry, protocol.KindReconnectionToken, protocol.ReconnectionTokenPayload{
		Token:     signed,
		ExpiresIn: expiresIn,
	})
}

func (c *Coordinator) send(entry *connEntry, kind string, payload any) {
	if err := entry.peer.Send(protocol.Outbound{Type: kind, Payload: payload}); err != nil {
		log.Warn().Str("connId", entry.id).Str("type", kind).Err(err).Msg("failed to send message")
		return
	}
	metrics.MessagesSent.Inc()
}

func (c *Coordinator) sendTo(connID, kind string, payload any) {
	if entry, ok := c.conns.lookup(connID); ok {
		c.send(entry, kind, payload)
	}
}

func (c *Coordinator) broadcast(sess *game.Session, kind string, payload any) {
	c.sendTo(sess.Slot(game.SlotA).ConnID, kind, payload)
	c.sendTo(sess.Slot(game.SlotB).ConnID, kind, payload)
}
