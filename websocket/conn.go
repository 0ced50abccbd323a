// Package websocket is the transport layer: it upgrades HTTP requests,
// wraps gorilla connections behind the relay's peer interface, and feeds
// inbound frames into the coordinator loop.
package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/shivamani-yamana/checkbro/protocol"
)

const (
	writeRetryDelay = 200 * time.Millisecond
	maxWriteRetries = 3
)

var (
	errConnClosed     = errors.New("connection closed")
	errSendBufferFull = errors.New("send buffer full")
)

// Conn adapts one gorilla websocket connection to the relay peer
// interface. Outbound frames go through a buffered channel drained by a
// single write pump, so Send never blocks the coordinator loop.
type Conn struct {
	ws           *websocket.Conn
	send         chan protocol.Outbound
	quit         chan struct{}
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration, sendBuffer int) *Conn {
	c := &Conn{
		ws:           ws,
		send:         make(chan protocol.Outbound, sendBuffer),
		quit:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	go c.writePump()
	return c
}

// Send enqueues one outbound frame. A full buffer means the client is not
// draining its socket; the frame is rejected rather than blocking everyone
// else's traffic.
func (c *Conn) Send(msg protocol.Outbound) error {
	select {
	case <-c.quit:
		return errConnClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return errSendBufferFull
	}
}

// writePump is the sole writer of data frames. Transient write failures are
// retried with a constant backoff; a write that still fails afterwards kills
// the connection.
func (c *Conn) writePump() {
	strategy := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(writeRetryDelay),
		maxWriteRetries,
	)

	for {
		select {
		case <-c.quit:
			return
		case msg := <-c.send:
			operation := func() error {
				_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
				return c.ws.WriteJSON(msg)
			}
			err := backoff.RetryNotify(operation, strategy, func(err error, d time.Duration) {
				log.Warn().Err(err).Dur("retryIn", d).Msg("retrying websocket write")
			})
			if err != nil {
				log.Warn().Err(err).Msg("websocket write failed, dropping connection")
				_ = c.Terminate()
				return
			}
		}
	}
}

// Close performs a graceful shutdown: a close frame with the given reason,
// then the underlying close. Safe to call more than once.
func (c *Conn) Close(reason string) error {
	c.closeOnce.Do(func() {
		// WriteControl is safe concurrently with the write pump.
		err := c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(c.writeTimeout),
		)
		if err != nil {
			log.Debug().Err(err).Msg("failed to send close frame")
		}
		close(c.quit)
		_ = c.ws.Close()
	})
	return nil
}

// Terminate drops the connection without a close handshake. Used when the
// peer has already been judged dead, so a handshake would only block.
func (c *Conn) Terminate() error {
	c.closeOnce.Do(func() {
		close(c.quit)
		_ = c.ws.Close()
	})
	return nil
}
