package websocket

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/shivamani-yamana/checkbro/config"
	"github.com/shivamani-yamana/checkbro/relay"
)

// Handler upgrades HTTP requests and pumps frames between the transport
// and the coordinator.
type Handler struct {
	coord        *relay.Coordinator
	upgrader     websocket.Upgrader
	readLimit    int64
	writeTimeout time.Duration
	sendBuffer   int
}

// NewHandler creates a websocket handler bound to the coordinator.
func NewHandler(coord *relay.Coordinator, wsCfg config.WebSocketConfig, allowedOrigins []string) *Handler {
	return &Handler{
		coord:        coord,
		readLimit:    int64(wsCfg.MessageSizeLimit),
		writeTimeout: time.Duration(wsCfg.WriteTimeout) * time.Second,
		sendBuffer:   wsCfg.SendBuffer,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: time.Duration(wsCfg.HandshakeTimeout) * time.Second,
			CheckOrigin:      originChecker(allowedOrigins),
		},
	}
}

// originChecker builds the upgrade-time origin policy. An empty list or a
// "*" entry admits every origin; otherwise the Origin header must match an
// entry exactly. Requests without an Origin header (non-browser clients)
// pass either way.
func originChecker(allowed []string) func(*http.Request) bool {
	allowAll := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return set[origin]
	}
}

// ServeHTTP handles one websocket client for the lifetime of its
// connection. The read loop runs on the request goroutine; everything the
// frames mean is decided by the coordinator.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		log.Warn().Str("remote", r.RemoteAddr).Err(err).Msg("websocket upgrade failed")
		return
	}
	ws.SetReadLimit(h.readLimit)

	conn := newConn(ws, h.writeTimeout, h.sendBuffer)
	h.coord.Post(relay.PeerConnected{Peer: conn})

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, net.ErrClosed) {
				log.Debug().Str("remote", r.RemoteAddr).Err(err).Msg("websocket read ended")
			}
			_ = conn.Terminate()
			h.coord.Post(relay.PeerDisconnected{Peer: conn})
			return
		}
		h.coord.Post(relay.PeerMessage{Peer: conn, Data: msg})
	}
}
