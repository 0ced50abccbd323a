// Package protocol defines the wire envelope exchanged with clients and the
// closed set of message kinds the server understands. Payloads form a tagged
// union over the Type discriminant; anything outside the set is rejected at
// decode time rather than accessed optimistically.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/shivamani-yamana/checkbro/game"
)

const (
	KindConnectionEstablished = "connection-established"
	KindInitGame              = "init-game"
	KindMove                  = "move"
	KindUpdateBoard           = "update-board"
	KindResign                = "resign"
	KindOfferDraw             = "offer-draw"
	KindDrawOffer             = "draw-offer"
	KindDrawAccepted          = "draw-accepted"
	KindDrawDeclined          = "draw-declined"
	KindGameOver              = "game-over"
	KindOpponentDisconnected  = "opponent-disconnected-temporarily"
	KindOpponentReconnected   = "opponent-reconnected"
	KindReconnectRequest      = "reconnect-request"
	KindReconnectionToken     = "reconnection-token"
	KindReconnectionSuccess   = "reconnection-successful"
	KindReconnectionFailed    = "reconnection-failed"
	KindPing                  = "ping"
	KindPong                  = "pong"
)

// Reconnection failure reasons surfaced to the requester.
const (
	ReasonInvalidOrExpired = "INVALID_OR_EXPIRED"
	ReasonSessionGone      = "SESSION_GONE"
	ReasonAlreadyEnded     = "ALREADY_ENDED"
)

// inboundKinds is the set of message kinds clients are allowed to send.
var inboundKinds = map[string]bool{
	KindInitGame:         true,
	KindMove:             true,
	KindResign:           true,
	KindOfferDraw:        true,
	KindDrawAccepted:     true,
	KindDrawDeclined:     true,
	KindReconnectRequest: true,
	KindPing:             true,
	KindPong:             true,
}

// Envelope is one inbound transport frame: a kind plus its raw payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is one server-to-client frame. Payload is a typed struct from
// this package, marshalled at write time.
type Outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Decode parses an inbound frame and checks its kind against the closed
// inbound set. The payload stays raw; use DecodePayload once the kind has
// been dispatched.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed frame: %w", err)
	}
	if !inboundKinds[env.Type] {
		return Envelope{}, fmt.Errorf("unknown message kind %q", env.Type)
	}
	return env, nil
}

// DecodePayload unmarshals an envelope's payload into the typed shape for
// its kind. A missing payload decodes into the zero value.
func DecodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("malformed %s payload: %w", env.Type, err)
	}
	return nil
}

// Inbound payloads.

type InitGamePayload struct {
	PlayerName string `json:"playerName"`
}

type MovePayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type ReconnectRequestPayload struct {
	Token string `json:"token"`
}

// Outbound payloads.

type ConnectionEstablishedPayload struct {
	ConnectionID string `json:"connectionId"`
}

type InitGameAckPayload struct {
	Color        string `json:"color"`
	OpponentName string `json:"opponentName,omitempty"`
}

type UpdateBoardPayload struct {
	Board   string              `json:"board"`
	Move    MovePayload         `json:"move"`
	History []game.HistoryEntry `json:"history"`
}

type ResignPayload struct {
	Winner string `json:"winner"`
}

type DrawOfferPayload struct {
	Player string `json:"player"`
}

type GameOverPayload struct {
	Winner  string `json:"winner"`
	WinType string `json:"winType"`
}

type OpponentDisconnectedPayload struct {
	ReconnectionWindowSeconds int `json:"reconnectionWindowSeconds"`
}

type ReconnectionTokenPayload struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

type ReconnectionSuccessPayload struct {
	GameState    game.Snapshot `json:"gameState"`
	Color        string        `json:"color"`
	OpponentName string        `json:"opponentName,omitempty"`
}

type ReconnectionFailedPayload struct {
	Reason string `json:"reason"`
}
