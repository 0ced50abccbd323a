// Package game owns one match's state: the two slots, the position, and the
// terminal transition. Move legality and outcome classification are delegated
// to a Validator, which the rest of the server treats as a black box.
package game

import "errors"

var (
	ErrOutOfTurn       = errors.New("out of turn")
	ErrIllegalMove     = errors.New("illegal move")
	ErrSessionTerminal = errors.New("session already terminal")
)

// Color is one of the two sides of a match.
type Color int

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// Slot is one of the two fixed party positions within a session. Slot A is
// always white, slot B always black.
type Slot int

const (
	SlotA Slot = 0
	SlotB Slot = 1
)

func (s Slot) Color() Color {
	if s == SlotA {
		return White
	}
	return Black
}

func (s Slot) Other() Slot {
	return 1 - s
}

// Move is a candidate move in coordinate form.
type Move struct {
	From      string
	To        string
	Promotion string
}

// Outcome classifies the position after a move.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCheckmate
	OutcomeStalemate
	OutcomeInsufficientMaterial
	OutcomeThreefoldRepetition
	OutcomeFiftyMoveRule
	OutcomeDraw
)

// WinType is the wire string for the outcome.
func (o Outcome) WinType() string {
	switch o {
	case OutcomeCheckmate:
		return "checkmate"
	case OutcomeStalemate:
		return "stalemate"
	case OutcomeInsufficientMaterial:
		return "insufficient_material"
	case OutcomeThreefoldRepetition:
		return "threefold_repetition"
	case OutcomeFiftyMoveRule:
		return "fifty_move_rule"
	case OutcomeDraw:
		return "draw"
	}
	return ""
}

// MoveResult is what the validator reports for an applied move.
type MoveResult struct {
	SAN     string
	Outcome Outcome
	Check   bool
}

// HistoryEntry is one applied move in the verbose form clients consume.
type HistoryEntry struct {
	Color string `json:"color"`
	From  string `json:"from"`
	To    string `json:"to"`
	Piece string `json:"piece"`
	SAN   string `json:"san"`
}

// Snapshot is the full resync state for a rejoining client.
type Snapshot struct {
	FEN         string         `json:"fen"`
	MoveHistory []HistoryEntry `json:"moveHistory"`
	Turn        string         `json:"turn"`
	InCheck     bool           `json:"inCheck"`
}

// Position is a validator-owned game position. Apply returns ErrIllegalMove
// (possibly wrapped) for anything the rules reject; the position is unchanged
// on error.
type Position interface {
	Apply(mv Move) (MoveResult, error)
	Turn() Color
	Snapshot() Snapshot
}

// Validator produces fresh positions for new sessions.
type Validator interface {
	NewPosition() Position
}
