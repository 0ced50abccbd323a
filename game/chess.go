package game

import (
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"
)

// chessValidator implements Validator on top of corentings/chess.
type chessValidator struct{}

// NewChessValidator returns the standard-chess move validator.
func NewChessValidator() Validator {
	return chessValidator{}
}

func (chessValidator) NewPosition() Position {
	return &chessPosition{game: chess.NewGame()}
}

type chessPosition struct {
	game      *chess.Game
	history   []HistoryEntry
	lastCheck bool
}

func (p *chessPosition) Turn() Color {
	if p.game.Position().Turn() == chess.White {
		return White
	}
	return Black
}

func (p *chessPosition) Apply(mv Move) (MoveResult, error) {
	pos := p.game.Position()
	mover := pos.Turn()

	uci := strings.ToLower(strings.TrimSpace(mv.From + mv.To + mv.Promotion))
	decoded, err := chess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}

	// UCI decoding is purely syntactic; legality comes from the position's
	// move generator.
	legal := false
	for _, valid := range pos.ValidMoves() {
		if valid.String() == decoded.String() {
			legal = true
			break
		}
	}
	if !legal {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}

	san := chess.AlgebraicNotation{}.Encode(pos, decoded)
	piece := pos.Board().Piece(decoded.S1())

	if err := p.game.PushNotationMove(uci, chess.UCINotation{}, nil); err != nil {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}

	// chess.js ends games on threefold repetition and the fifty-move rule
	// automatically; the library only auto-declares forced outcomes, so
	// claim the draw here to keep parity.
	if p.game.Outcome() == chess.NoOutcome {
		for _, m := range p.game.EligibleDraws() {
			if m == chess.ThreefoldRepetition || m == chess.FiftyMoveRule {
				_ = p.game.Draw(m)
				break
			}
		}
	}

	entry := HistoryEntry{
		Color: colorName(mover),
		From:  mv.From,
		To:    mv.To,
		Piece: pieceLetter(piece.Type()),
		SAN:   san,
	}
	p.history = append(p.history, entry)
	// The SAN encoder inspects the resulting position, so the check suffix
	// is authoritative; the decoded move itself carries no tags.
	p.lastCheck = strings.HasSuffix(san, "+") || strings.HasSuffix(san, "#")

	return MoveResult{
		SAN:     san,
		Outcome: p.outcome(),
		Check:   p.lastCheck,
	}, nil
}

func (p *chessPosition) Snapshot() Snapshot {
	history := make([]HistoryEntry, len(p.history))
	copy(history, p.history)

	return Snapshot{
		FEN:         p.game.FEN(),
		MoveHistory: history,
		Turn:        p.Turn().String(),
		InCheck:     p.lastCheck,
	}
}

func (p *chessPosition) outcome() Outcome {
	if p.game.Outcome() == chess.NoOutcome {
		return OutcomeNone
	}
	switch p.game.Method() {
	case chess.Checkmate:
		return OutcomeCheckmate
	case chess.Stalemate:
		return OutcomeStalemate
	case chess.InsufficientMaterial:
		return OutcomeInsufficientMaterial
	case chess.ThreefoldRepetition, chess.FivefoldRepetition:
		return OutcomeThreefoldRepetition
	case chess.FiftyMoveRule, chess.SeventyFiveMoveRule:
		return OutcomeFiftyMoveRule
	default:
		return OutcomeDraw
	}
}

func colorName(c chess.Color) string {
	if c == chess.White {
		return "white"
	}
	return "black"
}

func pieceLetter(t chess.PieceType) string {
	switch t {
	case chess.King:
		return "k"
	case chess.Queen:
		return "q"
	case chess.Rook:
		return "r"
	case chess.Bishop:
		return "b"
	case chess.Knight:
		return "n"
	default:
		return "p"
	}
}
