package game

// SlotBinding ties a slot to a connection and the party's display name.
type SlotBinding struct {
	ConnID string
	Name   string
}

// TerminalState is a session's one and only terminal transition. Winner is
// "white" or "black" when a side won, "draw" otherwise.
type TerminalState struct {
	Winner  string
	WinType string
}

// MoveApplied reports an accepted move back to the coordinator.
type MoveApplied struct {
	Result   MoveResult
	Snapshot Snapshot
	Terminal *TerminalState
}

// Session is one ongoing match between exactly two parties. It is mutated
// only from the coordinator loop, so it carries no locking of its own.
type Session struct {
	id       string
	slots    [2]SlotBinding
	pos      Position
	terminal *TerminalState
}

// NewSession binds two parties to a fresh position. Slot A plays white.
func NewSession(id string, a, b SlotBinding, pos Position) *Session {
	return &Session{
		id:    id,
		slots: [2]SlotBinding{a, b},
		pos:   pos,
	}
}

func (s *Session) ID() string { return s.id }

// Slot returns the binding occupying the given slot.
func (s *Session) Slot(slot Slot) SlotBinding { return s.slots[slot] }

// SlotOf resolves which slot a connection occupies, if any.
func (s *Session) SlotOf(connID string) (Slot, bool) {
	switch connID {
	case s.slots[SlotA].ConnID:
		return SlotA, true
	case s.slots[SlotB].ConnID:
		return SlotB, true
	}
	return 0, false
}

// Terminal reports the terminal state, if the session has ended.
func (s *Session) Terminal() (TerminalState, bool) {
	if s.terminal == nil {
		return TerminalState{}, false
	}
	return *s.terminal, true
}

// Turn is the color to move.
func (s *Session) Turn() Color { return s.pos.Turn() }

// Snapshot is the full resync state of the position.
func (s *Session) Snapshot() Snapshot { return s.pos.Snapshot() }

// ApplyMove validates turn order and legality, then applies the move. The
// session state is unchanged on any rejection. A terminal classification
// from the validator transitions the session to terminal.
func (s *Session) ApplyMove(from Slot, mv Move) (MoveApplied, error) {
	if s.terminal != nil {
		return MoveApplied{}, ErrSessionTerminal
	}
	if s.pos.Turn() != from.Color() {
		return MoveApplied{}, ErrOutOfTurn
	}

	res, err := s.pos.Apply(mv)
	if err != nil {
		return MoveApplied{}, err
	}

	if res.Outcome != OutcomeNone {
		winner := "draw"
		if res.Outcome == OutcomeCheckmate {
			// The side to move after the move is the mated side.
			winner = s.pos.Turn().Other().String()
		}
		s.terminal = &TerminalState{Winner: winner, WinType: res.Outcome.WinType()}
	}

	return MoveApplied{Result: res, Snapshot: s.pos.Snapshot(), Terminal: s.terminal}, nil
}

// Resign ends the session in favor of the other slot. Reports false if the
// session had already ended; the prior terminal state is left untouched.
func (s *Session) Resign(from Slot) (TerminalState, bool) {
	return s.end(TerminalState{Winner: from.Other().Color().String(), WinType: "resignation"})
}

// AcceptDraw ends the session as an agreed draw.
func (s *Session) AcceptDraw() (TerminalState, bool) {
	return s.end(TerminalState{Winner: "draw", WinType: "draw"})
}

// ForfeitBySlot ends the session against the slot whose reconnection window
// expired. Invoked only from the forfeiture timer path.
func (s *Session) ForfeitBySlot(slot Slot) (TerminalState, bool) {
	return s.end(TerminalState{Winner: slot.Other().Color().String(), WinType: "disconnection"})
}

// RebindSlot replaces the slot's connection reference. Rejected once the
// session is terminal.
func (s *Session) RebindSlot(slot Slot, connID string) bool {
	if s.terminal != nil {
		return false
	}
	s.slots[slot].ConnID = connID
	return true
}

func (s *Session) end(t TerminalState) (TerminalState, bool) {
	if s.terminal != nil {
		return *s.terminal, false
	}
	s.terminal = &t
	return t, true
}
