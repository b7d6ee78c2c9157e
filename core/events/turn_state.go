package events

const (
	// KindTurnStarted identifies the start of a new turn.
	KindTurnStarted Kind = "turn_state.started"
	// KindTurnCompleted identifies natural completion of a turn.
	KindTurnCompleted Kind = "turn_state.completed"
	// KindTurnInterrupted identifies cancellation of a turn.
	KindTurnInterrupted Kind = "turn_state.interrupted"
)

// TurnStarted marks the start of a new turn.
type TurnStarted struct{ TurnBase }

// NewTurnStarted creates a turn started event.
func NewTurnStarted(turnID int64) TurnStarted {
	return TurnStarted{TurnBase: NewTurnBase(KindTurnStarted, turnID)}
}

// TurnCompleted marks natural completion of a turn.
type TurnCompleted struct{ TurnBase }

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted(turnID int64) TurnCompleted {
	return TurnCompleted{TurnBase: NewTurnBase(KindTurnCompleted, turnID)}
}

// TurnInterrupted marks cancellation of a turn, either by a barge-in or an
// explicit interrupt request.
type TurnInterrupted struct{ TurnBase }

// NewTurnInterrupted creates a turn interrupted event.
func NewTurnInterrupted(turnID int64) TurnInterrupted {
	return TurnInterrupted{TurnBase: NewTurnBase(KindTurnInterrupted, turnID)}
}
