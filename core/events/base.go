package events

import "time"

type Kind string

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// TurnScoped is implemented by events attributable to a single conversation
// turn. The relay uses the turn id to discard events from superseded turns.
type TurnScoped interface {
	Event
	TurnID() int64
}

type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

// TurnBase extends Base with the id of the turn the event belongs to.
type TurnBase struct {
	Base
	turnID int64
}

func NewTurnBase(kind Kind, turnID int64) TurnBase {
	return TurnBase{Base: NewBase(kind), turnID: turnID}
}

func (b TurnBase) TurnID() int64 {
	return b.turnID
}
