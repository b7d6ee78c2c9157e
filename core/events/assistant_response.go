package events

const (
	// KindAssistantResponseSegment identifies streamed assistant response text.
	KindAssistantResponseSegment Kind = "assistant_response.segment"
	// KindAssistantResponseFinal identifies assistant response stream completion.
	KindAssistantResponseFinal Kind = "assistant_response.final"
)

// AssistantResponseSegment carries a streamed assistant response text segment.
type AssistantResponseSegment struct {
	TurnBase
	Segment string
}

// NewAssistantResponseSegment creates an assistant response segment event.
func NewAssistantResponseSegment(turnID int64, segment string) AssistantResponseSegment {
	return AssistantResponseSegment{TurnBase: NewTurnBase(KindAssistantResponseSegment, turnID), Segment: segment}
}

// AssistantResponseFinal marks assistant response stream completion.
type AssistantResponseFinal struct{ TurnBase }

// NewAssistantResponseFinal creates an assistant response final event.
func NewAssistantResponseFinal(turnID int64) AssistantResponseFinal {
	return AssistantResponseFinal{TurnBase: NewTurnBase(KindAssistantResponseFinal, turnID)}
}
