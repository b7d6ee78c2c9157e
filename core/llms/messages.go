package llms

// Turn is one conversational exchange: the user utterance that started it and
// the assistant response generated for it.
type Turn struct {
	// Prompt is the user utterance that started the turn.
	Prompt string
	// Response is the assistant text generated for the turn. For an
	// interrupted turn it holds the partial text generated before
	// cancellation.
	Response string
	// ToolCalls lists the tool calls executed during the turn.
	ToolCalls []ToolCall
	// Cancelled is true when the turn was cut short by an interruption.
	Cancelled bool
}

// ToolCall is a single tool invocation requested by the model, together with
// the response produced by executing it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Response  string
}
