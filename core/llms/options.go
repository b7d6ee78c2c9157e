package llms

type PromptOptions struct {
	Instructions string
	Turns        []Turn
	Tools        []Tool
	ForcedTools  bool
}

type PromptOption func(*PromptOptions)

// WithSystemPrompt sets the system instructions for the prompt. Repeating
// this option overwrites the previous instructions.
func WithSystemPrompt(prompt string) PromptOption {
	return func(opts *PromptOptions) {
		opts.Instructions = prompt
	}
}

// WithTurns adds prior conversation turns to the prompt. Repeating this
// option sequentially adds more turns.
func WithTurns(turns ...Turn) PromptOption {
	return func(opts *PromptOptions) {
		opts.Turns = append(opts.Turns, turns...)
	}
}

// WithTools adds tools the model may call.
func WithTools(tools ...Tool) PromptOption {
	return func(opts *PromptOptions) {
		opts.Tools = append(opts.Tools, tools...)
	}
}

// WithForcedTools adds tools and requires that the model calls one. Note that
// any available tool can then be called, not just the ones passed into this
// option.
func WithForcedTools(tools ...Tool) PromptOption {
	return func(opts *PromptOptions) {
		opts.Tools = append(opts.Tools, tools...)
		opts.ForcedTools = true
	}
}
