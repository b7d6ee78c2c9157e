package groq

import (
	"context"

	"github.com/volleyhq/volley-core/core/llms"
)

const defaultModel = "llama-3.3-70b-versatile"

// Client binds an API key and model choice so the prompting functions can be
// used through the llms interfaces.
type Client struct {
	apiKey string

	model        string
	systemPrompt string
	tools        []llms.Tool
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		apiKey: apiKey,
		model:  defaultModel,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type ClientOption func(*Client)

// WithModel overrides the default model.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithSystemPrompt sets the default system prompt used when the prompt
// options don't provide one.
func WithSystemPrompt(prompt string) ClientOption {
	return func(c *Client) {
		c.systemPrompt = prompt
	}
}

// WithTools sets the base tools offered on every prompt.
func WithTools(tools ...llms.Tool) ClientOption {
	return func(c *Client) {
		c.tools = append(c.tools, tools...)
	}
}

func (c *Client) PromptWithStream(ctx context.Context, prompt *string, opts ...llms.PromptOption) llms.Stream {
	return PromptWithStream(ctx, c.apiKey, c.model, prompt, c.systemPrompt, c.tools, opts...)
}

func (c *Client) PromptWithStructure(ctx context.Context, prompt string, outputSchema any, opts ...llms.PromptOption) error {
	_, err := PromptJSONSchema(ctx, c.apiKey, c.model, prompt, c.systemPrompt, outputSchema, opts...)
	return err
}
