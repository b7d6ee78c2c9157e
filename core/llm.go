package orchestration

import (
	"context"
	"fmt"

	"github.com/volleyhq/volley-core/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// llm wraps the configured agent client for turn generation. Sessions can
// run without one, in which case generate completes immediately and the turn
// produces no response.
type llm struct {
	client LLMWithStream
	tools  []llms.Tool
}

func newLLM(client LLMWithStream, tools []llms.Tool) llm {
	return llm{
		client: client,
		tools:  append([]llms.Tool(nil), tools...),
	}
}

func (runtime *llm) isConfigured() bool {
	return runtime != nil && runtime.client != nil
}

// generate streams the agent response for prompt, feeding content to onChunk
// as it arrives. Requested tool calls are executed and the model is prompted
// again with their results until it produces a plain response. Returns the
// tool calls executed during the turn.
func (runtime *llm) generate(
	ctx context.Context,
	prompt string,
	history []llms.Turn,
	onChunk func(string),
	cancelled func() bool,
) ([]llms.ToolCall, error) {
	if !runtime.isConfigured() {
		return nil, nil
	}
	if onChunk == nil {
		onChunk = func(string) {}
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	span := trace.SpanFromContext(ctx)

	turn := llms.Turn{Prompt: prompt}
	for {
		stream := runtime.client.PromptWithStream(ctx, nil,
			llms.WithTurns(append(history, turn)...),
			llms.WithTools(runtime.tools...),
		)

		toolCalls := []llms.ToolCall{}
		for chunk, err := range stream.Chunks(ctx) {
			if cancelled() {
				return turn.ToolCalls, nil
			}

			if err != nil {
				err = fmt.Errorf("failed to stream agent response: %w", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return turn.ToolCalls, newFault(FaultStream, SourceAgent, err)
			}

			switch chunk := chunk.(type) {
			case llms.StreamContentChunk:
				onChunk(chunk.Content())

			case llms.StreamToolCallChunk:
				toolCalls = append(toolCalls, chunk.ToolCall())
			}
		}

		for _, toolCall := range toolCalls {
			response, err := runtime.callTool(ctx, toolCall)
			if err != nil {
				err = fmt.Errorf("failed to call tool: %w", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return turn.ToolCalls, newFault(FaultStream, SourceAgent, err)
			}
			toolCall.Response = response
			turn.ToolCalls = append(turn.ToolCalls, toolCall)
		}

		if len(toolCalls) == 0 {
			var toolCallNames []string
			for _, toolCall := range turn.ToolCalls {
				toolCallNames = append(toolCallNames, toolCall.Name)
			}
			span.SetAttributes(attribute.StringSlice("assistant_turn.tool_calls", toolCallNames))
			return turn.ToolCalls, nil
		}
	}
}

func (runtime *llm) callTool(ctx context.Context, toolCall llms.ToolCall) (string, error) {
	_, span := tracer.Start(ctx, "call tool",
		trace.WithAttributes(attribute.String("tool.name", toolCall.Name)),
	)
	defer span.End()

	for _, tool := range runtime.tools {
		if tool.Function.Name != toolCall.Name {
			continue
		}

		response, err := tool.Execute(toolCall.Arguments)
		if err != nil {
			err = fmt.Errorf("failed to execute tool %q: %w", toolCall.Name, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}
		return response, nil
	}

	err := fmt.Errorf("model requested unknown tool %q", toolCall.Name)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return "", err
}
