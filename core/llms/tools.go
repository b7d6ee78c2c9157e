package llms

import (
	"encoding/json"
	"fmt"
)

// Tool describes a function the model may call. Providers copy the declared
// shape into their wire format; Execute runs the bound implementation with
// the model-supplied arguments.
type Tool struct {
	Type     string
	Function ToolFunction

	execute func(arguments string) (string, error)
}

type ToolFunction struct {
	Name        string
	Description string
	Parameters  ToolParameters
}

type ToolParameters struct {
	Type       string
	Properties map[string]ParameterBase
	Required   []string
}

// ParameterBase describes a single tool parameter.
type ParameterBase struct {
	Type        string
	Description string
}

// NewTool builds a callable tool. The parameters map declares the JSON
// object schema the model fills in; execute receives the arguments decoded
// into T. All declared parameters are required.
func NewTool[T any](name string, description string, parameters map[string]ParameterBase, execute func(parameters T) (string, error)) Tool {
	required := make([]string, 0, len(parameters))
	for parameter := range parameters {
		required = append(required, parameter)
	}

	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters: ToolParameters{
				Type:       "object",
				Properties: parameters,
				Required:   required,
			},
		},
		execute: func(arguments string) (string, error) {
			var decoded T
			if err := json.Unmarshal([]byte(arguments), &decoded); err != nil {
				return "", fmt.Errorf("failed to decode tool arguments: %w", err)
			}
			return execute(decoded)
		},
	}
}

// Execute runs the tool with the model-supplied JSON arguments.
func (t Tool) Execute(arguments string) (string, error) {
	if t.execute == nil {
		return "", fmt.Errorf("tool %q has no implementation bound", t.Function.Name)
	}
	return t.execute(arguments)
}
