package openai

import "github.com/volleyhq/volley-core/core/llms"

// openAITool is the flattened tool declaration used by the responses API.
type openAITool struct {
	Type        string           `json:"type"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Parameters  openAIToolParams `json:"parameters"`
	Strict      bool             `json:"strict"`
}

type openAIToolParams struct {
	Type                 string                     `json:"type"`
	Properties           map[string]openAIToolParam `json:"properties"`
	Required             []string                   `json:"required,omitempty"`
	AdditionalProperties bool                       `json:"additionalProperties"`
}

type openAIToolParam struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

func toOpenAITools(tools []llms.Tool) []openAITool {
	openAITools := make([]openAITool, 0, len(tools))
	for _, tool := range tools {
		properties := map[string]openAIToolParam{}
		for name, parameter := range tool.Function.Parameters.Properties {
			properties[name] = openAIToolParam{
				Type:        parameter.Type,
				Description: parameter.Description,
			}
		}
		openAITools = append(openAITools, openAITool{
			Type:        "function",
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters: openAIToolParams{
				Type:       tool.Function.Parameters.Type,
				Properties: properties,
				Required:   tool.Function.Parameters.Required,
			},
			Strict: true,
		})
	}
	return openAITools
}
