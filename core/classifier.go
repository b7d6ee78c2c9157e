package orchestration

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/volleyhq/volley-core/core/llms"
)

//go:embed classifierInstructions.tmpl
var classifierSystemPrompt string

type transcriptClassification struct {
	Addressed  bool    `json:"addressed" jsonschema:"title=Addressed,description=Whether the utterance is addressed to the assistant"`
	Confidence float64 `json:"confidence" jsonschema:"title=Confidence,description=Confidence in the verdict from 0 to 1"`
}

// transcriptClassifier filters final transcripts that are not addressed to
// the assistant, so stray speech picked up by the microphone does not start
// a turn. Callers treat classification errors as addressed.
type transcriptClassifier struct {
	client LLMWithStructuredPrompt
}

func newTranscriptClassifier(client LLMWithStructuredPrompt) *transcriptClassifier {
	if client == nil {
		return nil
	}

	return &transcriptClassifier{client: client}
}

func (c *transcriptClassifier) Classify(ctx context.Context, transcript string, history []llms.Turn) (bool, error) {
	if c == nil || c.client == nil {
		return true, nil
	}

	classification := transcriptClassification{}
	if err := c.client.PromptWithStructure(ctx, transcript,
		&classification,
		llms.WithSystemPrompt(classifierSystemPrompt),
		llms.WithTurns(history...),
	); err != nil {
		return true, fmt.Errorf("failed to classify transcript: %w", err)
	}

	return classification.Addressed, nil
}
