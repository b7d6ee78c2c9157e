package orchestration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/volleyhq/volley-core/core/llms"
)

func TestClassifyWithoutClientTreatsEverythingAsAddressed(t *testing.T) {
	classifier := newTranscriptClassifier(nil)

	addressed, err := classifier.Classify(context.Background(), "hey there", nil)
	if err != nil {
		t.Fatalf("expected no error without a client, got %v", err)
	}
	if !addressed {
		t.Fatalf("expected transcripts to pass through without a client")
	}
}

func TestClassifyFailsOpenOnClientError(t *testing.T) {
	classifier := newTranscriptClassifier(classifierClientStub{err: errors.New("model unavailable")})

	addressed, err := classifier.Classify(context.Background(), "hey there", nil)
	if err == nil {
		t.Fatalf("expected the client error to surface")
	}
	if !addressed {
		t.Fatalf("expected classification failures to fail open")
	}
}

func TestClassifyReportsUnaddressedSpeech(t *testing.T) {
	classifier := newTranscriptClassifier(classifierClientStub{addressed: false})

	addressed, err := classifier.Classify(context.Background(), "talking to someone else", nil)
	if err != nil {
		t.Fatalf("failed to classify: %v", err)
	}
	if addressed {
		t.Fatalf("expected the transcript to be reported as not addressed")
	}
}

func TestUnaddressedTranscriptDoesNotStartTurn(t *testing.T) {
	transcripts := &transcriptRecorder{}

	o := NewOrchestrator(
		WithStreamingLLM(scriptedStreamLLMStub{chunks: []string{"should not run"}}),
		WithTranscriptClassifier(classifierClientStub{addressed: false}),
	)
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := o.Orchestrate(ctx, WithTranscriptionCallback(transcripts.record))
	if err != nil {
		t.Fatalf("failed to orchestrate: %v", err)
	}

	o.SendPrompt("background chatter")

	time.Sleep(200 * time.Millisecond)
	if recorded := transcripts.snapshot(); len(recorded) != 0 {
		t.Fatalf("expected no turn for unaddressed speech, got %v", recorded)
	}
	if o.State() != StateListening {
		t.Fatalf("expected the session to keep listening, state is %v", o.State())
	}
}

func TestAddressedTranscriptStartsTurn(t *testing.T) {
	transcripts := &transcriptRecorder{}

	o := NewOrchestrator(
		WithStreamingLLM(scriptedStreamLLMStub{chunks: []string{"on it"}}),
		WithTranscriptClassifier(classifierClientStub{addressed: true}),
	)
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := o.Orchestrate(ctx, WithTranscriptionCallback(transcripts.record))
	if err != nil {
		t.Fatalf("failed to orchestrate: %v", err)
	}

	o.SendPrompt("hey assistant")

	waitForCondition(t, 2*time.Second, "the addressed transcript to start a turn", func() bool {
		recorded := transcripts.snapshot()
		return len(recorded) == 1 && recorded[0] == "hey assistant"
	})
}

type classifierClientStub struct {
	addressed bool
	err       error
}

func (stub classifierClientStub) PromptWithStructure(_ context.Context, _ string, outputSchema any, _ ...llms.PromptOption) error {
	if stub.err != nil {
		return stub.err
	}

	classification, ok := outputSchema.(*transcriptClassification)
	if !ok {
		return errors.New("unexpected output schema")
	}
	classification.Addressed = stub.addressed
	classification.Confidence = 0.9
	return nil
}
