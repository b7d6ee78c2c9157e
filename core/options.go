package orchestration

import (
	"context"

	"github.com/volleyhq/volley-core/core/audio"
	"github.com/volleyhq/volley-core/core/events"
	"github.com/volleyhq/volley-core/core/llms"
	"github.com/volleyhq/volley-core/core/speechtotext"
	"github.com/volleyhq/volley-core/core/texttospeech"
)

type OrchestratorOption func(*Orchestrator)

type LLMWithStream interface {
	PromptWithStream(ctx context.Context, prompt *string, opts ...llms.PromptOption) llms.Stream
}

type LLMWithStructuredPrompt interface {
	PromptWithStructure(ctx context.Context, prompt string, outputSchema any, opts ...llms.PromptOption) error
}

func WithStreamingLLM(client LLMWithStream) OrchestratorOption {
	return func(o *Orchestrator) {
		o.runtime.llm.client = client
	}
}

type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
}

func WithSpeechToTextClient(client SpeechToText) OrchestratorOption {
	return func(o *Orchestrator) {
		o.speechToText.client = client
	}
}

type TextToSpeech interface {
	NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error)
}

func WithTextToSpeechClient(client TextToSpeech) OrchestratorOption {
	return func(o *Orchestrator) {
		o.runtime.textToSpeechClient = client
	}
}

func WithTools(tools ...llms.Tool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.runtime.llm.tools = append(o.runtime.llm.tools, tools...)
	}
}

// WithTranscriptClassifier screens final transcripts through a structured
// model call before they start a turn, so speech not addressed to the
// assistant is ignored. Classification never delays barge-in handling.
func WithTranscriptClassifier(client LLMWithStructuredPrompt) OrchestratorOption {
	return func(o *Orchestrator) {
		o.runtime.classifier = newTranscriptClassifier(client)
	}
}

// WithInterruptionsDisabled stops detected user speech from cancelling the
// active turn. Transcripts finalized while a turn is active are queued
// instead, latest wins. Explicit interrupt requests still cancel.
func WithInterruptionsDisabled() OrchestratorOption {
	return func(o *Orchestrator) {
		o.runtime.gate.enabled = false
	}
}

type OrchestrateOptions struct {
	onTranscription        func(transcript string)
	onInterimTranscription func(transcript string)
	onSpeakingStateChanged func(isSpeaking bool)
	onResponse             func(response string)
	onResponseEnd          func()
	onCancellation         func()
	onAudio                func(audio []byte)
	onAudioEnded           func(spokenTranscript string)
	onStateChanged         func(state SessionState)
	onFault                func(fault events.SessionFault)

	inputEncodingInfo *audio.EncodingInfo
}

type OrchestrateOption func(*OrchestrateOptions)

// WithTranscriptionCallback registers a callback for final transcriptions
// produced by the configured speech-to-text client.
func WithTranscriptionCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTranscription = callback
	}
}

// WithInterimTranscriptionCallback registers a callback for interim
// transcription snapshots. The callback receives an empty string when the
// interim transcript is superseded by a final one.
func WithInterimTranscriptionCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onInterimTranscription = callback
	}
}

// WithSpeakingStateChangedCallback registers a callback invoked when the
// configured speech-to-text client detects the user starting or stopping
// speaking.
func WithSpeakingStateChangedCallback(callback func(isSpeaking bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onSpeakingStateChanged = callback
	}
}

// WithResponseCallback registers a callback for each streamed segment of the
// assistant response.
func WithResponseCallback(callback func(response string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onResponse = callback
	}
}

// WithResponseEndCallback registers a callback invoked when the assistant
// response text is fully streamed.
func WithResponseEndCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onResponseEnd = callback
	}
}

// WithCancellationCallback registers a callback invoked when a turn is
// interrupted.
func WithCancellationCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onCancellation = callback
	}
}

// WithAudioCallback registers a callback for each synthesized speech frame.
func WithAudioCallback(callback func(audio []byte)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onAudio = callback
	}
}

// WithAudioEndedCallback registers a callback invoked when speech synthesis
// for a turn completes, with the text confirmed spoken.
func WithAudioEndedCallback(callback func(spokenTranscript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onAudioEnded = callback
	}
}

// WithStateChangedCallback registers a callback invoked on session state
// transitions.
func WithStateChangedCallback(callback func(state SessionState)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onStateChanged = callback
	}
}

// WithFaultCallback registers a callback invoked when a collaborator failure
// is escalated to the session.
func WithFaultCallback(callback func(fault events.SessionFault)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onFault = callback
	}
}

// WithInputEncodingInfo overrides the audio encoding announced to the
// speech-to-text client for inbound audio.
func WithInputEncodingInfo(encodingInfo audio.EncodingInfo) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.inputEncodingInfo = &encodingInfo
	}
}
