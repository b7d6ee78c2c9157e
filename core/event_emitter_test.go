package orchestration

import (
	"testing"

	"github.com/volleyhq/volley-core/core/events"
)

func TestCallbackEmitterRoutesEventsToCallbacks(t *testing.T) {
	var (
		transcripts []string
		interims    []string
		speaking    []bool
		responses   []string
		audio       [][]byte
		spoken      []string
		faults      []events.SessionFault
		responseEnd int
		cancels     int
	)

	opts := OrchestrateOptions{}
	for _, opt := range []OrchestrateOption{
		WithTranscriptionCallback(func(transcript string) { transcripts = append(transcripts, transcript) }),
		WithInterimTranscriptionCallback(func(transcript string) { interims = append(interims, transcript) }),
		WithSpeakingStateChangedCallback(func(isSpeaking bool) { speaking = append(speaking, isSpeaking) }),
		WithResponseCallback(func(response string) { responses = append(responses, response) }),
		WithResponseEndCallback(func() { responseEnd++ }),
		WithCancellationCallback(func() { cancels++ }),
		WithAudioCallback(func(frame []byte) { audio = append(audio, frame) }),
		WithAudioEndedCallback(func(spokenTranscript string) { spoken = append(spoken, spokenTranscript) }),
		WithFaultCallback(func(fault events.SessionFault) { faults = append(faults, fault) }),
	} {
		opt(&opts)
	}

	emit := newCallbackEventEmitter(opts)
	emit(events.NewUserSpeechStarted())
	emit(events.NewUserTranscriptInterimUpdated("hel"))
	emit(events.NewUserSpeechEnded())
	emit(events.NewUserTranscriptFinal(1, "hello"))
	emit(events.NewAssistantResponseSegment(1, "hi "))
	emit(events.NewAssistantResponseFinal(1))
	emit(events.NewAssistantSpeechFrame(1, []byte{1, 2}))
	emit(events.NewAssistantSpeechFinal(1, "hi"))
	emit(events.NewTurnInterrupted(1))
	emit(events.NewSessionFault("StreamError", "the agent stream ended unexpectedly", "agent"))

	if len(speaking) != 2 || !speaking[0] || speaking[1] {
		t.Fatalf("expected speaking transitions [true false], got %v", speaking)
	}
	if len(interims) != 1 || interims[0] != "hel" {
		t.Fatalf("expected interim transcripts [hel], got %v", interims)
	}
	if len(transcripts) != 1 || transcripts[0] != "hello" {
		t.Fatalf("expected final transcripts [hello], got %v", transcripts)
	}
	if len(responses) != 1 || responses[0] != "hi " {
		t.Fatalf("expected response segments [hi ], got %v", responses)
	}
	if responseEnd != 1 {
		t.Fatalf("expected one response end, got %d", responseEnd)
	}
	if len(audio) != 1 || len(audio[0]) != 2 {
		t.Fatalf("expected one audio frame, got %v", audio)
	}
	if len(spoken) != 1 || spoken[0] != "hi" {
		t.Fatalf("expected spoken transcripts [hi], got %v", spoken)
	}
	if cancels != 1 {
		t.Fatalf("expected one cancellation, got %d", cancels)
	}
	if len(faults) != 1 || faults[0].Source != "agent" {
		t.Fatalf("expected one agent fault, got %v", faults)
	}
}

func TestComposeEventEmittersFansOut(t *testing.T) {
	first := 0
	second := 0
	emit := composeEventEmitters(
		func(events.Event) { first++ },
		nil,
		func(events.Event) { second++ },
	)

	emit(events.NewUserSpeechStarted())
	emit(events.NewUserSpeechEnded())

	if first != 2 || second != 2 {
		t.Fatalf("expected both emitters to see both events, got %d and %d", first, second)
	}
}
