package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/volleyhq/volley-core/core/events"
	"github.com/volleyhq/volley-core/core/llms"
)

func TestCloseBeforeOrchestrateMarksClosed(t *testing.T) {
	o := NewOrchestrator()
	o.Close()

	if !o.runtime.isClosed() {
		t.Fatalf("expected session to be closed")
	}

	if err := o.Orchestrate(context.Background()); err == nil {
		t.Fatalf("expected an error when orchestrating a closed session")
	}
}

func TestSendPromptRunsFullTurn(t *testing.T) {
	synthesizer := newScriptedSynthesizer()
	o := NewOrchestrator(
		WithStreamingLLM(scriptedStreamLLMStub{chunks: []string{"Hello ", "there."}}),
		WithTextToSpeechClient(synthesizer),
	)
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Orchestrate(ctx); err != nil {
		t.Fatalf("failed to orchestrate: %v", err)
	}

	o.SendPrompt("hi")

	collected := collectOutboundUntil(t, o, 2*time.Second, events.KindTurnCompleted)

	assertKindOrder(t, collected,
		events.KindUserTranscriptFinal,
		events.KindTurnStarted,
		events.KindAssistantResponseSegment,
		events.KindAssistantResponseFinal,
		events.KindTurnCompleted,
	)
	assertKindOrder(t, collected,
		events.KindAssistantSpeechFrame,
		events.KindAssistantSpeechFinal,
		events.KindTurnCompleted,
	)

	transcript, ok := findEvent[events.UserTranscriptFinal](collected)
	if !ok || transcript.Transcript != "hi" {
		t.Fatalf("expected final transcript event for %q, got %+v", "hi", transcript)
	}

	response := strings.Builder{}
	for _, event := range collected {
		if segment, ok := event.(events.AssistantResponseSegment); ok {
			response.WriteString(segment.Segment)
		}
	}
	if response.String() != "Hello there." {
		t.Fatalf("expected response %q, got %q", "Hello there.", response.String())
	}

	speechFinal, ok := findEvent[events.AssistantSpeechFinal](collected)
	if !ok {
		t.Fatalf("expected a speech final event")
	}
	if speechFinal.SpokenTranscript != "Hello there." {
		t.Fatalf("expected spoken transcript %q, got %q", "Hello there.", speechFinal.SpokenTranscript)
	}

	history := o.History()
	if len(history) != 1 {
		t.Fatalf("expected one turn in history, got %d", len(history))
	}
	if history[0].Prompt != "hi" || history[0].Response != "Hello there." {
		t.Fatalf("unexpected recorded turn: %+v", history[0])
	}
}

func TestStateTransitionsAcrossTurn(t *testing.T) {
	states := &stateRecorder{}
	o := NewOrchestrator(
		WithStreamingLLM(scriptedStreamLLMStub{chunks: []string{"Short answer."}}),
		WithTextToSpeechClient(newScriptedSynthesizer()),
	)
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Orchestrate(ctx, WithStateChangedCallback(states.record)); err != nil {
		t.Fatalf("failed to orchestrate: %v", err)
	}

	o.SendPrompt("state check")
	collectOutboundUntil(t, o, 2*time.Second, events.KindTurnCompleted)

	waitForCondition(t, 2*time.Second, "session to return to listening", func() bool {
		return o.State() == StateListening
	})

	recorded := states.snapshot()
	assertStateOrder(t, recorded, StateThinking, StateSpeaking, StateListening)
	for _, state := range recorded {
		if state == StateInterrupted {
			t.Fatalf("did not expect an interrupted state, got %v", recorded)
		}
	}
}

func TestSpeechStartedInterruptsActiveTurn(t *testing.T) {
	transcriber := newScriptedTranscriber()
	cancelled := make(chan struct{}, 1)

	o := NewOrchestrator(
		WithStreamingLLM(repeatingStreamLLMStub{chunk: "chunk ", interval: 10 * time.Millisecond}),
		WithSpeechToTextClient(transcriber),
	)
	defer o.Close()

	responseReceived := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := o.Orchestrate(ctx,
		WithResponseCallback(func(string) {
			select {
			case responseReceived <- struct{}{}:
			default:
			}
		}),
		WithCancellationCallback(func() {
			select {
			case cancelled <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("failed to orchestrate: %v", err)
	}

	transcriber.finishTranscript("tell me everything")

	select {
	case <-responseReceived:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for active turn to start")
	}

	transcriber.startSpeech()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for cancellation callback")
	}

	if !o.IsStale(events.NewAssistantSpeechFrame(1, []byte("late"))) {
		t.Fatalf("expected events of the interrupted turn to be stale")
	}
	if o.IsStale(events.NewAssistantSpeechFrame(2, []byte("next"))) {
		t.Fatalf("did not expect events of the next turn to be stale")
	}
	if o.IsStale(events.NewTurnInterrupted(1)) {
		t.Fatalf("did not expect the interruption notice itself to be stale")
	}
	if o.IsStale(events.NewUserSpeechStarted()) {
		t.Fatalf("did not expect session events to be stale")
	}

	waitForCondition(t, 2*time.Second, "session to settle after interruption", func() bool {
		return o.State() == StateListening
	})
}

func TestSpeechStartedIsIgnoredWhenInterruptionsDisabled(t *testing.T) {
	transcriber := newScriptedTranscriber()
	cancelled := make(chan struct{}, 1)

	o := NewOrchestrator(
		WithStreamingLLM(repeatingStreamLLMStub{chunk: "chunk ", interval: 10 * time.Millisecond}),
		WithSpeechToTextClient(transcriber),
		WithInterruptionsDisabled(),
	)
	defer o.Close()

	responseReceived := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := o.Orchestrate(ctx,
		WithResponseCallback(func(string) {
			select {
			case responseReceived <- struct{}{}:
			default:
			}
		}),
		WithCancellationCallback(func() {
			select {
			case cancelled <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("failed to orchestrate: %v", err)
	}

	transcriber.finishTranscript("keep going")

	select {
	case <-responseReceived:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for active turn to start")
	}

	transcriber.startSpeech()

	select {
	case <-cancelled:
		t.Fatalf("expected detected speech to be ignored while interruptions are disabled")
	case <-time.After(200 * time.Millisecond):
	}

	if o.State() != StateThinking && o.State() != StateSpeaking {
		t.Fatalf("expected the turn to still be active, state is %v", o.State())
	}
}

func TestRequestInterruptCancelsEvenWhenInterruptionsDisabled(t *testing.T) {
	cancelled := make(chan struct{}, 1)

	o := NewOrchestrator(
		WithStreamingLLM(repeatingStreamLLMStub{chunk: "chunk ", interval: 10 * time.Millisecond}),
		WithInterruptionsDisabled(),
	)
	defer o.Close()

	responseReceived := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := o.Orchestrate(ctx,
		WithResponseCallback(func(string) {
			select {
			case responseReceived <- struct{}{}:
			default:
			}
		}),
		WithCancellationCallback(func() {
			select {
			case cancelled <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("failed to orchestrate: %v", err)
	}

	o.SendPrompt("please start")

	select {
	case <-responseReceived:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for active turn to start")
	}

	o.RequestInterrupt()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for cancellation callback")
	}
}

func TestTranscriptDuringActiveTurnReplacesPending(t *testing.T) {
	o := NewOrchestrator(
		WithStreamingLLM(repeatingStreamLLMStub{chunk: "chunk ", interval: 10 * time.Millisecond}),
		WithInterruptionsDisabled(),
	)
	defer o.Close()

	responseReceived := make(chan struct{}, 1)
	transcripts := &transcriptRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := o.Orchestrate(ctx,
		WithResponseCallback(func(string) {
			select {
			case responseReceived <- struct{}{}:
			default:
			}
		}),
		WithTranscriptionCallback(transcripts.record),
	)
	if err != nil {
		t.Fatalf("failed to orchestrate: %v", err)
	}

	o.SendPrompt("first")

	select {
	case <-responseReceived:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for active turn to start")
	}

	// The queue is processed in order, so both replacements land before the
	// interrupt and the later one wins.
	o.SendPrompt("second")
	o.SendPrompt("third")
	o.RequestInterrupt()

	waitForCondition(t, 2*time.Second, "replacement turn to start", func() bool {
		return len(transcripts.snapshot()) == 2
	})

	recorded := transcripts.snapshot()
	if recorded[0] != "first" || recorded[1] != "third" {
		t.Fatalf("expected the latest queued transcript to win, got %v", recorded)
	}
}

func TestOutboundChannelClosesAfterClose(t *testing.T) {
	o := NewOrchestrator(WithStreamingLLM(scriptedStreamLLMStub{chunks: []string{"bye"}}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Orchestrate(ctx); err != nil {
		t.Fatalf("failed to orchestrate: %v", err)
	}

	o.SendPrompt("closing time")
	collectOutboundUntil(t, o, 2*time.Second, events.KindTurnCompleted)

	o.Close()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-o.Outbound():
			if !open {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for the outbound channel to close")
		}
	}
}

func TestCollaboratorFaultClosesSession(t *testing.T) {
	transcriber := newScriptedTranscriber()
	o := NewOrchestrator(WithSpeechToTextClient(transcriber))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Orchestrate(ctx); err != nil {
		t.Fatalf("failed to orchestrate: %v", err)
	}

	transcriber.failStream(errors.New("socket dropped"))

	// The fault is delivered to the client and then the session winds itself
	// down, closing the outbound channel.
	collected := []events.Event{}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event, open := <-o.Outbound():
			if !open {
				fault, ok := findEvent[events.SessionFault](collected)
				if !ok {
					t.Fatalf("expected a session fault before the channel closed, got %v", kindsOf(collected))
				}
				if fault.Code != string(FaultConnection) || fault.Source != SourceTranscription {
					t.Fatalf("expected a transcription connection fault, got %+v", fault)
				}
				return
			}
			collected = append(collected, event)
		case <-deadline:
			t.Fatalf("timed out waiting for the session to close after the fault, got %v", kindsOf(collected))
		}
	}
}

func TestTurnIDsAreMonotonic(t *testing.T) {
	o := NewOrchestrator(WithStreamingLLM(scriptedStreamLLMStub{chunks: []string{"ok"}}))
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Orchestrate(ctx); err != nil {
		t.Fatalf("failed to orchestrate: %v", err)
	}

	o.SendPrompt("one")
	first := collectOutboundUntil(t, o, 2*time.Second, events.KindTurnCompleted)
	o.SendPrompt("two")
	second := collectOutboundUntil(t, o, 2*time.Second, events.KindTurnCompleted)

	firstStarted, ok := findEvent[events.TurnStarted](first)
	if !ok {
		t.Fatalf("expected a turn started event for the first turn")
	}
	secondStarted, ok := findEvent[events.TurnStarted](second)
	if !ok {
		t.Fatalf("expected a turn started event for the second turn")
	}
	if secondStarted.TurnID() <= firstStarted.TurnID() {
		t.Fatalf("expected turn ids to increase, got %d then %d", firstStarted.TurnID(), secondStarted.TurnID())
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

// collectOutboundUntil drains the outbound channel until an event of the
// given kind arrives, returning everything received including it.
func collectOutboundUntil(t *testing.T, o *Orchestrator, timeout time.Duration, until events.Kind) []events.Event {
	t.Helper()

	collected := []events.Event{}
	deadline := time.After(timeout)
	for {
		select {
		case event, open := <-o.Outbound():
			if !open {
				t.Fatalf("outbound channel closed while waiting for %s", until)
			}
			collected = append(collected, event)
			if event.Kind() == until {
				return collected
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s, got %v", until, kindsOf(collected))
		}
	}
}

func kindsOf(collected []events.Event) []events.Kind {
	kinds := make([]events.Kind, 0, len(collected))
	for _, event := range collected {
		kinds = append(kinds, event.Kind())
	}
	return kinds
}

// assertKindOrder checks that the given kinds appear in the collected events
// in order, ignoring unrelated events in between.
func assertKindOrder(t *testing.T, collected []events.Event, kinds ...events.Kind) {
	t.Helper()

	index := 0
	for _, event := range collected {
		if index < len(kinds) && event.Kind() == kinds[index] {
			index++
		}
	}
	if index != len(kinds) {
		t.Fatalf("expected kinds %v in order, got %v", kinds, kindsOf(collected))
	}
}

func assertStateOrder(t *testing.T, recorded []SessionState, states ...SessionState) {
	t.Helper()

	index := 0
	for _, state := range recorded {
		if index < len(states) && state == states[index] {
			index++
		}
	}
	if index != len(states) {
		t.Fatalf("expected states %v in order, got %v", states, recorded)
	}
}

func findEvent[E events.Event](collected []events.Event) (E, bool) {
	for _, event := range collected {
		if typed, ok := event.(E); ok {
			return typed, true
		}
	}
	var zero E
	return zero, false
}

type stateRecorder struct {
	mu     sync.Mutex
	states []SessionState
}

func (r *stateRecorder) record(state SessionState) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
}

func (r *stateRecorder) snapshot() []SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SessionState{}, r.states...)
}

type transcriptRecorder struct {
	mu          sync.Mutex
	transcripts []string
}

func (r *transcriptRecorder) record(transcript string) {
	r.mu.Lock()
	r.transcripts = append(r.transcripts, transcript)
	r.mu.Unlock()
}

func (r *transcriptRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.transcripts...)
}

type scriptedStreamLLMStub struct {
	chunks []string
}

func (stub scriptedStreamLLMStub) PromptWithStream(context.Context, *string, ...llms.PromptOption) llms.Stream {
	return scriptedStreamStub{chunks: stub.chunks}
}

type scriptedStreamStub struct {
	chunks []string
}

func (stub scriptedStreamStub) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, chunk := range stub.chunks {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if !yield(streamContentChunkStub{content: chunk}, nil) {
				return
			}
		}
	}
}

type repeatingStreamLLMStub struct {
	chunk    string
	interval time.Duration
}

func (stub repeatingStreamLLMStub) PromptWithStream(context.Context, *string, ...llms.PromptOption) llms.Stream {
	return repeatingStreamStub{
		chunk:    stub.chunk,
		interval: stub.interval,
	}
}

type repeatingStreamStub struct {
	chunk    string
	interval time.Duration
}

func (stub repeatingStreamStub) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ticker := time.NewTicker(stub.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !yield(streamContentChunkStub{content: stub.chunk}, nil) {
					return
				}
			}
		}
	}
}

type streamContentChunkStub struct {
	content string
}

func (chunk streamContentChunkStub) FinishReason() *string {
	return nil
}

func (chunk streamContentChunkStub) Content() string {
	return chunk.content
}
