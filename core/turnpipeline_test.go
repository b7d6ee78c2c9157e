package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/volleyhq/volley-core/core/events"
	"github.com/volleyhq/volley-core/core/llms"
	"github.com/volleyhq/volley-core/core/texttospeech"
)

func TestPipelineDeliversResponseAndSpeech(t *testing.T) {
	synthesizer := newScriptedSynthesizer()
	emitter := &recordingEmitter{}
	reports := make(chan completionReport, 1)

	pipeline := newTurnPipeline(
		7,
		"what's the weather",
		nil,
		newLLM(scriptedStreamLLMStub{chunks: []string{"Sunny ", "all day."}}, nil),
		synthesizer,
		emitter.emit,
		nil,
		nil,
		func(report completionReport) { reports <- report },
	)

	pipeline.Run(context.Background())

	var report completionReport
	select {
	case report = <-reports:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the completion report")
	}

	if report.err != nil {
		t.Fatalf("expected a clean completion, got %v", report.err)
	}
	if report.cancelled {
		t.Fatalf("did not expect the turn to be cancelled")
	}
	if report.turnID != 7 {
		t.Fatalf("expected the report to carry turn id 7, got %d", report.turnID)
	}
	if report.turn.Response != "Sunny all day." {
		t.Fatalf("expected recorded response %q, got %q", "Sunny all day.", report.turn.Response)
	}

	collected := emitter.snapshot()
	assertKindOrder(t, collected,
		events.KindAssistantResponseSegment,
		events.KindAssistantResponseSegment,
		events.KindAssistantResponseFinal,
	)
	assertKindOrder(t, collected,
		events.KindAssistantSpeechFrame,
		events.KindAssistantSpeechFinal,
	)

	frames := 0
	for _, event := range collected {
		if _, ok := event.(events.AssistantSpeechFrame); ok {
			frames++
		}
	}
	if frames != 2 {
		t.Fatalf("expected one synthesized frame per segment, got %d", frames)
	}

	speechFinal, ok := findEvent[events.AssistantSpeechFinal](collected)
	if !ok || speechFinal.SpokenTranscript != "Sunny all day." {
		t.Fatalf("expected the spoken transcript to cover the whole response, got %+v", speechFinal)
	}
}

func TestPipelineCancelStopsDelivery(t *testing.T) {
	synthesizer := newScriptedSynthesizer()
	emitter := &recordingEmitter{}
	reports := make(chan completionReport, 1)

	pipeline := newTurnPipeline(
		3,
		"ramble on",
		nil,
		newLLM(repeatingStreamLLMStub{chunk: "and on ", interval: 5 * time.Millisecond}, nil),
		synthesizer,
		emitter.emit,
		nil,
		nil,
		func(report completionReport) { reports <- report },
	)

	go pipeline.Run(context.Background())

	waitForCondition(t, 2*time.Second, "first synthesized frame", func() bool {
		for _, event := range emitter.snapshot() {
			if _, ok := event.(events.AssistantSpeechFrame); ok {
				return true
			}
		}
		return false
	})

	pipeline.Cancel()

	var report completionReport
	select {
	case report = <-reports:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the cancelled pipeline to wind down")
	}

	if !report.cancelled {
		t.Fatalf("expected the report to be marked cancelled")
	}
	if !report.turn.Cancelled {
		t.Fatalf("expected the recorded turn to be marked cancelled")
	}

	for _, event := range emitter.snapshot() {
		switch event.Kind() {
		case events.KindAssistantResponseFinal, events.KindAssistantSpeechFinal:
			t.Fatalf("did not expect %s after cancellation", event.Kind())
		}
	}

	if generator := synthesizer.lastGenerator(); generator == nil || !generator.wasCancelled() {
		t.Fatalf("expected the speech generator to be cancelled")
	}
}

func TestPipelineCompletesWithoutSynthesis(t *testing.T) {
	emitter := &recordingEmitter{}
	reports := make(chan completionReport, 1)

	pipeline := newTurnPipeline(
		1,
		"text only",
		nil,
		newLLM(scriptedStreamLLMStub{chunks: []string{"Fine."}}, nil),
		nil,
		emitter.emit,
		nil,
		nil,
		func(report completionReport) { reports <- report },
	)

	pipeline.Run(context.Background())

	select {
	case report := <-reports:
		if report.err != nil {
			t.Fatalf("expected a clean completion, got %v", report.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the completion report")
	}

	collected := emitter.snapshot()
	assertKindOrder(t, collected,
		events.KindAssistantResponseSegment,
		events.KindAssistantResponseFinal,
	)
	for _, event := range collected {
		if _, ok := event.(events.AssistantSpeechFrame); ok {
			t.Fatalf("did not expect synthesized frames without a synthesis client")
		}
	}
}

func TestPipelineSynthesisOpenFailureKeepsTextFlowing(t *testing.T) {
	synthesizer := newScriptedSynthesizer()
	synthesizer.openErr = errors.New("no capacity")
	emitter := &recordingEmitter{}
	reports := make(chan completionReport, 1)

	pipeline := newTurnPipeline(
		1,
		"speak up",
		nil,
		newLLM(scriptedStreamLLMStub{chunks: []string{"Still here."}}, nil),
		synthesizer,
		emitter.emit,
		nil,
		nil,
		func(report completionReport) { reports <- report },
	)

	pipeline.Run(context.Background())

	select {
	case report := <-reports:
		if report.err != nil {
			t.Fatalf("expected the turn to survive a synthesis failure, got %v", report.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the completion report")
	}

	collected := emitter.snapshot()

	fault, ok := findEvent[events.SessionFault](collected)
	if !ok {
		t.Fatalf("expected a fault event for the failed synthesis")
	}
	if fault.Source != SourceSynthesis || fault.Code != string(FaultConnection) {
		t.Fatalf("expected a synthesis connection fault, got %+v", fault)
	}

	if _, ok := findEvent[events.AssistantResponseFinal](collected); !ok {
		t.Fatalf("expected the response to still complete as text")
	}
	for _, event := range collected {
		if _, ok := event.(events.AssistantSpeechFrame); ok {
			t.Fatalf("did not expect synthesized frames after a failed open")
		}
	}
}

func TestPipelineSynthesisStreamFailureWindsDownSpeech(t *testing.T) {
	synthesizer := newScriptedSynthesizer()
	emitter := &recordingEmitter{}
	reports := make(chan completionReport, 1)

	pipeline := newTurnPipeline(
		1,
		"long story",
		nil,
		newLLM(repeatingStreamLLMStub{chunk: "words ", interval: 5 * time.Millisecond}, nil),
		synthesizer,
		emitter.emit,
		nil,
		nil,
		func(report completionReport) { reports <- report },
	)

	go pipeline.Run(context.Background())

	waitForCondition(t, 2*time.Second, "the speech generator to open", func() bool {
		return synthesizer.lastGenerator() != nil
	})

	synthesizer.lastGenerator().failStream(errors.New("socket reset"))

	waitForCondition(t, 2*time.Second, "the synthesis fault to surface", func() bool {
		_, ok := findEvent[events.SessionFault](emitter.snapshot())
		return ok
	})

	fault, _ := findEvent[events.SessionFault](emitter.snapshot())
	if fault.Source != SourceSynthesis || fault.Code != string(FaultStream) {
		t.Fatalf("expected a synthesis stream fault, got %+v", fault)
	}

	// The response keeps streaming as text; wind the turn down and make
	// sure it still completes cleanly.
	pipeline.Cancel()

	select {
	case report := <-reports:
		if report.err != nil {
			t.Fatalf("expected no turn error after a synthesis fault, got %v", report.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the completion report")
	}
}

func TestPipelineAgentStreamFailureFailsTurn(t *testing.T) {
	emitter := &recordingEmitter{}
	reports := make(chan completionReport, 1)

	pipeline := newTurnPipeline(
		1,
		"doomed",
		nil,
		newLLM(erroringStreamLLMStub{chunks: []string{"part"}, err: errors.New("stream reset")}, nil),
		nil,
		emitter.emit,
		nil,
		nil,
		func(report completionReport) { reports <- report },
	)

	pipeline.Run(context.Background())

	var report completionReport
	select {
	case report = <-reports:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the completion report")
	}

	if report.err == nil {
		t.Fatalf("expected the turn to fail when the agent stream breaks")
	}

	var fault *Fault
	if !errors.As(report.err, &fault) {
		t.Fatalf("expected a classified fault, got %v", report.err)
	}
	if fault.Kind != FaultStream || fault.Source != SourceAgent {
		t.Fatalf("expected an agent stream fault, got %+v", fault)
	}
}

func TestPipelineRecoversFromPanickingStream(t *testing.T) {
	reports := make(chan completionReport, 1)

	pipeline := newTurnPipeline(
		1,
		"explode",
		nil,
		newLLM(panickingStreamLLMStub{}, nil),
		nil,
		noopEventEmitter,
		nil,
		nil,
		func(report completionReport) { reports <- report },
	)

	pipeline.Run(context.Background())

	select {
	case report := <-reports:
		if report.err == nil || !strings.Contains(report.err.Error(), "panicked") {
			t.Fatalf("expected a recovered panic in the report, got %v", report.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the completion report")
	}
}

func TestSpeakableTextStripsFormatting(t *testing.T) {
	got := speakableText("Check [the docs](https://example.com) for **bold** and `code`.")
	want := "Check the docs for bold and code."
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	if got := speakableText("# Heading with ~~strikethrough~~"); got != " Heading with strikethrough" {
		t.Fatalf("expected markers to be stripped, got %q", got)
	}
}

type erroringStreamLLMStub struct {
	chunks []string
	err    error
}

func (stub erroringStreamLLMStub) PromptWithStream(context.Context, *string, ...llms.PromptOption) llms.Stream {
	return erroringStreamStub{chunks: stub.chunks, err: stub.err}
}

type erroringStreamStub struct {
	chunks []string
	err    error
}

func (stub erroringStreamStub) Chunks(context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, chunk := range stub.chunks {
			if !yield(streamContentChunkStub{content: chunk}, nil) {
				return
			}
		}
		yield(nil, stub.err)
	}
}

type panickingStreamLLMStub struct{}

func (stub panickingStreamLLMStub) PromptWithStream(context.Context, *string, ...llms.PromptOption) llms.Stream {
	return panickingStreamStub{}
}

type panickingStreamStub struct{}

func (stub panickingStreamStub) Chunks(context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(func(llms.StreamChunk, error) bool) {
		panic("stream exploded")
	}
}

// scriptedSynthesizer hands out speech generators that synthesize each text
// segment into one audio frame, synchronously, so tests get deterministic
// frames and marks.
type scriptedSynthesizer struct {
	mu         sync.Mutex
	generators []*scriptedSpeechGenerator
	openErr    error
}

func newScriptedSynthesizer() *scriptedSynthesizer {
	return &scriptedSynthesizer{}
}

func (s *scriptedSynthesizer) NewSpeechGenerator(_ context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openErr != nil {
		return nil, s.openErr
	}

	options := texttospeech.TextToSpeechOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	generator := &scriptedSpeechGenerator{callbacks: options}
	s.generators = append(s.generators, generator)
	return generator, nil
}

func (s *scriptedSynthesizer) lastGenerator() *scriptedSpeechGenerator {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.generators) == 0 {
		return nil
	}
	return s.generators[len(s.generators)-1]
}

type scriptedSpeechGenerator struct {
	mu        sync.Mutex
	callbacks texttospeech.TextToSpeechOptions
	pending   strings.Builder
	ended     bool
	cancelled bool
	closed    bool
}

func (g *scriptedSpeechGenerator) SendText(text string) error {
	g.mu.Lock()
	if g.ended || g.cancelled || g.closed {
		g.mu.Unlock()
		return fmt.Errorf("text sent after the stream ended")
	}
	g.pending.WriteString(text)
	audioCallback := g.callbacks.SpeechAudioCallback
	g.mu.Unlock()

	if audioCallback != nil {
		audioCallback([]byte(text))
	}
	return nil
}

func (g *scriptedSpeechGenerator) Mark() error {
	g.mu.Lock()
	if g.ended || g.cancelled || g.closed {
		g.mu.Unlock()
		return fmt.Errorf("mark after the stream ended")
	}
	marked := g.pending.String()
	g.pending.Reset()
	markCallback := g.callbacks.SpeechMarkCallback
	g.mu.Unlock()

	if markCallback != nil && marked != "" {
		markCallback(marked)
	}
	return nil
}

func (g *scriptedSpeechGenerator) EndOfText() error {
	g.mu.Lock()
	if g.ended || g.cancelled || g.closed {
		g.mu.Unlock()
		return nil
	}
	g.ended = true
	endedCallback := g.callbacks.SpeechEndedCallback
	g.mu.Unlock()

	if endedCallback != nil {
		endedCallback(texttospeech.SpeechEndedReport{})
	}
	return nil
}

func (g *scriptedSpeechGenerator) Cancel() error {
	g.mu.Lock()
	g.cancelled = true
	g.mu.Unlock()
	return nil
}

func (g *scriptedSpeechGenerator) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	return nil
}

func (g *scriptedSpeechGenerator) failStream(err error) {
	g.mu.Lock()
	errorCallback := g.callbacks.ErrorCallback
	g.mu.Unlock()

	if errorCallback != nil {
		errorCallback(err)
	}
}

func (g *scriptedSpeechGenerator) wasCancelled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelled
}
