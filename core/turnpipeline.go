package orchestration

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/volleyhq/volley-core/core/events"
	"github.com/volleyhq/volley-core/core/llms"
	"github.com/volleyhq/volley-core/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// speechItem multiplexes synthesized audio frames and confirmed marks on the
// pipeline's speech queue.
type speechItem struct {
	Type  string // "audio" or "mark"
	Audio []byte
	Mark  string
}

// completionReport is handed back to the runtime loop when a pipeline winds
// down, successfully or not.
type completionReport struct {
	turnID    int64
	turn      llms.Turn
	err       error
	cancelled bool
}

// turnPipeline runs one assistant turn: it streams the agent response into a
// text buffer, feeds the buffered text to speech synthesis, and delivers
// synthesized audio and response text as outbound events. The three workers
// are joined before completion is reported, so a report means every resource
// the turn held is settled.
type turnPipeline struct {
	turnID  int64
	prompt  string
	history []llms.Turn

	ctxMu sync.RWMutex
	ctx   context.Context

	llm          llm
	textToSpeech *textToSpeech
	textBuffer   *textBuffer
	speechQueue  *streamQueue[speechItem]

	emitEvent eventEmitter

	// onSpeaking fires once, when the first synthesized frame is delivered.
	onSpeaking func(turnID int64)
	// onCancel fires once, when the pipeline is cancelled.
	onCancel func()
	// onComplete receives the completion report exactly once.
	onComplete func(completionReport)

	// synthesisReady is closed once the speech generator is opened or the
	// attempt failed, so speech delivery knows whether anything will arrive.
	synthesisReady chan struct{}

	speakingOnce sync.Once
	completeOnce sync.Once
	synthFaultMu sync.Mutex
	synthFaulted bool
	speechEnded  atomic.Bool
	cancelled    atomic.Bool

	turn llms.Turn
}

func newTurnPipeline(
	turnID int64,
	prompt string,
	history []llms.Turn,
	llm llm,
	textToSpeechClient TextToSpeech,
	emitEvent eventEmitter,
	onSpeaking func(turnID int64),
	onCancel func(),
	onComplete func(completionReport),
) *turnPipeline {
	if emitEvent == nil {
		emitEvent = noopEventEmitter
	}
	if onSpeaking == nil {
		onSpeaking = func(int64) {}
	}
	if onCancel == nil {
		onCancel = func() {}
	}
	if onComplete == nil {
		onComplete = func(completionReport) {}
	}

	return &turnPipeline{
		turnID:  turnID,
		prompt:  prompt,
		history: history,

		llm:          llm,
		textToSpeech: newTextToSpeech(textToSpeechClient),
		textBuffer:   newTextBuffer(),
		speechQueue:  newStreamQueue[speechItem](),

		emitEvent:  emitEvent,
		onSpeaking: onSpeaking,
		onCancel:   onCancel,
		onComplete: onComplete,

		synthesisReady: make(chan struct{}),

		turn: llms.Turn{Prompt: prompt},
	}
}

// Run executes the turn to completion and reports the result through
// onComplete. It blocks until all workers are joined.
func (p *turnPipeline) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.ctxMu.Lock()
	p.ctx = ctx
	p.ctxMu.Unlock()

	var workerErr error
	workerErrMu := sync.Mutex{}
	addWorkerErr := func(err error) {
		if err == nil {
			return
		}
		workerErrMu.Lock()
		workerErr = errors.Join(workerErr, err)
		workerErrMu.Unlock()
	}

	run := func(name string, f func(context.Context) error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				addWorkerErr(fmt.Errorf("%s worker panicked: %v", name, recovered))
				cancel()
			}
		}()

		if err := f(ctx); err != nil {
			addWorkerErr(fmt.Errorf("%s worker failed: %w", name, err))
			cancel()
		}
	}

	wg := &sync.WaitGroup{}
	wg.Add(3)
	go func() {
		defer wg.Done()
		run("agent stream", p.streamAgentResponse)
	}()
	go func() {
		defer wg.Done()
		run("synthesis feed", p.feedSynthesis)
	}()
	go func() {
		defer wg.Done()
		run("speech delivery", p.deliverSpeech)
	}()

	wg.Wait()

	finaliseErr := func() (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("turn finalise panicked: %v", recovered)
			}
		}()

		if err := p.textToSpeech.Close(); err != nil {
			span := trace.SpanFromContext(ctx)
			span.RecordError(fmt.Errorf("failed to close speech generator while finalising turn: %w", err))
		}
		return nil
	}()
	addWorkerErr(finaliseErr)

	p.turn.Cancelled = p.IsCancelled()

	p.completeOnce.Do(func() {
		p.onComplete(completionReport{
			turnID:    p.turnID,
			turn:      p.turn,
			err:       workerErr,
			cancelled: p.IsCancelled(),
		})
	})
}

func (p *turnPipeline) streamAgentResponse(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "generate agent response")
	defer span.End()

	toolCalls, err := p.llm.generate(ctx, p.prompt, p.history, p.textBuffer.Append, p.IsCancelled)
	p.turn.ToolCalls = toolCalls
	if err != nil {
		err = fmt.Errorf("failed to generate agent response: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	p.textBuffer.Complete()
	return nil
}

func (p *turnPipeline) feedSynthesis(ctx context.Context) error {
	done := withContextCancelHook(ctx, p.textBuffer.Clear)
	defer close(done)

	_, span := tracer.Start(ctx, "feed synthesis")
	defer span.End()

	if err := p.openSynthesis(ctx); err != nil {
		err = fmt.Errorf("failed to open speech synthesis: %w", err)
		span.RecordError(err)
		p.reportSynthesisFault(FaultConnection, err)
	}
	close(p.synthesisReady)

	for segment := range p.textBuffer.Segments {
		if p.IsCancelled() {
			break
		}

		p.turn.Response += segment
		p.emitEvent(events.NewAssistantResponseSegment(p.turnID, segment))

		speakable := speakableText(segment)
		if speakable != "" {
			if err := p.textToSpeech.SendText(speakable); err != nil {
				span.RecordError(fmt.Errorf("failed to send text to synthesis: %w", err))
			}
		}
		if strings.ContainsAny(speakable, ".?!") {
			if err := p.textToSpeech.Mark(); err != nil {
				span.RecordError(fmt.Errorf("failed to send mark to synthesis: %w", err))
			}
		}
	}

	if err := p.textToSpeech.EndOfText(); err != nil {
		span.RecordError(fmt.Errorf("failed to close synthesis text stream: %w", err))
	}

	if !p.IsCancelled() {
		p.emitEvent(events.NewAssistantResponseFinal(p.turnID))
	}
	return nil
}

func (p *turnPipeline) openSynthesis(ctx context.Context) error {
	if !p.textToSpeech.isConfigured() {
		return nil
	}

	return p.textToSpeech.open(ctx,
		texttospeech.WithSpeechAudioCallback(func(audio []byte) {
			p.speechQueue.Push(speechItem{Type: "audio", Audio: audio})
		}),
		texttospeech.WithSpeechMarkCallback(func(markText string) {
			p.speechQueue.Push(speechItem{Type: "mark", Mark: markText})
		}),
		texttospeech.WithSpeechEndedCallback(func(texttospeech.SpeechEndedReport) {
			p.speechEnded.Store(true)
			p.speechQueue.Finish()
		}),
		texttospeech.WithErrorCallback(func(err error) {
			p.reportSynthesisFault(FaultStream, err)
		}),
	)
}

func (p *turnPipeline) deliverSpeech(ctx context.Context) error {
	done := withContextCancelHook(ctx, p.speechQueue.Stop)
	defer close(done)

	select {
	case <-p.synthesisReady:
	case <-ctx.Done():
		return nil
	}
	if !p.textToSpeech.isOpen() {
		return nil
	}

	_, span := tracer.Start(ctx, "deliver speech")
	defer span.End()

	spoken := strings.Builder{}
	for item := range p.speechQueue.Items {
		switch item.Type {
		case "audio":
			if p.IsCancelled() {
				continue
			}
			p.speakingOnce.Do(func() {
				p.onSpeaking(p.turnID)
			})
			p.emitEvent(events.NewAssistantSpeechFrame(p.turnID, item.Audio))

		case "mark":
			span.AddEvent("mark confirmed", trace.WithAttributes(attribute.String("mark", item.Mark)))
			spoken.WriteString(item.Mark)
		}
	}

	if p.speechEnded.Load() && !p.IsCancelled() {
		p.emitEvent(events.NewAssistantSpeechFinal(p.turnID, spoken.String()))
	}
	return nil
}

// reportSynthesisFault escalates a broken synthesis stream once. The turn is
// not failed: the response keeps flowing as text, and ending the speech queue
// lets the delivery worker wind down instead of waiting for audio that will
// never arrive.
func (p *turnPipeline) reportSynthesisFault(kind FaultKind, err error) {
	p.synthFaultMu.Lock()
	faulted := p.synthFaulted
	p.synthFaulted = true
	p.synthFaultMu.Unlock()
	if faulted {
		return
	}

	p.emitEvent(faultEvent(newFault(kind, SourceSynthesis, err)))
	p.speechQueue.Finish()
}

// Cancel stops the turn. Safe to call from any goroutine and idempotent; the
// first call clears buffered text, cancels the speech generator and stops
// the speech queue.
func (p *turnPipeline) Cancel() {
	if p == nil || !p.cancelled.CompareAndSwap(false, true) {
		return
	}

	p.textBuffer.Clear()
	if err := p.textToSpeech.Cancel(); err != nil {
		span := trace.SpanFromContext(p.Ctx())
		span.RecordError(fmt.Errorf("failed to cancel speech generator while cancelling turn: %w", err))
	}
	p.speechQueue.Stop()
	p.onCancel()
}

func (p *turnPipeline) IsCancelled() bool {
	if p == nil {
		return false
	}

	return p.cancelled.Load()
}

func (p *turnPipeline) Ctx() context.Context {
	if p == nil {
		return context.Background()
	}

	p.ctxMu.RLock()
	defer p.ctxMu.RUnlock()

	if p.ctx == nil {
		return context.Background()
	}
	return p.ctx
}

var (
	markdownLink   = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	markupReplacer = strings.NewReplacer("**", "", "*", "", "`", "", "#", "", "~~", "")
)

// speakableText strips formatting that reads poorly when synthesized: link
// targets, emphasis markers, code ticks and heading markers. The raw segment
// still goes out as response text so clients can render it.
func speakableText(text string) string {
	text = markdownLink.ReplaceAllString(text, "$1")
	return markupReplacer.Replace(text)
}
