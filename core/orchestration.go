package orchestration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/volleyhq/volley-core/core/events"
	"github.com/volleyhq/volley-core/core/llms"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// outboundChannelCapacity bounds the ordered outbound channel. The pump
// goroutine blocks once a consumer falls this far behind; producers keep
// going because the queue behind it is unbounded.
const outboundChannelCapacity = 256

// Orchestrator owns one voice session end to end: audio in, transcription,
// agent turns, synthesized speech out. Everything the client should see
// leaves through a single ordered channel; consumers drop frames of
// interrupted turns with IsStale.
type Orchestrator struct {
	id string

	closeOnce sync.Once
	runtime   *sessionRuntime

	// speechToText is the transcription facade used to handle optional
	// client wiring.
	speechToText *speechToText
	history      *sessionHistory

	// staleBefore is the interruption watermark: turn-scoped events with a
	// turn id below it must not reach the client.
	staleBefore atomic.Int64
	state       atomic.Int32

	outboundQueue *streamQueue[events.Event]
	outbound      chan events.Event

	orchestrateOptions OrchestrateOptions
	baseContext        context.Context
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		id:            uuid.NewString(),
		history:       &sessionHistory{},
		outboundQueue: newStreamQueue[events.Event](),
		outbound:      make(chan events.Event, outboundChannelCapacity),
		baseContext:   context.Background(),
	}
	o.runtime = newSessionRuntime(&o.staleBefore, &o.state, o.history)
	o.speechToText = newSpeechToText(nil)

	for _, opt := range opts {
		opt(o)
	}

	go o.pumpOutbound()

	return o
}

// Orchestrate registers the callbacks, connects the transcription bridge and
// starts the session loop.
//
// ctx is the base context for the transcription connection and all turn
// processing; cancelling it closes the session.
//
// Contract: call Orchestrate at most once per orchestrator instance. The
// session loop starts only once, so a repeated call reconfigures nothing.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) error {
	if o.runtime.isClosed() {
		return fmt.Errorf("session already closed")
	}

	o.orchestrateOptions = OrchestrateOptions{}
	for _, opt := range opts {
		opt(&o.orchestrateOptions)
	}

	o.baseContext = ctx
	emitEvent := composeEventEmitters(
		newCallbackEventEmitter(o.orchestrateOptions),
		o.outboundQueue.Push,
	)
	o.runtime.configure(ctx, emitEvent, o.orchestrateOptions.onStateChanged)

	o.speechToText.configure(
		emitEvent,
		func(transcript string) {
			o.runtime.enqueue(queueItem{kind: kindFinalTranscript, transcript: transcript})
		},
		func() { o.runtime.enqueue(queueItem{kind: kindSpeechStarted}) },
		func(fault *Fault) { o.runtime.enqueue(queueItem{kind: kindFault, fault: fault}) },
	)

	if o.speechToText.isConfigured() {
		if err := o.speechToText.start(ctx, o.orchestrateOptions.inputEncodingInfo); err != nil {
			recordedErr := fmt.Errorf("failed to initialize transcription: %w", err)
			span := trace.SpanFromContext(ctx)
			span.RecordError(recordedErr)
			span.SetStatus(codes.Error, recordedErr.Error())
			return recordedErr
		}
	}

	if started := o.runtime.start(); started {
		go func() {
			// The loop also ends on its own when a collaborator fault
			// escalates; the session closes either way.
			select {
			case <-ctx.Done():
			case <-o.runtime.done:
			}
			o.Close()
		}()
	}

	return nil
}

// Close ends the session: the loop winds down, any active turn is cancelled,
// the transcription connection closes and the outbound channel closes after
// the last queued event is delivered.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.runtime.end()
		o.runtime.waitUntilEnded()

		if err := o.speechToText.Close(o.baseContext); err != nil {
			recordedErr := fmt.Errorf("failed to close transcription client: %w", err)
			span := trace.SpanFromContext(o.baseContext)
			span.RecordError(recordedErr)
			span.SetStatus(codes.Error, recordedErr.Error())
		}

		o.outboundQueue.Finish()
	})
}

// pumpOutbound moves events from the unbounded ordered queue onto the
// outbound channel, then closes the channel once Close finishes the queue.
func (o *Orchestrator) pumpOutbound() {
	defer close(o.outbound)
	for event := range o.outboundQueue.Items {
		o.outbound <- event
	}
}

// ID returns the identifier assigned to this session.
func (o *Orchestrator) ID() string { return o.id }

// Outbound returns the ordered stream of session events. The channel closes
// after Close, once every queued event has been delivered.
func (o *Orchestrator) Outbound() <-chan events.Event { return o.outbound }

// PushAudio hands a captured audio frame to the transcription bridge. Frames
// are dropped oldest first when transcription falls behind.
func (o *Orchestrator) PushAudio(frame []byte) { o.speechToText.SendAudio(frame) }

// SendPrompt injects a text utterance, bypassing transcription. It goes
// through the same turn admission as a final transcript.
func (o *Orchestrator) SendPrompt(prompt string) {
	o.runtime.enqueue(queueItem{kind: kindFinalTranscript, transcript: prompt})
}

// RequestInterrupt cancels the turn in flight, if any. Explicit requests
// work even when speech-driven interruptions are disabled.
func (o *Orchestrator) RequestInterrupt() {
	o.runtime.enqueue(queueItem{kind: kindInterruptRequest})
}

// IsStale reports whether event belongs to a turn that was interrupted and
// must not be forwarded to the client. The interruption notice itself is
// never stale: it is the boundary that makes the rest of its turn's output
// stale. Events without a turn are never stale.
func (o *Orchestrator) IsStale(event events.Event) bool {
	if event.Kind() == events.KindTurnInterrupted {
		return false
	}
	scoped, ok := event.(events.TurnScoped)
	if !ok {
		return false
	}
	return scoped.TurnID() < o.staleBefore.Load()
}

// State returns the current session state.
func (o *Orchestrator) State() SessionState {
	return SessionState(o.state.Load())
}

// History returns a point-in-time snapshot of completed turns.
func (o *Orchestrator) History() []llms.Turn {
	return o.history.Snapshot()
}
