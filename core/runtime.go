package orchestration

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/volleyhq/volley-core/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const sessionQueueCapacity = 10

// classificationTimeout caps how long a transcript classification may take
// before it fails open.
const classificationTimeout = 2 * time.Second

type queueItemKind int

const (
	kindFinalTranscript queueItemKind = iota
	kindClassifiedTranscript
	kindSpeechStarted
	kindInterruptRequest
	kindTurnSpeaking
	kindTurnDone
	kindFault
)

type queueItem struct {
	kind     queueItemKind
	queuedAt time.Time

	transcript  string
	addressed   bool
	classifySeq uint64
	turnID      int64
	report      completionReport
	fault       *Fault
}

// sessionRuntime serializes turn lifecycle decisions onto one loop
// goroutine: starting turns, barge-in cancellation, pending transcript
// replacement and completion bookkeeping. Pipelines run concurrently and
// report back through the queue, so the loop stays responsive while a turn
// is in flight.
type sessionRuntime struct {
	baseContext context.Context

	llm                llm
	textToSpeechClient TextToSpeech
	classifier         *transcriptClassifier

	emitEvent      eventEmitter
	onStateChanged func(SessionState)

	gate        *interruptGate
	history     *sessionHistory
	staleBefore *atomic.Int64
	state       *atomic.Int32

	queue   chan queueItem
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once
	started   atomic.Bool

	// Turn bookkeeping below is owned by the loop goroutine.
	turnSeq           int64
	activeTurnID      int64
	activePipeline    *turnPipeline
	activeCancel      context.CancelFunc
	activeSpan        trace.Span
	pendingTranscript *string
	pendingSince      time.Time
	classifySeq       uint64
}

func newSessionRuntime(staleBefore *atomic.Int64, state *atomic.Int32, history *sessionHistory) *sessionRuntime {
	return &sessionRuntime{
		baseContext:    context.Background(),
		gate:           newInterruptGate(true),
		history:        history,
		staleBefore:    staleBefore,
		state:          state,
		emitEvent:      noopEventEmitter,
		onStateChanged: func(SessionState) {},
		queue:          make(chan queueItem, sessionQueueCapacity), // TODO: Figure out a good value for this.
		closeCh:        make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (runtime *sessionRuntime) configure(ctx context.Context, emitEvent eventEmitter, onStateChanged func(SessionState)) {
	if runtime == nil {
		return
	}

	runtime.baseContext = ctx
	if emitEvent != nil {
		runtime.emitEvent = emitEvent
	}
	if onStateChanged != nil {
		runtime.onStateChanged = onStateChanged
	}
}

func (runtime *sessionRuntime) start() (started bool) {
	if runtime == nil || runtime.isClosed() {
		return false
	}

	runtime.startOnce.Do(func() {
		if runtime.isClosed() {
			return
		}

		started = true
		runtime.started.Store(true)
		go func() {
			defer close(runtime.done)

			for {
				select {
				case <-runtime.closeCh:
					runtime.teardown()
					return
				case item := <-runtime.queue:
					if runtime.isClosed() {
						runtime.teardown()
						return
					}
					runtime.processItem(item)
				}
			}
		}()
	})

	return started
}

func (runtime *sessionRuntime) end() {
	if runtime == nil {
		return
	}

	runtime.endOnce.Do(func() {
		close(runtime.closeCh)
	})
}

func (runtime *sessionRuntime) waitUntilEnded() {
	if runtime == nil {
		return
	}

	if runtime.started.Load() {
		<-runtime.done
	}
}

func (runtime *sessionRuntime) enqueue(item queueItem) bool {
	if runtime == nil || runtime.isClosed() {
		return false
	}

	item.queuedAt = time.Now()
	select {
	case <-runtime.closeCh:
		return false
	case runtime.queue <- item:
		return true
	}
}

func (runtime *sessionRuntime) isClosed() bool {
	if runtime == nil {
		return false
	}

	select {
	case <-runtime.closeCh:
		return true
	default:
		return false
	}
}

func (runtime *sessionRuntime) currentState() SessionState {
	return SessionState(runtime.state.Load())
}

func (runtime *sessionRuntime) setState(state SessionState) {
	previous := SessionState(runtime.state.Swap(int32(state)))
	if previous == state {
		return
	}

	logger.Debug("session state changed", "from", previous.String(), "to", state.String())
	runtime.onStateChanged(state)
}

func (runtime *sessionRuntime) processItem(item queueItem) {
	switch item.kind {
	case kindFinalTranscript:
		runtime.handleFinalTranscript(item)
	case kindClassifiedTranscript:
		runtime.handleClassifiedTranscript(item)
	case kindSpeechStarted:
		runtime.handleSpeechStarted()
	case kindInterruptRequest:
		runtime.handleInterruptRequest()
	case kindTurnSpeaking:
		runtime.handleTurnSpeaking(item.turnID)
	case kindTurnDone:
		runtime.handleTurnDone(item.report)
	case kindFault:
		runtime.handleFault(item.fault)
	}
}

func (runtime *sessionRuntime) handleFinalTranscript(item queueItem) {
	transcript := strings.TrimSpace(item.transcript)
	if transcript == "" {
		return
	}

	if runtime.classifier != nil {
		runtime.classifySeq++
		seq := runtime.classifySeq
		history := runtime.history.Snapshot()
		go func() {
			ctx, cancel := context.WithTimeout(runtime.baseContext, classificationTimeout)
			defer cancel()

			addressed, err := runtime.classifier.Classify(ctx, transcript, history)
			if err != nil {
				logger.Warn("transcript classification failed, treating as addressed", "error", err)
				addressed = true
			}
			runtime.enqueue(queueItem{
				kind:        kindClassifiedTranscript,
				transcript:  transcript,
				addressed:   addressed,
				classifySeq: seq,
			})
		}()
		return
	}

	runtime.admitTranscript(transcript, item.queuedAt)
}

func (runtime *sessionRuntime) handleClassifiedTranscript(item queueItem) {
	if item.classifySeq != runtime.classifySeq {
		// A newer utterance arrived while this one was being classified.
		logger.Debug("discarded superseded transcript classification")
		return
	}
	if !item.addressed {
		logger.Debug("ignored transcript not addressed to the assistant", "transcript", item.transcript)
		return
	}

	runtime.admitTranscript(item.transcript, item.queuedAt)
}

func (runtime *sessionRuntime) admitTranscript(transcript string, queuedAt time.Time) {
	if runtime.activePipeline != nil {
		// Latest wins: a newer utterance replaces any transcript still
		// waiting for the active turn to wind down.
		runtime.pendingTranscript = &transcript
		runtime.pendingSince = queuedAt
		return
	}

	runtime.startTurn(transcript, queuedAt)
}

func (runtime *sessionRuntime) startTurn(transcript string, queuedAt time.Time) {
	runtime.turnSeq++
	turnID := runtime.turnSeq
	runtime.activeTurnID = turnID

	turnCtx, turnCancel := context.WithCancel(runtime.baseContext)
	ctx, span := tracer.Start(turnCtx, "process turn",
		trace.WithAttributes(attribute.Int64("assistant_turn.id", turnID)),
	)

	queuedTime := time.Since(queuedAt).Seconds()
	span.AddEvent("taken out of queue", trace.WithAttributes(attribute.Float64("assistant_turn.queued_time", queuedTime)))
	span.SetAttributes(attribute.Float64("assistant_turn.queued_time", queuedTime))

	runtime.emitEvent(events.NewUserTranscriptFinal(turnID, transcript))
	runtime.emitEvent(events.NewTurnStarted(turnID))
	runtime.gate.Arm(turnID)

	pipeline := newTurnPipeline(
		turnID,
		transcript,
		runtime.history.Snapshot(),
		runtime.llm,
		runtime.textToSpeechClient,
		runtime.emitEvent,
		func(turnID int64) {
			runtime.enqueue(queueItem{kind: kindTurnSpeaking, turnID: turnID})
		},
		nil,
		func(report completionReport) {
			runtime.enqueue(queueItem{kind: kindTurnDone, report: report})
		},
	)

	runtime.activePipeline = pipeline
	runtime.activeCancel = turnCancel
	runtime.activeSpan = span

	go pipeline.Run(ctx)
	runtime.setState(StateThinking)
}

func (runtime *sessionRuntime) handleSpeechStarted() {
	if runtime.gate.Observe(runtime.currentState(), runtime.activeTurnID) {
		runtime.interruptActiveTurn()
	}
}

func (runtime *sessionRuntime) handleInterruptRequest() {
	if runtime.gate.Force(runtime.currentState(), runtime.activeTurnID) {
		runtime.interruptActiveTurn()
	}
}

func (runtime *sessionRuntime) interruptActiveTurn() {
	pipeline := runtime.activePipeline
	if pipeline == nil {
		return
	}

	// Raise the stale watermark before anything else so frames already in
	// flight for this turn get discarded at the relay boundary.
	runtime.staleBefore.Store(runtime.activeTurnID + 1)
	runtime.emitEvent(events.NewTurnInterrupted(runtime.activeTurnID))
	pipeline.Cancel()
	if runtime.activeCancel != nil {
		runtime.activeCancel()
	}
	if runtime.activeSpan != nil {
		runtime.activeSpan.AddEvent("turn interrupted")
	}
	runtime.setState(StateInterrupted)
}

func (runtime *sessionRuntime) handleTurnSpeaking(turnID int64) {
	if runtime.activePipeline == nil || turnID != runtime.activeTurnID {
		return
	}

	if runtime.currentState() == StateThinking {
		runtime.setState(StateSpeaking)
	}
}

func (runtime *sessionRuntime) handleTurnDone(report completionReport) {
	if runtime.activePipeline == nil || report.turnID != runtime.activeTurnID {
		// The completion lost the cancellation race: its turn was superseded
		// before the report got here. Nothing is owed to the client.
		logger.Debug("discarded completion of superseded turn", "turn_id", report.turnID)
		return
	}

	span := runtime.activeSpan
	runtime.activePipeline = nil
	runtime.activeSpan = nil
	if runtime.activeCancel != nil {
		runtime.activeCancel()
		runtime.activeCancel = nil
	}

	runtime.history.Append(report.turn)

	switch {
	case report.cancelled:
		if report.err != nil {
			// Workers torn down mid-flight report context errors; expected
			// after a cancellation.
			logger.Debug("ignoring error from cancelled turn", "turn_id", report.turnID, "error", report.err)
		}
	case report.err != nil:
		runtime.emitEvent(faultEvent(faultFrom(SourceAgent, report.err)))
		if span != nil {
			span.RecordError(report.err)
			span.SetStatus(codes.Error, report.err.Error())
		}
	default:
		runtime.emitEvent(events.NewTurnCompleted(report.turnID))
	}

	if span != nil {
		span.SetAttributes(attribute.Int("assistant_turn.queued_items", len(runtime.queue)))
		span.End()
	}

	runtime.setState(StateListening)

	if runtime.pendingTranscript != nil {
		transcript := *runtime.pendingTranscript
		queuedAt := runtime.pendingSince
		runtime.pendingTranscript = nil
		runtime.startTurn(transcript, queuedAt)
	}
}

func (runtime *sessionRuntime) handleFault(fault *Fault) {
	if fault == nil {
		return
	}

	logger.Error("collaborator failure, closing session", "source", fault.Source, "error", fault.Err)
	runtime.emitEvent(faultEvent(fault))
	runtime.end()
}

func (runtime *sessionRuntime) teardown() {
	if runtime.activePipeline != nil {
		runtime.activePipeline.Cancel()
		runtime.activePipeline = nil
	}
	if runtime.activeCancel != nil {
		runtime.activeCancel()
		runtime.activeCancel = nil
	}
	if runtime.activeSpan != nil {
		runtime.activeSpan.End()
		runtime.activeSpan = nil
	}
}
