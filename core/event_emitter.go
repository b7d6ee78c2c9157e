package orchestration

import events "github.com/volleyhq/volley-core/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

// composeEventEmitters fans each event out to every emitter in order.
func composeEventEmitters(emitters ...eventEmitter) eventEmitter {
	return func(event events.Event) {
		for _, emit := range emitters {
			if emit != nil {
				emit(event)
			}
		}
	}
}

func newCallbackEventEmitter(opts OrchestrateOptions) eventEmitter {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.UserSpeechStarted:
			if opts.onSpeakingStateChanged != nil {
				opts.onSpeakingStateChanged(true)
			}
		case events.UserSpeechEnded:
			if opts.onSpeakingStateChanged != nil {
				opts.onSpeakingStateChanged(false)
			}
		case events.UserTranscriptInterimUpdated:
			if opts.onInterimTranscription != nil {
				opts.onInterimTranscription(typedEvent.Transcript)
			}
		case events.UserTranscriptFinal:
			if opts.onTranscription != nil {
				opts.onTranscription(typedEvent.Transcript)
			}
		case events.AssistantResponseSegment:
			if opts.onResponse != nil {
				opts.onResponse(typedEvent.Segment)
			}
		case events.AssistantResponseFinal:
			if opts.onResponseEnd != nil {
				opts.onResponseEnd()
			}
		case events.AssistantSpeechFrame:
			if opts.onAudio != nil {
				opts.onAudio(typedEvent.Audio)
			}
		case events.AssistantSpeechFinal:
			if opts.onAudioEnded != nil {
				opts.onAudioEnded(typedEvent.SpokenTranscript)
			}
		case events.TurnInterrupted:
			if opts.onCancellation != nil {
				opts.onCancellation()
			}
		case events.SessionFault:
			if opts.onFault != nil {
				opts.onFault(typedEvent)
			}
		}
	}
}
