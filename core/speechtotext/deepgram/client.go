package deepgram

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/volleyhq/volley-core/core/speechtotext"
)

// TranscriptionClient streams audio to Deepgram's listen API. It is the
// drop-in alternative to the realtime transcription client for deployments
// that already hold Deepgram credentials.
type TranscriptionClient struct {
	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	lastMsgTs time.Time

	accumulatedTranscript string
	unendedSegment        bool
}

func NewTranscriptionClient() *TranscriptionClient {
	return &TranscriptionClient{}
}

// transcriptionCallbacks holds the configured callbacks with no-op defaults
// so the message loop never has to nil-check them.
type transcriptionCallbacks struct {
	partialInterimTranscriptionCallback func(transcript string)
	interimTranscriptionCallback        func(transcript string)
	partialTranscriptionCallback        func(transcript string)
	transcriptionCallback               func(transcript string)

	startSpeechCallback func()
	endSpeechCallback   func()

	errorCallback func(err error)

	wantsFullTranscript bool
}

// websocketConfig captures which optional Deepgram features have to be
// requested on the connection for the configured callbacks to ever fire.
type websocketConfig struct {
	shouldDetectSpeechStart            bool
	shouldEnhanceSpeechEndingDetection bool
	shouldRequestInterimResults        bool
}

func newCallbackConfig(options speechtotext.TranscriptionOptions) (transcriptionCallbacks, websocketConfig) {
	callbacks := transcriptionCallbacks{
		partialInterimTranscriptionCallback: func(string) {},
		interimTranscriptionCallback:        func(string) {},
		partialTranscriptionCallback:        func(string) {},
		transcriptionCallback:               func(string) {},
		startSpeechCallback:                 func() {},
		endSpeechCallback:                   func() {},
		errorCallback:                       func(error) {},

		wantsFullTranscript: options.TranscriptionCallback != nil,
	}
	config := websocketConfig{
		shouldDetectSpeechStart: options.SpeechStartedCallback != nil,
		shouldEnhanceSpeechEndingDetection: options.TranscriptionCallback != nil ||
			options.SpeechEndedCallback != nil,
		shouldRequestInterimResults: options.PartialInterimTranscriptionCallback != nil ||
			options.InterimTranscriptionCallback != nil,
	}

	if options.PartialInterimTranscriptionCallback != nil {
		callbacks.partialInterimTranscriptionCallback = options.PartialInterimTranscriptionCallback
	}
	if options.InterimTranscriptionCallback != nil {
		callbacks.interimTranscriptionCallback = options.InterimTranscriptionCallback
	}
	if options.PartialTranscriptionCallback != nil {
		callbacks.partialTranscriptionCallback = options.PartialTranscriptionCallback
	}
	if options.TranscriptionCallback != nil {
		callbacks.transcriptionCallback = options.TranscriptionCallback
	}
	if options.SpeechStartedCallback != nil {
		callbacks.startSpeechCallback = options.SpeechStartedCallback
	}
	if options.SpeechEndedCallback != nil {
		callbacks.endSpeechCallback = options.SpeechEndedCallback
	}
	if options.ErrorCallback != nil {
		callbacks.errorCallback = options.ErrorCallback
	}

	return callbacks, config
}
