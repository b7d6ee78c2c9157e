package orchestration

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/volleyhq/volley-core/core/audio"
	events "github.com/volleyhq/volley-core/core/events"
	"github.com/volleyhq/volley-core/core/speechtotext"
	"go.opentelemetry.io/otel/metric"
)

// audioIngressCapacity bounds audio buffered between the client connection
// and the transcription bridge. When transcription cannot keep up the oldest
// frames are dropped so the session never blocks the connection read loop.
const audioIngressCapacity = 128

var droppedAudioFrames, _ = meter.Int64Counter(
	"session.dropped_audio_frames",
	metric.WithDescription("Audio frames dropped because transcription could not keep up"),
)

// speechToText bridges the configured transcription client into the session:
// callbacks become outbound events, final transcripts and speech activity are
// handed to the runtime loop, and inbound audio flows through a bounded
// drop-oldest queue of sequence-stamped frames.
type speechToText struct {
	client SpeechToText

	emitEvent         eventEmitter
	onFinalTranscript func(transcript string)
	onSpeechStarted   func()
	onFatal           func(*Fault)

	frames  chan events.UserAudioFrame
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func newSpeechToText(client SpeechToText) *speechToText {
	return &speechToText{
		client:            client,
		emitEvent:         noopEventEmitter,
		onFinalTranscript: func(string) {},
		onSpeechStarted:   func() {},
		onFatal:           func(*Fault) {},
		frames:            make(chan events.UserAudioFrame, audioIngressCapacity),
	}
}

func (s *speechToText) configure(
	emitEvent eventEmitter,
	onFinalTranscript func(string),
	onSpeechStarted func(),
	onFatal func(*Fault),
) {
	if s == nil {
		return
	}

	if emitEvent != nil {
		s.emitEvent = emitEvent
	}
	if onFinalTranscript != nil {
		s.onFinalTranscript = onFinalTranscript
	}
	if onSpeechStarted != nil {
		s.onSpeechStarted = onSpeechStarted
	}
	if onFatal != nil {
		s.onFatal = onFatal
	}
}

func (s *speechToText) isConfigured() bool {
	return s != nil && s.client != nil
}

func (s *speechToText) start(ctx context.Context, encodingInfo *audio.EncodingInfo) error {
	if !s.isConfigured() {
		return nil
	}

	sttOptions := []speechtotext.TranscriptionOption{
		speechtotext.WithSpeechStartedCallback(s.invokeSpeechStarted),
		speechtotext.WithSpeechEndedCallback(s.invokeSpeechEnded),
		speechtotext.WithInterimTranscriptionCallback(s.invokeInterimTranscription),
		speechtotext.WithTranscriptionCallback(s.invokeTranscription),
		speechtotext.WithConnectionStateCallback(s.invokeConnectionState),
		speechtotext.WithErrorCallback(s.invokeError),
	}
	if encodingInfo != nil {
		sttOptions = append(sttOptions, speechtotext.WithEncodingInfo(*encodingInfo))
	}

	if err := s.client.Transcribe(ctx, sttOptions...); err != nil {
		return newFault(FaultConnection, SourceTranscription, fmt.Errorf("failed to start transcribing: %w", err))
	}

	go s.pumpAudio(ctx)
	return nil
}

// SendAudio stamps an audio frame with the next ingress sequence number and
// queues it for transcription without blocking. When the queue is full the
// oldest frame is discarded to make room.
func (s *speechToText) SendAudio(audio []byte) {
	if !s.isConfigured() {
		return
	}

	frame := events.NewUserAudioFrame(audio, s.seq.Add(1))
	for {
		select {
		case s.frames <- frame:
			return
		default:
		}

		select {
		case <-s.frames:
			s.dropped.Add(1)
			droppedAudioFrames.Add(context.Background(), 1)
		default:
		}
	}
}

func (s *speechToText) droppedFrames() uint64 {
	if s == nil {
		return 0
	}

	return s.dropped.Load()
}

func (s *speechToText) pumpAudio(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.frames:
			if err := s.client.SendAudio(frame.Audio); err != nil {
				// The client reconnects on its own; frames sent in the
				// meantime are lost.
				logger.Debug("failed to send audio frame to transcription", "error", err)
			}
		}
	}
}

func (s *speechToText) Close(ctx context.Context) error {
	if !s.isConfigured() {
		return nil
	}

	switch c := s.client.(type) {
	case interface{ Close(context.Context) error }:
		if err := c.Close(ctx); err != nil {
			return fmt.Errorf("failed to close speech-to-text client: %w", err)
		}
	case interface{ Close(context.Context) }:
		c.Close(ctx)
	case interface{ Close() error }:
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close speech-to-text client: %w", err)
		}
	case interface{ Close() }:
		c.Close()
	}

	return nil
}

func (s *speechToText) invokeSpeechStarted() {
	s.emitEvent(events.NewUserSpeechStarted())
	s.onSpeechStarted()
}

func (s *speechToText) invokeSpeechEnded() {
	s.emitEvent(events.NewUserSpeechEnded())
}

func (s *speechToText) invokeInterimTranscription(transcript string) {
	s.emitEvent(events.NewUserTranscriptInterimUpdated(transcript))
}

func (s *speechToText) invokeTranscription(transcript string) {
	s.emitEvent(events.NewUserTranscriptInterimUpdated(""))
	s.onFinalTranscript(transcript)
}

func (s *speechToText) invokeConnectionState(state speechtotext.ConnectionState) {
	logger.Info("transcription connection state changed", "state", string(state))
}

func (s *speechToText) invokeError(err error) {
	s.onFatal(newFault(FaultConnection, SourceTranscription, err))
}
