package openairealtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/volleyhq/volley-core/core/audio"
	"github.com/volleyhq/volley-core/core/speechtotext"
)

const connectAttempts = 5

func (c *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	options := &speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	if options.EncodingInfo.Format != audio.EncodingLinear16 {
		return fmt.Errorf("unsupported encoding %q: the realtime transcription API only accepts 16-bit PCM", options.EncodingInfo.Format.Name())
	}

	c.stateMu.Lock()
	c.stateCallback = options.ConnectionStateCallback
	c.stateMu.Unlock()

	conn, err := c.establishSession(ctx)
	if err != nil {
		return err
	}

	go c.readAndProcessMessages(ctx, conn, *options)

	return nil
}

// establishSession dials the service and configures the transcription
// session on the fresh connection. Used for the initial connection and for
// in-session reconnects.
func (c *TranscriptionClient) establishSession(ctx context.Context) (*websocket.Conn, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		c.setState(speechtotext.StateDisconnected)
		return nil, fmt.Errorf("failed to connect to transcription service: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.setState(speechtotext.StateConnected)

	if err := c.sendSessionConfig(); err != nil {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		conn.Close()
		c.setState(speechtotext.StateDisconnected)
		return nil, fmt.Errorf("failed to configure transcription session: %w", err)
	}

	return conn, nil
}

func (c *TranscriptionClient) connect(ctx context.Context) (*websocket.Conn, error) {
	c.setState(speechtotext.StateConnecting)

	header := http.Header{}
	if c.azure {
		header.Set("api-key", c.apiKey)
	} else {
		header.Set("Authorization", "Bearer "+c.apiKey)
		header.Set("OpenAI-Beta", "realtime=v1")
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.Multiplier = 2
	policy.MaxInterval = 10 * time.Second
	policy.RandomizationFactor = 0

	attempts := 0
	return backoff.RetryWithData(func() (*websocket.Conn, error) {
		attempts++
		if attempts > 1 {
			c.setState(speechtotext.StateReconnecting)
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, header)
		if err != nil {
			return nil, fmt.Errorf("failed to open socket connection to transcription service: %w", err)
		}
		return conn, nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, connectAttempts-1), ctx))
}

func (c *TranscriptionClient) sendSessionConfig() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("transcription websocket is not connected")
	}

	return c.conn.WriteJSON(sessionConfig{
		Type: messageTypeSessionUpdate,
		Session: session{
			InputAudioFormat: "pcm16",
			InputAudioTranscription: inputAudioTranscription{
				Model:  c.model,
				Prompt: c.serverPrompt,
			},
			TurnDetection: turnDetection{
				Type:              "server_vad",
				Threshold:         c.vadThreshold,
				PrefixPaddingMs:   int(c.prefixPadding.Milliseconds()),
				SilenceDurationMs: int(c.silenceDuration.Milliseconds()),
			},
		},
	})
}

func (c *TranscriptionClient) SendAudio(audio []byte) error {
	if len(audio) == 0 {
		return nil
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("transcription websocket is not connected")
	}

	if err := c.conn.WriteJSON(audioAppend{
		Type:  messageTypeAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(audio),
	}); err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

// ClearAudioBuffer drops audio the service has buffered but not yet
// transcribed.
func (c *TranscriptionClient) ClearAudioBuffer() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("transcription websocket is not connected")
	}

	if err := c.conn.WriteJSON(bufferClear{Type: messageTypeBufferClear}); err != nil {
		return fmt.Errorf("failed to clear audio buffer: %w", err)
	}
	return nil
}

// readAndProcessMessages handles events inline, on a single goroutine, so
// callbacks fire in the order the service emitted them. A connection lost
// mid-session is re-established with the bounded dial backoff; only a
// connection that never produced a message, or exhausted reconnect
// attempts, escalates through the error callback.
func (c *TranscriptionClient) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, options speechtotext.TranscriptionOptions) {
	var interim strings.Builder
	progressed := false
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.connMu.Lock()
			c.conn = nil
			c.connMu.Unlock()
			conn.Close()

			if c.State() == speechtotext.StateClosed ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}

			c.setState(speechtotext.StateDisconnected)
			if !progressed {
				if options.ErrorCallback != nil {
					options.ErrorCallback(fmt.Errorf("transcription stream closed unexpectedly: %w", err))
				}
				return
			}

			fresh, reconnectErr := c.establishSession(ctx)
			if reconnectErr != nil {
				if options.ErrorCallback != nil {
					options.ErrorCallback(fmt.Errorf("failed to reconnect to transcription service: %w", reconnectErr))
				}
				return
			}

			conn = fresh
			interim.Reset()
			progressed = false
			continue
		}

		progressed = true
		c.processMessage(msg, options, &interim)
	}
}

func (c *TranscriptionClient) processMessage(msg []byte, options speechtotext.TranscriptionOptions, interim *strings.Builder) {
	var event serverEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		log.Println("Failed to unmarshal transcription message", "error", err)
		return
	}

	switch event.Type {
	case eventSpeechStarted:
		if options.SpeechStartedCallback != nil {
			options.SpeechStartedCallback()
		}

	case eventSpeechStopped:
		if options.SpeechEndedCallback != nil {
			options.SpeechEndedCallback()
		}

	case eventTranscriptDelta:
		if event.Delta == "" {
			return
		}
		interim.WriteString(event.Delta)
		if options.PartialInterimTranscriptionCallback != nil {
			options.PartialInterimTranscriptionCallback(event.Delta)
		}
		if options.InterimTranscriptionCallback != nil {
			options.InterimTranscriptionCallback(strings.TrimSpace(interim.String()))
		}

	case eventTranscriptCompleted:
		interim.Reset()
		transcript := strings.TrimSpace(event.Transcript)
		if transcript == "" {
			return
		}
		if options.PartialTranscriptionCallback != nil {
			options.PartialTranscriptionCallback(transcript)
		}
		if options.TranscriptionCallback != nil {
			options.TranscriptionCallback(transcript)
		}

	case eventError:
		message := "unknown error"
		if event.Error != nil && event.Error.Message != "" {
			message = event.Error.Message
		}
		if options.ErrorCallback != nil {
			options.ErrorCallback(fmt.Errorf("transcription service error: %s", message))
		}
	}
}
