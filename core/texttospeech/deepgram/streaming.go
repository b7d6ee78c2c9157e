package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/volleyhq/volley-core/core/audio"
	"github.com/volleyhq/volley-core/core/texttospeech"
)

const connectAttempts = 5

type streamingRequest struct {
	ws *websocket.Conn
	// mu guards websocket writes and the closed/cancelled flags.
	mu sync.Mutex

	// textBuffer holds one entry per mark segment. Only the head segment is
	// on the wire, the rest are held back until their flush confirmation.
	textBuffer   []string
	textBufferMu sync.Mutex

	options streamingRequestOptions

	textComplete bool
	cancelled    bool
	closed       bool

	report texttospeech.SpeechEndedReport
}

type streamingRequestOptions struct {
	texttospeech.TextToSpeechOptions
	Voice deepgramVoice
}

func (c *TextToSpeechClient) NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	req := &streamingRequest{
		options: streamingRequestOptions{
			TextToSpeechOptions: texttospeech.TextToSpeechOptions{
				SpeechAudioCallback: func([]byte) {},
				SpeechMarkCallback:  func(string) {},
				SpeechEndedCallback: func(texttospeech.SpeechEndedReport) {},
				ErrorCallback:       func(error) {},
				EncodingInfo:        c.options.EncodingInfo,
			},
			Voice: c.voice,
		},
	}

	for _, opt := range opts {
		opt(&req.options.TextToSpeechOptions)
	}

	var err error
	if req.ws, err = connectWebsocket(ctx, req.options.Voice, req.options.EncodingInfo); err != nil {
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	context.AfterFunc(ctx, func() { _ = req.Close() })

	go req.processIncomingMessages()

	return req, nil
}

func connectWebsocket(ctx context.Context, voice deepgramVoice, encodingInfo audio.EncodingInfo) (*websocket.Conn, error) {
	// TODO: Allow passing the API key in the constructor
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	urlValues := url.Values{}
	urlValues.Set("encoding", encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	urlValues.Set("model", string(voice))
	urlValues.Set("container", "none")

	endpoint := (&url.URL{
		Scheme: "wss",
		Host:   "api.deepgram.com", Path: "/v1/speak",
		RawQuery: urlValues.Encode(),
	}).String()
	header := http.Header{"Authorization": {"token " + apiKey}}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.Multiplier = 2
	policy.MaxInterval = 10 * time.Second
	policy.RandomizationFactor = 0

	return backoff.RetryWithData(func() (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
		if err != nil {
			return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
		}
		return conn, nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, connectAttempts-1), ctx))
}

func (r *streamingRequest) processIncomingMessages() {
	for {
		msgType, msg, err := r.ws.ReadMessage()
		if err != nil {
			if closed, _ := r.state(); !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				r.options.ErrorCallback(fmt.Errorf("speech socket closed unexpectedly: %w", err))
			}
			_ = r.Close()
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if closed, cancelled := r.state(); closed || cancelled {
				continue
			}
			if len(msg) > 0 {
				r.options.SpeechAudioCallback(msg)
			}
		case websocket.TextMessage:
			var parsedMsg struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				r.advanceMark()
			case "Warning":
				// Warnings are informational; the error callback is reserved
				// for a broken stream.
				logger.Warn("speech service warning", "description", parsedMsg.Description)
			}
		}
	}
}

// advanceMark handles a flush confirmation: the head segment has been fully
// generated, so its mark fires and the next held segment goes on the wire.
func (r *streamingRequest) advanceMark() {
	r.textBufferMu.Lock()
	defer r.textBufferMu.Unlock()

	if closed, cancelled := r.state(); closed || cancelled {
		return
	}

	if len(r.textBuffer) > 0 {
		r.options.SpeechMarkCallback(r.textBuffer[0])
		r.textBuffer = r.textBuffer[1:]
	}

	if r.textComplete && len(r.textBuffer) == 1 && r.textBuffer[0] == "" {
		r.textBuffer = nil
	}

	if len(r.textBuffer) == 0 {
		if r.textComplete {
			r.options.SpeechEndedCallback(r.report)
			_ = r.Close()
		}
		return
	}

	if r.textBuffer[0] != "" {
		if err := r.sendWebsocketMessage(speakMsg(r.textBuffer[0])); err != nil {
			r.options.ErrorCallback(fmt.Errorf("failed to send queued text: %w", err))
			return
		}
	}
	if len(r.textBuffer) > 1 || r.textComplete {
		if err := r.sendWebsocketMessage(flushMsg); err != nil {
			r.options.ErrorCallback(fmt.Errorf("failed to flush queued text: %w", err))
		}
	}
}

func (r *streamingRequest) SendText(text string) error {
	r.textBufferMu.Lock()
	defer r.textBufferMu.Unlock()

	if closed, cancelled := r.state(); cancelled {
		return fmt.Errorf("streaming request cancelled")
	} else if closed {
		return fmt.Errorf("streaming request closed")
	} else if r.textComplete {
		return fmt.Errorf("streaming request text already completed")
	}

	if len(r.textBuffer) == 0 {
		r.textBuffer = append(r.textBuffer, "")
	}

	if len(r.textBuffer) == 1 {
		if err := r.sendWebsocketMessage(speakMsg(text)); err != nil {
			return fmt.Errorf("failed to send websocket speak message: %w", err)
		}
	}
	r.textBuffer[len(r.textBuffer)-1] += text
	return nil
}

func (r *streamingRequest) Mark() error {
	r.textBufferMu.Lock()
	defer r.textBufferMu.Unlock()

	if closed, cancelled := r.state(); cancelled {
		return fmt.Errorf("streaming request cancelled")
	} else if closed {
		return fmt.Errorf("streaming request closed")
	} else if r.textComplete {
		return fmt.Errorf("streaming request text already completed")
	}

	if len(r.textBuffer) == 1 {
		if err := r.sendWebsocketMessage(flushMsg); err != nil {
			return fmt.Errorf("failed to send websocket flush message: %w", err)
		}
	}

	// NOTE: Deepgram sometimes drops text that arrives right after a flush
	// unless there is some kind of break. Opening a fresh segment holds that
	// text back until the flush confirmation arrives.
	r.textBuffer = append(r.textBuffer, "")

	return nil
}

func (r *streamingRequest) EndOfText() error {
	r.textBufferMu.Lock()
	defer r.textBufferMu.Unlock()

	if closed, cancelled := r.state(); cancelled {
		return fmt.Errorf("streaming request cancelled")
	} else if closed {
		return fmt.Errorf("streaming request closed")
	}
	if r.textComplete {
		return nil
	}
	r.textComplete = true

	if len(r.textBuffer) == 1 && r.textBuffer[0] == "" {
		r.textBuffer = nil
	}
	if len(r.textBuffer) == 0 {
		r.options.SpeechEndedCallback(r.report)
		return r.Close()
	}
	if len(r.textBuffer) == 1 {
		// The tail was streamed but never marked, flush it so the final
		// confirmation can come back.
		if err := r.sendWebsocketMessage(flushMsg); err != nil {
			return fmt.Errorf("failed to send websocket flush message: %w", err)
		}
	}

	return nil
}

func (r *streamingRequest) Cancel() error {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return nil
	}
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("streaming request closed")
	}
	r.cancelled = true
	writeErr := r.ws.WriteJSON(clearMsg)
	r.mu.Unlock()

	if writeErr != nil {
		_ = r.Close()
		return fmt.Errorf("failed to send websocket clear message: %w", writeErr)
	}
	return r.Close()
}

func (r *streamingRequest) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	if r.ws == nil {
		return nil
	}

	writeErr := r.ws.WriteJSON(closeMsg)
	if err := r.ws.Close(); err != nil {
		return fmt.Errorf("failed to close websocket: %w", errors.Join(writeErr, err))
	}
	return nil
}

func (r *streamingRequest) state() (closed, cancelled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed, r.cancelled
}

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

func speakMsg(text string) speakMessage {
	return speakMessage{Type: "Speak", Text: text}
}

func (r *streamingRequest) sendWebsocketMessage(msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.ws == nil {
		return fmt.Errorf("websocket connection closed")
	}

	if err := r.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}
