package openairealtime

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/volleyhq/volley-core/core/speechtotext"
)

const (
	defaultEndpoint = "wss://api.openai.com/v1/realtime?intent=transcription"
	defaultModel    = "gpt-4o-transcribe"

	defaultVADThreshold    = 0.5
	defaultPrefixPadding   = 300 * time.Millisecond
	defaultSilenceDuration = 300 * time.Millisecond
)

// TranscriptionClient streams raw audio to the realtime transcription API
// over a websocket and surfaces transcripts through callbacks. Utterance
// segmentation is delegated to the service's server-side VAD.
type TranscriptionClient struct {
	apiKey   string
	endpoint string
	azure    bool

	model        string
	serverPrompt string

	vadThreshold    float64
	prefixPadding   time.Duration
	silenceDuration time.Duration

	conn   *websocket.Conn
	connMu sync.Mutex

	state         speechtotext.ConnectionState
	stateMu       sync.Mutex
	stateCallback func(state speechtotext.ConnectionState)
}

func NewTranscriptionClient(apiKey string, opts ...Option) *TranscriptionClient {
	client := &TranscriptionClient{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		model:    defaultModel,

		vadThreshold:    defaultVADThreshold,
		prefixPadding:   defaultPrefixPadding,
		silenceDuration: defaultSilenceDuration,

		state: speechtotext.StateDisconnected,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type Option func(*TranscriptionClient)

// WithModel overrides the default transcription model.
func WithModel(model string) Option {
	return func(c *TranscriptionClient) {
		c.model = model
	}
}

// WithServerPrompt sets the prompt the service uses to bias transcription.
func WithServerPrompt(prompt string) Option {
	return func(c *TranscriptionClient) {
		c.serverPrompt = prompt
	}
}

// WithVADThreshold tunes the server VAD activation threshold (0.0 to 1.0).
func WithVADThreshold(threshold float64) Option {
	return func(c *TranscriptionClient) {
		c.vadThreshold = threshold
	}
}

// WithPrefixPadding sets how much audio before detected speech is included
// in the utterance.
func WithPrefixPadding(duration time.Duration) Option {
	return func(c *TranscriptionClient) {
		c.prefixPadding = duration
	}
}

// WithSilenceDuration sets how long the user must stay silent before the
// server VAD ends the utterance.
func WithSilenceDuration(duration time.Duration) Option {
	return func(c *TranscriptionClient) {
		c.silenceDuration = duration
	}
}

// WithAzureEndpoint points the client at an Azure deployment, which expects
// the api-key header instead of a bearer token.
func WithAzureEndpoint(endpoint string) Option {
	return func(c *TranscriptionClient) {
		c.endpoint = endpoint
		c.azure = true
	}
}

// State reports the current connection state.
func (c *TranscriptionClient) State() speechtotext.ConnectionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *TranscriptionClient) setState(state speechtotext.ConnectionState) {
	c.stateMu.Lock()
	if c.state == state {
		c.stateMu.Unlock()
		return
	}
	c.state = state
	callback := c.stateCallback
	c.stateMu.Unlock()

	if callback != nil {
		callback(state)
	}
}

// Close ends the transcription session and closes the websocket.
func (c *TranscriptionClient) Close() error {
	c.setState(speechtotext.StateClosed)

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return nil
	}

	if err := c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		log.Println("Failed to send close message to transcription service", "error", err)
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
