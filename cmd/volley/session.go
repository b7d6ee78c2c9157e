package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	messageTypeAudioInput     = "audio_input"
	messageTypeInterrupt      = "interrupt"
	messageTypeUserTranscript = "user_transcript"
	messageTypeTextOutput     = "text_output"
	messageTypeAudioOutput    = "audio_output"
	messageTypeError          = "error"
)

// serverMessage is the union of everything the server sends. Which fields are
// set depends on Type: transcripts and audio carry Role and Content, errors
// carry Error and ErrorMessage, interruption notices carry only Type.
type serverMessage struct {
	Type         string `json:"type"`
	Role         string `json:"role,omitempty"`
	Content      string `json:"content,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type clientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// session is the client side of a voice session socket. A read goroutine
// feeds decoded server messages into Events; a write goroutine serializes
// outbound frames so the mic callback and the UI never write concurrently.
type session struct {
	conn *websocket.Conn

	inbox  chan serverMessage
	outbox chan []byte

	done      chan struct{}
	closeOnce sync.Once

	errMu   sync.Mutex
	readErr error
}

// audioBacklog bounds queued mic frames. The capture callback must never
// block, so frames beyond the backlog are dropped instead.
const audioBacklog = 64

func dialSession(url string) (*session, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	s := &session{
		conn:   conn,
		inbox:  make(chan serverMessage, audioBacklog),
		outbox: make(chan []byte, audioBacklog),
		done:   make(chan struct{}),
	}

	go s.readLoop()
	go s.writeLoop()

	return s, nil
}

// Events delivers server messages in arrival order. The channel closes when
// the socket does; Err reports why.
func (s *session) Events() <-chan serverMessage {
	return s.inbox
}

func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.readErr
}

// SendAudio queues one mic frame. It never blocks; under backpressure the
// frame is dropped, which the transcription side tolerates.
func (s *session) SendAudio(frame []byte) {
	payload, err := json.Marshal(clientMessage{
		Type:    messageTypeAudioInput,
		Content: base64.StdEncoding.EncodeToString(frame),
	})
	if err != nil {
		return
	}

	select {
	case s.outbox <- payload:
	case <-s.done:
	default:
	}
}

// SendInterrupt asks the server to cut the assistant off.
func (s *session) SendInterrupt() {
	payload, err := json.Marshal(clientMessage{Type: messageTypeInterrupt})
	if err != nil {
		return
	}

	select {
	case s.outbox <- payload:
	case <-s.done:
	}
}

func (s *session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = s.conn.Close()
	})
}

func (s *session) readLoop() {
	defer close(s.inbox)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.errMu.Lock()
				s.readErr = err
				s.errMu.Unlock()
			}
			return
		}

		var message serverMessage
		if err := json.Unmarshal(payload, &message); err != nil {
			continue
		}

		select {
		case s.inbox <- message:
		case <-s.done:
			return
		}
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case payload := <-s.outbox:
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
