package relay

import (
	"encoding/base64"
	"encoding/json"

	"github.com/volleyhq/volley-core/core/events"
)

// Wire protocol spoken over the session socket. Clients send audio frames and
// interrupt requests; the server mirrors back transcripts, response text,
// synthesized audio, interruption notices and errors. Binary payloads travel
// base64 encoded inside JSON text frames.

const (
	messageTypeAudioInput     = "audio_input"
	messageTypeInterrupt      = "interrupt"
	messageTypeUserTranscript = "user_transcript"
	messageTypeTextOutput     = "text_output"
	messageTypeAudioOutput    = "audio_output"
	messageTypeError          = "error"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

// inboundMessage covers everything a client can send. Content is only set for
// audio input, where it holds the base64 encoded frame.
type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// contentMessage carries transcripts, response text and synthesized audio to
// the client.
type contentMessage struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// interruptMessage tells the client the assistant turn in progress was cut
// off and any buffered playback should stop.
type interruptMessage struct {
	Type string `json:"type"`
}

// errorMessage reports an escalated failure to the client.
type errorMessage struct {
	Type         string `json:"type"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

// encodeEvent translates a session event into its wire form. Events without a
// client-facing representation return false.
func encodeEvent(event events.Event) ([]byte, bool) {
	var message any
	switch e := event.(type) {
	case events.UserTranscriptFinal:
		message = contentMessage{Type: messageTypeUserTranscript, Role: roleUser, Content: e.Transcript}
	case events.AssistantResponseSegment:
		message = contentMessage{Type: messageTypeTextOutput, Role: roleAssistant, Content: e.Segment}
	case events.AssistantSpeechFrame:
		message = contentMessage{
			Type:    messageTypeAudioOutput,
			Role:    roleAssistant,
			Content: base64.StdEncoding.EncodeToString(e.Audio),
		}
	case events.TurnInterrupted:
		message = interruptMessage{Type: messageTypeInterrupt}
	case events.SessionFault:
		message = errorMessage{Type: messageTypeError, Error: e.Code, ErrorMessage: e.Message}
	default:
		return nil, false
	}

	payload, err := json.Marshal(message)
	if err != nil {
		logger.Error("failed to encode outbound message", "kind", string(event.Kind()), "error", err)
		return nil, false
	}

	return payload, true
}
