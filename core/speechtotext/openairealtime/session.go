package openairealtime

// Messages exchanged with the realtime transcription API. The session is
// configured once after connecting; afterwards the client only appends to and
// clears the input audio buffer while the server pushes transcription events.

type sessionConfig struct {
	Type    string  `json:"type"`
	Session session `json:"session"`
}

type session struct {
	InputAudioFormat        string                  `json:"input_audio_format"`
	InputAudioTranscription inputAudioTranscription `json:"input_audio_transcription"`
	TurnDetection           turnDetection           `json:"turn_detection"`
}

type inputAudioTranscription struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type bufferClear struct {
	Type string `json:"type"`
}

type serverEvent struct {
	Type       string       `json:"type"`
	EventID    string       `json:"event_id,omitempty"`
	ItemID     string       `json:"item_id,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Delta      string       `json:"delta,omitempty"`
	Error      *serverError `json:"error,omitempty"`
}

type serverError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	messageTypeSessionUpdate = "transcription_session.update"
	messageTypeAudioAppend   = "input_audio_buffer.append"
	messageTypeBufferClear   = "input_audio_buffer.clear"

	eventSpeechStarted       = "input_audio_buffer.speech_started"
	eventSpeechStopped       = "input_audio_buffer.speech_stopped"
	eventTranscriptDelta     = "conversation.item.input_audio_transcription.delta"
	eventTranscriptCompleted = "conversation.item.input_audio_transcription.completed"
	eventError               = "error"
)
