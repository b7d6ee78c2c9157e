package events

const (
	// KindAssistantSpeechFrame identifies synthesized assistant speech audio.
	KindAssistantSpeechFrame Kind = "assistant_speech.frame"
	// KindAssistantSpeechFinal identifies speech generation completion.
	KindAssistantSpeechFinal Kind = "assistant_speech.final"
)

// AssistantSpeechFrame carries a synthesized assistant speech audio frame.
type AssistantSpeechFrame struct {
	TurnBase
	Audio []byte
}

// NewAssistantSpeechFrame creates an assistant speech audio frame event.
func NewAssistantSpeechFrame(turnID int64, audio []byte) AssistantSpeechFrame {
	return AssistantSpeechFrame{TurnBase: NewTurnBase(KindAssistantSpeechFrame, turnID), Audio: audio}
}

// AssistantSpeechFinal marks completion of speech generation. SpokenTranscript
// holds the text confirmed spoken by the synthesis service, which can trail
// the generated text when the turn was cut short.
type AssistantSpeechFinal struct {
	TurnBase
	SpokenTranscript string
}

// NewAssistantSpeechFinal creates an assistant speech final event.
func NewAssistantSpeechFinal(turnID int64, spokenTranscript string) AssistantSpeechFinal {
	return AssistantSpeechFinal{TurnBase: NewTurnBase(KindAssistantSpeechFinal, turnID), SpokenTranscript: spokenTranscript}
}
