package orchestration

// SessionState describes where a session currently sits in the
// listen-think-speak cycle. Transitions happen only on the runtime loop
// goroutine, so readers always observe a consistent value.
type SessionState int32

const (
	// StateListening means no turn is active and user audio is being
	// transcribed.
	StateListening SessionState = iota
	// StateThinking means a turn is active and the agent response is being
	// generated, but no speech has been synthesized yet.
	StateThinking
	// StateSpeaking means synthesized speech for the active turn is flowing
	// out.
	StateSpeaking
	// StateInterrupted means the active turn was cancelled and the session is
	// waiting for its pipeline to wind down.
	StateInterrupted
)

func (s SessionState) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StateInterrupted:
		return "interrupted"
	}
	return "unknown"
}
