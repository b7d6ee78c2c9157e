package orchestration

// interruptGate decides whether a barge-in signal cancels the active turn.
// The gate is re-armed when a turn starts and fires at most once per armed
// turn, so overlapping speech-start signals and explicit interrupt requests
// cannot cancel the same turn twice or leak into the next one. Only the
// runtime loop touches it.
type interruptGate struct {
	enabled   bool
	armedTurn int64
	fired     bool
}

func newInterruptGate(enabled bool) *interruptGate {
	return &interruptGate{enabled: enabled}
}

// Arm prepares the gate for a new turn.
func (g *interruptGate) Arm(turnID int64) {
	g.armedTurn = turnID
	g.fired = false
}

// Observe reports whether detected user speech should cancel the given turn.
// A disabled gate never fires.
func (g *interruptGate) Observe(state SessionState, turnID int64) bool {
	if !g.enabled {
		return false
	}
	return g.fire(state, turnID)
}

// Force reports whether an explicit interrupt request should cancel the
// given turn. Explicit requests fire even when speech-driven interruption is
// disabled.
func (g *interruptGate) Force(state SessionState, turnID int64) bool {
	return g.fire(state, turnID)
}

func (g *interruptGate) fire(state SessionState, turnID int64) bool {
	if g.fired || turnID != g.armedTurn {
		return false
	}
	if state != StateThinking && state != StateSpeaking {
		return false
	}

	g.fired = true
	return true
}
