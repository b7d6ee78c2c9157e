package orchestration

import "testing"

func TestInterruptGateFiresOncePerTurn(t *testing.T) {
	gate := newInterruptGate(true)
	gate.Arm(1)

	if !gate.Observe(StateSpeaking, 1) {
		t.Fatalf("expected the first observation to fire")
	}
	if gate.Observe(StateSpeaking, 1) {
		t.Fatalf("expected repeat observations of the same turn to be ignored")
	}

	gate.Arm(2)
	if !gate.Observe(StateThinking, 2) {
		t.Fatalf("expected the gate to fire again after rearming")
	}
}

func TestInterruptGateIgnoresMismatchedTurn(t *testing.T) {
	gate := newInterruptGate(true)
	gate.Arm(2)

	if gate.Observe(StateSpeaking, 1) {
		t.Fatalf("expected observations of a superseded turn to be ignored")
	}
	if !gate.Observe(StateSpeaking, 2) {
		t.Fatalf("expected observations of the armed turn to fire")
	}
}

func TestInterruptGateOnlyFiresWhileTurnIsActive(t *testing.T) {
	gate := newInterruptGate(true)
	gate.Arm(1)

	if gate.Observe(StateListening, 1) {
		t.Fatalf("expected no interruption while listening")
	}
	if gate.Observe(StateInterrupted, 1) {
		t.Fatalf("expected no interruption while already interrupted")
	}
	if !gate.Observe(StateThinking, 1) {
		t.Fatalf("expected an interruption while thinking")
	}
}

func TestDisabledInterruptGateStillHonorsExplicitRequests(t *testing.T) {
	gate := newInterruptGate(false)
	gate.Arm(1)

	if gate.Observe(StateSpeaking, 1) {
		t.Fatalf("expected detected speech to be ignored while disabled")
	}
	if !gate.Force(StateSpeaking, 1) {
		t.Fatalf("expected an explicit request to fire while disabled")
	}
	if gate.Force(StateSpeaking, 1) {
		t.Fatalf("expected repeat explicit requests to be ignored")
	}
}
