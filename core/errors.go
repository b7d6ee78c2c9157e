package orchestration

import (
	"errors"
	"fmt"

	"github.com/volleyhq/volley-core/core/events"
)

// FaultKind classifies escalated collaborator failures. The kind name is what
// ends up in the error field of the client-facing error message.
type FaultKind string

const (
	// FaultConnection means a bridge to a collaborator could not connect or
	// the connection dropped.
	FaultConnection FaultKind = "ConnectionError"
	// FaultStream means a collaborator stream ended abnormally mid-turn.
	FaultStream FaultKind = "StreamError"
	// FaultProtocol means the client sent a malformed message.
	FaultProtocol FaultKind = "ProtocolError"
	// FaultCancellationRace means an event arrived for a turn that was
	// already superseded. Never surfaced to the client.
	FaultCancellationRace FaultKind = "CancellationRace"
)

const (
	// SourceTranscription marks faults originating at the transcription bridge.
	SourceTranscription = "transcription"
	// SourceAgent marks faults originating at the agent stream client.
	SourceAgent = "agent"
	// SourceSynthesis marks faults originating at the synthesis bridge.
	SourceSynthesis = "synthesis"
	// SourceClient marks faults originating at the client connection.
	SourceClient = "client"
)

// Fault is an escalated failure attributed to a collaborator.
type Fault struct {
	Kind   FaultKind
	Source string
	Err    error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s (%s)", f.Kind, f.Source)
	}
	return fmt.Sprintf("%s (%s): %v", f.Kind, f.Source, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

func newFault(kind FaultKind, source string, err error) *Fault {
	return &Fault{Kind: kind, Source: source, Err: err}
}

// faultFrom attributes an arbitrary collaborator error to a source,
// preserving an existing Fault classification if there is one.
func faultFrom(source string, err error) *Fault {
	var fault *Fault
	if errors.As(err, &fault) {
		return fault
	}
	return newFault(FaultStream, source, err)
}

// faultEvent converts a fault into its outbound session event. The wrapped
// error text stays server-side; the client gets a stable description.
func faultEvent(f *Fault) events.SessionFault {
	message := fmt.Sprintf("%s failure", f.Source)
	switch f.Kind {
	case FaultConnection:
		message = fmt.Sprintf("failed to reach the %s service", f.Source)
	case FaultStream:
		message = fmt.Sprintf("the %s stream ended unexpectedly", f.Source)
	case FaultProtocol:
		message = "malformed client message"
	}
	return events.NewSessionFault(string(f.Kind), message, f.Source)
}
