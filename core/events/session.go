package events

// KindSessionFault identifies an escalated collaborator failure.
const KindSessionFault Kind = "session.fault"

// SessionFault carries an escalated collaborator failure. Code is the error
// taxonomy name put on the wire, Message is a client-safe description and
// Source names the collaborator the failure originated from.
type SessionFault struct {
	Base
	Code    string
	Message string
	Source  string
}

// NewSessionFault creates a session fault event.
func NewSessionFault(code, message, source string) SessionFault {
	return SessionFault{Base: NewBase(KindSessionFault), Code: code, Message: message, Source: source}
}
