package events

const (
	// KindSessionCreated identifies the provider acknowledging the connection.
	KindSessionCreated Kind = "session.created"
	// KindSessionConfigured identifies the provider accepting the configure message.
	KindSessionConfigured Kind = "session.configured"
)

// SessionCreated marks the provider-side session coming into existence.
type SessionCreated struct {
	Base
	SessionID string
}

// NewSessionCreated creates a session created event.
func NewSessionCreated(sessionID string) SessionCreated {
	return SessionCreated{Base: NewBase(KindSessionCreated), SessionID: sessionID}
}

// SessionConfigured marks acceptance of instructions, tools and audio formats.
type SessionConfigured struct {
	Base
}

// NewSessionConfigured creates a session configured event.
func NewSessionConfigured() SessionConfigured {
	return SessionConfigured{Base: NewBase(KindSessionConfigured)}
}
