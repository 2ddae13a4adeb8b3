package events

const (
	// KindUserSpeechStarted identifies server-side detection of the user starting to speak.
	KindUserSpeechStarted Kind = "user_speech.started"
	// KindUserSpeechStopped identifies server-side detection of the user going quiet.
	KindUserSpeechStopped Kind = "user_speech.stopped"
)

// UserSpeechStarted marks the provider's voice-activity detector firing.
// Arriving while the assistant is speaking, it triggers barge-in handling.
type UserSpeechStarted struct {
	Base
}

// NewUserSpeechStarted creates a user speech started event.
func NewUserSpeechStarted() UserSpeechStarted {
	return UserSpeechStarted{Base: NewBase(KindUserSpeechStarted)}
}

// UserSpeechStopped marks the end of a user utterance.
type UserSpeechStopped struct {
	Base
}

// NewUserSpeechStopped creates a user speech stopped event.
func NewUserSpeechStopped() UserSpeechStopped {
	return UserSpeechStopped{Base: NewBase(KindUserSpeechStopped)}
}
