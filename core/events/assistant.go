package events

const (
	// KindAssistantSpeaking identifies the start of an assistant audio response.
	KindAssistantSpeaking Kind = "assistant.speaking"
	// KindAudioDelta identifies a decoded chunk of assistant audio.
	KindAudioDelta Kind = "assistant.audio_delta"
	// KindTranscriptDelta identifies a streamed piece of assistant transcript.
	KindTranscriptDelta Kind = "assistant.transcript_delta"
	// KindResponseDone identifies the provider finishing the current response.
	KindResponseDone Kind = "assistant.response_done"
)

// AssistantSpeaking marks a new assistant response beginning to produce audio.
type AssistantSpeaking struct {
	Base
	ItemID string
}

// NewAssistantSpeaking creates an assistant speaking event.
func NewAssistantSpeaking(itemID string) AssistantSpeaking {
	return AssistantSpeaking{Base: NewBase(KindAssistantSpeaking), ItemID: itemID}
}

// AudioDelta carries decoded PCM bytes for playback. ItemID may be empty on
// the first delta of a response.
type AudioDelta struct {
	Base
	ItemID string
	Audio  []byte
}

// NewAudioDelta creates an audio delta event.
func NewAudioDelta(itemID string, audio []byte) AudioDelta {
	return AudioDelta{Base: NewBase(KindAudioDelta), ItemID: itemID, Audio: audio}
}

// TranscriptDelta carries streamed transcript text. Role is "assistant" for
// spoken-response captions and "user" for input transcription.
type TranscriptDelta struct {
	Base
	ItemID string
	Role   string
	Delta  string
}

// NewTranscriptDelta creates a transcript delta event.
func NewTranscriptDelta(itemID, role, delta string) TranscriptDelta {
	return TranscriptDelta{Base: NewBase(KindTranscriptDelta), ItemID: itemID, Role: role, Delta: delta}
}

// ResponseDone marks the provider finishing response generation.
type ResponseDone struct {
	Base
	ItemID string
}

// NewResponseDone creates a response done event.
func NewResponseDone(itemID string) ResponseDone {
	return ResponseDone{Base: NewBase(KindResponseDone), ItemID: itemID}
}
