// Package providers defines the wire-dialect abstraction for realtime voice
// backends. Exactly one adapter is selected when a session is constructed;
// nothing above this layer may branch on provider kind or see dialect field
// names.
package providers

import (
	"net/http"

	"github.com/dbroz/warble-core/core/events"
)

// Kind tags the supported wire dialects.
type Kind string

const (
	KindOpenAI Kind = "openai"
	KindGrok   Kind = "grok"
)

// SessionConfig is the abstract session configuration translated into a
// dialect's configure message once per session.
type SessionConfig struct {
	Instructions string
	Voice        string
	SampleRate   int
	Tools        []ToolDefinition
}

// Adapter translates between the engine's abstract model and one provider's
// wire schema. Build methods return complete JSON text frames ready for the
// transport; ParseInbound never fails — unrecognized or unparseable messages
// map to events.Other.
type Adapter interface {
	Kind() Kind

	// ConnectRequest returns the websocket URL and headers for this dialect,
	// authenticated with the session's ephemeral token.
	ConnectRequest(token string) (url string, header http.Header)

	BuildConfigure(config SessionConfig) ([]byte, error)
	BuildAudioAppend(audio []byte) ([]byte, error)
	BuildCommit() ([]byte, error)
	BuildCreateResponse() ([]byte, error)
	BuildTruncate(itemID string, audioEndMS int64) ([]byte, error)
	BuildToolOutput(callID, output string, success bool, previousItemID string) ([]byte, error)

	ParseInbound(raw []byte) events.Event
}
