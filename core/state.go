package voicesession

import "fmt"

// StateKind enumerates the session states. Exactly one is current at a
// time; transitions are owned by the session event loop.
type StateKind string

const (
	StateDisconnected StateKind = "disconnected"
	StateConnecting   StateKind = "connecting"
	StateConnected    StateKind = "connected"
	StateListening    StateKind = "listening"
	StateSpeaking     StateKind = "speaking"
	StateError        StateKind = "error"
)

// State is the tagged session state. ItemID is set only while Speaking and
// names the assistant conversation item currently producing audio; Message
// is set only for Error.
type State struct {
	Kind    StateKind
	ItemID  string
	Message string
}

func Disconnected() State            { return State{Kind: StateDisconnected} }
func Connecting() State              { return State{Kind: StateConnecting} }
func Connected() State               { return State{Kind: StateConnected} }
func Listening() State               { return State{Kind: StateListening} }
func Speaking(itemID string) State   { return State{Kind: StateSpeaking, ItemID: itemID} }
func ErrorState(message string) State { return State{Kind: StateError, Message: message} }

func (s State) String() string {
	switch s.Kind {
	case StateSpeaking:
		return fmt.Sprintf("speaking(%s)", s.ItemID)
	case StateError:
		return fmt.Sprintf("error(%s)", s.Message)
	}
	return string(s.Kind)
}

// IsTerminal reports whether the session can no longer process events.
func (s State) IsTerminal() bool {
	return s.Kind == StateDisconnected || s.Kind == StateError
}
