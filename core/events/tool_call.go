package events

const (
	// KindToolCallRequested identifies the model asking for a tool invocation.
	KindToolCallRequested Kind = "tool_call.requested"
	// KindToolCallStarted identifies tool call execution start.
	KindToolCallStarted Kind = "tool_call.started"
	// KindToolCallCompleted identifies successful tool call completion.
	KindToolCallCompleted Kind = "tool_call.completed"
	// KindToolCallFailed identifies tool call failure.
	KindToolCallFailed Kind = "tool_call.failed"
)

// ToolCall is a structured request from the model to invoke a named
// capability. CallID correlates the eventual output with the request; ItemID
// is the originating conversation item, kept for truncation correlation.
type ToolCall struct {
	CallID    string
	Name      string
	Arguments string
	ItemID    string
}

// ToolCallRequested carries a tool call parsed off the wire.
type ToolCallRequested struct {
	Base
	Call ToolCall
}

// NewToolCallRequested creates a tool call requested event.
func NewToolCallRequested(call ToolCall) ToolCallRequested {
	return ToolCallRequested{Base: NewBase(KindToolCallRequested), Call: call}
}

// ToolCallStarted marks start of tool execution.
type ToolCallStarted struct {
	Base
	CallID string
	Name   string
}

// NewToolCallStarted creates a tool call started event.
func NewToolCallStarted(callID, name string) ToolCallStarted {
	return ToolCallStarted{Base: NewBase(KindToolCallStarted), CallID: callID, Name: name}
}

// ToolCallCompleted marks successful tool execution.
type ToolCallCompleted struct {
	Base
	CallID   string
	Name     string
	Response string
}

// NewToolCallCompleted creates a tool call completed event.
func NewToolCallCompleted(callID, name, response string) ToolCallCompleted {
	return ToolCallCompleted{Base: NewBase(KindToolCallCompleted), CallID: callID, Name: name, Response: response}
}

// ToolCallFailed marks failed tool execution.
type ToolCallFailed struct {
	Base
	CallID string
	Name   string
	Error  string
}

// NewToolCallFailed creates a tool call failed event.
func NewToolCallFailed(callID, name, err string) ToolCallFailed {
	return ToolCallFailed{Base: NewBase(KindToolCallFailed), CallID: callID, Name: name, Error: err}
}
