package voicesession

import "sync/atomic"

// ConversationItemKind tags items the engine pushes to the UI feed.
type ConversationItemKind string

const (
	ItemSystemMessage ConversationItemKind = "system_message"
	ItemToolCall      ConversationItemKind = "tool_call"
	ItemTranscript    ConversationItemKind = "transcript"
)

// ConversationItem is one entry of the outward conversation feed. Seq is a
// monotonic per-session sequence id; consumers deduplicate and order on it
// instead of comparing content.
type ConversationItem struct {
	Seq  uint64
	Kind ConversationItemKind

	// Role is "user", "assistant" or "system" for transcript/system items.
	Role string
	Text string

	// Tool fields are set for ItemToolCall.
	ToolCallID string
	ToolName   string
	ToolStatus string // "pending_confirmation", "running", "completed", "failed", "denied"

	// ItemID links transcript items to the provider conversation item.
	ItemID string
}

// itemFeed stamps conversation items with monotonic sequence ids.
type itemFeed struct {
	seq  atomic.Uint64
	emit func(ConversationItem)
}

func newItemFeed(emit func(ConversationItem)) *itemFeed {
	if emit == nil {
		emit = func(ConversationItem) {}
	}
	return &itemFeed{emit: emit}
}

func (f *itemFeed) push(item ConversationItem) {
	item.Seq = f.seq.Add(1)
	f.emit(item)
}

func (f *itemFeed) system(text string) {
	f.push(ConversationItem{Kind: ItemSystemMessage, Role: "system", Text: text})
}

func (f *itemFeed) toolCall(callID, name, status string) {
	f.push(ConversationItem{Kind: ItemToolCall, ToolCallID: callID, ToolName: name, ToolStatus: status})
}

func (f *itemFeed) transcript(itemID, role, text string) {
	f.push(ConversationItem{Kind: ItemTranscript, Role: role, Text: text, ItemID: itemID})
}
