package openai

import "encoding/json"

// Wire shapes for the GA realtime dialect. Audio formats, voice and turn
// detection live nested under session.audio; none of these names may appear
// outside this package.

type clientEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`

	Session  *sessionPayload `json:"session,omitempty"`
	Audio    string          `json:"audio,omitempty"`
	ItemID   string          `json:"item_id,omitempty"`
	AudioEnd *int64          `json:"audio_end_ms,omitempty"`

	ContentIndex   *int              `json:"content_index,omitempty"`
	PreviousItemID string            `json:"previous_item_id,omitempty"`
	Item           *conversationItem `json:"item,omitempty"`
}

type sessionPayload struct {
	Type             string       `json:"type"`
	OutputModalities []string     `json:"output_modalities"`
	Instructions     string       `json:"instructions,omitempty"`
	Audio            audioConfig  `json:"audio"`
	Tools            []toolConfig `json:"tools,omitempty"`
	ToolChoice       string       `json:"tool_choice,omitempty"`
}

type audioConfig struct {
	Input  audioInputConfig  `json:"input"`
	Output audioOutputConfig `json:"output"`
}

type audioInputConfig struct {
	Format        pcmFormat      `json:"format"`
	TurnDetection *turnDetection `json:"turn_detection,omitempty"`
}

type audioOutputConfig struct {
	Format pcmFormat `json:"format"`
	Voice  string    `json:"voice,omitempty"`
}

type pcmFormat struct {
	Type string `json:"type"`
	Rate int    `json:"rate"`
}

type turnDetection struct {
	Type              string `json:"type"`
	CreateResponse    bool   `json:"create_response"`
	InterruptResponse bool   `json:"interrupt_response"`
}

type toolConfig struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type conversationItem struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	Status    string `json:"status,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

type serverEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`

	Session *struct {
		ID string `json:"id"`
	} `json:"session,omitempty"`

	Error *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`

	ItemID     string            `json:"item_id,omitempty"`
	ResponseID string            `json:"response_id,omitempty"`
	Delta      string            `json:"delta,omitempty"`
	Item       *conversationItem `json:"item,omitempty"`

	Response *struct {
		ID     string             `json:"id"`
		Status string             `json:"status"`
		Output []conversationItem `json:"output"`
	} `json:"response,omitempty"`
}
