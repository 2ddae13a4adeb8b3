package grok

import "encoding/json"

// Wire shapes for the flat realtime dialect: voice, audio formats, sample
// rate and turn detection all sit directly on the session object, and tool
// functions are nested chat-completions style.

type clientEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`

	Session  *sessionPayload `json:"session,omitempty"`
	Audio    string          `json:"audio,omitempty"`
	ItemID   string          `json:"item_id,omitempty"`
	AudioEnd *int64          `json:"audio_end_ms,omitempty"`

	Item *conversationItem `json:"item,omitempty"`
}

type sessionPayload struct {
	Modalities        []string       `json:"modalities"`
	Instructions      string         `json:"instructions,omitempty"`
	Voice             string         `json:"voice,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format"`
	OutputAudioFormat string         `json:"output_audio_format"`
	SampleRate        int            `json:"sample_rate,omitempty"`
	TurnDetection     *turnDetection `json:"turn_detection,omitempty"`
	Tools             []toolConfig   `json:"tools,omitempty"`
	ToolChoice        string         `json:"tool_choice,omitempty"`
}

type turnDetection struct {
	Type              string `json:"type"`
	SilenceDurationMS int    `json:"silence_duration_ms,omitempty"`
}

type toolConfig struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type conversationItem struct {
	ID             string `json:"id,omitempty"`
	Type           string `json:"type"`
	Status         string `json:"status,omitempty"`
	Role           string `json:"role,omitempty"`
	CallID         string `json:"call_id,omitempty"`
	Name           string `json:"name,omitempty"`
	Arguments      string `json:"arguments,omitempty"`
	Output         string `json:"output,omitempty"`
	PreviousItemID string `json:"previous_item_id,omitempty"`
}

type serverEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`

	Session *struct {
		ID string `json:"id"`
	} `json:"session,omitempty"`

	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`

	ItemID    string            `json:"item_id,omitempty"`
	Delta     string            `json:"delta,omitempty"`
	CallID    string            `json:"call_id,omitempty"`
	Name      string            `json:"name,omitempty"`
	Arguments string            `json:"arguments,omitempty"`
	Item      *conversationItem `json:"item,omitempty"`
}
