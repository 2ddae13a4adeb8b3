// Package openai implements the GA realtime wire dialect.
package openai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dbroz/warble-core/core/events"
	"github.com/dbroz/warble-core/core/providers"
	"github.com/jinzhu/copier"
	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	defaultModel = "gpt-realtime"
	realtimeURL  = "wss://api.openai.com/v1/realtime"
)

type Adapter struct {
	model string
}

type Option func(*Adapter)

func WithModel(model string) Option {
	return func(a *Adapter) { a.model = model }
}

func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{model: defaultModel}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Kind() providers.Kind { return providers.KindOpenAI }

func (a *Adapter) ConnectRequest(token string) (string, http.Header) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return fmt.Sprintf("%s?model=%s", realtimeURL, a.model), header
}

func (a *Adapter) BuildConfigure(config providers.SessionConfig) ([]byte, error) {
	var tools []toolConfig
	copier.Copy(&tools, config.Tools)
	for i, definition := range config.Tools {
		tools[i].Type = "function"
		tools[i].Parameters = definition.SchemaOrPlaceholder()
	}

	toolChoice := ""
	if len(tools) > 0 {
		toolChoice = "auto"
	}

	return marshalEvent(clientEvent{
		EventID: newEventID(),
		Type:    "session.update",
		Session: &sessionPayload{
			Type:             "realtime",
			OutputModalities: []string{"audio"},
			Instructions:     config.Instructions,
			Audio: audioConfig{
				Input: audioInputConfig{
					Format: pcmFormat{Type: "audio/pcm", Rate: config.SampleRate},
					TurnDetection: &turnDetection{
						Type:              "server_vad",
						CreateResponse:    true,
						InterruptResponse: true,
					},
				},
				Output: audioOutputConfig{
					Format: pcmFormat{Type: "audio/pcm", Rate: config.SampleRate},
					Voice:  config.Voice,
				},
			},
			Tools:      tools,
			ToolChoice: toolChoice,
		},
	})
}

func (a *Adapter) BuildAudioAppend(audio []byte) ([]byte, error) {
	return marshalEvent(clientEvent{
		EventID: newEventID(),
		Type:    "input_audio_buffer.append",
		Audio:   base64.StdEncoding.EncodeToString(audio),
	})
}

func (a *Adapter) BuildCommit() ([]byte, error) {
	return marshalEvent(clientEvent{EventID: newEventID(), Type: "input_audio_buffer.commit"})
}

func (a *Adapter) BuildCreateResponse() ([]byte, error) {
	return marshalEvent(clientEvent{EventID: newEventID(), Type: "response.create"})
}

func (a *Adapter) BuildTruncate(itemID string, audioEndMS int64) ([]byte, error) {
	contentIndex := 0
	return marshalEvent(clientEvent{
		EventID:      newEventID(),
		Type:         "conversation.item.truncate",
		ItemID:       itemID,
		ContentIndex: &contentIndex,
		AudioEnd:     &audioEndMS,
	})
}

func (a *Adapter) BuildToolOutput(callID, output string, success bool, previousItemID string) ([]byte, error) {
	if !success {
		wrapped, err := json.Marshal(map[string]string{"error": output})
		if err != nil {
			return nil, fmt.Errorf("failed to wrap tool error output: %w", err)
		}
		output = string(wrapped)
	}

	return marshalEvent(clientEvent{
		EventID:        newEventID(),
		Type:           "conversation.item.create",
		PreviousItemID: previousItemID,
		Item: &conversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	})
}

// ParseInbound maps a raw inbound frame into an abstract event. Messages
// this dialect does not model, and frames that fail to decode, come back as
// events.Other so the receive loop never crashes on them.
func (a *Adapter) ParseInbound(raw []byte) events.Event {
	var event serverEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return events.NewOther("unparseable")
	}

	switch event.Type {
	case "session.created":
		sessionID := ""
		if event.Session != nil {
			sessionID = event.Session.ID
		}
		return events.NewSessionCreated(sessionID)

	case "session.updated":
		return events.NewSessionConfigured()

	case "input_audio_buffer.speech_started":
		return events.NewUserSpeechStarted()

	case "input_audio_buffer.speech_stopped":
		return events.NewUserSpeechStopped()

	case "response.created":
		return events.NewAssistantSpeaking("")

	case "response.output_item.added":
		if event.Item != nil && event.Item.Type == "message" {
			return events.NewAssistantSpeaking(event.Item.ID)
		}
		return events.NewOther(event.Type)

	case "response.output_audio.delta":
		audio, err := base64.StdEncoding.DecodeString(event.Delta)
		if err != nil {
			return events.NewOther("unparseable")
		}
		return events.NewAudioDelta(event.ItemID, audio)

	case "response.output_audio_transcript.delta":
		return events.NewTranscriptDelta(event.ItemID, "assistant", event.Delta)

	case "conversation.item.input_audio_transcription.delta":
		return events.NewTranscriptDelta(event.ItemID, "user", event.Delta)

	case "response.output_item.done":
		if call, ok := toolCallFromItem(event.Item); ok {
			return events.NewToolCallRequested(call)
		}
		return events.NewOther(event.Type)

	case "response.done":
		itemID := ""
		if event.Response != nil {
			for _, item := range event.Response.Output {
				if item.Type == "message" {
					itemID = item.ID
				}
			}
		}
		return events.NewResponseDone(itemID)

	case "error":
		if event.Error != nil {
			return events.NewProviderError(event.Error.Code, event.Error.Message)
		}
		return events.NewProviderError("", "unknown provider error")
	}

	return events.NewOther(event.Type)
}

func toolCallFromItem(item *conversationItem) (events.ToolCall, bool) {
	if item == nil || item.Type != "function_call" || item.Status != "completed" {
		return events.ToolCall{}, false
	}

	return events.ToolCall{
		CallID:    item.CallID,
		Name:      item.Name,
		Arguments: item.Arguments,
		ItemID:    item.ID,
	}, true
}

func marshalEvent(event clientEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}
	return data, nil
}

func newEventID() string {
	id, err := nanoid.New()
	if err != nil {
		return "evt"
	}
	return id
}
