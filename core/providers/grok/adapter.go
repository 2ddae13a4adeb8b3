// Package grok implements the flat realtime wire dialect.
package grok

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
	defaultModel = "grok-realtime"
	realtimeURL  = "wss://api.x.ai/v1/realtime"
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

func (a *Adapter) Kind() providers.Kind { return providers.KindGrok }

func (a *Adapter) ConnectRequest(token string) (string, http.Header) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return fmt.Sprintf("%s?model=%s", realtimeURL, a.model), header
}

func (a *Adapter) BuildConfigure(config providers.SessionConfig) ([]byte, error) {
	tools := make([]toolConfig, 0, len(config.Tools))
	for _, definition := range config.Tools {
		var function toolFunction
		copier.Copy(&function, definition)
		function.Parameters = definition.SchemaOrPlaceholder()
		tools = append(tools, toolConfig{Type: "function", Function: function})
	}

	toolChoice := ""
	if len(tools) > 0 {
		toolChoice = "auto"
	}

	return marshalEvent(clientEvent{
		EventID: newEventID(),
		Type:    "session.update",
		Session: &sessionPayload{
			Modalities:        []string{"text", "audio"},
			Instructions:      config.Instructions,
			Voice:             config.Voice,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
			SampleRate:        config.SampleRate,
			TurnDetection:     &turnDetection{Type: "server_vad", SilenceDurationMS: 500},
			Tools:             tools,
			ToolChoice:        toolChoice,
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
	return marshalEvent(clientEvent{
		EventID:  newEventID(),
		Type:     "conversation.item.truncate",
		ItemID:   itemID,
		AudioEnd: &audioEndMS,
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
		EventID: newEventID(),
		Type:    "conversation.item.create",
		Item: &conversationItem{
			Type:           "function_call_output",
			CallID:         callID,
			Output:         output,
			PreviousItemID: previousItemID,
		},
	})
}

// ParseInbound maps a raw inbound frame into an abstract event. Unknown and
// unparseable messages come back as events.Other.
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

	case "conversation.item.created":
		if event.Item != nil && event.Item.Type == "message" && event.Item.Role == "assistant" {
			return events.NewAssistantSpeaking(event.Item.ID)
		}
		return events.NewOther(event.Type)

	case "response.audio.delta":
		audio, err := base64.StdEncoding.DecodeString(event.Delta)
		if err != nil {
			return events.NewOther("unparseable")
		}
		return events.NewAudioDelta(event.ItemID, audio)

	case "response.audio_transcript.delta":
		return events.NewTranscriptDelta(event.ItemID, "assistant", event.Delta)

	case "conversation.item.input_audio_transcription.delta":
		return events.NewTranscriptDelta(event.ItemID, "user", event.Delta)

	case "response.function_call_arguments.done":
		return events.NewToolCallRequested(events.ToolCall{
			CallID:    event.CallID,
			Name:      event.Name,
			Arguments: event.Arguments,
			ItemID:    event.ItemID,
		})

	case "response.done":
		return events.NewResponseDone(event.ItemID)

	case "error":
		if event.Error != nil {
			return events.NewProviderError(event.Error.Code, event.Error.Message)
		}
		return events.NewProviderError("", "unknown provider error")
	}

	return events.NewOther(event.Type)
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
