package grok

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dbroz/warble-core/core/events"
	"github.com/dbroz/warble-core/core/providers"
)

func decodeFrame(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	return decoded
}

func dig(t *testing.T, frame map[string]any, path ...string) any {
	t.Helper()
	var value any = frame
	for _, key := range path {
		object, ok := value.(map[string]any)
		if !ok {
			t.Fatalf("path %v: %T is not an object", path, value)
		}
		value = object[key]
	}
	return value
}

func TestConnectRequest(t *testing.T) {
	adapter := NewAdapter()
	url, header := adapter.ConnectRequest("tok-456")

	if !strings.HasPrefix(url, "wss://api.x.ai/v1/realtime?model=") {
		t.Fatalf("unexpected connect url %q", url)
	}
	if got := header.Get("Authorization"); got != "Bearer tok-456" {
		t.Fatalf("expected bearer auth header, got %q", got)
	}
}

func TestBuildConfigureFlattensAudioSettings(t *testing.T) {
	adapter := NewAdapter()
	data, err := adapter.BuildConfigure(providers.SessionConfig{
		Instructions: "be brief",
		Voice:        "ara",
		SampleRate:   24000,
		Tools: []providers.ToolDefinition{
			{Name: "create_tweet", Description: "Post a tweet"},
		},
	})
	if err != nil {
		t.Fatalf("BuildConfigure failed: %v", err)
	}

	frame := decodeFrame(t, data)
	if frame["type"] != "session.update" {
		t.Fatalf("expected session.update, got %v", frame["type"])
	}

	// This dialect keeps voice, formats and sample rate flat on session.
	if got := dig(t, frame, "session", "voice"); got != "ara" {
		t.Fatalf("expected flat voice field, got %v", got)
	}
	if got := dig(t, frame, "session", "input_audio_format"); got != "pcm16" {
		t.Fatalf("expected flat input_audio_format, got %v", got)
	}
	if got := dig(t, frame, "session", "sample_rate"); got != float64(24000) {
		t.Fatalf("expected flat sample_rate, got %v", got)
	}
	if got := dig(t, frame, "session", "turn_detection", "type"); got != "server_vad" {
		t.Fatalf("expected server_vad turn detection, got %v", got)
	}

	// Tools nest the function chat-completions style.
	tools, ok := dig(t, frame, "session", "tools").([]any)
	if !ok || len(tools) != 1 {
		t.Fatalf("expected one tool, got %v", dig(t, frame, "session", "tools"))
	}
	tool := tools[0].(map[string]any)
	if tool["type"] != "function" {
		t.Fatalf("unexpected tool shape: %v", tool)
	}
	function, ok := tool["function"].(map[string]any)
	if !ok || function["name"] != "create_tweet" {
		t.Fatalf("expected nested function definition, got %v", tool)
	}
	if _, ok := function["parameters"].(map[string]any); !ok {
		t.Fatalf("expected a JSON-schema parameters object, got %v", function["parameters"])
	}
}

func TestAudioAppendRoundTrip(t *testing.T) {
	adapter := NewAdapter()
	pcm := []byte{0x00, 0x01, 0x7f, 0x80, 0xff, 0xfe, 0x12, 0x34}

	data, err := adapter.BuildAudioAppend(pcm)
	if err != nil {
		t.Fatalf("BuildAudioAppend failed: %v", err)
	}
	frame := decodeFrame(t, data)

	echo, err := json.Marshal(map[string]any{
		"type":    "response.audio.delta",
		"item_id": "item-1",
		"delta":   frame["audio"],
	})
	if err != nil {
		t.Fatalf("failed to build echo frame: %v", err)
	}

	delta, ok := adapter.ParseInbound(echo).(events.AudioDelta)
	if !ok {
		t.Fatalf("echo did not parse as AudioDelta")
	}
	if !bytes.Equal(delta.Audio, pcm) {
		t.Fatalf("audio round-trip is lossy: sent %x, got %x", pcm, delta.Audio)
	}
}

func TestBuildTruncateHasNoContentIndex(t *testing.T) {
	adapter := NewAdapter()
	data, err := adapter.BuildTruncate("item-7", 980)
	if err != nil {
		t.Fatalf("BuildTruncate failed: %v", err)
	}

	frame := decodeFrame(t, data)
	if frame["type"] != "conversation.item.truncate" {
		t.Fatalf("expected truncate frame, got %v", frame["type"])
	}
	if frame["item_id"] != "item-7" || frame["audio_end_ms"] != float64(980) {
		t.Fatalf("unexpected truncate fields: %v", frame)
	}
	if _, present := frame["content_index"]; present {
		t.Fatalf("this dialect does not take content_index")
	}
}

func TestBuildToolOutputNestsPreviousItemID(t *testing.T) {
	adapter := NewAdapter()
	data, err := adapter.BuildToolOutput("call-1", `{"id":"42"}`, true, "item-3")
	if err != nil {
		t.Fatalf("BuildToolOutput failed: %v", err)
	}

	frame := decodeFrame(t, data)
	if _, present := frame["previous_item_id"]; present {
		t.Fatalf("previous_item_id must live on the item in this dialect")
	}
	if got := dig(t, frame, "item", "previous_item_id"); got != "item-3" {
		t.Fatalf("expected previous_item_id on item, got %v", got)
	}
	if got := dig(t, frame, "item", "call_id"); got != "call-1" {
		t.Fatalf("expected call id on item, got %v", got)
	}
}

func TestParseInboundEventMapping(t *testing.T) {
	adapter := NewAdapter()

	cases := []struct {
		name string
		raw  string
		want events.Kind
	}{
		{"session created", `{"type":"session.created","session":{"id":"sess-1"}}`, events.KindSessionCreated},
		{"session updated", `{"type":"session.updated"}`, events.KindSessionConfigured},
		{"speech started", `{"type":"input_audio_buffer.speech_started"}`, events.KindUserSpeechStarted},
		{"speech stopped", `{"type":"input_audio_buffer.speech_stopped"}`, events.KindUserSpeechStopped},
		{"response created", `{"type":"response.created"}`, events.KindAssistantSpeaking},
		{"assistant item created", `{"type":"conversation.item.created","item":{"id":"item-1","type":"message","role":"assistant"}}`, events.KindAssistantSpeaking},
		{"user item created", `{"type":"conversation.item.created","item":{"id":"item-2","type":"message","role":"user"}}`, events.KindOther},
		{"assistant transcript", `{"type":"response.audio_transcript.delta","item_id":"item-1","delta":"hi"}`, events.KindTranscriptDelta},
		{"response done", `{"type":"response.done","item_id":"item-1"}`, events.KindResponseDone},
		{"provider error", `{"type":"error","error":{"code":"bad","message":"nope"}}`, events.KindProviderError},
		{"unknown type", `{"type":"rate_limits.updated"}`, events.KindOther},
		{"garbage", `not json`, events.KindOther},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := adapter.ParseInbound([]byte(c.raw)).Kind(); got != c.want {
				t.Fatalf("ParseInbound(%s) kind = %q, want %q", c.raw, got, c.want)
			}
		})
	}
}

func TestParseInboundToolCall(t *testing.T) {
	adapter := NewAdapter()
	raw := `{"type":"response.function_call_arguments.done","item_id":"item-9","call_id":"call-1","name":"create_tweet","arguments":"{\"text\":\"hi\"}"}`

	requested, ok := adapter.ParseInbound([]byte(raw)).(events.ToolCallRequested)
	if !ok {
		t.Fatalf("expected ToolCallRequested")
	}
	call := requested.Call
	if call.CallID != "call-1" || call.Name != "create_tweet" || call.ItemID != "item-9" {
		t.Fatalf("unexpected tool call: %+v", call)
	}
	if call.Arguments != `{"text":"hi"}` {
		t.Fatalf("expected raw argument string passthrough, got %q", call.Arguments)
	}
}
