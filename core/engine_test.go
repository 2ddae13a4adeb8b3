package voicesession

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dbroz/warble-core/core/audio"
	"github.com/dbroz/warble-core/core/events"
	"github.com/dbroz/warble-core/core/providers"
	"github.com/dbroz/warble-core/core/tools"
	"github.com/gorilla/websocket"
)

const testTimeout = 3 * time.Second

// callLog records ordered cross-component observations, used to assert
// ordering guarantees like truncate-before-Listening.
type callLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *callLog) add(entry string) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

func (l *callLog) index(entry string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e == entry {
			return i
		}
	}
	return -1
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// --- fake provider ---

var upgrader = websocket.Upgrader{}

type providerServer struct {
	url     string
	inbound chan map[string]any

	mu   sync.Mutex
	conn *websocket.Conn
}

func newProviderServer(t *testing.T) *providerServer {
	t.Helper()
	p := &providerServer{inbound: make(chan map[string]any, 256)}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		p.mu.Lock()
		p.conn = conn
		p.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var decoded map[string]any
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Errorf("client sent invalid JSON: %v", err)
				return
			}
			p.inbound <- decoded
		}
	}))
	t.Cleanup(server.Close)

	p.url = "ws" + strings.TrimPrefix(server.URL, "http")
	return p
}

func (p *providerServer) send(t *testing.T, frame map[string]any) {
	t.Helper()
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		t.Fatalf("no provider connection yet")
	}

	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("failed to marshal frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}
}

// waitFor returns the next inbound frame of the given type, discarding
// interleaved audio appends and other traffic.
func (p *providerServer) waitFor(t *testing.T, frameType string) map[string]any {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case frame := <-p.inbound:
			if frame["type"] == frameType {
				return frame
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q frame", frameType)
		}
	}
}

// --- fake adapter speaking a minimal private dialect ---

type fakeAdapter struct {
	url string
	log *callLog
}

func (a *fakeAdapter) Kind() providers.Kind { return providers.KindOpenAI }

func (a *fakeAdapter) ConnectRequest(token string) (string, http.Header) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return a.url, header
}

func (a *fakeAdapter) build(frame map[string]any) ([]byte, error) {
	return json.Marshal(frame)
}

func (a *fakeAdapter) BuildConfigure(config providers.SessionConfig) ([]byte, error) {
	return a.build(map[string]any{
		"type":         "configure",
		"instructions": config.Instructions,
		"sample_rate":  config.SampleRate,
	})
}

func (a *fakeAdapter) BuildAudioAppend(pcm []byte) ([]byte, error) {
	return a.build(map[string]any{"type": "audio", "audio": base64.StdEncoding.EncodeToString(pcm)})
}

func (a *fakeAdapter) BuildCommit() ([]byte, error) {
	return a.build(map[string]any{"type": "commit"})
}

func (a *fakeAdapter) BuildCreateResponse() ([]byte, error) {
	return a.build(map[string]any{"type": "response.create"})
}

func (a *fakeAdapter) BuildTruncate(itemID string, audioEndMS int64) ([]byte, error) {
	if a.log != nil {
		a.log.add(fmt.Sprintf("truncate:%s:%d", itemID, audioEndMS))
	}
	return a.build(map[string]any{"type": "truncate", "item_id": itemID, "audio_end_ms": audioEndMS})
}

func (a *fakeAdapter) BuildToolOutput(callID, output string, success bool, previousItemID string) ([]byte, error) {
	return a.build(map[string]any{
		"type":             "tool_output",
		"call_id":          callID,
		"output":           output,
		"success":          success,
		"previous_item_id": previousItemID,
	})
}

func (a *fakeAdapter) ParseInbound(raw []byte) events.Event {
	var frame struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
		ItemID    string `json:"item_id"`
		Audio     string `json:"audio"`
		CallID    string `json:"call_id"`
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
		Message   string `json:"message"`
		Role      string `json:"role"`
		Delta     string `json:"delta"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return events.NewOther("unparseable")
	}

	switch frame.Type {
	case "session.created":
		return events.NewSessionCreated(frame.SessionID)
	case "speech.started":
		return events.NewUserSpeechStarted()
	case "speech.stopped":
		return events.NewUserSpeechStopped()
	case "assistant":
		return events.NewAssistantSpeaking(frame.ItemID)
	case "delta":
		pcm, err := base64.StdEncoding.DecodeString(frame.Audio)
		if err != nil {
			return events.NewOther("unparseable")
		}
		return events.NewAudioDelta(frame.ItemID, pcm)
	case "tool":
		return events.NewToolCallRequested(events.ToolCall{
			CallID:    frame.CallID,
			Name:      frame.Name,
			Arguments: frame.Arguments,
			ItemID:    frame.ItemID,
		})
	case "transcript":
		return events.NewTranscriptDelta(frame.ItemID, frame.Role, frame.Delta)
	case "done":
		return events.NewResponseDone(frame.ItemID)
	case "error":
		return events.NewProviderError("", frame.Message)
	}
	return events.NewOther(frame.Type)
}

// --- fake collaborators ---

type fakeTokens struct{}

func (fakeTokens) RealtimeToken(context.Context) (string, error) { return "ephemeral-tok", nil }
func (fakeTokens) BearerToken(context.Context) (string, error)   { return "bearer-tok", nil }

type fakeDevice struct {
	log *callLog

	mu              sync.Mutex
	onAudio         func([]byte)
	played          [][]byte
	flushes         int
	captureStopped  bool
	playbackStopped bool
}

func (d *fakeDevice) StartCapture(_ context.Context, onAudio func([]byte)) error {
	d.mu.Lock()
	d.onAudio = onAudio
	d.captureStopped = false
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) StopCapture() error {
	d.mu.Lock()
	d.captureStopped = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) StartPlayback(context.Context) error { return nil }

func (d *fakeDevice) StopPlayback() error {
	d.mu.Lock()
	d.playbackStopped = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) SendAudio(chunk []byte) error {
	d.mu.Lock()
	d.played = append(d.played, chunk)
	d.mu.Unlock()
	if d.log != nil {
		d.log.add("play")
	}
	return nil
}

func (d *fakeDevice) Flush() {
	d.mu.Lock()
	d.flushes++
	d.mu.Unlock()
	if d.log != nil {
		d.log.add("flush")
	}
}

func (d *fakeDevice) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: 24000, Format: audio.EncodingLinear16}
}

func (d *fakeDevice) emitFrame(t *testing.T, frame []byte) {
	t.Helper()
	d.mu.Lock()
	onAudio := d.onAudio
	d.mu.Unlock()
	if onAudio == nil {
		t.Fatalf("capture not started")
	}
	onAudio(frame)
}

func (d *fakeDevice) playedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.played)
}

func (d *fakeDevice) stopped() (capture, playback bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.captureStopped, d.playbackStopped
}

type fakeExecutor struct {
	mu     sync.Mutex
	calls  []string
	result tools.Result
}

func (e *fakeExecutor) Execute(_ context.Context, name string, _ map[string]any, _ string) (tools.Result, error) {
	e.mu.Lock()
	e.calls = append(e.calls, name)
	e.mu.Unlock()
	return e.result, nil
}

func (e *fakeExecutor) executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type fakeUsage struct {
	mu        sync.Mutex
	remaining float64
	toolUses  int
}

func (u *fakeUsage) RecordToolUse(context.Context, string) (float64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.toolUses++
	return u.remaining, nil
}

func (u *fakeUsage) RecordAudioSeconds(context.Context, float64) (float64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.remaining, nil
}

// --- fixture ---

type fixture struct {
	engine   *Engine
	server   *providerServer
	adapter  *fakeAdapter
	device   *fakeDevice
	executor *fakeExecutor
	log      *callLog

	states  chan State
	pending chan *tools.PendingConfirmation
	items   chan ConversationItem
	errs    chan error
}

func newFixture(t *testing.T, extra ...Option) *fixture {
	t.Helper()

	log := &callLog{}
	f := &fixture{
		server:   newProviderServer(t),
		device:   &fakeDevice{log: log},
		executor: &fakeExecutor{result: tools.Result{Success: true, Response: `{"ok":true}`}},
		log:      log,
		states:   make(chan State, 64),
		pending:  make(chan *tools.PendingConfirmation, 16),
		items:    make(chan ConversationItem, 64),
		errs:     make(chan error, 16),
	}
	f.adapter = &fakeAdapter{url: f.server.url, log: log}

	opts := append([]Option{
		WithCallbacks(Callbacks{
			OnStateChanged: func(state State) {
				log.add("state:" + string(state.Kind))
				f.states <- state
			},
			OnPendingConfirmation: func(pending *tools.PendingConfirmation) { f.pending <- pending },
			OnConversationItem:    func(item ConversationItem) { f.items <- item },
			OnError:               func(err error) { f.errs <- err },
		}),
	}, extra...)

	f.engine = NewEngine(f.adapter, fakeTokens{}, f.executor, f.device, opts...)
	t.Cleanup(f.engine.Stop)
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.engine.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
}

// startConnected starts the engine and walks the handshake to Connected.
func (f *fixture) startConnected(t *testing.T) {
	t.Helper()
	f.start(t)
	f.waitForState(t, StateConnecting)
	f.server.waitFor(t, "configure")
	f.server.send(t, map[string]any{"type": "session.created", "session_id": "sess-1"})
	f.waitForState(t, StateConnected)
}

func (f *fixture) waitForState(t *testing.T, kind StateKind) State {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case state := <-f.states:
			if state.Kind == kind {
				return state
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %q", kind)
		}
	}
}

func pcmOfDuration(encoding audio.EncodingInfo, ms int) []byte {
	return make([]byte, encoding.BytesPerSecond()*ms/1000)
}

// --- tests ---

func TestHandshakeReachesConnected(t *testing.T) {
	f := newFixture(t, WithInstructions("be brief"))
	f.start(t)
	f.waitForState(t, StateConnecting)

	configure := f.server.waitFor(t, "configure")
	if configure["instructions"] != "be brief" {
		t.Fatalf("expected instructions in configure, got %v", configure)
	}
	if configure["sample_rate"] != float64(24000) {
		t.Fatalf("expected negotiated sample rate, got %v", configure["sample_rate"])
	}

	f.server.send(t, map[string]any{"type": "session.created", "session_id": "sess-1"})
	f.waitForState(t, StateConnected)

	if state := f.engine.State(); state.Kind != StateConnected {
		t.Fatalf("expected Connected, got %s", state)
	}
}

func TestNormalTurn(t *testing.T) {
	f := newFixture(t)
	f.startConnected(t)

	// User speaks, then stops.
	f.server.send(t, map[string]any{"type": "speech.started"})
	f.waitForState(t, StateListening)
	f.server.send(t, map[string]any{"type": "speech.stopped"})
	f.waitForState(t, StateConnected)

	// A safe tool call executes without confirmation.
	f.server.send(t, map[string]any{
		"type":      "tool",
		"call_id":   "call-1",
		"name":      "search_recent_tweets",
		"arguments": `{"query":"golang"}`,
		"item_id":   "item-1",
	})

	output := f.server.waitFor(t, "tool_output")
	if output["call_id"] != "call-1" || output["success"] != true {
		t.Fatalf("expected successful tool output, got %v", output)
	}
	f.server.waitFor(t, "response.create")

	if executed := f.executor.executed(); len(executed) != 1 || executed[0] != "search_recent_tweets" {
		t.Fatalf("expected search executed automatically, got %v", executed)
	}

	// First audio delta of the response flips the state to Speaking.
	pcm := pcmOfDuration(f.device.EncodingInfo(), 20)
	f.server.send(t, map[string]any{
		"type":    "delta",
		"item_id": "item-2",
		"audio":   base64.StdEncoding.EncodeToString(pcm),
	})
	state := f.waitForState(t, StateSpeaking)
	if state.ItemID != "item-2" {
		t.Fatalf("expected Speaking(item-2), got %s", state)
	}
	if f.device.playedCount() != 1 {
		t.Fatalf("expected one playback call, got %d", f.device.playedCount())
	}
}

func TestDeltasDroppedWhileListening(t *testing.T) {
	f := newFixture(t)
	f.startConnected(t)

	f.server.send(t, map[string]any{"type": "speech.started"})
	f.waitForState(t, StateListening)

	pcm := pcmOfDuration(f.device.EncodingInfo(), 20)
	f.server.send(t, map[string]any{
		"type":    "delta",
		"item_id": "item-1",
		"audio":   base64.StdEncoding.EncodeToString(pcm),
	})
	// speech.stopped is processed strictly after the delta, so reaching
	// Connected proves the delta went through the loop.
	f.server.send(t, map[string]any{"type": "speech.stopped"})
	f.waitForState(t, StateConnected)

	if f.device.playedCount() != 0 {
		t.Fatalf("a delta received while Listening reached playback")
	}
}

func TestBargeInTruncation(t *testing.T) {
	f := newFixture(t)
	f.startConnected(t)

	encoding := f.device.EncodingInfo()
	f.server.send(t, map[string]any{"type": "assistant", "item_id": "item-1"})
	f.waitForState(t, StateSpeaking)

	// 3 deltas of 50ms each: 150ms heard when the user barges in.
	for i := 0; i < 3; i++ {
		f.server.send(t, map[string]any{
			"type":    "delta",
			"item_id": "item-1",
			"audio":   base64.StdEncoding.EncodeToString(pcmOfDuration(encoding, 50)),
		})
	}
	f.server.send(t, map[string]any{"type": "speech.started"})

	truncate := f.server.waitFor(t, "truncate")
	if truncate["item_id"] != "item-1" || truncate["audio_end_ms"] != float64(150) {
		t.Fatalf("expected truncate at 150ms for item-1, got %v", truncate)
	}
	f.waitForState(t, StateListening)

	// Playback stops and the truncate is built before Listening is exposed.
	flushAt := f.log.index("flush")
	truncateAt := f.log.index("truncate:item-1:150")
	listeningAt := f.log.index("state:" + string(StateListening))
	if flushAt == -1 || truncateAt == -1 || listeningAt == -1 {
		t.Fatalf("missing ordering entries: %v", f.log.snapshot())
	}
	if !(flushAt < truncateAt && truncateAt < listeningAt) {
		t.Fatalf("barge-in out of order: flush=%d truncate=%d listening=%d", flushAt, truncateAt, listeningAt)
	}

	// Accounting reset: a fresh response accumulates from zero.
	f.server.send(t, map[string]any{"type": "assistant", "item_id": "item-2"})
	f.waitForState(t, StateSpeaking)
	f.server.send(t, map[string]any{
		"type":    "delta",
		"item_id": "item-2",
		"audio":   base64.StdEncoding.EncodeToString(pcmOfDuration(encoding, 100)),
	})
	f.server.send(t, map[string]any{"type": "speech.started"})

	truncate = f.server.waitFor(t, "truncate")
	if truncate["item_id"] != "item-2" || truncate["audio_end_ms"] != float64(100) {
		t.Fatalf("expected truncate at 100ms for item-2, got %v", truncate)
	}
}

func TestBargeInWithoutHeardAudioSendsNoTruncate(t *testing.T) {
	f := newFixture(t)
	f.startConnected(t)

	// Response announced but no audio heard yet.
	f.server.send(t, map[string]any{"type": "assistant", "item_id": "item-1"})
	f.waitForState(t, StateSpeaking)
	f.server.send(t, map[string]any{"type": "speech.started"})
	f.waitForState(t, StateListening)

	if at := f.log.index("truncate:item-1:0"); at != -1 {
		t.Fatalf("truncate emitted with zero heard audio")
	}
}

func TestUnsafeToolConfirmationFlow(t *testing.T) {
	f := newFixture(t)
	f.startConnected(t)

	f.server.send(t, map[string]any{
		"type":      "tool",
		"call_id":   "call-1",
		"name":      "create_tweet",
		"arguments": `{"text":"hello"}`,
		"item_id":   "item-1",
	})

	// The provider is told the call is paused awaiting confirmation.
	announce := f.server.waitFor(t, "tool_output")
	var status map[string]string
	if err := json.Unmarshal([]byte(announce["output"].(string)), &status); err != nil || status["status"] != "awaiting_confirmation" {
		t.Fatalf("expected awaiting_confirmation announcement, got %v", announce)
	}
	f.server.waitFor(t, "response.create")

	var focused *tools.PendingConfirmation
	deadline := time.After(testTimeout)
	for focused == nil {
		select {
		case focused = <-f.pending:
		case <-deadline:
			t.Fatalf("confirmation never surfaced")
		}
	}
	if focused.Call.CallID != "call-1" {
		t.Fatalf("expected call-1 focused, got %+v", focused)
	}

	if len(f.executor.executed()) != 0 {
		t.Fatalf("unsafe tool executed before approval")
	}

	if err := f.engine.Approve(context.Background(), "call-1"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	output := f.server.waitFor(t, "tool_output")
	if output["call_id"] != "call-1" || output["success"] != true || output["output"] != `{"ok":true}` {
		t.Fatalf("expected real output after approval, got %v", output)
	}
	f.server.waitFor(t, "response.create")

	if executed := f.executor.executed(); len(executed) != 1 || executed[0] != "create_tweet" {
		t.Fatalf("expected create_tweet executed once, got %v", executed)
	}
	if pending := f.engine.PendingConfirmations(); len(pending) != 0 {
		t.Fatalf("expected empty queue after approval, got %+v", pending)
	}
}

func TestApproveStaleIDReturnsErrNotPending(t *testing.T) {
	f := newFixture(t)
	f.startConnected(t)

	if err := f.engine.Approve(context.Background(), "ghost"); !errors.Is(err, tools.ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}

	output := f.server.waitFor(t, "tool_output")
	if output["call_id"] != "ghost" || output["success"] != false {
		t.Fatalf("expected explicit not-pending output, got %v", output)
	}
}

func TestApproveWithoutSession(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Approve(context.Background(), "call-1"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestCreditsExhaustedForcesError(t *testing.T) {
	usage := &fakeUsage{remaining: 0}
	f := newFixture(t, WithUsageTracker(usage))
	f.startConnected(t)

	f.server.send(t, map[string]any{
		"type":      "tool",
		"call_id":   "call-1",
		"name":      "get_me",
		"arguments": `{}`,
	})

	state := f.waitForState(t, StateError)
	if !strings.Contains(state.Message, "insufficient credits") {
		t.Fatalf("expected insufficient credits in error state, got %q", state.Message)
	}

	deadline := time.After(testTimeout)
	for {
		select {
		case err := <-f.errs:
			if errors.Is(err, ErrInsufficientCredits) {
				capture, playback := f.device.stopped()
				if !capture || !playback {
					t.Fatalf("audio not halted: capture=%v playback=%v", capture, playback)
				}
				return
			}
		case <-deadline:
			t.Fatalf("ErrInsufficientCredits never surfaced")
		}
	}
}

func TestProviderErrorIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.startConnected(t)

	f.server.send(t, map[string]any{"type": "error", "message": "session will expire soon"})

	deadline := time.After(testTimeout)
	for {
		select {
		case item := <-f.items:
			if item.Kind == ItemSystemMessage && strings.Contains(item.Text, "session will expire soon") {
				if state := f.engine.State(); state.Kind != StateConnected {
					t.Fatalf("provider error terminated the session: %s", state)
				}
				return
			}
		case <-deadline:
			t.Fatalf("provider error never reached the conversation feed")
		}
	}
}

func TestCapturedAudioIsAppended(t *testing.T) {
	f := newFixture(t)
	f.startConnected(t)

	frame := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	f.device.emitFrame(t, frame)

	appended := f.server.waitFor(t, "audio")
	decoded, err := base64.StdEncoding.DecodeString(appended["audio"].(string))
	if err != nil {
		t.Fatalf("audio frame is not valid base64: %v", err)
	}
	if string(decoded) != string(frame) {
		t.Fatalf("captured frame corrupted in transit: %x != %x", decoded, frame)
	}
}

func TestMutedFramesAreNotSent(t *testing.T) {
	f := newFixture(t)
	f.startConnected(t)

	f.engine.SetMuted(true)
	f.device.emitFrame(t, []byte{0xAA, 0xAA, 0xAA, 0xAA})

	f.engine.SetMuted(false)
	marker := []byte{0xBB, 0xBB, 0xBB, 0xBB}
	f.device.emitFrame(t, marker)

	// The first audio frame on the wire must be the unmuted one.
	appended := f.server.waitFor(t, "audio")
	decoded, _ := base64.StdEncoding.DecodeString(appended["audio"].(string))
	if string(decoded) != string(marker) {
		t.Fatalf("muted frame leaked to provider: %x", decoded)
	}
}

func TestTranscriptDeltasAccumulate(t *testing.T) {
	f := newFixture(t)
	f.startConnected(t)

	f.server.send(t, map[string]any{"type": "transcript", "item_id": "item-1", "role": "assistant", "delta": "Hello "})
	f.server.send(t, map[string]any{"type": "transcript", "item_id": "item-1", "role": "assistant", "delta": "there"})

	deadline := time.After(testTimeout)
	for {
		select {
		case item := <-f.items:
			if item.Kind == ItemTranscript && item.Text == "Hello there" {
				if item.Role != "assistant" || item.ItemID != "item-1" {
					t.Fatalf("unexpected transcript item: %+v", item)
				}
				return
			}
		case <-deadline:
			t.Fatalf("accumulated transcript never emitted")
		}
	}
}

func TestStopReturnsToDisconnected(t *testing.T) {
	f := newFixture(t)
	f.startConnected(t)

	f.engine.Stop()
	f.waitForState(t, StateDisconnected)

	capture, playback := f.device.stopped()
	if !capture || !playback {
		t.Fatalf("audio not released on stop: capture=%v playback=%v", capture, playback)
	}
	if state := f.engine.State(); state.Kind != StateDisconnected {
		t.Fatalf("expected Disconnected after stop, got %s", state)
	}
}

func TestResponseDoneReturnsToConnected(t *testing.T) {
	f := newFixture(t)
	f.startConnected(t)

	encoding := f.device.EncodingInfo()
	f.server.send(t, map[string]any{
		"type":    "delta",
		"item_id": "item-1",
		"audio":   base64.StdEncoding.EncodeToString(pcmOfDuration(encoding, 20)),
	})
	f.waitForState(t, StateSpeaking)

	f.server.send(t, map[string]any{"type": "done", "item_id": "item-1"})
	f.waitForState(t, StateConnected)
}

func TestStartTearsDownPreviousSession(t *testing.T) {
	f := newFixture(t)
	f.startConnected(t)
	first, err := f.engine.liveSession()
	if err != nil {
		t.Fatalf("no live session: %v", err)
	}

	f.start(t)
	f.server.waitFor(t, "configure")

	second, err := f.engine.liveSession()
	if err != nil {
		t.Fatalf("no live session after restart: %v", err)
	}
	if first == second {
		t.Fatalf("expected a fresh session on restart")
	}
	if state := first.currentState(); state.Kind != StateDisconnected {
		t.Fatalf("previous session not torn down, state %s", state)
	}
}

func TestStopReturnsPromptlyWithBusyRunLoop(t *testing.T) {
	f := newFixture(t)
	f.startConnected(t)

	s, err := f.engine.liveSession()
	if err != nil {
		t.Fatalf("no live session: %v", err)
	}

	// Occupy the run loop so inbound frames pile up behind it.
	held := make(chan struct{})
	release := make(chan struct{})
	s.post(func() {
		close(held)
		<-release
	})
	defer close(release)
	<-held

	// Fill the inbox and leave the receive loop blocked handing over the
	// overflow frames.
	for i := 0; i < inboxCapacity+8; i++ {
		f.server.send(t, map[string]any{"type": "heartbeat"})
	}
	deadline := time.Now().Add(testTimeout)
	for len(s.inbox) < cap(s.inbox) {
		if time.Now().After(deadline) {
			t.Fatalf("inbox never filled, len %d", len(s.inbox))
		}
		time.Sleep(5 * time.Millisecond)
	}

	startedAt := time.Now()
	f.engine.Stop()
	if elapsed := time.Since(startedAt); elapsed > 1500*time.Millisecond {
		t.Fatalf("stop took %s with a blocked receive loop", elapsed)
	}
}
