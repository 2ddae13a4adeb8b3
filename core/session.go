package voicesession

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dbroz/warble-core/core/audio"
	"github.com/dbroz/warble-core/core/events"
	"github.com/dbroz/warble-core/core/providers"
	"github.com/dbroz/warble-core/core/tools"
	"github.com/dbroz/warble-core/core/transport"
	"github.com/google/uuid"
)

// SessionInfo is the immutable identity of a live session.
type SessionInfo struct {
	ID         string
	Provider   providers.Kind
	SampleRate int
	StartedAt  time.Time
}

// session owns the transport connection and the audio device while live.
// All state transitions and barge-in accounting happen on the single run
// goroutine; capture, transport receive and playback run independently and
// communicate with it through channels and callbacks.
type session struct {
	id        string
	adapter   providers.Adapter
	device    AudioDevice
	conn      *transport.Connection
	gate      *tools.Gate
	feed      *itemFeed
	boundary  *audio.BoundaryDetector
	encoding  audio.EncodingInfo
	opts      engineOptions
	callbacks Callbacks

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan func()
	outbox chan []byte
	done   chan struct{}

	stateMu sync.Mutex
	state   State

	accounting  *audioAccounting
	transcripts map[string]*strings.Builder

	// pendingUsageSeconds accumulates assistant audio between periodic
	// balance checks. Loop-owned.
	pendingUsageSeconds float64

	providerSessionID string
	startedAt         time.Time
	muted             atomic.Bool
	stopOnce          sync.Once
}

const (
	inboxCapacity  = 256
	outboxCapacity = 256
)

func newSession(
	ctx context.Context,
	adapter providers.Adapter,
	tokens TokenSource,
	executor tools.Executor,
	device AudioDevice,
	opts engineOptions,
) (*session, error) {
	token, err := tokens.RealtimeToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch realtime token: %w", err)
	}

	encoding := device.EncodingInfo()
	if encoding.IsZero() {
		encoding = audio.GetDefaultEncodingInfo()
	}
	if opts.sampleRate != 0 {
		encoding.SampleRate = opts.sampleRate
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s := &session{
		id:          uuid.NewString(),
		adapter:     adapter,
		device:      device,
		encoding:    encoding,
		opts:        opts,
		callbacks:   opts.callbacks,
		ctx:         sessionCtx,
		cancel:      cancel,
		inbox:       make(chan func(), inboxCapacity),
		outbox:      make(chan []byte, outboxCapacity),
		done:        make(chan struct{}),
		accounting:  newAudioAccounting(encoding),
		transcripts: map[string]*strings.Builder{},
		startedAt:   time.Now(),
		state:       Connecting(),
	}
	s.feed = newItemFeed(opts.callbacks.OnConversationItem)
	s.boundary = audio.NewBoundaryDetector(opts.boundary, func() {
		s.post(s.sendCommit)
	})

	gateExecutor := tools.Executor(executor)
	if opts.usage != nil {
		gateExecutor = &usageTrackingExecutor{inner: executor, session: s}
	}
	s.gate = tools.NewGate(gateExecutor, &providerSender{session: s}, opts.preview, tools.Callbacks{
		OnFocusChanged: s.onFocusChanged,
		OnEvent:        s.onToolEvent,
	})

	s.emitState(Connecting())

	url, header := adapter.ConnectRequest(token)
	conn, err := transport.Connect(sessionCtx, url, header, transport.Callbacks{
		OnMessage: s.onWireMessage,
		OnClose:   s.onTransportClosed,
	})
	if err != nil {
		cancel()
		s.emitState(Disconnected())
		return nil, err
	}
	s.conn = conn

	configure, err := adapter.BuildConfigure(providers.SessionConfig{
		Instructions: opts.instructions,
		Voice:        opts.voice,
		SampleRate:   encoding.SampleRate,
		Tools:        opts.toolDefs,
	})
	if err != nil {
		s.stop()
		return nil, fmt.Errorf("failed to build configure message: %w", err)
	}
	if err := conn.Send(configure); err != nil {
		s.stop()
		return nil, fmt.Errorf("failed to send configure message: %w", err)
	}

	go s.run()
	go s.sendAudioLoop()
	go func() {
		<-sessionCtx.Done()
		s.stop()
	}()

	// Device failures are surfaced as *audio.DeviceError so the caller can
	// distinguish a missing microphone permission from session errors.
	if err := device.StartPlayback(sessionCtx); err != nil {
		s.stop()
		return nil, err
	}
	if err := device.StartCapture(sessionCtx, s.onCaptureFrame); err != nil {
		s.stop()
		return nil, err
	}

	return s, nil
}

func (s *session) info() SessionInfo {
	return SessionInfo{
		ID:         s.id,
		Provider:   s.adapter.Kind(),
		SampleRate: s.encoding.SampleRate,
		StartedAt:  s.startedAt,
	}
}

// run is the single owner of session state, accounting and transcript
// buffers. Inbound events and internal commands are processed strictly in
// arrival order.
func (s *session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case act := <-s.inbox:
			act()
		}
	}
}

func (s *session) post(act func()) {
	select {
	case s.inbox <- act:
	case <-s.ctx.Done():
	}
}

// --- capture path (device thread) ---

func (s *session) onCaptureFrame(frame []byte) {
	level := audio.Level(frame)
	if s.callbacks.OnAudioLevel != nil {
		s.callbacks.OnAudioLevel(level)
	}

	s.boundary.Feed(level, time.Now())

	if s.muted.Load() {
		return
	}

	// The device reuses its buffer between callbacks; the frame has to be
	// copied before it crosses the channel.
	owned := make([]byte, len(frame))
	copy(owned, frame)

	select {
	case s.outbox <- owned:
	default:
		// Outbound congestion: drop the oldest frame, keep the newest.
		select {
		case <-s.outbox:
		default:
		}
		select {
		case s.outbox <- owned:
		default:
		}
	}
}

// sendAudioLoop drains captured frames to the provider in order, keeping
// network writes off the device thread.
func (s *session) sendAudioLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.outbox:
			message, err := s.adapter.BuildAudioAppend(frame)
			if err != nil {
				logger.Warn("failed to build audio append", "error", err)
				continue
			}
			if err := s.conn.Send(message); err != nil {
				if err == transport.ErrNotConnected {
					return
				}
				logger.Warn("failed to send audio append", "error", err)
			}
		}
	}
}

func (s *session) sendCommit() {
	message, err := s.adapter.BuildCommit()
	if err != nil {
		logger.Warn("failed to build commit", "error", err)
		return
	}
	if err := s.conn.Send(message); err != nil && err != transport.ErrNotConnected {
		logger.Warn("failed to send commit", "error", err)
	}
}

// --- transport path (receive loop goroutine) ---

func (s *session) onWireMessage(data []byte) {
	event := s.adapter.ParseInbound(data)
	s.post(func() { s.handleEvent(event) })
}

func (s *session) onTransportClosed(err error) {
	if err == nil {
		return
	}
	s.post(func() { s.fatal(err) })
}

// --- event handling (run goroutine) ---

func (s *session) handleEvent(event events.Event) {
	switch typed := event.(type) {
	case events.SessionCreated:
		s.providerSessionID = typed.SessionID
		if s.currentState().Kind == StateConnecting {
			s.emitState(Connected())
		}

	case events.SessionConfigured:
		if s.currentState().Kind == StateConnecting {
			s.emitState(Connected())
		}

	case events.UserSpeechStarted:
		s.handleUserSpeechStarted()

	case events.UserSpeechStopped:
		if s.currentState().Kind == StateListening {
			s.emitState(Connected())
		}

	case events.AssistantSpeaking:
		s.handleAssistantSpeaking(typed.ItemID)

	case events.AudioDelta:
		s.handleAudioDelta(typed)

	case events.TranscriptDelta:
		s.handleTranscript(typed)

	case events.ResponseDone:
		if s.currentState().Kind == StateSpeaking {
			s.emitState(Connected())
		}

	case events.ToolCallRequested:
		// Execution is network-bound; keep it off the event loop. Results
		// land back through the provider sender, which refuses sends once
		// the session is gone.
		go s.gate.HandleToolCall(s.ctx, typed.Call)

	case events.ProviderError:
		message := typed.Message
		if typed.Code != "" {
			message = fmt.Sprintf("%s: %s", typed.Code, typed.Message)
		}
		s.feed.system("Provider reported an error: " + message)
		s.reportError(fmt.Errorf("provider error: %s", message))

	case events.Other:
		// Forward-compatible: unmodeled message types are dropped.
	}
}

// handleUserSpeechStarted implements barge-in: playback stops immediately,
// the provider is told how much assistant audio was actually heard, and
// only then is the Listening transition exposed.
func (s *session) handleUserSpeechStarted() {
	switch s.currentState().Kind {
	case StateSpeaking:
		s.device.Flush()
		if itemID, ms, ok := s.accounting.truncationPoint(); ok {
			s.sendTruncate(itemID, ms)
		}
		s.accounting.reset()
		s.emitState(Listening())

	case StateConnected:
		// Stale audio can still be draining after a response finished.
		s.device.Flush()
		s.emitState(Listening())
	}
}

func (s *session) sendTruncate(itemID string, ms int64) {
	message, err := s.adapter.BuildTruncate(itemID, ms)
	if err != nil {
		logger.Warn("failed to build truncate", "item_id", itemID, "error", err)
		return
	}
	if err := s.conn.Send(message); err != nil && err != transport.ErrNotConnected {
		logger.Warn("failed to send truncate", "item_id", itemID, "error", err)
	}
}

func (s *session) handleAssistantSpeaking(itemID string) {
	state := s.currentState()
	switch state.Kind {
	case StateConnected, StateListening:
		s.accounting.beginResponse(itemID)
		s.emitState(Speaking(itemID))

	case StateSpeaking:
		if itemID == "" {
			return
		}
		if state.ItemID == "" {
			// Same response; the id arrived late.
			s.accounting.adoptItem(itemID)
			s.emitState(Speaking(itemID))
			return
		}
		if itemID != state.ItemID {
			s.accounting.beginResponse(itemID)
			s.emitState(Speaking(itemID))
		}
	}
}

func (s *session) handleAudioDelta(delta events.AudioDelta) {
	state := s.currentState()
	switch state.Kind {
	case StateListening:
		// Echo guard: nothing plays and accounting does not advance while
		// the user is actively talking.
		return

	case StateConnected:
		s.accounting.beginResponse(delta.ItemID)
		s.emitState(Speaking(delta.ItemID))

	case StateSpeaking:
		if state.ItemID == "" && delta.ItemID != "" {
			s.accounting.adoptItem(delta.ItemID)
			s.emitState(Speaking(delta.ItemID))
		}

	default:
		return
	}

	if err := s.device.SendAudio(delta.Audio); err != nil {
		s.reportError(err)
	}
	s.accounting.advance(delta.ItemID, len(delta.Audio))
	s.trackAudioUsage(len(delta.Audio))
}

func (s *session) handleTranscript(delta events.TranscriptDelta) {
	key := delta.Role + "/" + delta.ItemID
	builder, ok := s.transcripts[key]
	if !ok {
		builder = &strings.Builder{}
		s.transcripts[key] = builder
	}
	builder.WriteString(delta.Delta)
	s.feed.transcript(delta.ItemID, delta.Role, builder.String())
}

// --- usage/credit enforcement ---

func (s *session) trackAudioUsage(byteCount int) {
	if s.opts.usage == nil {
		return
	}

	s.pendingUsageSeconds += float64(byteCount) / float64(s.encoding.BytesPerSecond())
	if s.pendingUsageSeconds < s.opts.usageCheckSeconds {
		return
	}

	seconds := s.pendingUsageSeconds
	s.pendingUsageSeconds = 0
	go func() {
		remaining, err := s.opts.usage.RecordAudioSeconds(s.ctx, seconds)
		s.applyBalance(remaining, err)
	}()
}

// applyBalance enforces the credit policy: tracking failures are surfaced
// but non-fatal, an exhausted balance force-stops the session.
func (s *session) applyBalance(remaining float64, err error) {
	if err != nil {
		s.reportError(fmt.Errorf("%w: %v", ErrUsageTracking, err))
		return
	}
	if remaining > 0 {
		return
	}
	s.post(func() { s.fatal(ErrInsufficientCredits) })
}

// --- gate wiring ---

func (s *session) onFocusChanged(pending *tools.PendingConfirmation) {
	if s.callbacks.OnPendingConfirmation != nil {
		s.callbacks.OnPendingConfirmation(pending)
	}
	if pending != nil {
		s.feed.toolCall(pending.Call.CallID, pending.Call.Name, "pending_confirmation")
	}
}

func (s *session) onToolEvent(event events.Event) {
	switch typed := event.(type) {
	case events.ToolCallStarted:
		s.feed.toolCall(typed.CallID, typed.Name, "running")
	case events.ToolCallCompleted:
		s.feed.toolCall(typed.CallID, typed.Name, "completed")
	case events.ToolCallFailed:
		status := "failed"
		if typed.Error == "denied by user" {
			status = "denied"
		}
		s.feed.toolCall(typed.CallID, typed.Name, status)
	}
}

// --- lifecycle ---

func (s *session) currentState() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *session) emitState(state State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()

	if s.callbacks.OnStateChanged != nil {
		s.callbacks.OnStateChanged(state)
	}
}

func (s *session) reportError(err error) {
	logger.Warn("session error", "session_id", s.id, "error", err)
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(err)
	}
}

// fatal force-stops the session: audio halts immediately to avoid
// cascading send failures, then the state machine lands in Error.
func (s *session) fatal(err error) {
	s.reportError(err)
	s.teardown(ErrorState(err.Error()))
}

// stop is the explicit-disconnect path.
func (s *session) stop() {
	s.teardown(Disconnected())
}

func (s *session) teardown(final State) {
	s.stopOnce.Do(func() {
		if err := s.device.StopCapture(); err != nil {
			logger.Warn("failed to stop capture", "error", err)
		}
		s.boundary.Reset()
		s.device.Flush()
		if err := s.device.StopPlayback(); err != nil {
			logger.Warn("failed to stop playback", "error", err)
		}

		// Cancel before closing the transport: post stops blocking once the
		// context is done, so a receive loop stuck handing an event to the
		// run loop can drain and Close does not sit out its grace period.
		s.cancel()

		if s.conn != nil {
			if err := s.conn.Close(); err != nil {
				logger.Warn("failed to close transport", "error", err)
			}
		}

		s.emitState(final)
	})
}

// providerSender feeds tool outputs back through the adapter and transport.
// After teardown every send fails with transport.ErrNotConnected, which is
// how in-flight tool results get discarded post-disconnect.
type providerSender struct {
	session *session
}

func (p *providerSender) SendToolOutput(callID, output string, success bool, previousItemID string) error {
	message, err := p.session.adapter.BuildToolOutput(callID, output, success, previousItemID)
	if err != nil {
		return fmt.Errorf("failed to build tool output: %w", err)
	}
	return p.session.conn.Send(message)
}

func (p *providerSender) CreateResponse() error {
	message, err := p.session.adapter.BuildCreateResponse()
	if err != nil {
		return fmt.Errorf("failed to build response create: %w", err)
	}
	return p.session.conn.Send(message)
}

// usageTrackingExecutor charges every executed tool call against the credit
// balance after the call completes.
type usageTrackingExecutor struct {
	inner   tools.Executor
	session *session
}

func (x *usageTrackingExecutor) Execute(ctx context.Context, name string, parameters map[string]any, callID string) (tools.Result, error) {
	result, err := x.inner.Execute(ctx, name, parameters, callID)

	remaining, usageErr := x.session.opts.usage.RecordToolUse(ctx, name)
	x.session.applyBalance(remaining, usageErr)

	return result, err
}
