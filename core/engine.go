// Package voicesession drives a bidirectional realtime voice session
// against a streaming AI provider: it owns the session state machine, the
// audio capture/playback pipeline with barge-in accounting, and the
// tool-call confirmation gate.
//
// One Engine drives at most one live session; starting a new session fully
// tears down the previous one first. All collaborators (provider adapter,
// token source, tool executor, audio device, usage tracker) are injected at
// construction; the engine reaches for no global state.
package voicesession

import (
	"context"
	"fmt"
	"sync"

	"github.com/dbroz/warble-core/core/providers"
	"github.com/dbroz/warble-core/core/tools"
)

type Engine struct {
	adapter  providers.Adapter
	tokens   TokenSource
	executor tools.Executor
	device   AudioDevice
	opts     engineOptions

	mu      sync.Mutex
	current *session
}

// NewEngine builds an engine for one provider dialect. The adapter is
// selected here, once; nothing above this constructor branches on provider
// kind.
func NewEngine(
	adapter providers.Adapter,
	tokens TokenSource,
	executor tools.Executor,
	device AudioDevice,
	opts ...Option,
) *Engine {
	options := defaultEngineOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Engine{
		adapter:  adapter,
		tokens:   tokens,
		executor: executor,
		device:   device,
		opts:     options,
	}
}

// Start establishes a new voice session: fetches the ephemeral token, opens
// the transport, sends the configure handshake and starts audio capture.
// Any previous session is torn down first. ctx bounds the whole session
// lifetime; cancelling it stops the session.
func (e *Engine) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "start voice session")
	defer span.End()

	e.Stop()

	s, err := newSession(ctx, e.adapter, e.tokens, e.executor, e.device, e.opts)
	if err != nil {
		return fmt.Errorf("failed to start voice session: %w", err)
	}

	e.mu.Lock()
	e.current = s
	e.mu.Unlock()
	return nil
}

// Stop tears the current session down: capture cancelled, playback flushed
// and stopped, transport closed with a normal-closure code. In-flight tool
// executions may complete but their results are discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	s := e.current
	e.current = nil
	e.mu.Unlock()

	if s != nil {
		s.stop()
	}
}

// State reports the current session state; Disconnected when no session is
// live.
func (e *Engine) State() State {
	e.mu.Lock()
	s := e.current
	e.mu.Unlock()

	if s == nil {
		return Disconnected()
	}
	return s.currentState()
}

// SessionInfo reports the live session's identity; ok is false when no
// session is live.
func (e *Engine) SessionInfo() (info SessionInfo, ok bool) {
	s, err := e.liveSession()
	if err != nil {
		return SessionInfo{}, false
	}
	return s.info(), true
}

// Approve executes the focused pending confirmation. Returns
// tools.ErrNotPending when callID no longer references it.
func (e *Engine) Approve(ctx context.Context, callID string) error {
	s, err := e.liveSession()
	if err != nil {
		return err
	}
	return s.gate.Approve(ctx, callID)
}

// Reject declines the focused pending confirmation without executing it.
func (e *Engine) Reject(ctx context.Context, callID string) error {
	s, err := e.liveSession()
	if err != nil {
		return err
	}
	return s.gate.Reject(ctx, callID)
}

// SetMuted pauses or resumes sending captured audio to the provider while
// keeping the device and session alive.
func (e *Engine) SetMuted(muted bool) {
	e.mu.Lock()
	s := e.current
	e.mu.Unlock()

	if s != nil {
		s.muted.Store(muted)
	}
}

// PendingConfirmations returns a snapshot of queued confirmations.
func (e *Engine) PendingConfirmations() []tools.PendingConfirmation {
	s, err := e.liveSession()
	if err != nil {
		return nil
	}
	return s.gate.Pending()
}

func (e *Engine) liveSession() (*session, error) {
	e.mu.Lock()
	s := e.current
	e.mu.Unlock()

	if s == nil {
		return nil, ErrNotConnected
	}
	return s, nil
}
