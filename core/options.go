package voicesession

import (
	"context"

	"github.com/dbroz/warble-core/core/audio"
	"github.com/dbroz/warble-core/core/providers"
	"github.com/dbroz/warble-core/core/tools"
)

// TokenSource supplies the session's credentials: an ephemeral provider
// connection token fetched once per session start, and the bearer token the
// tool executor authenticates with. Both are opaque to the engine.
type TokenSource interface {
	RealtimeToken(ctx context.Context) (string, error)
	BearerToken(ctx context.Context) (string, error)
}

// UsageTracker is the credit collaborator. It is consulted after each tool
// execution and periodically during audio-heavy turns; a non-positive
// remaining balance forces the session into Error.
type UsageTracker interface {
	RecordToolUse(ctx context.Context, toolName string) (remaining float64, err error)
	RecordAudioSeconds(ctx context.Context, seconds float64) (remaining float64, err error)
}

// AudioDevice is the capture/playback pair a session exclusively owns while
// active. Implementations must keep capture and playback from blocking each
// other; Flush must take effect immediately.
type AudioDevice interface {
	StartCapture(ctx context.Context, onAudio func(frame []byte)) error
	StopCapture() error
	StartPlayback(ctx context.Context) error
	StopPlayback() error
	SendAudio(chunk []byte) error
	Flush()
	EncodingInfo() audio.EncodingInfo
}

// Callbacks push session activity outward. The engine never pulls from the
// UI except through Start/Stop/Approve/Reject/SetMuted. All callbacks may be
// nil; none may block for long.
type Callbacks struct {
	// OnStateChanged fires on every session state transition. On barge-in
	// the truncate command is already on the wire before the Listening
	// transition is exposed here.
	OnStateChanged func(state State)
	// OnAudioLevel reports the microphone loudness in [0, 1] per frame.
	OnAudioLevel func(level float64)
	// OnConversationItem receives the outward conversation feed.
	OnConversationItem func(item ConversationItem)
	// OnPendingConfirmation reports the focused confirmation, nil when none.
	OnPendingConfirmation func(pending *tools.PendingConfirmation)
	// OnError surfaces non-fatal and fatal session errors.
	OnError func(err error)
}

type engineOptions struct {
	instructions string
	voice        string
	sampleRate   int
	toolDefs     []providers.ToolDefinition
	boundary     audio.BoundaryConfig
	preview      tools.PreviewFunc
	usage        UsageTracker
	callbacks    Callbacks

	// usageCheckSeconds is how much assistant audio accumulates between
	// periodic balance checks.
	usageCheckSeconds float64
}

// Option configures the engine at construction.
type Option func(*engineOptions)

// WithInstructions sets the system instructions sent at configure time.
func WithInstructions(instructions string) Option {
	return func(o *engineOptions) { o.instructions = instructions }
}

// WithVoice selects the provider voice.
func WithVoice(voice string) Option {
	return func(o *engineOptions) { o.voice = voice }
}

// WithSampleRate overrides the negotiated PCM sample rate.
func WithSampleRate(sampleRate int) Option {
	return func(o *engineOptions) { o.sampleRate = sampleRate }
}

// WithTools declares the tool definitions translated into the provider's
// schema once per session.
func WithTools(definitions ...providers.ToolDefinition) Option {
	return func(o *engineOptions) { o.toolDefs = append(o.toolDefs, definitions...) }
}

// WithBoundaryDetection tunes the local speech-boundary detector.
func WithBoundaryDetection(config audio.BoundaryConfig) Option {
	return func(o *engineOptions) { o.boundary = config }
}

// WithConfirmationPreview installs the renderer for human-readable
// confirmation previews.
func WithConfirmationPreview(preview tools.PreviewFunc) Option {
	return func(o *engineOptions) { o.preview = preview }
}

// WithUsageTracker installs the credit collaborator.
func WithUsageTracker(tracker UsageTracker) Option {
	return func(o *engineOptions) { o.usage = tracker }
}

// WithCallbacks installs the outward UI callbacks.
func WithCallbacks(callbacks Callbacks) Option {
	return func(o *engineOptions) { o.callbacks = callbacks }
}

func defaultEngineOptions() engineOptions {
	return engineOptions{
		sampleRate:        audio.DefaultSampleRate,
		usageCheckSeconds: 30,
	}
}
