package audio

import "time"

// BoundaryDetector performs local speech-boundary detection on captured
// frames, independent of the provider's server-side voice-activity
// detection. It is a plain energy gate with a hangover window: speech opens
// the gate immediately, silence has to persist for the configured hold
// before the utterance is considered finished.
//
// Not safe for concurrent use; feed it from the capture callback only.
type BoundaryDetector struct {
	openThreshold float64
	hold          time.Duration

	inSpeech    bool
	lastVoiced  time.Time
	onUtterance func()
}

// BoundaryConfig tunes the detector. Zero values fall back to defaults that
// behave reasonably for close-mic 24 kHz capture.
type BoundaryConfig struct {
	// OpenThreshold is the RMS level above which a frame counts as voiced.
	OpenThreshold float64
	// Hold is how long silence must last before the utterance boundary fires.
	Hold time.Duration
}

const (
	defaultOpenThreshold = 0.015
	defaultHold          = 700 * time.Millisecond
)

// NewBoundaryDetector builds a detector that invokes onUtterance once per
// detected end-of-utterance. onUtterance must not block.
func NewBoundaryDetector(config BoundaryConfig, onUtterance func()) *BoundaryDetector {
	if config.OpenThreshold <= 0 {
		config.OpenThreshold = defaultOpenThreshold
	}
	if config.Hold <= 0 {
		config.Hold = defaultHold
	}
	if onUtterance == nil {
		onUtterance = func() {}
	}

	return &BoundaryDetector{
		openThreshold: config.OpenThreshold,
		hold:          config.Hold,
		onUtterance:   onUtterance,
	}
}

// Feed consumes one captured frame and its precomputed level, firing the
// utterance callback when a speech-to-silence boundary is crossed. Returns
// whether the detector currently considers the user to be speaking.
func (d *BoundaryDetector) Feed(level float64, now time.Time) bool {
	if level >= d.openThreshold {
		d.inSpeech = true
		d.lastVoiced = now
		return true
	}

	if d.inSpeech && now.Sub(d.lastVoiced) >= d.hold {
		d.inSpeech = false
		d.onUtterance()
	}

	return d.inSpeech
}

// Reset clears any in-progress utterance, used when capture stops.
func (d *BoundaryDetector) Reset() {
	d.inSpeech = false
	d.lastVoiced = time.Time{}
}
