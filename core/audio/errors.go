package audio

import "fmt"

// DeviceError reports failure to acquire or drive an audio device. It is
// kept distinct from session errors so callers can react to microphone
// permission problems with a prompt instead of tearing the session down.
type DeviceError struct {
	Direction string // "capture" or "playback"
	Err       error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio %s device error: %v", e.Direction, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// NewDeviceError wraps a device acquisition or stream failure.
func NewDeviceError(direction string, err error) *DeviceError {
	return &DeviceError{Direction: direction, Err: err}
}
