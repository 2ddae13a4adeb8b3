package miniaudio

import (
	"fmt"
	"sync"
	"time"

	"github.com/dbroz/warble-core/core/audio"
	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"
)

// The queue holds up to 60s of assistant audio. The provider streams faster
// than realtime, so it has to absorb whole responses.
const playbackBufferSeconds = 60

type playbackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	buffer *ringbuffer.RingBuffer

	mu sync.Mutex
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sampleRate := uint32(encoding.SampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.buffer = ringbuffer.New(encoding.BytesPerSecond() * playbackBufferSeconds)

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	c.config.Periods = 4

	c.audioContext = audioContext

	var err error
	if c.device, err = malgo.InitDevice(
		c.audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return err
	}

	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.device.IsStarted() {
		return nil
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	c.buffer.Reset()
	return nil
}

// SendAudio queues a decoded chunk. A full buffer drops the oldest audio
// rather than blocking the caller; the engine feeds this from its event loop
// and must never stall on playback.
func (c *playbackClient) SendAudio(chunk []byte) error {
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()

	if device == nil {
		return fmt.Errorf("device not initialized")
	} else if !device.IsStarted() {
		return fmt.Errorf("device not started")
	}

	for len(chunk) > 0 {
		n, err := c.buffer.TryWrite(chunk)
		if err != nil && n == 0 {
			discard := make([]byte, len(chunk))
			_, _ = c.buffer.Read(discard)
			continue
		}
		chunk = chunk[n:]
	}
	return nil
}

// Flush discards everything queued but not yet written to the device.
func (c *playbackClient) Flush() {
	c.buffer.Reset()
}

// Buffered reports queued-but-unplayed bytes.
func (c *playbackClient) Buffered() int {
	return c.buffer.Length()
}

// AwaitDrain blocks until the queue empties or the timeout passes.
func (c *playbackClient) AwaitDrain(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for c.buffer.Length() > 0 {
		if time.Now().After(deadline) {
			return fmt.Errorf("playback drain timed out with %d bytes queued", c.buffer.Length())
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.device.Uninit()
	c.device = nil

	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame
		if need == 0 || c.buffer.Length() == 0 {
			return
		}

		// Silence-pad partial reads; TryRead never blocks the device thread.
		n, _ := c.buffer.TryRead(pOutput[:min(need, c.buffer.Length())])
		for i := n; i < need; i++ {
			pOutput[i] = 0
		}
	}
}
