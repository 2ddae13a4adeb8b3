package miniaudio

import (
	"context"
	"fmt"

	"github.com/dbroz/warble-core/core/audio"
	"github.com/gen2brain/malgo"
)

// Client bundles a capture and a playback device sharing one miniaudio
// context. Capture and playback run on independent device threads and never
// block each other; playback is fed through a ring buffer.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	encoding     audio.EncodingInfo
	playbackClient
	captureClient
}

func NewClient(encoding audio.EncodingInfo) (*Client, error) {
	if encoding.IsZero() {
		encoding = audio.GetDefaultEncodingInfo()
	}

	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {},
	)
	if err != nil {
		return nil, audio.NewDeviceError("capture", fmt.Errorf("miniaudio context init failed: %w", err))
	}

	client := Client{
		audioContext: audioCtx,
		encoding:     encoding,
	}

	if err := client.playbackClient.Init(audioCtx, encoding); err != nil {
		client.Close()
		return nil, audio.NewDeviceError("playback", err)
	}

	if err := client.captureClient.Init(audioCtx, encoding); err != nil {
		client.Close()
		return nil, audio.NewDeviceError("capture", err)
	}

	return &client, nil
}

func (c *Client) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	if err := c.captureClient.Start(onAudio); err != nil {
		return audio.NewDeviceError("capture", err)
	}
	return nil
}

func (c *Client) StopCapture() error {
	if err := c.captureClient.Stop(); err != nil {
		return audio.NewDeviceError("capture", err)
	}
	return nil
}

func (c *Client) StartPlayback(_ context.Context) error {
	if err := c.playbackClient.Start(); err != nil {
		return audio.NewDeviceError("playback", err)
	}
	return nil
}

func (c *Client) StopPlayback() error {
	if err := c.playbackClient.Stop(); err != nil {
		return audio.NewDeviceError("playback", err)
	}
	return nil
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

// SendAudio queues decoded assistant audio for playback.
func (c *Client) SendAudio(audio []byte) error {
	return c.playbackClient.SendAudio(audio)
}

// Flush drops all queued playback audio immediately. Used on barge-in.
func (c *Client) Flush() {
	c.playbackClient.Flush()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}
