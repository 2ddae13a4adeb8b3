package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"log"
	"sync"

	"github.com/dbroz/warble-core/core/audio"
	"github.com/gordonklaus/portaudio"
)

// Client is an alternative audio backend for hosts where miniaudio is
// unavailable. It drives a single duplex stream, so capture and playback
// share one device thread; the miniaudio backend is preferred.
type Client struct {
	bufferSize int
	encoding   audio.EncodingInfo
	stream     *portaudio.Stream

	mu            sync.Mutex
	leftoverAudio []byte
	onAudio       func(audio []byte)

	in  []int16
	out []int16
}

func NewClient(bufferSize int, encoding audio.EncodingInfo) (*Client, error) {
	if encoding.IsZero() {
		encoding = audio.GetDefaultEncodingInfo()
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, audio.NewDeviceError("capture", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, float64(encoding.SampleRate), bufferSize, in, out)
	if err != nil {
		portaudio.Terminate()
		return nil, audio.NewDeviceError("capture", err)
	}

	return &Client{
		bufferSize: bufferSize,
		encoding:   encoding,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.mu.Lock()
	c.onAudio = onAudio
	c.mu.Unlock()

	if err := c.stream.Start(); err != nil {
		return audio.NewDeviceError("capture", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if err := c.stream.Read(); err != nil {
					log.Printf("Failed to read from PortAudio stream: %v", err)
					continue
				}

				c.mu.Lock()
				onAudio := c.onAudio
				c.mu.Unlock()
				if onAudio == nil {
					return
				}

				audioBuffer := bytes.Buffer{}
				binary.Write(&audioBuffer, binary.LittleEndian, c.in)
				onAudio(audioBuffer.Bytes())
			}
		}
	}()

	return nil
}

func (c *Client) StopCapture() error {
	c.mu.Lock()
	c.onAudio = nil
	c.mu.Unlock()
	return nil
}

func (c *Client) StartPlayback(context.Context) error { return nil }

func (c *Client) StopPlayback() error {
	c.Flush()
	return nil
}

func (c *Client) SendAudio(chunk []byte) error {
	bufferSize := c.bufferSize * 2

	c.mu.Lock()
	defer c.mu.Unlock()
	chunk = append(c.leftoverAudio, chunk...)
	for i := range len(chunk)/bufferSize + 1 {
		if (i+1)*bufferSize > len(chunk) {
			c.leftoverAudio = make([]byte, len(chunk)-i*bufferSize)
			copy(c.leftoverAudio, chunk[i*bufferSize:])
			break
		}

		if err := binary.Read(bytes.NewReader(chunk[i*bufferSize:(i+1)*bufferSize]), binary.LittleEndian, c.out); err != nil {
			return audio.NewDeviceError("playback", err)
		}
		if err := c.stream.Write(); err != nil {
			return audio.NewDeviceError("playback", err)
		}
	}

	return nil
}

func (c *Client) Flush() {
	c.mu.Lock()
	c.leftoverAudio = nil
	c.mu.Unlock()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}

func (c *Client) Close() {
	c.stream.Close()
	portaudio.Terminate()
}
