// Package portaudio plays synthesized speech through the default output
// device for the dev client. Frames are queued without blocking; a pump
// goroutine feeds the device and paces playback, so dropping the queue is
// enough to cut the assistant off mid-sentence.
package portaudio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/volleyhq/volley-core/core/audio"
)

// flushDelay is how long a partial buffer waits for more audio before it is
// padded with silence and played anyway.
const flushDelay = 50 * time.Millisecond

type Client struct {
	sampleRate int
	stream     *portaudio.Stream
	out        []int16

	mu      sync.Mutex
	pending []byte
	wake    chan struct{}

	done      chan struct{}
	pumpEnded chan struct{}
	closeOnce sync.Once
}

// NewClient opens the default output device at the given sample rate
// (mono 16-bit PCM) and starts the playback pump.
func NewClient(sampleRate int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	// ~100ms per device write keeps the pump pacing without making
	// barge-in cuts feel sluggish.
	out := make([]int16, sampleRate/10)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(out), out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open playback stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start playback stream: %w", err)
	}

	client := &Client{
		sampleRate: sampleRate,
		stream:     stream,
		out:        out,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		pumpEnded:  make(chan struct{}),
	}
	go client.pump()

	return client, nil
}

// Enqueue appends raw audio to the playback queue. It never blocks.
func (c *Client) Enqueue(audio []byte) {
	c.mu.Lock()
	c.pending = append(c.pending, audio...)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Clear drops all queued audio. Whatever the device already holds still
// plays out, so the voice stops within one buffer.
func (c *Client) Clear() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

// Close stops the pump and releases the device.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.stream.Abort()
		<-c.pumpEnded

		_ = c.stream.Close()
		_ = portaudio.Terminate()
	})
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: c.sampleRate,
		Format:     audio.EncodingLinear16,
	}
}

// pump writes full device buffers while audio is queued and flushes a
// silence-padded tail when the stream goes quiet. Stream writes block until
// the device consumes them, which is what paces the loop.
func (c *Client) pump() {
	defer close(c.pumpEnded)

	bufferBytes := len(c.out) * 2
	flush := time.NewTimer(flushDelay)
	defer flush.Stop()

	for {
		chunk, partial := c.takeChunk(bufferBytes, false)
		if chunk == nil {
			if !flush.Stop() {
				select {
				case <-flush.C:
				default:
				}
			}
			flush.Reset(flushDelay)

			select {
			case <-c.done:
				return
			case <-c.wake:
				continue
			case <-flush.C:
				if chunk, partial = c.takeChunk(bufferBytes, true); chunk == nil {
					continue
				}
			}
		}

		if partial {
			chunk = append(chunk, make([]byte, bufferBytes-len(chunk))...)
		}

		if err := binary.Read(bytes.NewReader(chunk), binary.LittleEndian, c.out); err != nil {
			continue
		}
		if err := c.stream.Write(); err != nil {
			select {
			case <-c.done:
				return
			default:
			}
		}
	}
}

// takeChunk removes up to one device buffer from the queue. Without
// takePartial it only returns full buffers, leaving the tail queued until
// more audio arrives or the flush timer fires.
func (c *Client) takeChunk(bufferBytes int, takePartial bool) (chunk []byte, partial bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) >= bufferBytes {
		chunk = c.pending[:bufferBytes]
		c.pending = c.pending[bufferBytes:]
		return chunk, false
	}

	if takePartial && len(c.pending) > 0 {
		chunk = c.pending
		c.pending = nil
		return chunk, true
	}

	return nil, false
}
