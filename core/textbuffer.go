package orchestration

import (
	"strings"
	"sync"
)

// textBuffer passes streamed response text from the agent worker to the
// synthesis feed worker. The agent side appends segments as they arrive and
// marks the stream complete; the synthesis side consumes them through the
// blocking Segments iterator.
type textBuffer struct {
	mu       sync.Mutex
	segments []string
	consumed int
	complete bool
	cleared  bool

	updateSignal chan struct{}
}

func newTextBuffer() *textBuffer {
	return &textBuffer{
		updateSignal: make(chan struct{}, 1),
	}
}

func (b *textBuffer) Append(segment string) {
	b.mu.Lock()
	b.segments = append(b.segments, segment)
	b.mu.Unlock()
	b.signalUpdate()
}

// Complete marks the end of the stream. Segments unblocks and returns once
// the remaining segments are consumed.
func (b *textBuffer) Complete() {
	b.mu.Lock()
	b.complete = true
	b.mu.Unlock()
	b.signalUpdate()
}

// Segments yields buffered segments in insertion order, blocking until more
// are appended or the stream is completed or cleared. Intended for a single
// consumer.
func (b *textBuffer) Segments(yield func(string) bool) {
	for {
		b.mu.Lock()
		if b.cleared {
			b.mu.Unlock()
			return
		}

		if b.consumed < len(b.segments) {
			segment := b.segments[b.consumed]
			b.consumed++
			b.mu.Unlock()
			if !yield(segment) {
				return
			}
			continue
		}

		if b.complete {
			b.mu.Unlock()
			return
		}

		b.mu.Unlock()
		<-b.updateSignal
	}
}

func (b *textBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return strings.Join(b.segments, "")
}

// Clear stops the iterator without waiting for pending segments. Used when a
// turn is cancelled so no further text reaches synthesis.
func (b *textBuffer) Clear() {
	b.mu.Lock()
	b.cleared = true
	b.mu.Unlock()
	b.signalUpdate()
}

func (b *textBuffer) signalUpdate() {
	select {
	case b.updateSignal <- struct{}{}:
	default:
	}
}
