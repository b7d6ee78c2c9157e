package orchestration

import "sync"

// streamQueue is an unbounded ordered queue between a producer that must
// never block and a single consumer draining it through the blocking Items
// iterator. Finish ends the stream once the remaining items are consumed;
// Stop ends it immediately.
type streamQueue[T any] struct {
	mu       sync.Mutex
	items    []T
	consumed int
	finished bool
	stopped  bool

	updateSignal chan struct{}
}

func newStreamQueue[T any]() *streamQueue[T] {
	return &streamQueue[T]{
		updateSignal: make(chan struct{}, 1),
	}
}

// Push appends an item to the queue. Items pushed after Finish or Stop are
// dropped.
func (q *streamQueue[T]) Push(item T) {
	q.mu.Lock()
	if q.finished || q.stopped {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signalUpdate()
}

// Items yields queued items in insertion order, blocking until more arrive
// or the queue is finished or stopped. Intended for a single consumer.
func (q *streamQueue[T]) Items(yield func(T) bool) {
	for {
		q.mu.Lock()
		if q.stopped {
			q.mu.Unlock()
			return
		}

		if q.consumed < len(q.items) {
			item := q.items[q.consumed]
			q.consumed++
			q.mu.Unlock()
			if !yield(item) {
				return
			}
			continue
		}

		if q.finished {
			q.mu.Unlock()
			return
		}

		q.mu.Unlock()
		<-q.updateSignal
	}
}

// Finish marks the end of the stream. The consumer still receives items
// pushed before the call.
func (q *streamQueue[T]) Finish() {
	q.mu.Lock()
	q.finished = true
	q.mu.Unlock()
	q.signalUpdate()
}

// Stop ends the stream immediately, discarding items not yet consumed.
func (q *streamQueue[T]) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.signalUpdate()
}

func (q *streamQueue[T]) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}
