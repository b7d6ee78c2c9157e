package orchestration

import (
	"sync"

	"github.com/volleyhq/volley-core/core/llms"
)

// sessionHistory records the turns of a session, including interrupted ones
// with their partial responses. The runtime loop appends; snapshots are safe
// from any goroutine.
type sessionHistory struct {
	mu    sync.RWMutex
	turns []llms.Turn
}

func (h *sessionHistory) Append(turn llms.Turn) {
	h.mu.Lock()
	h.turns = append(h.turns, turn)
	h.mu.Unlock()
}

func (h *sessionHistory) Snapshot() []llms.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	turns := make([]llms.Turn, len(h.turns))
	copy(turns, h.turns)
	return turns
}

func (h *sessionHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.turns)
}
