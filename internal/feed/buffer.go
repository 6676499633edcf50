package feed

import (
	"sync"

	"github.com/trollcity/wallsync/internal/wall"
)

// ChangeEventBuffer decouples change-feed arrival rate from window update
// rate: events accumulate here and a fixed-interval flush drains the whole
// queue in one batched application. Draining swaps the backing slice, so
// events arriving during a drain queue for the next tick and are never
// lost or applied twice.
type ChangeEventBuffer struct {
	mu      sync.Mutex
	pending []wall.ChangeEvent
}

// NewChangeEventBuffer returns an empty buffer.
func NewChangeEventBuffer() *ChangeEventBuffer {
	return &ChangeEventBuffer{}
}

// Append queues one incoming change event.
func (b *ChangeEventBuffer) Append(event wall.ChangeEvent) {
	b.mu.Lock()
	b.pending = append(b.pending, event)
	b.mu.Unlock()
}

// Drain removes and returns all queued events in arrival order. An empty
// buffer returns nil so callers can skip the state transition entirely.
func (b *ChangeEventBuffer) Drain() []wall.ChangeEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return nil
	}
	drained := b.pending
	b.pending = nil
	return drained
}

// Len reports the number of queued events.
func (b *ChangeEventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
