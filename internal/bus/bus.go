// Package bus implements the in-process publish/subscribe channel that
// decouples the resampler and analytics producers from the broadcast
// gateway. Delivery is broadcast-only: subscribers receive events published
// while they are subscribed, in publish order, with no replay.
package bus

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// defaultBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind starts losing events rather than blocking
// publishers.
const defaultBuffer = 256

// Bus fans published events out to every current subscriber.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan []byte
	nextID uint64
	logger *slog.Logger
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[uint64]chan []byte),
		logger: logger.With("component", "bus"),
	}
}

// Subscribe registers a listener and returns its event channel plus a
// cancel function. Cancel is idempotent and closes the channel.
func (b *Bus) Subscribe() (<-chan []byte, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan []byte, defaultBuffer)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish marshals v to JSON and delivers it to every subscriber. A slow
// subscriber with a full buffer misses the event; publishers never block.
func (b *Bus) Publish(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("marshal event failed", "error", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- payload:
		default:
			b.logger.Warn("subscriber lagging, event dropped", "subscriber", id)
		}
	}
}
