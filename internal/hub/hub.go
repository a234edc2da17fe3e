// Package hub is the broadcast gateway: it owns the set of live listener
// connections, consumes the event bus, and forwards every event to each
// listener as a text frame. A slow or failed listener is evicted and never
// blocks delivery to the others.
package hub

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quantlab/pulse/internal/bus"
)

const writeTimeout = 10 * time.Second

// connectedAck is the first frame sent on every new connection.
var connectedAck = []byte(`{"type":"connection","status":"connected"}`)

// Conn is the write side of a listener connection. *websocket.Conn
// satisfies it; tests substitute fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub maintains the live listener set and the bus-to-listener forward loop.
type Hub struct {
	mu     sync.RWMutex
	conns  map[Conn]struct{}
	bus    *bus.Bus
	logger *slog.Logger

	upgrader websocket.Upgrader
}

// New creates a hub over the given bus.
func New(b *bus.Bus, logger *slog.Logger) *Hub {
	return &Hub{
		conns:  make(map[Conn]struct{}),
		bus:    b,
		logger: logger.With("component", "hub"),
		upgrader: websocket.Upgrader{
			// Listeners are dashboards on arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run subscribes to the bus and forwards events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	events, cancel := h.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case payload := <-events:
			h.broadcast(payload)
		}
	}
}

// Subscribe adds a connection to the live set and sends the acknowledgement
// frame. A failed ack drops the connection immediately.
func (h *Hub) Subscribe(c Conn) {
	if err := c.WriteMessage(websocket.TextMessage, connectedAck); err != nil {
		h.logger.Warn("ack failed, dropping listener", "error", err)
		c.Close()
		return
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()

	h.logger.Info("listener connected", "listeners", n)
}

// Unsubscribe removes a connection; removing an unknown connection is a
// no-op.
func (h *Hub) Unsubscribe(c Conn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()

	if ok {
		c.Close()
	}
}

// Len reports the current number of live listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// broadcast forwards one payload to every live connection. Write failures
// are collected during the pass and the offenders evicted after it, so a
// bad listener cannot corrupt iteration or stall the rest.
func (h *Hub) broadcast(payload []byte) {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var failed []Conn
	for _, c := range targets {
		if ws, ok := c.(*websocket.Conn); ok {
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		}
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn("broadcast write failed, evicting listener", "error", err)
			failed = append(failed, c)
		}
	}

	for _, c := range failed {
		h.Unsubscribe(c)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.conns {
		c.Close()
	}
	h.conns = make(map[Conn]struct{})
	h.mu.Unlock()
}

// Handler upgrades an HTTP request to a listener connection and holds it
// open until the client goes away. Listeners are write-only; inbound
// frames are read and discarded to service control messages.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.Subscribe(ws)
	defer h.Unsubscribe(ws)

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
