// Package fanout delivers the bridge's outbound update stream to every
// connected WebSocket consumer — binary MessagePack companion/device
// clients and JSON WebView UIs alike — and routes their inbound commands
// back into the bridge's command queue.
package fanout

import (
	"log/slog"
	"sync"

	"skybridge/pkg/bridge"
)

// Observer records outbound delivery/drop counts, typically backed by
// *metrics.Registry.
type Observer interface {
	ObserveSent(topic string)
	ObserveDropped(topic string)
}

// Hub holds the set of connected clients and fans outbound bridge
// messages out to them, encoding once per wire flavor rather than once
// per client.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	logger   *slog.Logger
	observer Observer
}

// NewHub constructs an empty Hub. observer may be nil.
func NewHub(logger *slog.Logger, observer Observer) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:  make(map[*client]struct{}),
		logger:   logger.With("component", "fanout"),
		observer: observer,
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Broadcast delivers msg to every connected client, applying the
// per-client backpressure rule. Wire this as the bridge's Send callback.
func (h *Hub) Broadcast(msg bridge.TxMessage) {
	critical := isCritical(msg.Topic)

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	var haveBinary, haveJSON bool
	for c := range h.clients {
		clients = append(clients, c)
		if c.kind == flavorBinary {
			haveBinary = true
		} else {
			haveJSON = true
		}
	}
	h.mu.Unlock()

	var binaryFrame, jsonFrame []byte
	if haveBinary {
		if f, err := encodeBinary(msg); err != nil {
			h.logger.Warn("binary encode failed", "topic", msg.Topic, "error", err)
		} else {
			binaryFrame = f
		}
	}
	if haveJSON {
		if f, err := encodeJSON(msg); err != nil {
			h.logger.Warn("json encode failed", "topic", msg.Topic, "error", err)
		} else {
			jsonFrame = f
		}
	}

	for _, c := range clients {
		var delivered bool
		switch {
		case c.kind == flavorBinary && binaryFrame != nil:
			delivered = c.enqueue(binaryFrame, critical)
		case c.kind == flavorJSON && jsonFrame != nil:
			delivered = c.enqueue(jsonFrame, critical)
		default:
			continue
		}
		if h.observer == nil {
			continue
		}
		if delivered {
			h.observer.ObserveSent(msg.Topic.String())
		} else {
			h.observer.ObserveDropped(msg.Topic.String())
		}
	}
}

// ClientCount returns the number of currently connected clients, for
// status reporting.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
