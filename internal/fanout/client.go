package fanout

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"skybridge/internal/wire"
	"skybridge/pkg/bridge"
)

// maxQueue bounds each client's outbound backlog. Once full, the oldest
// droppable (update/resync) entry is evicted to make room for a new
// critical one; a new droppable entry is simply refused.
const maxQueue = 256

const writeTimeout = 5 * time.Second

// flavor selects which wire encoding a client speaks.
type flavor int

const (
	flavorBinary flavor = iota
	flavorJSON
)

type queuedFrame struct {
	data     []byte
	critical bool
}

// client is one connected WebSocket peer: a companion/device consumer on
// the binary protocol, or a WebView UI on the JSON protocol.
type client struct {
	id     string
	conn   *websocket.Conn
	kind   flavor
	logger *slog.Logger
	bridge rxSink

	mu     sync.Mutex
	queue  []queuedFrame
	closed bool
	notify chan struct{}
}

// rxSink is the narrow slice of *bridge.Bridge a client needs to forward
// decoded inbound commands.
type rxSink interface {
	PushRx(kind bridge.RxCmd, value bool)
}

func newClient(conn *websocket.Conn, kind flavor, b rxSink, logger *slog.Logger) *client {
	id := uuid.NewString()
	return &client{
		id:     id,
		conn:   conn,
		kind:   kind,
		bridge: b,
		logger: logger.With("client_id", id),
		notify: make(chan struct{}, 1),
	}
}

// enqueue appends frame to the client's backlog, applying the
// backpressure rule: if full, a new droppable entry is refused outright,
// and a new critical entry evicts the oldest droppable entry, or the
// oldest entry of any kind when none is droppable. It reports whether the
// frame was actually queued.
func (c *client) enqueue(frame []byte, critical bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}

	if len(c.queue) >= maxQueue {
		if !critical {
			return false
		}
		evicted := false
		for i, q := range c.queue {
			if !q.critical {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			c.queue = c.queue[1:]
		}
	}

	c.queue = append(c.queue, queuedFrame{data: frame, critical: critical})
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

// writePump drains the backlog to the socket until the client closes or
// the connection fails.
func (c *client) writePump() {
	defer c.conn.Close()
	for range c.notify {
		for {
			c.mu.Lock()
			if len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			next := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()

			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			msgType := websocket.BinaryMessage
			if c.kind == flavorJSON {
				msgType = websocket.TextMessage
			}
			if err := c.conn.WriteMessage(msgType, next.data); err != nil {
				c.logger.Debug("client write failed", "error", err)
				return
			}
		}
	}
}

// readPump decodes inbound commands from the client and forwards them to
// the bridge's rx queue until the connection closes.
func (c *client) readPump() {
	defer c.close()
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if c.kind == flavorBinary {
			if msgType != websocket.BinaryMessage {
				continue
			}
			c.handleBinaryCommand(data)
		} else {
			if msgType != websocket.TextMessage {
				continue
			}
			c.handleJSONCommand(data)
		}
	}
}

func (c *client) handleBinaryCommand(frame []byte) {
	topic, payload, err := wire.DecodeFrame(frame)
	if err != nil {
		c.logger.Warn("malformed binary command, discarding", "error", err)
		return
	}
	switch topic {
	case wire.TopicResync:
		c.bridge.PushRx(bridge.RxResync, true)
	case wire.TopicStateChange:
		flags, err := wire.DecodeIntKeyedBoolMap(payload)
		if err != nil {
			c.logger.Warn("malformed modify-system-state, discarding", "error", err)
			return
		}
		if v, ok := flags[0]; ok {
			c.bridge.PushRx(bridge.RxChangeSimLinkStatus, v)
		}
		if v, ok := flags[1]; ok {
			c.bridge.PushRx(bridge.RxChangeServerStatus, v)
		}
	case wire.TopicProperties:
		flags, err := wire.DecodeIntKeyedBoolMap(payload)
		if err != nil {
			c.logger.Warn("malformed modify-system-props, discarding", "error", err)
			return
		}
		if v, ok := flags[0]; ok {
			c.bridge.PushRx(bridge.RxReconnectToSim, v)
		}
	default:
		c.logger.Warn("unexpected inbound topic, discarding", "topic", topic)
	}
}

func (c *client) handleJSONCommand(raw []byte) {
	msgID, data, err := wire.DecodeJSONEnvelope(raw)
	if err != nil {
		c.logger.Warn("malformed json command, discarding", "error", err)
		return
	}
	switch msgID {
	case wire.MsgAllRequestState:
		c.bridge.PushRx(bridge.RxResync, true)
	case wire.MsgServerModify:
		flags, err := wire.DecodeSystemState(data)
		if err != nil {
			c.logger.Warn("malformed SRV_MODIFY, discarding", "error", err)
			return
		}
		if v, ok := flags[0]; ok {
			c.bridge.PushRx(bridge.RxChangeSimLinkStatus, v)
		}
		if v, ok := flags[1]; ok {
			c.bridge.PushRx(bridge.RxChangeServerStatus, v)
		}
	case wire.MsgServerProps:
		flags, err := wire.DecodeSystemState(data)
		if err != nil {
			c.logger.Warn("malformed SRV_PROPS, discarding", "error", err)
			return
		}
		if v, ok := flags[0]; ok {
			c.bridge.PushRx(bridge.RxReconnectToSim, v)
		}
	default:
		c.logger.Warn("unexpected inbound _msg_id, discarding", "msg_id", msgID)
	}
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.queue = nil
	c.mu.Unlock()
	close(c.notify)
}
