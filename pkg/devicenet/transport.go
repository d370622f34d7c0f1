package devicenet

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"skybridge/internal/clock"
)

// DefaultSlotCount is N+1 reserved+user slots for the default N=3.
const DefaultSlotCount = 3 + 1

// Transport is the UDP slot-based peer table: connection negotiation,
// heartbeat/timeout ticking, and framed send/receive. Slot 0 is a
// reserved "fake peer" that is always marked connected but never
// wire-addressed, matching the original Transport's ConnectFakePeer.
type Transport struct {
	mu sync.Mutex

	conn   *net.UDPConn
	slots  []Connection
	logger *slog.Logger

	connectedCount  int
	nearestFreeSlot int

	tickStartMS int64
	tickEndMS   int64

	OnConnected    func(conn *Connection)
	OnDisconnected func(conn *Connection)
	OnData         func(conn *Connection, payload []byte)
}

// NewTransport constructs a Transport with slotCount slots (including the
// reserved slot 0).
func NewTransport(slotCount int, logger *slog.Logger) *Transport {
	if slotCount < 1 {
		slotCount = DefaultSlotCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	slots := make([]Connection, slotCount)
	for i := range slots {
		slots[i] = Connection{id: SlotID(i)}
	}
	return &Transport{slots: slots, logger: logger.With("component", "devicenet")}
}

// Listen binds the UDP socket and marks slot 0 as the permanently
// connected fake peer.
func (t *Transport) Listen(address string, port int) error {
	udpAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return fmt.Errorf("devicenet: resolve %s:%d: %w", address, port, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("devicenet: listen %s:%d: %w", address, port, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.reset()
	t.mu.Unlock()

	t.connectFakePeer()
	t.logger.Info("listening", "address", address, "port", port)
	return nil
}

// Close shuts down the socket.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (t *Transport) reset() {
	t.nearestFreeSlot = 0
	t.connectedCount = 0
	for i := range t.slots {
		t.slots[i].onDisconnect()
	}
}

func (t *Transport) connectFakePeer() {
	t.mu.Lock()
	handler := t.OnConnected
	t.OnConnected = nil
	conn := t.connectPeerLocked(nil)
	t.OnConnected = handler
	t.mu.Unlock()
	if conn == nil {
		t.logger.Error("fake peer could not connect")
	}
}

// Poll drains every pending datagram, waiting at most about a millisecond
// for more once the socket is empty, dispatches each to the matching slot
// (or negotiates a new one), then runs the heartbeat/timeout sweep. Call
// this once per real-time tick.
func (t *Transport) Poll() {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return
	}

	now := clock.SteadyNowMS()
	t.mu.Lock()
	t.tickStartMS = now
	t.mu.Unlock()

	buf := make([]byte, MaxPacket)
	_ = conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil || n <= 0 {
			break
		}
		t.handlePacket(buf[:n], addr, now)
	}

	tickEnd := clock.SteadyNowMS()
	t.mu.Lock()
	t.tickEndMS = tickEnd
	t.mu.Unlock()

	t.updateTimers(tickEnd)
	t.checkTick(now, tickEnd)
}

func (t *Transport) checkTick(start, end int64) {
	if end-start > 1000 {
		t.logger.Warn("tick took too long", "duration_ms", end-start)
	}
}

func (t *Transport) handlePacket(buf []byte, addr *net.UDPAddr, now int64) {
	typ, body, ok := PeekType(buf)
	if !ok {
		return
	}

	t.mu.Lock()
	slot := t.findConnectionLocked(addr)
	t.mu.Unlock()

	if slot == nil {
		if typ == PacketConnNego {
			t.handleNewConnection(body, addr, now)
		}
		return
	}

	switch typ {
	case PacketDrop:
		t.notifyDisconnected(slot)
		t.disconnectInternal(slot)

	case PacketProtocol:
		t.mu.Lock()
		slot.lastRecvMS = now
		cb := t.OnData
		t.mu.Unlock()
		if cb != nil {
			cb(slot, body)
		}

	case PacketHeartbeat:
		t.mu.Lock()
		slot.lastRecvMS = now
		t.mu.Unlock()

	case PacketConnNego:
		t.handleReconnection(body, addr, slot, now)
	}
}

func (t *Transport) handleNewConnection(body []byte, addr *net.UDPAddr, now int64) {
	proto, rev, ok := DecodeConnNego(body)
	if !ok {
		return
	}

	t.mu.Lock()
	full := t.connectedCount >= len(t.slots)
	t.mu.Unlock()
	if full {
		t.sendRaw(EncodeDrop(DropFull), addr)
		return
	}

	if proto != ProtoVersion || rev != ProtoRevision {
		t.sendRaw(EncodeDrop(DropInvalidProto), addr)
		return
	}

	t.mu.Lock()
	slot := t.connectPeerLocked(addr)
	if slot != nil {
		slot.lastSendMS = now
		slot.lastRecvMS = now
	}
	t.mu.Unlock()
	if slot == nil {
		return
	}
	t.sendRaw(EncodeConnNegoResponse(byte(slot.id)), addr)
}

func (t *Transport) handleReconnection(body []byte, addr *net.UDPAddr, slot *Connection, now int64) {
	proto, rev, ok := DecodeConnNego(body)
	if !ok {
		t.Disconnect(slot, DropKicked)
		return
	}
	if proto != ProtoVersion || rev != ProtoRevision {
		t.Disconnect(slot, DropInvalidProto)
		return
	}

	t.mu.Lock()
	slot.lastSendMS = now
	slot.lastRecvMS = now
	t.mu.Unlock()
	t.sendRaw(EncodeConnNegoResponse(byte(slot.id)), addr)
}

// connectPeerLocked assigns addr to nearestFreeSlot and advances the free
// slot cursor. Caller holds t.mu; it is released while OnConnected runs, so
// the callback may call back into the Transport.
func (t *Transport) connectPeerLocked(addr *net.UDPAddr) *Connection {
	if t.connectedCount >= len(t.slots) {
		return nil
	}
	t.connectedCount++
	slot := &t.slots[t.nearestFreeSlot]
	slot.onConnect(addr)

	for i := t.nearestFreeSlot + 1; i < len(t.slots); i++ {
		if !t.slots[i].connected {
			t.nearestFreeSlot = i
			break
		}
	}

	cb := t.OnConnected
	if cb != nil {
		t.mu.Unlock()
		cb(slot)
		t.mu.Lock()
	}
	return slot
}

func (t *Transport) findConnectionLocked(addr *net.UDPAddr) *Connection {
	for i := range t.slots {
		if t.slots[i].matches(addr) {
			return &t.slots[i]
		}
	}
	return nil
}

// Disconnect sends a Drop packet to slot's peer (if it has a wire address)
// and tears down the slot. Returns false if the slot was not connected.
func (t *Transport) Disconnect(slot *Connection, reason DropReason) bool {
	t.mu.Lock()
	connected := slot.connected
	addr := slot.addr
	t.mu.Unlock()
	if !connected {
		return false
	}
	if addr != nil {
		t.sendRaw(EncodeDrop(reason), addr)
	}
	t.disconnectInternal(slot)
	return true
}

func (t *Transport) disconnectInternal(slot *Connection) {
	t.mu.Lock()
	slot.onDisconnect()
	t.connectedCount--
	if int(slot.id) < t.nearestFreeSlot {
		t.nearestFreeSlot = int(slot.id)
	}
	t.mu.Unlock()
	t.notifyDisconnected(slot)
}

func (t *Transport) notifyDisconnected(slot *Connection) {
	t.mu.Lock()
	cb := t.OnDisconnected
	t.mu.Unlock()
	if cb != nil {
		cb(slot)
	}
}

// Kick disconnects the peer at id for being kicked. Slot 0 cannot be
// kicked.
func (t *Transport) Kick(id SlotID) bool {
	if int(id) >= len(t.slots) || id == 0 {
		return false
	}
	return t.Disconnect(&t.slots[id], DropKicked)
}

// KickAll disconnects every connected non-fake-peer slot.
func (t *Transport) KickAll() {
	for i := 1; i < len(t.slots); i++ {
		t.Disconnect(&t.slots[i], DropKicked)
	}
}

// Send writes buf to the peer at id. A no-op for slot 0 or a disconnected
// slot.
func (t *Transport) Send(id SlotID, buf []byte) {
	if id == 0 || int(id) >= len(t.slots) {
		return
	}
	t.mu.Lock()
	slot := &t.slots[id]
	connected, addr := slot.connected, slot.addr
	t.mu.Unlock()
	if !connected {
		return
	}
	t.sendRaw(buf, addr)
	t.mu.Lock()
	slot.lastSendMS = t.tickStartMS
	t.mu.Unlock()
}

// SendToAll writes buf to every connected, wire-addressed peer.
func (t *Transport) SendToAll(buf []byte) {
	for i := 1; i < len(t.slots); i++ {
		t.Send(SlotID(i), buf)
	}
}

func (t *Transport) sendRaw(buf []byte, addr *net.UDPAddr) {
	if addr == nil {
		return
	}
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return
	}
	if _, err := conn.WriteToUDP(buf, addr); err != nil {
		t.logger.Debug("send failed", "addr", addr, "error", err)
	}
}

// ConnectionCount returns the number of connected slots, slot 0 included.
func (t *Transport) ConnectionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectedCount
}

// ForEachConnection invokes fn for every currently connected slot.
func (t *Transport) ForEachConnection(fn func(*Connection)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if t.slots[i].connected {
			fn(&t.slots[i])
		}
	}
}

func (t *Transport) updateTimers(now int64) {
	t.mu.Lock()
	var timedOut []SlotID
	var due []SlotID
	for i := 1; i < len(t.slots); i++ {
		slot := &t.slots[i]
		if !slot.connected {
			continue
		}
		if now-slot.lastRecvMS >= TimeoutMS {
			timedOut = append(timedOut, slot.id)
			continue
		}
		if now-slot.lastSendMS >= HeartbeatMS {
			due = append(due, slot.id)
		}
	}
	t.mu.Unlock()

	for _, id := range timedOut {
		t.Disconnect(&t.slots[id], DropTimedOut)
		t.logger.Info("peer timed out", "slot", id)
	}
	for _, id := range due {
		t.Send(id, EncodeHeartbeat())
	}
}
