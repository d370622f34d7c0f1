package devicenet

import "net"

// SlotID identifies a connection slot; slot 0 is the reserved fake-peer
// sentinel and is never wire-connected.
type SlotID byte

// Connection is one slot's state.
type Connection struct {
	id          SlotID
	connected   bool
	addr        *net.UDPAddr
	lastRecvMS  int64
	lastSendMS  int64
}

// ID returns the slot id.
func (c *Connection) ID() SlotID { return c.id }

// Connected reports whether this slot currently holds a live peer.
func (c *Connection) Connected() bool { return c.connected }

// Addr returns the peer's address, or nil if not connected.
func (c *Connection) Addr() *net.UDPAddr { return c.addr }

// LastReceiveMS returns the steady-time of the last datagram received from
// this peer.
func (c *Connection) LastReceiveMS() int64 { return c.lastRecvMS }

// LastSendMS returns the steady-time of the last datagram sent to this
// peer.
func (c *Connection) LastSendMS() int64 { return c.lastSendMS }

func (c *Connection) onConnect(addr *net.UDPAddr) {
	c.connected = true
	c.addr = addr
}

func (c *Connection) onDisconnect() {
	c.connected = false
	c.addr = nil
}

func (c *Connection) matches(addr *net.UDPAddr) bool {
	return c.connected && c.addr != nil && udpAddrEqual(c.addr, addr)
}

func udpAddrEqual(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
