package devicenet

import (
	"net"
	"testing"
	"time"
)

func newLoopbackTransport(t *testing.T, slotCount int) (*Transport, int) {
	t.Helper()
	tr := NewTransport(slotCount, nil)
	if err := tr.Listen("127.0.0.1", 0); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr, tr.conn.LocalAddr().(*net.UDPAddr).Port
}

func dialClient(t *testing.T, port int) *net.UDPConn {
	t.Helper()
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestFakePeerConnectedAtListen(t *testing.T) {
	tr, _ := newLoopbackTransport(t, DefaultSlotCount)
	if tr.ConnectionCount() != 1 {
		t.Fatalf("expected fake peer connected, count=%d", tr.ConnectionCount())
	}
}

func TestNewConnectionNegotiatesAndAssignsSlot(t *testing.T) {
	tr, port := newLoopbackTransport(t, DefaultSlotCount)

	var connected *Connection
	tr.OnConnected = func(c *Connection) { connected = c }

	client := dialClient(t, port)
	client.Write(EncodeConnNego())
	tr.Poll()

	if connected == nil || connected.ID() != 1 {
		t.Fatalf("expected slot 1 to connect, got %v", connected)
	}

	client.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, MaxPacket)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("expected a ConnNego response: %v", err)
	}
	if PacketType(buf[0]) != PacketConnNego || buf[3] != 1 {
		t.Fatalf("unexpected response %v", buf[:n])
	}
}

func TestInvalidProtoIsDropped(t *testing.T) {
	tr, port := newLoopbackTransport(t, DefaultSlotCount)
	client := dialClient(t, port)
	client.Write([]byte{byte(PacketConnNego), 1, 1})
	tr.Poll()

	client.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, MaxPacket)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("expected a Drop response: %v", err)
	}
	if PacketType(buf[0]) != PacketDrop || DropReason(buf[1]) != DropInvalidProto {
		t.Fatalf("unexpected response %v", buf[:n])
	}
	if tr.ConnectionCount() != 1 {
		t.Fatalf("invalid proto must not connect a slot, count=%d", tr.ConnectionCount())
	}
}

func TestDataDispatchedAfterConnect(t *testing.T) {
	tr, port := newLoopbackTransport(t, DefaultSlotCount)
	client := dialClient(t, port)
	client.Write(EncodeConnNego())
	tr.Poll()
	drainClient(t, client)

	var gotInputID, gotData uint32
	tr.OnData = func(conn *Connection, payload []byte) {
		gotInputID, gotData, _ = DecodeInput(payload)
	}

	client.Write(EncodeInput(InputRadio, 118300))
	tr.Poll()

	if gotInputID != InputRadio || gotData != 118300 {
		t.Fatalf("expected dispatched input (%x, %d), got (%x, %d)", InputRadio, 118300, gotInputID, gotData)
	}
}

func TestKickDisconnectsSlot(t *testing.T) {
	tr, port := newLoopbackTransport(t, DefaultSlotCount)
	client := dialClient(t, port)
	client.Write(EncodeConnNego())
	tr.Poll()
	drainClient(t, client)

	if !tr.Kick(1) {
		t.Fatal("expected Kick(1) to succeed")
	}
	if tr.ConnectionCount() != 1 {
		t.Fatalf("expected only fake peer left, count=%d", tr.ConnectionCount())
	}

	client.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, MaxPacket)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("expected a Drop packet on kick: %v", err)
	}
	if PacketType(buf[0]) != PacketDrop || DropReason(buf[1]) != DropKicked {
		t.Fatalf("unexpected kick response %v", buf[:n])
	}
}

func TestSlotZeroCannotBeKicked(t *testing.T) {
	tr, _ := newLoopbackTransport(t, DefaultSlotCount)
	if tr.Kick(0) {
		t.Fatal("slot 0 must not be kickable")
	}
}

func drainClient(t *testing.T, conn *net.UDPConn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, MaxPacket)
	conn.Read(buf)
	conn.SetReadDeadline(time.Time{})
}
