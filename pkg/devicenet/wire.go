// Package devicenet implements the UDP slot-based transport between the
// bridge and its physical device peers: connection negotiation, heartbeat
// and timeout ticking, and framed application packets.
package devicenet

import "encoding/binary"

// Protocol constants, unchanged across revisions.
const (
	ProtoVersion  byte = 4
	ProtoRevision byte = 14

	DefaultPort = 4209
	MaxPacket   = 1340 // MTU(1500) - IP frame(96) - UDP header(64)

	ConnectTimeoutMS = 3_000
	TimeoutMS        = 10_000
	HeartbeatMS      = 1_000
)

// PacketType is the single-byte wire tag every datagram starts with.
type PacketType byte

const (
	PacketUnknown PacketType = iota
	PacketHeartbeat
	PacketConnNego
	PacketProtocol
	PacketDrop
)

// DropReason qualifies a Drop packet.
type DropReason byte

const (
	DropInvalid DropReason = iota
	DropBanned
	DropDisconnected
	DropFull
	DropInvalidProto
	DropKicked
	DropTimedOut
	dropLocal          // not used on the wire
	dropConnectTimeout // not used on the wire
	DropInvalidPacket
)

func (r DropReason) String() string {
	switch r {
	case DropInvalid:
		return "invalid"
	case DropBanned:
		return "banned"
	case DropDisconnected:
		return "disconnected"
	case DropFull:
		return "full"
	case DropInvalidProto:
		return "invalid_proto"
	case DropKicked:
		return "kicked"
	case DropTimedOut:
		return "timed_out"
	case DropInvalidPacket:
		return "invalid_packet"
	default:
		return "unknown"
	}
}

// InputID tags the meaning of an Input packet's payload. 0x85978597
// addresses the radio standby-frequency control.
const InputRadio uint32 = 0x85978597

// ClientRpc is the application-level code carried by an Rpc packet
// (server -> client).
type ClientRpc byte

const (
	RpcNone ClientRpc = iota
	RpcRebootDev
)

func encodeHeader(t PacketType) []byte { return []byte{byte(t)} }

// EncodeHeartbeat returns the single-byte Heartbeat datagram.
func EncodeHeartbeat() []byte { return encodeHeader(PacketHeartbeat) }

// EncodeConnNego returns a client->server negotiation datagram.
func EncodeConnNego() []byte {
	return []byte{byte(PacketConnNego), ProtoVersion, ProtoRevision}
}

// EncodeConnNegoResponse returns a server->client negotiation reply
// assigning slot.
func EncodeConnNegoResponse(slot byte) []byte {
	return []byte{byte(PacketConnNego), ProtoVersion, ProtoRevision, slot}
}

// EncodeDrop returns a Drop datagram carrying reason.
func EncodeDrop(reason DropReason) []byte {
	return []byte{byte(PacketDrop), byte(reason)}
}

// EncodeRpc returns an application Rpc datagram.
func EncodeRpc(code ClientRpc) []byte {
	return []byte{byte(PacketProtocol), byte(code)}
}

// EncodeInput returns an application Input datagram.
func EncodeInput(inputID, data uint32) []byte {
	buf := make([]byte, 1+3+4+4)
	buf[0] = byte(PacketProtocol)
	binary.LittleEndian.PutUint32(buf[4:], inputID)
	binary.LittleEndian.PutUint32(buf[8:], data)
	return buf
}

// DecodeInput parses an application Input packet body (buf excludes the
// leading PacketType tag, which the caller has already stripped).
func DecodeInput(buf []byte) (inputID, data uint32, ok bool) {
	if len(buf) < 3+4+4 {
		return 0, 0, false
	}
	inputID = binary.LittleEndian.Uint32(buf[3:7])
	data = binary.LittleEndian.Uint32(buf[7:11])
	return inputID, data, true
}

// DecodeConnNego parses a ConnNego packet body.
func DecodeConnNego(buf []byte) (proto, rev byte, ok bool) {
	if len(buf) < 2 {
		return 0, 0, false
	}
	return buf[0], buf[1], true
}

// PeekType reads the leading PacketType tag of a raw datagram.
func PeekType(buf []byte) (PacketType, []byte, bool) {
	if len(buf) < 1 {
		return PacketUnknown, nil, false
	}
	return PacketType(buf[0]), buf[1:], true
}
