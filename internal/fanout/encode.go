package fanout

import (
	"fmt"

	"skybridge/internal/wire"
	"skybridge/pkg/bridge"
)

// encodeBinary renders msg as a MessagePack frame for companion/device
// clients, dispatching on the concrete payload type the bridge attached.
func encodeBinary(msg bridge.TxMessage) ([]byte, error) {
	switch p := msg.Payload.(type) {
	case wire.RadarAircraft:
		switch msg.Topic {
		case wire.TopicRadarAdd:
			return wire.EncodeRadarAdd(p)
		case wire.TopicRadarUpdate:
			return wire.EncodeRadarUpdate(p)
		}
	case wire.IDPayload:
		return wire.EncodeRadarRemove(p.ID)
	case wire.UserAircraft:
		switch msg.Topic {
		case wire.TopicUserAdd:
			return wire.EncodeUserAdd(p)
		case wire.TopicUserUpdate:
			return wire.EncodeUserUpdate(p)
		}
	case nil:
		if msg.Topic == wire.TopicUserRemove {
			return wire.EncodeUserRemove()
		}
	case wire.SystemState:
		// The binary modify-system-state frame only ever carries the two
		// connectivity booleans; richer status codes and the simulator
		// name are a JSON-protocol-only extension.
		return wire.EncodeStateChange(map[int]bool{
			0: p.SimStatus == 2,
			1: p.SrvStatus >= 2,
		})
	case wire.ResyncPayload:
		return wire.EncodeResyncSnapshot(p.Radar, p.User)
	case map[int]bool:
		return wire.EncodeFrame(msg.Topic, p)
	}
	return nil, fmt.Errorf("fanout: no binary encoding for topic %s payload %T", msg.Topic, msg.Payload)
}

// encodeJSON renders msg as a "_msg_id"-discriminated JSON object for
// WebView clients.
func encodeJSON(msg bridge.TxMessage) ([]byte, error) {
	switch p := msg.Payload.(type) {
	case wire.ResyncPayload:
		return wire.EncodeJSON(msg.Topic, p)
	case nil:
		return wire.EncodeJSON(msg.Topic, struct{}{})
	default:
		return wire.EncodeJSON(msg.Topic, p)
	}
}

// isCritical reports whether topic must never be dropped under
// backpressure: adds, removes and state/property changes carry
// information no later message supersedes. Updates and resync halves
// are safe to drop because a newer one always follows.
func isCritical(topic wire.Topic) bool {
	switch topic {
	case wire.TopicRadarAdd, wire.TopicRadarRemove, wire.TopicUserAdd, wire.TopicUserRemove,
		wire.TopicStateChange, wire.TopicProperties:
		return true
	default:
		return false
	}
}
