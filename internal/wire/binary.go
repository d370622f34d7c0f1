package wire

import (
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeFrame prepends topic as a leading byte to the MessagePack encoding
// of payload.
func EncodeFrame(topic Topic, payload any) ([]byte, error) {
	body, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal topic %s: %w", topic, err)
	}
	frame := make([]byte, 0, len(body)+1)
	frame = append(frame, byte(topic))
	frame = append(frame, body...)
	return frame, nil
}

// DecodeFrame splits a binary frame into its topic tag and MessagePack
// body.
func DecodeFrame(frame []byte) (Topic, []byte, error) {
	if len(frame) < 1 {
		return 0, nil, fmt.Errorf("wire: empty frame")
	}
	return Topic(frame[0]), frame[1:], nil
}

// RadarAircraft is the radar-add/radar-update payload shape, keyed by
// integer field position for the binary protocol and by the long-form
// names below for the JSON protocol.
type RadarAircraft struct {
	ID        uint32  `json:"id"`
	Lon       float64 `json:"longitude"`
	Lat       float64 `json:"latitude"`
	Heading   float64 `json:"heading"`
	Alt       float64 `json:"altitude"`
	GroundAlt float64 `json:"groundAltitude"`
	IAS       float64 `json:"indicatedSpeed"`
	GS        float64 `json:"groundSpeed"`
	VS        float64 `json:"verticalSpeed"`
	Model     string  `json:"planeModel"`
	Callsign  string  `json:"callsign"`
}

func (r RadarAircraft) addMap() map[int]any {
	return map[int]any{
		0: r.ID, 1: r.Lon, 2: r.Lat, 3: r.Heading, 4: r.Alt,
		5: r.GroundAlt, 6: r.IAS, 7: r.GS, 8: r.VS, 9: r.Model, 10: r.Callsign,
	}
}

func (r RadarAircraft) updateMap() map[int]any {
	return map[int]any{
		0: r.ID, 1: r.Lon, 2: r.Lat, 3: r.Heading, 4: r.Alt,
		5: r.GroundAlt, 6: r.IAS, 7: r.GS, 8: r.VS,
	}
}

// EncodeRadarAdd builds the binary radar-add frame.
func EncodeRadarAdd(r RadarAircraft) ([]byte, error) { return EncodeFrame(TopicRadarAdd, r.addMap()) }

// EncodeRadarUpdate builds the binary radar-update frame (radar-add minus
// model/callsign).
func EncodeRadarUpdate(r RadarAircraft) ([]byte, error) {
	return EncodeFrame(TopicRadarUpdate, r.updateMap())
}

// EncodeRadarRemove builds the binary radar-remove frame.
func EncodeRadarRemove(id uint32) ([]byte, error) {
	return EncodeFrame(TopicRadarRemove, map[int]any{0: id})
}

// IDPayload is the radar-remove JSON payload shape: just the object id.
type IDPayload struct {
	ID uint32 `json:"id"`
}

// SystemState is the SRV_STATE / send-all-data companion payload
// describing simulator and server connectivity.
type SystemState struct {
	SimStatus int    `json:"simStatus"`
	SimName   string `json:"simName,omitempty"`
	SrvStatus int    `json:"srvStatus"`
}

// ResyncPayload is the send-all-data / SRV_RESYNC payload: the full
// radar and user snapshots, paired together.
type ResyncPayload struct {
	Radar []RadarAircraft `json:"radar"`
	User  *UserAircraft   `json:"user"`
}

// UserAircraft is the user-add/user-update payload shape.
type UserAircraft struct {
	Lon       float64 `json:"longitude"`
	Lat       float64 `json:"latitude"`
	Heading   float64 `json:"heading"`
	Alt       float64 `json:"altitude"`
	GroundAlt float64 `json:"groundAltitude"`
	IAS       float64 `json:"indicatedSpeed"`
	GS        float64 `json:"groundSpeed"`
	VS        float64 `json:"verticalSpeed"`
	RealAlt   float64 `json:"realAltitude"`
	RealHdg   float64 `json:"realHeading"`
	Model     string  `json:"planeModel"`
	Callsign  string  `json:"callsign"`
}

func (u UserAircraft) addMap() map[int]any {
	return map[int]any{
		0: u.Lon, 1: u.Lat, 2: u.Heading, 3: u.Alt, 4: u.GroundAlt,
		5: u.IAS, 6: u.GS, 7: u.VS, 8: u.RealAlt, 9: u.RealHdg, 10: u.Model, 11: u.Callsign,
	}
}

func (u UserAircraft) updateMap() map[int]any {
	return map[int]any{
		0: u.Lon, 1: u.Lat, 2: u.Heading, 3: u.Alt, 4: u.GroundAlt,
		5: u.IAS, 6: u.GS, 7: u.VS, 8: u.RealAlt, 9: u.RealHdg,
	}
}

// EncodeUserAdd builds the binary user-add frame.
func EncodeUserAdd(u UserAircraft) ([]byte, error) { return EncodeFrame(TopicUserAdd, u.addMap()) }

// EncodeUserUpdate builds the binary user-update frame (user-add minus
// model/callsign).
func EncodeUserUpdate(u UserAircraft) ([]byte, error) {
	return EncodeFrame(TopicUserUpdate, u.updateMap())
}

// EncodeUserRemove builds the binary user-remove frame; its payload is an
// empty map.
func EncodeUserRemove() ([]byte, error) {
	return EncodeFrame(TopicUserRemove, map[int]any{})
}

// EncodeResyncSnapshot builds the send-all-data frame: an array of
// [radarSnapshot, userSnapshot].
func EncodeResyncSnapshot(radarSnapshot []RadarAircraft, userSnapshot *UserAircraft) ([]byte, error) {
	radarMaps := make([]map[int]any, len(radarSnapshot))
	for i, r := range radarSnapshot {
		radarMaps[i] = r.addMap()
	}
	var userMap map[int]any
	if userSnapshot != nil {
		userMap = userSnapshot.addMap()
	}
	return EncodeFrame(TopicResync, []any{radarMaps, userMap})
}

// EncodeStateChange builds a modify-system-state frame. Keys are always
// emitted as MessagePack integers, resolving the source's
// integer/stringified-integer inconsistency on the encode side.
func EncodeStateChange(state map[int]bool) ([]byte, error) {
	return EncodeFrame(TopicStateChange, state)
}

// EncodeProps builds a modify-system-props frame.
func EncodeProps(props map[int]bool) ([]byte, error) {
	return EncodeFrame(TopicProperties, props)
}

// DecodeIntKeyedBoolMap decodes a MessagePack map whose keys may be
// integers or stringified integers (both appear on the wire) into a
// normalized map[int]bool.
func DecodeIntKeyedBoolMap(payload []byte) (map[int]bool, error) {
	var raw map[any]any
	if err := msgpack.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("wire: decode int-keyed bool map: %w", err)
	}
	out := make(map[int]bool, len(raw))
	for k, v := range raw {
		key, ok := toInt(k)
		if !ok {
			continue
		}
		b, _ := v.(bool)
		out[key] = b
	}
	return out, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
