package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// MsgID is the "_msg_id" discriminator used by the WebView JSON protocol.
type MsgID string

const (
	MsgFlightAdd    MsgID = "FLT_ADD"
	MsgFlightRemove MsgID = "FLT_REMOVE"
	MsgFlightUpdate MsgID = "FLT_UPDATE"
	MsgUserAdd      MsgID = "UAC_ADD"
	MsgUserRemove   MsgID = "UAC_REMOVE"
	MsgUserUpdate   MsgID = "UAC_UPDATE"
	MsgServerState  MsgID = "SRV_STATE"
	MsgServerResync MsgID = "SRV_RESYNC"
	MsgServerModify MsgID = "SRV_MODIFY"
	MsgServerProps  MsgID = "SRV_PROPS"
	MsgAllRequestState MsgID = "ALL_RQST_STATE"
)

// TopicToMsgID maps an outbound Topic to its JSON discriminator.
func TopicToMsgID(t Topic) (MsgID, bool) {
	switch t {
	case TopicResync:
		return MsgServerResync, true
	case TopicStateChange:
		return MsgServerState, true
	case TopicProperties:
		return MsgServerProps, true
	case TopicRadarAdd:
		return MsgFlightAdd, true
	case TopicRadarRemove:
		return MsgFlightRemove, true
	case TopicRadarUpdate:
		return MsgFlightUpdate, true
	case TopicUserAdd:
		return MsgUserAdd, true
	case TopicUserRemove:
		return MsgUserRemove, true
	case TopicUserUpdate:
		return MsgUserUpdate, true
	default:
		return "", false
	}
}

// envelope is the JSON wire shape: a flat object carrying the
// discriminator alongside whatever fields the payload contributes.
type envelope struct {
	MsgID MsgID          `json:"_msg_id"`
	Data  map[string]any `json:"data,omitempty"`
}

// EncodeJSON wraps payload (a struct or map, marshaled to a JSON object)
// into an envelope tagged with topic's discriminator.
func EncodeJSON(topic Topic, payload any) ([]byte, error) {
	msgID, ok := TopicToMsgID(topic)
	if !ok {
		return nil, fmt.Errorf("wire: topic %s has no JSON discriminator", topic)
	}
	data, err := toStringMap(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: encode json topic %s: %w", topic, err)
	}
	return json.Marshal(envelope{MsgID: msgID, Data: data})
}

func toStringMap(payload any) (map[string]any, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeJSONEnvelope extracts the discriminator and raw data object from
// an inbound WebView message, without interpreting data's shape.
func DecodeJSONEnvelope(raw []byte) (MsgID, map[string]json.RawMessage, error) {
	var env struct {
		MsgID MsgID                      `json:"_msg_id"`
		Data  map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("wire: decode json envelope: %w", err)
	}
	if env.MsgID == "" {
		return "", nil, fmt.Errorf("wire: json message missing _msg_id")
	}
	return env.MsgID, env.Data, nil
}

// IntKey is a map key that accepts either a JSON number or a stringified
// integer on decode, but always marshals back out as a bare integer.
// This resolves modify-system-state's ambiguous key encoding: the UI may
// send either form, the bridge always emits integers.
type IntKey int

func (k IntKey) MarshalText() ([]byte, error) {
	return []byte(strconv.Itoa(int(k))), nil
}

func (k *IntKey) UnmarshalText(text []byte) error {
	v, err := strconv.Atoi(string(text))
	if err != nil {
		return fmt.Errorf("wire: int key %q is not an integer: %w", text, err)
	}
	*k = IntKey(v)
	return nil
}

// DecodeSystemState decodes a modify-system-state data object whose keys
// may be JSON numbers (decoded by Go's json package as object keys are
// always strings, so this covers the "stringified integer" case
// uniformly) into a normalized map[int]bool.
func DecodeSystemState(data map[string]json.RawMessage) (map[int]bool, error) {
	out := make(map[int]bool, len(data))
	for k, v := range data {
		key, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("wire: modify-system-state key %q is not an integer: %w", k, err)
		}
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return nil, fmt.Errorf("wire: modify-system-state value for key %q is not a bool: %w", k, err)
		}
		out[key] = b
	}
	return out, nil
}

// EncodeSystemState builds the data object for a modify-system-state /
// state-change message, always emitting integer-valued keys as decimal
// strings (JSON object keys are always strings on the wire; the
// invariant this preserves is that the bridge never emits the
// alternate forms a client might send, like zero-padded or hex keys).
func EncodeSystemState(state map[int]bool) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[strconv.Itoa(k)] = v
	}
	return out
}
