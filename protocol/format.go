package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PayloadField returns the JSON field name that holds the payload for t
func PayloadField(t MessageType) string {
	switch t {
	case MsgSetJointsPositionSpeed, MsgGetJointsPositionSpeed:
		return "joints_position_speed"
	case MsgGetStatus:
		return "status"
	case MsgGetVersion:
		return "version"
	}
	return "raw"
}

// String renders the message as <Msg name: payload>
func (m Message) String() string {
	payload := "-"
	if m.Payload != nil {
		if b, err := json.Marshal(m.Payload); err == nil {
			payload = string(b)
		}
	}
	return fmt.Sprintf("<Msg %s: %s>", m.Type, payload)
}

// MarshalJSON encodes the message as {"msg_type": n, "<field>": payload}.
// A nil payload is rendered as the zero payload for the type.
func (m Message) MarshalJSON() ([]byte, error) {
	payload := derefPayload(m.Payload)
	if payload == nil {
		payload = NewPayload(m.Type)
	}
	obj := map[string]any{"msg_type": uint16(m.Type)}
	if payload != nil {
		obj[PayloadField(m.Type)] = payload
	}
	return json.Marshal(obj)
}

// UnmarshalJSON is the inverse of MarshalJSON. An absent payload field
// leaves Payload nil.
func (m *Message) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	rawType, ok := obj["msg_type"]
	if !ok {
		return fmt.Errorf("message: missing msg_type")
	}
	var tag uint16
	if err := json.Unmarshal(rawType, &tag); err != nil {
		return fmt.Errorf("message: msg_type: %w", err)
	}
	t := MessageType(tag)
	if !t.Valid() {
		return fmt.Errorf("message: %w: tag %d", ErrUnknownMessageType, tag)
	}

	m.Type = t
	m.Payload = nil
	if field, ok := obj[PayloadField(t)]; ok {
		p, err := UnmarshalPayload(t, field)
		if err != nil {
			return err
		}
		m.Payload = p
	}
	return nil
}

// UnmarshalPayload parses a JSON payload for message type t. Joints that are
// not listed keep their zero value.
func UnmarshalPayload(t MessageType, data []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch t {
	case MsgSetJointsPositionSpeed, MsgGetJointsPositionSpeed:
		var v JointsPositionSpeed
		err = json.Unmarshal(data, &v)
		p = v
	case MsgGetStatus:
		var v Status
		err = json.Unmarshal(data, &v)
		p = v
	case MsgGetVersion:
		var v Version
		err = json.Unmarshal(data, &v)
		p = v
	case MsgNop:
		var v Raw
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("payload: %w: tag %d", ErrUnknownMessageType, uint16(t))
	}
	if err != nil {
		return nil, fmt.Errorf("payload %s: %w", t, err)
	}
	return p, nil
}

// MarshalJSON renders raw bytes as a list of numbers rather than base64
func (r Raw) MarshalJSON() ([]byte, error) {
	vals := make([]uint16, len(r))
	for i, b := range r {
		vals[i] = uint16(b)
	}
	return json.Marshal(vals)
}

// UnmarshalJSON accepts a list of byte values
func (r *Raw) UnmarshalJSON(data []byte) error {
	var vals []uint16
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	out := make(Raw, len(vals))
	for i, v := range vals {
		if v > 0xFF {
			return fmt.Errorf("raw: byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	*r = out
	return nil
}

// HexDump renders a frame as space separated upper-case hex pairs
func HexDump(frame []byte) string {
	var sb strings.Builder
	for i, b := range frame {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}
