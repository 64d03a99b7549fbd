package protocol

import (
	"encoding/binary"
	"fmt"
)

// Layout fixes how the tag is encoded at the start of a frame. Payload bytes
// follow the tag directly and the frame is zero-padded to MessageLength.
// All multi-byte fields are little-endian.
type Layout struct {
	TagWidth int // 1 or 2 bytes
}

var (
	// DefaultLayout uses a single tag byte
	DefaultLayout = Layout{TagWidth: 1}

	// LegacyLayout uses a 16-bit little-endian tag, as written by hosts for
	// AVR builds where the C enum is two bytes wide
	LegacyLayout = Layout{TagWidth: 2}
)

// PayloadSize returns the number of bytes available after the tag
func (l Layout) PayloadSize() int {
	return MessageLength - l.TagWidth
}

// Validate checks the tag width
func (l Layout) Validate() error {
	if l.TagWidth != 1 && l.TagWidth != 2 {
		return fmt.Errorf("%w: %d", ErrInvalidLayout, l.TagWidth)
	}
	return nil
}

// Encode encodes msg into a new MessageLength-byte frame
func (l Layout) Encode(msg Message) ([]byte, error) {
	return l.AppendEncode(make([]byte, 0, MessageLength), msg)
}

// AppendEncode appends the encoded frame for msg to dst. On error dst is
// returned unchanged.
func (l Layout) AppendEncode(dst []byte, msg Message) ([]byte, error) {
	if err := l.Validate(); err != nil {
		return dst, err
	}
	if !msg.Type.Valid() {
		return dst, fmt.Errorf("encode: %w: tag %d", ErrUnknownMessageType, uint16(msg.Type))
	}
	payload := derefPayload(msg.Payload)
	if !payloadMatches(msg.Type, payload) {
		return dst, fmt.Errorf("encode %s: %w: %T", msg.Type, ErrPayloadMismatch, msg.Payload)
	}
	if payload != nil && payload.Size() > l.PayloadSize() {
		return dst, fmt.Errorf("encode %s: %w: %d bytes (max %d)",
			msg.Type, ErrPayloadTooLarge, payload.Size(), l.PayloadSize())
	}

	start := len(dst)
	dst = append(dst, make([]byte, MessageLength)...)
	frame := dst[start:]

	if l.TagWidth == 1 {
		frame[0] = byte(msg.Type)
	} else {
		binary.LittleEndian.PutUint16(frame, uint16(msg.Type))
	}

	if payload != nil {
		payload.putPayload(frame[l.TagWidth:])
	}
	return dst, nil
}

// Decode decodes one frame. Bytes past MessageLength are ignored.
func (l Layout) Decode(frame []byte) (Message, error) {
	if err := l.Validate(); err != nil {
		return Message{}, err
	}
	if len(frame) < MessageLength {
		return Message{}, &DecodeError{Length: len(frame), Err: ErrTruncatedMessage}
	}

	var tag uint16
	if l.TagWidth == 1 {
		tag = uint16(frame[0])
	} else {
		tag = binary.LittleEndian.Uint16(frame)
	}

	t := MessageType(tag)
	if !t.Valid() {
		return Message{}, &DecodeError{Tag: tag, Length: len(frame), Err: ErrUnknownMessageType}
	}

	body := frame[l.TagWidth:MessageLength]
	msg := Message{Type: t}
	switch t {
	case MsgSetJointsPositionSpeed, MsgGetJointsPositionSpeed:
		msg.Payload = decodeJoints(body)
	case MsgGetStatus:
		msg.Payload = decodeStatus(body)
	case MsgGetVersion:
		msg.Payload = decodeVersion(body)
	default:
		raw := make(Raw, len(body))
		copy(raw, body)
		msg.Payload = raw
	}
	return msg, nil
}

// Encode encodes msg with DefaultLayout
func Encode(msg Message) ([]byte, error) {
	return DefaultLayout.Encode(msg)
}

// Decode decodes frame with DefaultLayout
func Decode(frame []byte) (Message, error) {
	return DefaultLayout.Decode(frame)
}

func derefPayload(p Payload) Payload {
	switch v := p.(type) {
	case *JointsPositionSpeed:
		if v == nil {
			return nil
		}
		return *v
	case *Status:
		if v == nil {
			return nil
		}
		return *v
	case *Version:
		if v == nil {
			return nil
		}
		return *v
	case *Raw:
		if v == nil {
			return nil
		}
		return *v
	}
	return p
}
