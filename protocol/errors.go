package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrTruncatedMessage   = errors.New("truncated message")
	ErrInvalidMagic       = errors.New("invalid magic identifier")
	ErrPayloadMismatch    = errors.New("payload does not match message type")
	ErrPayloadTooLarge    = errors.New("payload too large for frame")
	ErrInvalidLayout      = errors.New("invalid tag width")
)

// DecodeError describes a frame that could not be decoded.
// It unwraps to ErrTruncatedMessage or ErrUnknownMessageType.
type DecodeError struct {
	Tag    uint16 // Tag read from the frame, zero when the frame was truncated
	Length int    // Number of bytes supplied
	Err    error
}

func (e *DecodeError) Error() string {
	if errors.Is(e.Err, ErrTruncatedMessage) {
		return fmt.Sprintf("decode: %v: got %d bytes, want %d", e.Err, e.Length, MessageLength)
	}
	return fmt.Sprintf("decode: %v: tag %d", e.Err, e.Tag)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
