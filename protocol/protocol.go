// Package protocol implements the armlink fixed-size message format
package protocol

import (
	"fmt"
	"strconv"
)

// Protocol constants
const (
	MessageLength = 16 // Every frame on the wire is exactly this long

	FirmwareMajorVersion    = 0
	FirmwareMinorVersion    = 1
	FirmwareMagicIdentifier = 0x120B07

	// JointCount is the number of joints carried by a joint payload
	JointCount = 3
)

// MessageType is the tag selecting which payload variant a message carries
type MessageType uint16

// Message types, in tag order
const (
	MsgNop MessageType = iota
	MsgSetJointsPositionSpeed
	MsgGetJointsPositionSpeed
	MsgGetStatus
	MsgGetVersion

	messageTypeCount
)

var messageTypeNames = [messageTypeCount]string{
	MsgNop:                    "nop",
	MsgSetJointsPositionSpeed: "set_joints_position_speed",
	MsgGetJointsPositionSpeed: "get_joints_position_speed",
	MsgGetStatus:              "get_status",
	MsgGetVersion:             "get_version",
}

// Valid reports whether t is one of the defined message types
func (t MessageType) Valid() bool {
	return t < messageTypeCount
}

// String returns the wire name of the message type
func (t MessageType) String() string {
	if !t.Valid() {
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
	return messageTypeNames[t]
}

// ParseMessageType looks up a message type by its wire name
func ParseMessageType(name string) (MessageType, error) {
	for i, n := range messageTypeNames {
		if n == name {
			return MessageType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMessageType, name)
}

// MessageTypes returns every defined message type in tag order
func MessageTypes() []MessageType {
	types := make([]MessageType, 0, messageTypeCount)
	for t := MessageType(0); t < messageTypeCount; t++ {
		types = append(types, t)
	}
	return types
}

// Message is one decoded frame: a tag plus the payload variant it selects.
// Payload may be nil for requests that carry no content.
type Message struct {
	Type    MessageType
	Payload Payload
}

// NewMessage builds a message with the zero payload for its type
func NewMessage(t MessageType) Message {
	return Message{Type: t, Payload: NewPayload(t)}
}
