package protocol

import (
	"encoding/binary"
	"strconv"
)

// Payload is the type-specific content of a message. The set of
// implementations is closed: JointsPositionSpeed, Status, Version and Raw.
type Payload interface {
	// Size returns the number of bytes the payload occupies after the tag
	Size() int

	putPayload(b []byte)
}

// Encoded payload sizes
const (
	JointMoveSpeedSize      = 4
	JointsPositionSpeedSize = JointCount * JointMoveSpeedSize
	StatusSize              = 6
	VersionSize             = 6
)

// JointMoveSpeed is the target of one joint. Units are defined by the
// firmware build, not by the wire format.
type JointMoveSpeed struct {
	Position int16 `json:"position"`
	Speed    int16 `json:"speed"`
}

// JointsPositionSpeed carries one entry per joint, indexed by joint id
type JointsPositionSpeed struct {
	Joints [JointCount]JointMoveSpeed `json:"joints"`
}

func (JointsPositionSpeed) Size() int { return JointsPositionSpeedSize }

func (p JointsPositionSpeed) putPayload(b []byte) {
	for i, j := range p.Joints {
		off := i * JointMoveSpeedSize
		binary.LittleEndian.PutUint16(b[off:], uint16(j.Position))
		binary.LittleEndian.PutUint16(b[off+2:], uint16(j.Speed))
	}
}

func decodeJoints(b []byte) JointsPositionSpeed {
	var p JointsPositionSpeed
	for i := range p.Joints {
		off := i * JointMoveSpeedSize
		p.Joints[i].Position = int16(binary.LittleEndian.Uint16(b[off:]))
		p.Joints[i].Speed = int16(binary.LittleEndian.Uint16(b[off+2:]))
	}
	return p
}

// Status reports device health
type Status struct {
	Uptime             uint32 `json:"uptime"`
	TransmissionErrors uint16 `json:"transmission_errors"`
}

func (Status) Size() int { return StatusSize }

func (p Status) putPayload(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], p.Uptime)
	binary.LittleEndian.PutUint16(b[4:], p.TransmissionErrors)
}

func decodeStatus(b []byte) Status {
	return Status{
		Uptime:             binary.LittleEndian.Uint32(b[0:]),
		TransmissionErrors: binary.LittleEndian.Uint16(b[4:]),
	}
}

// Version is the firmware version reply. MagicIdentifier must be checked
// with Validate before Major and Minor are trusted.
type Version struct {
	MagicIdentifier uint32 `json:"magic_identifier"`
	Major           uint8  `json:"major"`
	Minor           uint8  `json:"minor"`
}

// FirmwareVersion returns the version this firmware build reports
func FirmwareVersion() Version {
	return Version{
		MagicIdentifier: FirmwareMagicIdentifier,
		Major:           FirmwareMajorVersion,
		Minor:           FirmwareMinorVersion,
	}
}

func (Version) Size() int { return VersionSize }

func (p Version) putPayload(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], p.MagicIdentifier)
	b[4] = p.Major
	b[5] = p.Minor
}

func decodeVersion(b []byte) Version {
	return Version{
		MagicIdentifier: binary.LittleEndian.Uint32(b[0:]),
		Major:           b[4],
		Minor:           b[5],
	}
}

// Validate checks the magic identifier
func (p Version) Validate() error {
	if p.MagicIdentifier != FirmwareMagicIdentifier {
		return &MagicError{Got: p.MagicIdentifier}
	}
	return nil
}

// String renders the version as "major.minor"
func (p Version) String() string {
	return strconv.Itoa(int(p.Major)) + "." + strconv.Itoa(int(p.Minor))
}

// MagicError is returned by Version.Validate and unwraps to ErrInvalidMagic
type MagicError struct {
	Got uint32
}

func (e *MagicError) Error() string {
	return ErrInvalidMagic.Error() + ": got 0x" + strconv.FormatUint(uint64(e.Got), 16) +
		", want 0x" + strconv.FormatUint(FirmwareMagicIdentifier, 16)
}

func (e *MagicError) Unwrap() error {
	return ErrInvalidMagic
}

// Raw is the unstructured view of everything after the tag. Nop frames
// decode to Raw, and Raw may be sent with any tag.
type Raw []byte

func (r Raw) Size() int { return len(r) }

func (r Raw) putPayload(b []byte) {
	copy(b, r)
}

// NewPayload returns the zero payload associated with a message type, or
// nil for an undefined type
func NewPayload(t MessageType) Payload {
	switch t {
	case MsgNop:
		return Raw{}
	case MsgSetJointsPositionSpeed, MsgGetJointsPositionSpeed:
		return JointsPositionSpeed{}
	case MsgGetStatus:
		return Status{}
	case MsgGetVersion:
		return Version{}
	}
	return nil
}

// payloadMatches reports whether p is a valid payload for t
func payloadMatches(t MessageType, p Payload) bool {
	switch p.(type) {
	case nil, Raw:
		return true
	case JointsPositionSpeed:
		return t == MsgSetJointsPositionSpeed || t == MsgGetJointsPositionSpeed
	case Status:
		return t == MsgGetStatus
	case Version:
		return t == MsgGetVersion
	}
	return false
}
