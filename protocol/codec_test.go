package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeFrameLength(t *testing.T) {
	for _, layout := range []Layout{DefaultLayout, LegacyLayout} {
		for _, mt := range MessageTypes() {
			for _, msg := range []Message{{Type: mt}, NewMessage(mt)} {
				frame, err := layout.Encode(msg)
				if err != nil {
					t.Fatalf("tag width %d: Encode(%v) failed: %v", layout.TagWidth, msg, err)
				}
				if len(frame) != MessageLength {
					t.Errorf("tag width %d: Encode(%v) produced %d bytes, want %d",
						layout.TagWidth, msg, len(frame), MessageLength)
				}
			}
		}
	}
}

func TestRoundTrip(t *testing.T) {
	raw := make(Raw, MessageLength-1)
	for i := range raw {
		raw[i] = byte(0xF0 - i)
	}

	tests := []struct {
		name string
		msg  Message
	}{
		{"nop", Message{Type: MsgNop, Payload: raw}},
		{"set joints", Message{Type: MsgSetJointsPositionSpeed, Payload: JointsPositionSpeed{
			Joints: [JointCount]JointMoveSpeed{{100, 10}, {0, 0}, {-50, 5}},
		}}},
		{"get joints extremes", Message{Type: MsgGetJointsPositionSpeed, Payload: JointsPositionSpeed{
			Joints: [JointCount]JointMoveSpeed{{-32768, 32767}, {32767, -32768}, {-1, 1}},
		}}},
		{"status", Message{Type: MsgGetStatus, Payload: Status{Uptime: 0xDEADBEEF, TransmissionErrors: 0xFFFF}}},
		{"version", Message{Type: MsgGetVersion, Payload: FirmwareVersion()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := Decode(frame)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if diff := cmp.Diff(tt.msg, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeJointsLayout(t *testing.T) {
	msg := Message{Type: MsgSetJointsPositionSpeed, Payload: JointsPositionSpeed{
		Joints: [JointCount]JointMoveSpeed{{100, 10}, {0, 0}, {-50, 5}},
	}}

	frame, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := []byte{
		0x01,
		0x64, 0x00, 0x0A, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0xCE, 0xFF, 0x05, 0x00,
		0x00, 0x00, 0x00,
	}
	if !bytes.Equal(frame, want) {
		t.Errorf("frame mismatch:\n got %s\nwant %s", HexDump(frame), HexDump(want))
	}
}

func TestEncodeLegacyLayout(t *testing.T) {
	msg := Message{Type: MsgGetStatus, Payload: Status{Uptime: 0x01020304, TransmissionErrors: 0x0506}}

	frame, err := LegacyLayout.Encode(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := []byte{0x03, 0x00, 0x04, 0x03, 0x02, 0x01, 0x06, 0x05, 0, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(frame, want) {
		t.Errorf("frame mismatch:\n got %s\nwant %s", HexDump(frame), HexDump(want))
	}

	got, err := LegacyLayout.Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := cmp.Diff(msg, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendEncode(t *testing.T) {
	prefix := []byte{0xAA, 0xBB}
	out, err := DefaultLayout.AppendEncode(prefix, Message{Type: MsgGetVersion})
	if err != nil {
		t.Fatalf("AppendEncode failed: %v", err)
	}
	if len(out) != len(prefix)+MessageLength {
		t.Fatalf("expected %d bytes, got %d", len(prefix)+MessageLength, len(out))
	}
	if out[0] != 0xAA || out[1] != 0xBB || out[2] != byte(MsgGetVersion) {
		t.Errorf("unexpected output: %s", HexDump(out))
	}

	out, err = DefaultLayout.AppendEncode(prefix, Message{Type: 42})
	if err == nil {
		t.Fatal("expected error for unknown tag")
	}
	if !bytes.Equal(out, prefix) {
		t.Errorf("dst modified on error: %s", HexDump(out))
	}
}

func TestEncodePointerPayload(t *testing.T) {
	status := &Status{Uptime: 7}
	frame, err := Encode(Message{Type: MsgGetStatus, Payload: status})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Payload != (Status{Uptime: 7}) {
		t.Errorf("unexpected payload: %v", got.Payload)
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		msg    Message
		want   error
	}{
		{"unknown type", DefaultLayout, Message{Type: 5}, ErrUnknownMessageType},
		{"status payload on version", DefaultLayout, Message{Type: MsgGetVersion, Payload: Status{}}, ErrPayloadMismatch},
		{"joints payload on nop", DefaultLayout, Message{Type: MsgNop, Payload: JointsPositionSpeed{}}, ErrPayloadMismatch},
		{"raw too large", DefaultLayout, Message{Type: MsgNop, Payload: make(Raw, MessageLength)}, ErrPayloadTooLarge},
		{"raw too large legacy", LegacyLayout, Message{Type: MsgNop, Payload: make(Raw, MessageLength-1)}, ErrPayloadTooLarge},
		{"bad tag width", Layout{TagWidth: 4}, Message{Type: MsgNop}, ErrInvalidLayout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.layout.Encode(tt.msg)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	for _, mt := range MessageTypes() {
		frame, err := Encode(NewMessage(mt))
		if err != nil {
			t.Fatalf("Encode(%s) failed: %v", mt, err)
		}
		for n := 0; n < MessageLength; n++ {
			_, err := Decode(frame[:n])
			if !errors.Is(err, ErrTruncatedMessage) {
				t.Errorf("%s: Decode of %d bytes: expected ErrTruncatedMessage, got %v", mt, n, err)
			}
			var decErr *DecodeError
			if !errors.As(err, &decErr) || decErr.Length != n {
				t.Errorf("%s: expected DecodeError with length %d, got %v", mt, n, err)
			}
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	frame := make([]byte, MessageLength)
	for tag := 5; tag <= 0xFF; tag++ {
		frame[0] = byte(tag)
		_, err := Decode(frame)
		if !errors.Is(err, ErrUnknownMessageType) {
			t.Fatalf("tag %d: expected ErrUnknownMessageType, got %v", tag, err)
		}
		var decErr *DecodeError
		if !errors.As(err, &decErr) || decErr.Tag != uint16(tag) {
			t.Fatalf("tag %d: expected DecodeError carrying the tag, got %v", tag, err)
		}
	}

	// The high byte matters with a two byte tag
	frame[0], frame[1] = 0x01, 0x01
	if _, err := LegacyLayout.Decode(frame); !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("legacy tag 0x0101: expected ErrUnknownMessageType, got %v", err)
	}
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	frame, err := Encode(Message{Type: MsgGetStatus, Payload: Status{Uptime: 1}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	frame = append(frame, 0xFF, 0xFF)

	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Payload != (Status{Uptime: 1}) {
		t.Errorf("unexpected payload: %v", got.Payload)
	}
}

func TestVersionReply(t *testing.T) {
	request, err := Encode(Message{Type: MsgGetVersion})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if request[0] != 0x04 {
		t.Errorf("expected tag byte 0x04, got 0x%02X", request[0])
	}

	reply := []byte{0x04, 0x07, 0x0B, 0x12, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	msg, err := Decode(reply)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	version, ok := msg.Payload.(Version)
	if !ok {
		t.Fatalf("expected Version payload, got %T", msg.Payload)
	}
	if err := version.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
	if version.String() != "0.1" {
		t.Errorf("expected version 0.1, got %s", version)
	}
}

func TestVersionInvalidMagic(t *testing.T) {
	frame, err := Encode(Message{Type: MsgGetVersion, Payload: Version{MagicIdentifier: 0xDEADBEEF, Major: 0, Minor: 1}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode should accept a wrong magic, got %v", err)
	}

	err = msg.Payload.(Version).Validate()
	if !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
	if errors.Is(err, ErrUnknownMessageType) || errors.Is(err, ErrTruncatedMessage) {
		t.Errorf("magic error conflated with a decode error: %v", err)
	}
	var magicErr *MagicError
	if !errors.As(err, &magicErr) || magicErr.Got != 0xDEADBEEF {
		t.Errorf("expected MagicError carrying 0xDEADBEEF, got %v", err)
	}
}

func TestParseMessageType(t *testing.T) {
	for _, mt := range MessageTypes() {
		got, err := ParseMessageType(mt.String())
		if err != nil {
			t.Errorf("ParseMessageType(%q) failed: %v", mt.String(), err)
		}
		if got != mt {
			t.Errorf("ParseMessageType(%q) = %d, want %d", mt.String(), got, mt)
		}
	}

	if _, err := ParseMessageType("get_config"); !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("expected ErrUnknownMessageType, got %v", err)
	}
	if MessageType(9).String() != "unknown(9)" {
		t.Errorf("unexpected name for undefined type: %s", MessageType(9))
	}
}
